package audience

import "time"

// AudiencesCache caches the audience list so membership lookups do not hit
// the store on every request.
type AudiencesCache interface {
	// Get returns the cached audiences, or nil on a miss or after expiry
	Get() []*Audience

	Set(audiences []*Audience)

	// Invalidate forces a reload on the next Get
	Invalidate()

	IsValid() bool
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for cached entries.
	// Zero means entries only go away on Invalidate.
	TTL time.Duration
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}
