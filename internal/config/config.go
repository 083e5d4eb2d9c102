package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Server holds the HTTP service configuration, read from the environment.
type Server struct {
	DatabaseURL     string        `env:"DATABASE_URL,required,notEmpty"`
	Port            string        `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	// Populations larger than ParallelThreshold are sized with SizeWorkers
	// goroutines.
	SizeWorkers       int `env:"SIZE_WORKERS" envDefault:"4"`
	ParallelThreshold int `env:"PARALLEL_THRESHOLD" envDefault:"10000"`

	// AudienceCacheTTL bounds how long the audience list is served from
	// memory. Zero means invalidate on mutation only.
	AudienceCacheTTL time.Duration `env:"AUDIENCE_CACHE_TTL" envDefault:"0s"`
}

// LoadServer parses the server configuration from the environment.
func LoadServer() (*Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges env tags cannot express.
func (c *Server) Validate() error {
	if c.SizeWorkers < 1 {
		return fmt.Errorf("SIZE_WORKERS must be at least 1, got %d", c.SizeWorkers)
	}
	if c.ParallelThreshold < 0 {
		return fmt.Errorf("PARALLEL_THRESHOLD must be non-negative, got %d", c.ParallelThreshold)
	}
	if c.AudienceCacheTTL < 0 {
		return fmt.Errorf("AUDIENCE_CACHE_TTL must be non-negative")
	}
	return nil
}

// Addr returns the listen address for the configured port.
func (c *Server) Addr() string {
	return ":" + c.Port
}

// Migrate holds the defaults of the migration tool. Flags override them.
type Migrate struct {
	DatabaseURL    string `env:"DATABASE_URL"`
	MigrationsPath string `env:"MIGRATIONS_PATH" envDefault:"migrations"`
}

func LoadMigrate() (*Migrate, error) {
	var cfg Migrate
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// SourceURL returns the golang-migrate source URL of the migrations path.
func (c *Migrate) SourceURL() string {
	return "file://" + c.MigrationsPath
}
