package audience

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// AudienceStore persists the audiences of one tenant.
type AudienceStore interface {
	// Add a new audience
	Add(a *Audience) error

	// Get an audience by ID
	Get(id string) (*Audience, error)

	// List all audiences, oldest first
	List() ([]*Audience, error)

	// Update an existing audience
	Update(a *Audience) error

	// Delete an audience
	Delete(id string) error
}

// InMemoryAudienceStore implements AudienceStore using a map. It stores and
// hands out copies, so callers never share an audience with the store.
type InMemoryAudienceStore struct {
	audiences map[string]*Audience
	mu        sync.RWMutex
}

func NewInMemoryAudienceStore() *InMemoryAudienceStore {
	return &InMemoryAudienceStore{
		audiences: make(map[string]*Audience),
	}
}

// Add stores a new audience and stamps CreatedAt and UpdatedAt.
func (s *InMemoryAudienceStore) Add(a *Audience) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.audiences[a.ID]; exists {
		return fmt.Errorf("audience with ID %s already exists", a.ID)
	}

	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now
	stored := *a
	s.audiences[a.ID] = &stored
	return nil
}

func (s *InMemoryAudienceStore) Get(id string) (*Audience, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.audiences[id]
	if !exists {
		return nil, fmt.Errorf("audience with ID %s not found", id)
	}
	cp := *a
	return &cp, nil
}

func (s *InMemoryAudienceStore) List() ([]*Audience, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Audience, 0, len(s.audiences))
	for _, a := range s.audiences {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Update replaces an audience, keeping its original CreatedAt.
func (s *InMemoryAudienceStore) Update(a *Audience) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.audiences[a.ID]
	if !exists {
		return fmt.Errorf("audience with ID %s not found", a.ID)
	}

	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = time.Now()
	stored := *a
	s.audiences[a.ID] = &stored
	return nil
}

func (s *InMemoryAudienceStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.audiences[id]; !exists {
		return fmt.Errorf("audience with ID %s not found", id)
	}

	delete(s.audiences, id)
	return nil
}
