package audience

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/liamcoop/audiences/segment"
)

// CustomerStore holds the customer population of one tenant.
type CustomerStore interface {
	// List returns every customer, ordered by ID
	List() ([]segment.Customer, error)

	// Get returns one customer by ID
	Get(id string) (*segment.Customer, error)

	// Upsert inserts or replaces customers by ID
	Upsert(customers []segment.Customer) error

	Count() (int, error)
}

// InMemoryCustomerStore implements CustomerStore using a map.
type InMemoryCustomerStore struct {
	customers map[string]segment.Customer
	mu        sync.RWMutex
}

func NewInMemoryCustomerStore(customers ...segment.Customer) *InMemoryCustomerStore {
	s := &InMemoryCustomerStore{customers: make(map[string]segment.Customer, len(customers))}
	for _, c := range customers {
		s.customers[c.ID] = c
	}
	return s
}

func (s *InMemoryCustomerStore) List() ([]segment.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]segment.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryCustomerStore) Get(id string) (*segment.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, fmt.Errorf("customer with ID %s not found", id)
	}
	return &c, nil
}

func (s *InMemoryCustomerStore) Upsert(customers []segment.Customer) error {
	for _, c := range customers {
		if c.ID == "" {
			return fmt.Errorf("customer ID is required")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range customers {
		s.customers[c.ID] = c
	}
	return nil
}

func (s *InMemoryCustomerStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.customers), nil
}

// PostgresCustomerStore implements CustomerStore backed by PostgreSQL.
// Facts and engagements are stored as JSONB documents per customer.
type PostgresCustomerStore struct {
	db       *sql.DB
	tenantID string
}

func NewPostgresCustomerStore(db *sql.DB, tenantID string) *PostgresCustomerStore {
	return &PostgresCustomerStore{
		db:       db,
		tenantID: tenantID,
	}
}

func (s *PostgresCustomerStore) List() ([]segment.Customer, error) {
	rows, err := s.db.Query(`
		SELECT id, facts, engagements
		FROM customers
		WHERE tenant_id = $1
		ORDER BY id ASC
	`, s.tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	out := make([]segment.Customer, 0)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating customers: %w", err)
	}
	return out, nil
}

func (s *PostgresCustomerStore) Get(id string) (*segment.Customer, error) {
	row := s.db.QueryRow(`
		SELECT id, facts, engagements
		FROM customers
		WHERE id = $1 AND tenant_id = $2
	`, id, s.tenantID)

	c, err := scanCustomer(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("customer %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Upsert writes all customers in one transaction.
func (s *PostgresCustomerStore) Upsert(customers []segment.Customer) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO customers (tenant_id, id, facts, engagements, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (tenant_id, id)
		DO UPDATE SET facts = EXCLUDED.facts, engagements = EXCLUDED.engagements, updated_at = NOW()
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range customers {
		if c.ID == "" {
			return fmt.Errorf("customer ID is required")
		}
		facts, err := json.Marshal(nonNilFacts(c.Facts))
		if err != nil {
			return fmt.Errorf("failed to marshal facts for customer %s: %w", c.ID, err)
		}
		engagements, err := json.Marshal(nonNilEngagements(c.Engagements))
		if err != nil {
			return fmt.Errorf("failed to marshal engagements for customer %s: %w", c.ID, err)
		}
		if _, err := stmt.Exec(s.tenantID, c.ID, facts, engagements); err != nil {
			return fmt.Errorf("failed to upsert customer %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit customers: %w", err)
	}
	return nil
}

func (s *PostgresCustomerStore) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM customers WHERE tenant_id = $1`, s.tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count customers: %w", err)
	}
	return n, nil
}

func scanCustomer(row rowScanner) (*segment.Customer, error) {
	var (
		c           segment.Customer
		facts       []byte
		engagements []byte
	)
	if err := row.Scan(&c.ID, &facts, &engagements); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(facts, &c.Facts); err != nil {
		return nil, fmt.Errorf("invalid facts for customer %s: %w", c.ID, err)
	}
	if err := json.Unmarshal(engagements, &c.Engagements); err != nil {
		return nil, fmt.Errorf("invalid engagements for customer %s: %w", c.ID, err)
	}
	return &c, nil
}

func nonNilFacts(f map[string]map[string]any) map[string]map[string]any {
	if f == nil {
		return map[string]map[string]any{}
	}
	return f
}

func nonNilEngagements(e []segment.Engagement) []segment.Engagement {
	if e == nil {
		return []segment.Engagement{}
	}
	return e
}
