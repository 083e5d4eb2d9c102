// Package tenants keeps one audience engine per tenant, built from the
// tenant's active schema.
package tenants

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/audiences/audience"
	"github.com/liamcoop/audiences/internal/logger"
	"github.com/liamcoop/audiences/schema"
)

// Workspace is a tenant's engine and the schema it was built from.
type Workspace struct {
	TenantID      string
	Name          string
	Schema        *schema.Schema
	SchemaVersion int
	Engine        *audience.Engine
	CreatedAt     time.Time
}

// Manager manages the workspaces of all tenants.
type Manager struct {
	workspaces map[string]*Workspace
	db         *sql.DB
	opts       audience.Options
	mu         sync.RWMutex
}

func NewManager(db *sql.DB, opts audience.Options) *Manager {
	return &Manager{
		workspaces: make(map[string]*Workspace),
		db:         db,
		opts:       opts,
	}
}

// LoadAllTenants builds a workspace for every tenant with an active schema.
func (m *Manager) LoadAllTenants() error {
	rows, err := m.db.Query(`
		SELECT t.id, t.name, t.created_at, s.version, s.definition
		FROM tenants t
		JOIN schemas s ON s.tenant_id = t.id
		WHERE s.active = true
	`)
	if err != nil {
		return fmt.Errorf("failed to fetch tenants: %w", err)
	}
	defer rows.Close()

	loaded := 0
	for rows.Next() {
		var (
			ws         Workspace
			definition []byte
		)
		if err := rows.Scan(&ws.TenantID, &ws.Name, &ws.CreatedAt, &ws.SchemaVersion, &definition); err != nil {
			return fmt.Errorf("failed to scan tenant row: %w", err)
		}

		var s schema.Schema
		if err := json.Unmarshal(definition, &s); err != nil {
			return fmt.Errorf("invalid schema for tenant %s: %w", ws.TenantID, err)
		}
		ws.Schema = &s

		if err := m.register(&ws); err != nil {
			return fmt.Errorf("failed to initialize tenant %s: %w", ws.TenantID, err)
		}
		loaded++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating tenant rows: %w", err)
	}

	logger.Info("Loaded tenants", "count", loaded)
	return nil
}

// CreateTenant stores a new tenant with its first schema version and
// starts its engine.
func (m *Manager) CreateTenant(name string, s *schema.Schema) (*Workspace, error) {
	if name == "" {
		return nil, fmt.Errorf("tenant name is required")
	}
	if err := schema.Validate(s); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}
	definition, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	ws := &Workspace{
		TenantID:      uuid.New().String(),
		Name:          name,
		Schema:        s,
		SchemaVersion: 1,
	}

	tx, err := m.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRow(`
		INSERT INTO tenants (id, name, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING created_at
	`, ws.TenantID, name).Scan(&ws.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO schemas (tenant_id, version, definition, active, created_at)
		VALUES ($1, 1, $2, true, NOW())
	`, ws.TenantID, definition)
	if err != nil {
		return nil, fmt.Errorf("failed to save schema: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit tenant: %w", err)
	}

	if err := m.register(ws); err != nil {
		return nil, err
	}

	logger.Info("Tenant created", "tenant_id", ws.TenantID, "name", name)
	return ws, nil
}

func (m *Manager) register(ws *Workspace) error {
	engine, err := m.newEngine(ws.TenantID, ws.Schema)
	if err != nil {
		return err
	}
	ws.Engine = engine

	m.mu.Lock()
	m.workspaces[ws.TenantID] = ws
	m.mu.Unlock()
	return nil
}

func (m *Manager) newEngine(tenantID string, s *schema.Schema) (*audience.Engine, error) {
	engine, err := audience.NewEngine(s,
		audience.NewPostgresAudienceStore(m.db, tenantID),
		audience.NewPostgresCustomerStore(m.db, tenantID),
		m.opts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return engine, nil
}

// Get returns the workspace of a tenant.
func (m *Manager) Get(tenantID string) (*Workspace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ws, exists := m.workspaces[tenantID]
	if !exists {
		return nil, fmt.Errorf("tenant %s not found", tenantID)
	}
	return ws, nil
}

// GetEngine returns the engine of a tenant.
func (m *Manager) GetEngine(tenantID string) (*audience.Engine, error) {
	ws, err := m.Get(tenantID)
	if err != nil {
		return nil, err
	}
	return ws.Engine, nil
}

// UpdateTenantSchema saves a new schema version and swaps in an engine
// built against it. Stored audiences are rebuilt from their sections, so
// rules that no longer resolve drop out of their conditions.
func (m *Manager) UpdateTenantSchema(tenantID string, s *schema.Schema) (*Workspace, error) {
	if err := schema.Validate(s); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, exists := m.workspaces[tenantID]
	if !exists {
		return nil, fmt.Errorf("tenant %s not found", tenantID)
	}

	definition, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	tx, err := m.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE schemas SET active = false WHERE tenant_id = $1`, tenantID); err != nil {
		return nil, fmt.Errorf("failed to deactivate old schemas: %w", err)
	}

	var version int
	err = tx.QueryRow(`
		INSERT INTO schemas (tenant_id, version, definition, active, created_at)
		SELECT $1, COALESCE(MAX(version), 0) + 1, $2, true, NOW()
		FROM schemas
		WHERE tenant_id = $1
		RETURNING version
	`, tenantID, definition).Scan(&version)
	if err != nil {
		return nil, fmt.Errorf("failed to save new schema: %w", err)
	}

	engine, err := m.newEngine(tenantID, s)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit schema: %w", err)
	}

	ws := &Workspace{
		TenantID:      tenantID,
		Name:          existing.Name,
		Schema:        s,
		SchemaVersion: version,
		Engine:        engine,
		CreatedAt:     existing.CreatedAt,
	}
	m.workspaces[tenantID] = ws

	logger.Info("Tenant schema updated", "tenant_id", tenantID, "version", version)
	return ws, nil
}

// ListTenants returns all loaded workspaces ordered by creation time.
func (m *Manager) ListTenants() []*Workspace {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Workspace, 0, len(m.workspaces))
	for _, ws := range m.workspaces {
		out = append(out, ws)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].TenantID < out[j].TenantID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// DeleteTenant unloads a tenant's workspace. The tenant's rows stay in the
// database.
func (m *Manager) DeleteTenant(tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.workspaces[tenantID]; !exists {
		return fmt.Errorf("tenant %s not found", tenantID)
	}

	delete(m.workspaces, tenantID)
	return nil
}
