package audience

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/liamcoop/audiences/segment"
)

// PostgresAudienceStore implements AudienceStore backed by PostgreSQL.
// Sections and conditions are stored as JSONB.
type PostgresAudienceStore struct {
	db       *sql.DB
	tenantID string
}

func NewPostgresAudienceStore(db *sql.DB, tenantID string) *PostgresAudienceStore {
	return &PostgresAudienceStore{
		db:       db,
		tenantID: tenantID,
	}
}

const audienceColumns = `id, name, description, sections, conditions, expression, status, size, created_at, updated_at, published_at`

func (s *PostgresAudienceStore) Add(a *Audience) error {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM audiences WHERE id = $1 AND tenant_id = $2)
	`, a.ID, s.tenantID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check audience existence: %w", err)
	}
	if exists {
		return fmt.Errorf("audience with ID %s already exists", a.ID)
	}

	sections, conditions, err := encodeDefinition(a)
	if err != nil {
		return err
	}

	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err = s.db.Exec(`
		INSERT INTO audiences (id, tenant_id, name, description, sections, conditions, expression, status, size, created_at, updated_at, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, a.ID, s.tenantID, a.Name, a.Description, sections, conditions, a.Expression,
		string(a.Status), a.Size, a.CreatedAt, a.UpdatedAt, a.PublishedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audience: %w", err)
	}

	return nil
}

func (s *PostgresAudienceStore) Get(id string) (*Audience, error) {
	row := s.db.QueryRow(`
		SELECT `+audienceColumns+`
		FROM audiences
		WHERE id = $1 AND tenant_id = $2
	`, id, s.tenantID)

	a, err := scanAudience(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("audience %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audience: %w", err)
	}
	return a, nil
}

func (s *PostgresAudienceStore) List() ([]*Audience, error) {
	rows, err := s.db.Query(`
		SELECT `+audienceColumns+`
		FROM audiences
		WHERE tenant_id = $1
		ORDER BY created_at ASC, id ASC
	`, s.tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audiences: %w", err)
	}
	defer rows.Close()

	var out []*Audience
	for rows.Next() {
		a, err := scanAudience(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audience: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audiences: %w", err)
	}

	return out, nil
}

func (s *PostgresAudienceStore) Update(a *Audience) error {
	existing, err := s.Get(a.ID)
	if err != nil {
		return err
	}

	sections, conditions, err := encodeDefinition(a)
	if err != nil {
		return err
	}

	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = time.Now()

	result, err := s.db.Exec(`
		UPDATE audiences
		SET name = $1, description = $2, sections = $3, conditions = $4, expression = $5,
		    status = $6, size = $7, updated_at = $8, published_at = $9
		WHERE id = $10 AND tenant_id = $11
	`, a.Name, a.Description, sections, conditions, a.Expression,
		string(a.Status), a.Size, a.UpdatedAt, a.PublishedAt, a.ID, s.tenantID)
	if err != nil {
		return fmt.Errorf("failed to update audience: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("audience %s not found", a.ID)
	}

	return nil
}

func (s *PostgresAudienceStore) Delete(id string) error {
	result, err := s.db.Exec(`
		DELETE FROM audiences
		WHERE id = $1 AND tenant_id = $2
	`, id, s.tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete audience: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("audience %s not found", id)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAudience(row rowScanner) (*Audience, error) {
	var (
		a           Audience
		sections    []byte
		conditions  []byte
		status      string
		publishedAt sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Name, &a.Description, &sections, &conditions, &a.Expression,
		&status, &a.Size, &a.CreatedAt, &a.UpdatedAt, &publishedAt)
	if err != nil {
		return nil, err
	}

	a.Status = Status(status)
	if publishedAt.Valid {
		t := publishedAt.Time
		a.PublishedAt = &t
	}
	if len(sections) > 0 {
		if err := json.Unmarshal(sections, &a.Sections); err != nil {
			return nil, fmt.Errorf("invalid sections for audience %s: %w", a.ID, err)
		}
	}
	if len(conditions) > 0 && string(conditions) != "null" {
		g, err := segment.DecodeGroup(conditions)
		if err != nil {
			return nil, fmt.Errorf("invalid conditions for audience %s: %w", a.ID, err)
		}
		a.Conditions = g
	}
	return &a, nil
}

func encodeDefinition(a *Audience) (sections, conditions []byte, err error) {
	secs := a.Sections
	if secs == nil {
		secs = []segment.Section{}
	}
	sections, err = json.Marshal(secs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal sections: %w", err)
	}

	cond := a.Conditions
	if cond == nil {
		cond = segment.MatchEveryone()
	}
	conditions, err = json.Marshal(cond)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal conditions: %w", err)
	}
	return sections, conditions, nil
}
