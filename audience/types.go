// Package audience stores audiences and keeps their membership counts in
// step with a tenant's customer population.
package audience

import (
	"fmt"
	"time"

	"github.com/liamcoop/audiences/segment"
)

// Status is the lifecycle state of an audience.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// Audience is a saved segment definition together with its last computed size.
type Audience struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Sections    []segment.Section `json:"sections"`
	// Conditions is the membership condition. It is rebuilt from Sections
	// whenever sections are present.
	Conditions *segment.ConditionGroup `json:"conditions"`
	// Expression is the CEL rendering of Conditions, empty when the
	// conditions could not be exported.
	Expression  string     `json:"expression,omitempty"`
	Status      Status     `json:"status"`
	Size        int        `json:"size"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

// Validate checks the user-editable fields.
func (a *Audience) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("audience ID is required")
	}
	if a.Name == "" {
		return fmt.Errorf("audience name is required")
	}
	if len(a.Name) > 200 {
		return fmt.Errorf("audience name must be at most 200 characters")
	}
	switch a.Status {
	case StatusDraft, StatusPublished:
	default:
		return fmt.Errorf("invalid audience status %q", a.Status)
	}
	return nil
}

// MatchResult is the outcome of testing one customer against one audience.
type MatchResult struct {
	AudienceID   string `json:"audienceId"`
	AudienceName string `json:"audienceName"`
	Matched      bool   `json:"matched"`
	// ExpressionMatched is the result of the compiled CEL expression, nil
	// when the audience has no expression or it failed to evaluate.
	ExpressionMatched *bool `json:"expressionMatched,omitempty"`
	Error             error `json:"-"`
}

// Preview is the live result of a set of editor sections.
type Preview struct {
	Size       int                     `json:"size"`
	Total      int                     `json:"total"`
	Conditions *segment.ConditionGroup `json:"conditions"`
	Expression string                  `json:"expression,omitempty"`
	Summary    []string                `json:"summary"`
}
