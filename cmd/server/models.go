package main

import (
	"time"

	"github.com/liamcoop/audiences/audience"
	"github.com/liamcoop/audiences/schema"
	"github.com/liamcoop/audiences/segment"
)

// API request and response models.

// CreateTenantRequest is the body of POST /tenants.
type CreateTenantRequest struct {
	Name   string         `json:"name"`
	Schema *schema.Schema `json:"schema"`
}

// TenantResponse is a loaded tenant.
type TenantResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	SchemaVersion int       `json:"schemaVersion"`
	CreatedAt     time.Time `json:"createdAt"`
}

type TenantsListResponse struct {
	Tenants []TenantResponse `json:"tenants"`
}

// UpdateSchemaRequest is the body of PUT /tenants/{tenantId}/schema.
type UpdateSchemaRequest struct {
	Definition *schema.Schema `json:"definition"`
}

type SchemaResponse struct {
	Version    int            `json:"version"`
	Definition *schema.Schema `json:"definition"`
	// AudiencesRecompiled is only set after a schema update.
	AudiencesRecompiled *int `json:"audiencesRecompiled,omitempty"`
}

// ImportCustomersRequest is the body of POST /tenants/{tenantId}/customers.
type ImportCustomersRequest struct {
	Customers []segment.Customer `json:"customers"`
	// Recalculate resizes every audience after the import.
	Recalculate bool `json:"recalculate,omitempty"`
}

type ImportCustomersResponse struct {
	Imported     int `json:"imported"`
	Total        int `json:"total"`
	Recalculated int `json:"recalculated,omitempty"`
}

type CountResponse struct {
	Count int `json:"count"`
}

// PreviewRequest is the body of POST /tenants/{tenantId}/preview.
type PreviewRequest struct {
	Sections []segment.Section `json:"sections"`
}

// EvaluateRequest is the body of POST /tenants/{tenantId}/evaluate.
type EvaluateRequest struct {
	Conditions *segment.ConditionGroup `json:"conditions"`
}

type EvaluateResponse struct {
	Size           int    `json:"size"`
	Total          int    `json:"total"`
	EvaluationTime string `json:"evaluationTime"`
}

// MatchRequest names a stored customer or carries one inline.
type MatchRequest struct {
	CustomerID string            `json:"customerId,omitempty"`
	Customer   *segment.Customer `json:"customer,omitempty"`
}

type MatchResultResponse struct {
	AudienceID        string  `json:"audienceId"`
	AudienceName      string  `json:"audienceName"`
	Matched           bool    `json:"matched"`
	ExpressionMatched *bool   `json:"expressionMatched,omitempty"`
	Error             *string `json:"error,omitempty"`
}

type MatchResponse struct {
	CustomerID     string                `json:"customerId"`
	Results        []MatchResultResponse `json:"results"`
	EvaluationTime string                `json:"evaluationTime"`
}

// AudienceRequest is the body of POST and PUT on audiences. Sections win
// over Conditions when both are given.
type AudienceRequest struct {
	ID          string                  `json:"id,omitempty"`
	Name        string                  `json:"name"`
	Description string                  `json:"description,omitempty"`
	Sections    []segment.Section       `json:"sections,omitempty"`
	Conditions  *segment.ConditionGroup `json:"conditions,omitempty"`
	Status      audience.Status         `json:"status,omitempty"`
}

func (req AudienceRequest) toAudience(id string) *audience.Audience {
	return &audience.Audience{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Sections:    req.Sections,
		Conditions:  req.Conditions,
		Status:      req.Status,
	}
}

type AudiencesListResponse struct {
	Audiences []*audience.Audience `json:"audiences"`
}

type MembersResponse struct {
	AudienceID string             `json:"audienceId"`
	Size       int                `json:"size"`
	Members    []segment.Customer `json:"members"`
}

// ErrorResponse is written for every non-2xx status.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// HealthResponse reports the database state and the process counters.
type HealthResponse struct {
	Status        string           `json:"status"`
	Error         string           `json:"error,omitempty"`
	TenantsLoaded int              `json:"tenantsLoaded"`
	Counters      map[string]int64 `json:"counters"`
}
