package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/liamcoop/audiences/audience"
	"github.com/liamcoop/audiences/internal/logger"
	"github.com/liamcoop/audiences/schema"
	"github.com/liamcoop/audiences/segment"
)

const defaultMembersLimit = 100

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "healthy",
		TenantsLoaded: len(s.tenants.ListTenants()),
		Counters: map[string]int64{
			"errors":             logger.TotalErrors.Load(),
			"warnings":           logger.TotalWarnings.Load(),
			"http5xx":            logger.Total5xxErrors.Load(),
			"http4xx":            logger.Total4xxErrors.Load(),
			"skippedRules":       logger.SkippedRules.Load(),
			"expressionFailures": logger.ExpressionFails.Load(),
			"scans":              logger.AudienceScans.Load(),
			"uptimeSeconds":      int64(time.Since(s.started).Seconds()),
		},
	}

	if err := s.db.PingContext(r.Context()); err != nil {
		resp.Status = "unhealthy"
		resp.Error = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Tenants

func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	resp := TenantsListResponse{Tenants: []TenantResponse{}}
	for _, ws := range s.tenants.ListTenants() {
		resp.Tenants = append(resp.Tenants, TenantResponse{
			ID:            ws.TenantID,
			Name:          ws.Name,
			SchemaVersion: ws.SchemaVersion,
			CreatedAt:     ws.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	if err := schema.Validate(req.Schema); err != nil {
		respondError(w, http.StatusBadRequest, "invalid schema", err)
		return
	}

	ws, err := s.tenants.CreateTenant(req.Name, req.Schema)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create tenant", err)
		return
	}

	respondJSON(w, http.StatusCreated, TenantResponse{
		ID:            ws.TenantID,
		Name:          ws.Name,
		SchemaVersion: ws.SchemaVersion,
		CreatedAt:     ws.CreatedAt,
	})
}

func (s *Server) handleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	if err := s.tenants.DeleteTenant(workspaceFrom(r).TenantID); err != nil {
		respondError(w, http.StatusNotFound, "tenant not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Schema

func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r)
	respondJSON(w, http.StatusOK, SchemaResponse{
		Version:    ws.SchemaVersion,
		Definition: ws.Schema,
	})
}

func (s *Server) handleUpdateSchema(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r)

	var req UpdateSchemaRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := schema.Validate(req.Definition); err != nil {
		respondError(w, http.StatusBadRequest, "invalid schema", err)
		return
	}

	updated, err := s.tenants.UpdateTenantSchema(ws.TenantID, req.Definition)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update schema", err)
		return
	}

	audiences, err := updated.Engine.ListAudiences()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list audiences", err)
		return
	}
	recompiled := len(audiences)

	respondJSON(w, http.StatusOK, SchemaResponse{
		Version:             updated.SchemaVersion,
		Definition:          updated.Schema,
		AudiencesRecompiled: &recompiled,
	})
}

// Customers

func (s *Server) handleImportCustomers(w http.ResponseWriter, r *http.Request) {
	en := workspaceFrom(r).Engine

	var req ImportCustomersRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	for i, c := range req.Customers {
		if c.ID == "" {
			respondError(w, http.StatusBadRequest, "customer "+strconv.Itoa(i)+" has no id", nil)
			return
		}
	}

	if err := en.Customers().Upsert(req.Customers); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to import customers", err)
		return
	}

	resp := ImportCustomersResponse{Imported: len(req.Customers)}
	if req.Recalculate {
		audiences, err := en.RecalculateAll(r.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to recalculate audiences", err)
			return
		}
		resp.Recalculated = len(audiences)
	}

	total, err := en.Customers().Count()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to count customers", err)
		return
	}
	resp.Total = total

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCountCustomers(w http.ResponseWriter, r *http.Request) {
	n, err := workspaceFrom(r).Engine.Customers().Count()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to count customers", err)
		return
	}
	respondJSON(w, http.StatusOK, CountResponse{Count: n})
}

// Evaluation

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	p, err := workspaceFrom(r).Engine.Preview(r.Context(), req.Sections)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "preview failed", err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	en := workspaceFrom(r).Engine

	var req EvaluateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	start := time.Now()
	size, err := en.EvaluateConditions(r.Context(), req.Conditions)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "evaluation failed", err)
		return
	}
	total, err := en.Customers().Count()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to count customers", err)
		return
	}

	respondJSON(w, http.StatusOK, EvaluateResponse{
		Size:           size,
		Total:          total,
		EvaluationTime: time.Since(start).String(),
	})
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	en := workspaceFrom(r).Engine

	var req MatchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	var customer segment.Customer
	switch {
	case req.Customer != nil:
		customer = *req.Customer
	case req.CustomerID != "":
		c, err := en.Customers().Get(req.CustomerID)
		if err != nil {
			respondError(w, http.StatusNotFound, "customer not found", err)
			return
		}
		customer = *c
	default:
		respondError(w, http.StatusBadRequest, "customerId or customer is required", nil)
		return
	}

	start := time.Now()
	results, err := en.Match(customer)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "match failed", err)
		return
	}

	resp := MatchResponse{
		CustomerID:     customer.ID,
		Results:        make([]MatchResultResponse, 0, len(results)),
		EvaluationTime: time.Since(start).String(),
	}
	for _, res := range results {
		out := MatchResultResponse{
			AudienceID:        res.AudienceID,
			AudienceName:      res.AudienceName,
			Matched:           res.Matched,
			ExpressionMatched: res.ExpressionMatched,
		}
		if res.Error != nil {
			msg := res.Error.Error()
			out.Error = &msg
		}
		resp.Results = append(resp.Results, out)
	}
	respondJSON(w, http.StatusOK, resp)
}

// Audiences

func (s *Server) handleListAudiences(w http.ResponseWriter, r *http.Request) {
	audiences, err := workspaceFrom(r).Engine.ListAudiences()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list audiences", err)
		return
	}
	if audiences == nil {
		audiences = []*audience.Audience{}
	}
	respondJSON(w, http.StatusOK, AudiencesListResponse{Audiences: audiences})
}

func (s *Server) handleCreateAudience(w http.ResponseWriter, r *http.Request) {
	var req AudienceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}
	a := req.toAudience(id)

	if err := workspaceFrom(r).Engine.AddAudience(r.Context(), a); err != nil {
		respondError(w, http.StatusBadRequest, "failed to add audience", err)
		return
	}
	respondJSON(w, http.StatusCreated, a)
}

func (s *Server) handleGetAudience(w http.ResponseWriter, r *http.Request) {
	a, err := workspaceFrom(r).Engine.GetAudience(chi.URLParam(r, "audienceId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "audience not found", err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (s *Server) handleUpdateAudience(w http.ResponseWriter, r *http.Request) {
	en := workspaceFrom(r).Engine
	id := chi.URLParam(r, "audienceId")

	if _, err := en.GetAudience(id); err != nil {
		respondError(w, http.StatusNotFound, "audience not found", err)
		return
	}

	var req AudienceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ID != "" && req.ID != id {
		respondError(w, http.StatusBadRequest, "audience id cannot be changed", nil)
		return
	}

	a := req.toAudience(id)
	if err := en.UpdateAudience(r.Context(), a); err != nil {
		respondError(w, http.StatusBadRequest, "failed to update audience", err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeleteAudience(w http.ResponseWriter, r *http.Request) {
	if err := workspaceFrom(r).Engine.DeleteAudience(chi.URLParam(r, "audienceId")); err != nil {
		respondError(w, http.StatusNotFound, "audience not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	en := workspaceFrom(r).Engine
	id := chi.URLParam(r, "audienceId")

	if _, err := en.GetAudience(id); err != nil {
		respondError(w, http.StatusNotFound, "audience not found", err)
		return
	}

	a, err := en.Recalculate(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to recalculate audience", err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (s *Server) handleRecalculateAll(w http.ResponseWriter, r *http.Request) {
	audiences, err := workspaceFrom(r).Engine.RecalculateAll(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to recalculate audiences", err)
		return
	}
	respondJSON(w, http.StatusOK, AudiencesListResponse{Audiences: audiences})
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	en := workspaceFrom(r).Engine
	id := chi.URLParam(r, "audienceId")

	limit := defaultMembersLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer", err)
			return
		}
		limit = n
	}

	a, err := en.GetAudience(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "audience not found", err)
		return
	}

	members, err := en.Members(r.Context(), id, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list members", err)
		return
	}
	if members == nil {
		members = []segment.Customer{}
	}

	respondJSON(w, http.StatusOK, MembersResponse{
		AudienceID: id,
		Size:       a.Size,
		Members:    members,
	})
}
