//go:build integration

package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/liamcoop/audiences/internal/config"
)

// setupTestDB creates a PostgreSQL testcontainer and runs migrations
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	host, err := postgres.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("postgres://postgres:password@%s:%s/testdb?sslmode=disable", host, port.Port())
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	for i := 0; i < 30; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	migrationSQL, err := os.ReadFile("../../migrations/000001_initial_schema.up.sql")
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}
	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		postgres.Terminate(ctx)
	}
	return db, cleanup
}

func startServer(t *testing.T, db *sql.DB) string {
	t.Helper()
	server, err := NewServerWithDB(db, testConfig())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)
	return ts.URL + "/api/v1"
}

var retailSchema = map[string]any{
	"industryId": "retail",
	"facts": []any{map[string]any{
		"id":   "purchaseHistory",
		"name": "Purchase history",
		"properties": []any{
			map[string]any{"id": "total_orders", "name": "Total orders", "dataType": "number"},
			map[string]any{"id": "tier", "name": "Tier", "dataType": "string"},
		},
	}},
	"engagements": []any{map[string]any{
		"id":   "purchase",
		"name": "Purchase",
		"properties": []any{
			map[string]any{"id": "amount", "name": "Amount", "dataType": "number"},
		},
	}},
}

func ordersSections(min string) []any {
	return []any{map[string]any{
		"id":         "entry",
		"title":      "Entry",
		"matchType":  "all",
		"timePeriod": "last30days",
		"items": []any{map[string]any{
			"id": "r1", "propertyId": "total_orders", "parentName": "purchaseHistory",
			"operator": "greaterThanOrEqual", "value": min,
		}},
	}}
}

// TestEndToEnd_AudienceLifecycle covers the complete workflow:
// tenant, customers, preview, audience, match, members, recalculation.
func TestEndToEnd_AudienceLifecycle(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	baseURL := startServer(t, db)

	t.Log("Creating tenant...")
	tenantResp := makeRequest(t, "POST", baseURL+"/tenants", map[string]any{
		"name":   "Acme",
		"schema": retailSchema,
	})
	tenantID := tenantResp["id"].(string)
	tenantURL := baseURL + "/tenants/" + tenantID

	t.Log("Importing customers...")
	now := time.Now().UTC()
	importResp := makeRequest(t, "POST", tenantURL+"/customers", map[string]any{
		"customers": []any{
			map[string]any{
				"id":    "c1",
				"facts": map[string]any{"purchaseHistory": map[string]any{"total_orders": 5, "tier": "gold"}},
				"engagements": []any{map[string]any{
					"type": "purchase", "timestamp": now.Add(-72 * time.Hour).Format(time.RFC3339),
					"properties": map[string]any{"amount": 120},
				}},
			},
			map[string]any{"id": "c2", "facts": map[string]any{"purchaseHistory": map[string]any{"total_orders": 0}}},
			map[string]any{"id": "c3", "facts": map[string]any{"purchaseHistory": map[string]any{"total_orders": 2}}},
		},
	})
	if importResp["imported"].(float64) != 3 || importResp["total"].(float64) != 3 {
		t.Fatalf("Unexpected import response %v", importResp)
	}

	t.Log("Previewing sections...")
	preview := makeRequest(t, "POST", tenantURL+"/preview", map[string]any{"sections": ordersSections("2")})
	if preview["size"].(float64) != 2 || preview["total"].(float64) != 3 {
		t.Errorf("Expected preview 2 of 3, got %v", preview)
	}
	if preview["expression"] == "" {
		t.Error("Expected a CEL expression in the preview")
	}

	t.Log("Evaluating a raw condition tree...")
	evalResp := makeRequest(t, "POST", tenantURL+"/evaluate", map[string]any{
		"conditions": map[string]any{
			"type":     "group",
			"operator": "AND",
			"conditions": []any{map[string]any{
				"type": "engagement", "engagement": "purchase",
				"timeWindow": "last7days", "aggregation": "count",
				"operator": "greaterThanOrEqual", "value": 1,
			}},
		},
	})
	if evalResp["size"].(float64) != 1 {
		t.Errorf("Expected 1 recent purchaser, got %v", evalResp)
	}

	t.Log("Creating audience...")
	created := makeRequest(t, "POST", tenantURL+"/audiences", map[string]any{
		"name":     "Repeat buyers",
		"sections": ordersSections("2"),
		"status":   "published",
	})
	audienceID := created["id"].(string)
	if created["size"].(float64) != 2 || created["publishedAt"] == nil {
		t.Errorf("Unexpected created audience %v", created)
	}

	t.Log("Matching a customer...")
	matchResp := makeRequest(t, "POST", tenantURL+"/match", map[string]any{"customerId": "c1"})
	results := matchResp["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("Expected 1 match result, got %v", matchResp)
	}
	first := results[0].(map[string]any)
	if first["matched"] != true || first["expressionMatched"] != true {
		t.Errorf("Expected c1 to match through both paths, got %v", first)
	}

	t.Log("Listing members...")
	members := makeRequest(t, "GET", tenantURL+"/audiences/"+audienceID+"/members?limit=1", nil)
	if len(members["members"].([]any)) != 1 || members["size"].(float64) != 2 {
		t.Errorf("Unexpected members response %v", members)
	}

	t.Log("Recalculating after new customers...")
	makeRequest(t, "POST", tenantURL+"/customers", map[string]any{
		"customers": []any{
			map[string]any{"id": "c4", "facts": map[string]any{"purchaseHistory": map[string]any{"total_orders": 9}}},
		},
	})
	recalculated := makeRequest(t, "POST", tenantURL+"/audiences/"+audienceID+"/recalculate", nil)
	if recalculated["size"].(float64) != 3 {
		t.Errorf("Expected size 3 after recalculation, got %v", recalculated["size"])
	}

	t.Log("Updating audience...")
	updated := makeRequest(t, "PUT", tenantURL+"/audiences/"+audienceID, map[string]any{
		"name":     "Big buyers",
		"sections": ordersSections("5"),
	})
	if updated["size"].(float64) != 2 || updated["status"] != "published" {
		t.Errorf("Unexpected updated audience %v", updated)
	}

	list := makeRequest(t, "GET", tenantURL+"/audiences", nil)
	if len(list["audiences"].([]any)) != 1 {
		t.Errorf("Expected 1 audience, got %v", list)
	}

	t.Log("Deleting audience...")
	resp, err := makeHTTPRequest("DELETE", tenantURL+"/audiences/"+audienceID, nil)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", resp.StatusCode)
	}
	expectStatus(t, "GET", tenantURL+"/audiences/"+audienceID, nil, http.StatusNotFound)
}

// TestEndToEnd_SchemaUpdate checks that saved audiences survive a new
// schema version.
func TestEndToEnd_SchemaUpdate(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	baseURL := startServer(t, db)

	tenantResp := makeRequest(t, "POST", baseURL+"/tenants", map[string]any{
		"name":   "Schema Update Tenant",
		"schema": retailSchema,
	})
	tenantURL := baseURL + "/tenants/" + tenantResp["id"].(string)

	makeRequest(t, "POST", tenantURL+"/audiences", map[string]any{
		"id":       "buyers",
		"name":     "Buyers",
		"sections": ordersSections("1"),
	})

	schemaResp := makeRequest(t, "PUT", tenantURL+"/schema", map[string]any{"definition": retailSchema})
	if schemaResp["version"].(float64) != 2 {
		t.Errorf("Expected schema version 2 after update, got %v", schemaResp["version"])
	}
	if schemaResp["audiencesRecompiled"].(float64) != 1 {
		t.Errorf("Expected 1 recompiled audience, got %v", schemaResp["audiencesRecompiled"])
	}

	got := makeRequest(t, "GET", tenantURL+"/schema", nil)
	if got["version"].(float64) != 2 {
		t.Errorf("Expected active schema version 2, got %v", got["version"])
	}

	a := makeRequest(t, "GET", tenantURL+"/audiences/buyers", nil)
	if a["expression"] == nil || a["expression"] == "" {
		t.Errorf("Expected a compiled expression after the schema update, got %v", a)
	}

	expectStatus(t, "PUT", tenantURL+"/schema", map[string]any{"definition": map[string]any{}}, http.StatusBadRequest)
}

func TestEndToEnd_Errors(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	baseURL := startServer(t, db)

	expectStatus(t, "POST", baseURL+"/tenants", map[string]any{"name": "No schema"}, http.StatusBadRequest)
	expectStatus(t, "POST", baseURL+"/tenants", map[string]any{"schema": retailSchema}, http.StatusBadRequest)
	expectStatus(t, "GET", baseURL+"/tenants/unknown/audiences", nil, http.StatusNotFound)

	tenantResp := makeRequest(t, "POST", baseURL+"/tenants", map[string]any{"name": "Acme", "schema": retailSchema})
	tenantURL := baseURL + "/tenants/" + tenantResp["id"].(string)

	expectStatus(t, "POST", tenantURL+"/audiences", map[string]any{"sections": ordersSections("1")}, http.StatusBadRequest)
	expectStatus(t, "POST", tenantURL+"/match", map[string]any{}, http.StatusBadRequest)
	expectStatus(t, "POST", tenantURL+"/match", map[string]any{"customerId": "ghost"}, http.StatusNotFound)
	expectStatus(t, "POST", tenantURL+"/customers", map[string]any{"customers": []any{map[string]any{}}}, http.StatusBadRequest)
	expectStatus(t, "GET", tenantURL+"/audiences/missing/members?limit=-1", nil, http.StatusBadRequest)

	health := makeRequest(t, "GET", baseURL+"/health", nil)
	if health["status"] != "healthy" || health["tenantsLoaded"].(float64) != 1 {
		t.Errorf("Unexpected health response %v", health)
	}
}

func testConfig() *config.Server {
	return &config.Server{
		RequestTimeout:     10 * time.Second,
		SizeWorkers:        2,
		ParallelThreshold:  2,
		CORSAllowedOrigins: []string{"*"},
	}
}

func expectStatus(t *testing.T, method, url string, body any, want int) {
	t.Helper()
	resp, err := makeHTTPRequest(method, url, body)
	if err != nil {
		t.Fatalf("Failed to make %s request to %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		t.Errorf("%s %s: expected %d, got %d: %s", method, url, want, resp.StatusCode, b)
	}
}

// makeRequest performs a request and decodes a 2xx JSON response.
func makeRequest(t *testing.T, method, url string, body any) map[string]any {
	t.Helper()
	resp, err := makeHTTPRequest(method, url, body)
	if err != nil {
		t.Fatalf("Failed to make %s request to %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		t.Fatalf("Request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return result
}

func makeHTTPRequest(method, url string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	return client.Do(req)
}
