package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/lib/pq"

	"github.com/liamcoop/audiences/audience"
	"github.com/liamcoop/audiences/internal/config"
	"github.com/liamcoop/audiences/internal/logger"
	"github.com/liamcoop/audiences/tenants"
)

type Server struct {
	db      *sql.DB
	cfg     *config.Server
	tenants *tenants.Manager
	router  *chi.Mux
	started time.Time
}

func NewServer(cfg *config.Server) (*Server, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s, err := NewServerWithDB(db, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewServerWithDB builds a server on an open database and loads every
// tenant's workspace.
func NewServerWithDB(db *sql.DB, cfg *config.Server) (*Server, error) {
	opts := audience.Options{
		Workers:           cfg.SizeWorkers,
		ParallelThreshold: cfg.ParallelThreshold,
		Cache:             audience.CacheConfig{TTL: cfg.AudienceCacheTTL},
	}
	manager := tenants.NewManager(db, opts)

	logger.Info("Loading tenants from database")
	if err := manager.LoadAllTenants(); err != nil {
		return nil, fmt.Errorf("failed to load tenants: %w", err)
	}

	s := &Server{
		db:      db,
		cfg:     cfg,
		tenants: manager,
		started: time.Now(),
	}
	s.setupRoutes()

	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/api/v1/health", s.handleHealth)

	r.Route("/api/v1/tenants", func(r chi.Router) {
		r.Get("/", s.handleListTenants)
		r.Post("/", s.handleCreateTenant)

		r.Route("/{tenantId}", func(r chi.Router) {
			r.Use(s.tenantCtx)

			r.Delete("/", s.handleDeleteTenant)

			r.Get("/schema", s.handleGetSchema)
			r.Put("/schema", s.handleUpdateSchema)

			r.Post("/customers", s.handleImportCustomers)
			r.Get("/customers/count", s.handleCountCustomers)

			r.Post("/preview", s.handlePreview)
			r.Post("/evaluate", s.handleEvaluate)
			r.Post("/match", s.handleMatch)

			r.Route("/audiences", func(r chi.Router) {
				r.Get("/", s.handleListAudiences)
				r.Post("/", s.handleCreateAudience)
				r.Post("/recalculate", s.handleRecalculateAll)

				r.Get("/{audienceId}", s.handleGetAudience)
				r.Put("/{audienceId}", s.handleUpdateAudience)
				r.Delete("/{audienceId}", s.handleDeleteAudience)
				r.Post("/{audienceId}/recalculate", s.handleRecalculate)
				r.Get("/{audienceId}/members", s.handleMembers)
			})
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		logger.Fatal("Failed to load configuration", "error", err)
	}

	server, err := NewServer(cfg)
	if err != nil {
		logger.Fatal("Failed to create server", "error", err)
	}
	defer server.db.Close()

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("Server starting", "addr", cfg.Addr(), "tenants", len(server.tenants.ListTenants()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	if err := logger.Shutdown(ctx); err != nil {
		logger.Error("Logger shutdown error", "error", err)
	}

	logger.Info("Server stopped")
}
