// Package api provides the HTTP REST API server for MarketMind.
//
// It exposes the query pipeline (batch JSON and progressive SSE),
// entity autocomplete, search history, source management, and a
// WebSocket mirror of the stage-event stream.
package api

import (
	"context"
	"crypto/subtle"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/fahimulhaque/MarketMind/internal/config"
	"github.com/fahimulhaque/MarketMind/internal/provider"
	"github.com/fahimulhaque/MarketMind/internal/report"
	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// QueryEngine runs intelligence queries in batch or streaming form.
type QueryEngine interface {
	Run(ctx context.Context, query string, limit int) (*models.Report, error)
	RunStream(ctx context.Context, query string, limit int) <-chan models.StageEvent
}

// Suggester backs the autocomplete endpoint.
type Suggester interface {
	Autocomplete(ctx context.Context, q string, limit int) ([]models.EntitySuggestion, error)
}

// EntityResolver resolves tickers for the enrichment endpoint.
type EntityResolver interface {
	Resolve(ctx context.Context, query, preTicker string) (models.Entity, bool, error)
}

// Enricher triggers a full provider enrichment pass.
type Enricher interface {
	RunFullEnrichment(ctx context.Context, entity models.Entity, onProvider func(provider.ProviderResult)) provider.EnrichmentSummary
}

// Ingestor schedules source ingestion jobs.
type Ingestor interface {
	Enqueue(src models.Source) error
	EnqueuePriority(src models.Source) error
}

// Repository is the persistence surface the handlers need.
type Repository interface {
	GetSearchHistory(ctx context.Context, page, pageSize int) ([]models.SearchRecord, error)
	AddSource(ctx context.Context, name, url, connectorType string) (models.Source, error)
	GetSource(ctx context.Context, id int64) (models.Source, error)
	ListActiveSources(ctx context.Context) ([]models.Source, error)
	DeleteSourceRecords(ctx context.Context, sourceID int64) error
}

// Deps bundles the server collaborators.
type Deps struct {
	Engine   QueryEngine
	Suggest  Suggester
	Resolver EntityResolver
	Enricher Enricher
	Ingestor Ingestor
	Repo     Repository
}

// Server is the HTTP API server.
type Server struct {
	router   chi.Router
	cfg      *config.Config
	engine   QueryEngine
	suggest  Suggester
	resolver EntityResolver
	enricher Enricher
	ingestor Ingestor
	repo     Repository
	render   *report.Renderer
	wsHub    *WSHub
}

// NewServer creates a configured API server with all routes and middleware.
func NewServer(cfg *config.Config, d Deps) *Server {
	srv := &Server{
		cfg:      cfg,
		engine:   d.Engine,
		suggest:  d.Suggest,
		resolver: d.Resolver,
		enricher: d.Enricher,
		ingestor: d.Ingestor,
		repo:     d.Repo,
		render:   report.NewRenderer(),
		wsHub:    NewWSHub(),
	}
	srv.router = srv.buildRouter()
	return srv
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe starts the HTTP server with graceful shutdown.
func (s *Server) ListenAndServe(addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming responses manage their own deadlines
		IdleTimeout:  60 * time.Second,
	}

	go s.wsHub.Run()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api: server error: %v", err)
		}
	}()

	<-done
	log.Println("api: shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(ctx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/search/query", s.handleSearchQuery)
		r.Post("/search/stream", s.handleSearchStream)
		r.Get("/search/autocomplete", s.handleAutocomplete)
		r.Get("/search/history", s.handleSearchHistory)

		r.Get("/ws", s.handleWebSocket)

		// Mutating endpoints require the shared write key.
		r.Group(func(r chi.Router) {
			r.Use(s.requireWriteKey)

			r.Get("/sources", s.handleListSources)
			r.Post("/sources", s.handleAddSource)
			r.Post("/sources/{id}/ingest", s.handleIngestSource)
			r.Delete("/sources/{id}", s.handleDeleteSource)

			r.Post("/agents/enrich/{ticker}", s.handleEnrich)
			r.Post("/reports/generate", s.handleGenerateReport)
			r.Post("/compliance/deletion-requests", s.handleDeletionRequest)
		})
	})

	return r
}

// requireWriteKey guards mutating endpoints with the configured shared
// key. An unset key disables every write endpoint.
func (s *Server) requireWriteKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := s.cfg.API.WriteKey
		if key == "" {
			writeError(w, http.StatusForbidden, "write API key not configured")
			return
		}
		got := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]any{
			"status":  "ok",
			"version": Version,
			"time":    time.Now().UTC().Format(time.RFC3339),
		},
	})
}
