// Package server wires the HTTP API: ledger queries, statement uploads
// and the per-session SSE progress stream.
package server

import (
	"context"
	"net/http"

	"github.com/rumor-ml/commons.systems/bankparse/internal/classify"
	"github.com/rumor-ml/commons.systems/bankparse/internal/handlers"
	"github.com/rumor-ml/commons.systems/bankparse/internal/middleware"
	"github.com/rumor-ml/commons.systems/bankparse/internal/notify"
	"github.com/rumor-ml/commons.systems/bankparse/internal/pipeline"
	"github.com/rumor-ml/commons.systems/bankparse/internal/registry"
	"github.com/rumor-ml/commons.systems/bankparse/internal/rules"
	"github.com/rumor-ml/commons.systems/bankparse/internal/store"
	"github.com/rumor-ml/commons.systems/bankparse/internal/streaming"
)

// Options configures the server.
type Options struct {
	ProjectID string
	// RulesPath overrides the embedded categorization rules when set.
	RulesPath string
	// AlertThreshold enables spending alerts on imported debits. Zero
	// disables them.
	AlertThreshold float64
}

// Server is the statement ingestion API server.
type Server struct {
	fsStore *store.Firestore
	mux     *http.ServeMux
}

// New creates a new server instance
func New(ctx context.Context, opts Options) (*Server, error) {
	fsStore, err := store.NewFirestore(ctx, opts.ProjectID)
	if err != nil {
		return nil, err
	}

	engine, err := loadRules(opts.RulesPath)
	if err != nil {
		fsStore.Close()
		return nil, err
	}

	var notifier *notify.Notifier
	if opts.AlertThreshold > 0 {
		notifier = notify.New(opts.AlertThreshold)
	}

	s := &Server{
		fsStore: fsStore,
		mux:     http.NewServeMux(),
	}

	hub := streaming.NewStreamHub()
	pipe := pipeline.New(registry.MustNew(), classify.New(engine), notifier, hub)
	s.setupRoutes(hub, pipe)

	return s, nil
}

func loadRules(path string) (*rules.Engine, error) {
	if path != "" {
		return rules.LoadFromFile(path)
	}
	return rules.LoadEmbedded()
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(hub *streaming.StreamHub, pipe *pipeline.Pipeline) {
	// Health check (no auth required)
	s.mux.HandleFunc("/health", handlers.HealthCheck)

	apiHandler := handlers.NewAPIHandler(s.fsStore)
	authMiddleware := middleware.NewAuthMiddleware(s.fsStore.Auth)
	parseHandler := handlers.NewParseHandlers(s.fsStore, hub, pipe)

	// Protected API routes
	s.mux.Handle("/api/transactions", authMiddleware.RequireAuth(http.HandlerFunc(apiHandler.GetTransactions)))
	s.mux.Handle("/api/statements", authMiddleware.RequireAuth(http.HandlerFunc(apiHandler.GetStatements)))
	s.mux.Handle("/api/accounts", authMiddleware.RequireAuth(http.HandlerFunc(apiHandler.GetAccounts)))
	s.mux.Handle("/api/institutions", authMiddleware.RequireAuth(http.HandlerFunc(apiHandler.GetInstitutions)))

	// Parse endpoints
	s.mux.Handle("/api/parse/start", authMiddleware.RequireAuth(http.HandlerFunc(parseHandler.StartParse)))
	s.mux.Handle("/api/parse/sessions", authMiddleware.RequireAuth(http.HandlerFunc(parseHandler.ListSessions)))
	s.mux.Handle("/api/parse/{id}", authMiddleware.RequireAuth(http.HandlerFunc(parseHandler.GetSession)))
	s.mux.Handle("/api/parse/{id}/events", authMiddleware.RequireAuth(http.HandlerFunc(parseHandler.StreamEvents)))
	s.mux.Handle("/api/parse/{id}/cancel", authMiddleware.RequireAuth(http.HandlerFunc(parseHandler.CancelParse)))

	// Static files for frontend (when deployed together)
	fs := http.FileServer(http.Dir("./dist"))
	s.mux.Handle("/", fs)
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return middleware.CORS(s.mux)
}

// Close closes the server resources
func (s *Server) Close() error {
	return s.fsStore.Close()
}
