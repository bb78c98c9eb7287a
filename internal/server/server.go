// Package server provides the HTTP API for ragdesk.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/ragdesk/internal/agent"
	"github.com/hyperjump/ragdesk/internal/config"
	"github.com/hyperjump/ragdesk/internal/models"
	"github.com/hyperjump/ragdesk/internal/storage"
	"github.com/hyperjump/ragdesk/internal/vector"
)

// DefaultMaxUploadBytes bounds an uploaded file when the config does not.
const DefaultMaxUploadBytes = 32 << 20

// Ingester runs and reverts ingestions. *indexer.Indexer implements it.
type Ingester interface {
	Ingest(ctx context.Context, input models.IngestInput) (*models.IngestResult, error)
	DeleteDocument(ctx context.Context, id string) error
}

// Enqueuer hands an ingestion to a background worker. *queue.Publisher implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, input models.IngestInput) (string, error)
}

// Server is the HTTP server for the ragdesk API.
type Server struct {
	ingester Ingester
	tool     *agent.VectorQueryTool
	storage  storage.Storage
	conns    *vector.ConnectionManager
	config   *config.Config
	enqueuer Enqueuer
	logger   *zap.Logger
	server   *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithEnqueuer enables asynchronous ingestion (?async=true).
func WithEnqueuer(e Enqueuer) Option {
	return func(s *Server) { s.enqueuer = e }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a server with the given dependencies.
func NewServer(
	ingester Ingester,
	tool *agent.VectorQueryTool,
	storage storage.Storage,
	conns *vector.ConnectionManager,
	cfg *config.Config,
	opts ...Option,
) *Server {
	s := &Server{
		ingester: ingester,
		tool:     tool,
		storage:  storage,
		conns:    conns,
		config:   cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/ingest", s.handleIngest)
		r.Post("/tools/"+agent.ToolName, s.handleToolCall)
		r.Get("/tools/"+agent.ToolName, s.handleToolSchema)
		r.Post("/turns", s.handleTurn)
		r.Get("/documents", s.handleListDocuments)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Get("/documents/{id}/chunks", s.handleGetChunks)
		r.Delete("/documents/{id}", s.handleDeleteDocument)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.HTTPAddr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) maxUploadBytes() int64 {
	if s.config != nil && s.config.Ingest.MaxUploadBytes > 0 {
		return s.config.Ingest.MaxUploadBytes
	}
	return DefaultMaxUploadBytes
}
