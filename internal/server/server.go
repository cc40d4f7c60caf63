// Package server provides the HTTP API for Parmesan.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hyperjump/parmesan/internal/config"
	"github.com/hyperjump/parmesan/internal/indexer"
	"github.com/hyperjump/parmesan/internal/keyword"
	"github.com/hyperjump/parmesan/internal/metrics"
	"github.com/hyperjump/parmesan/internal/search"
	"github.com/hyperjump/parmesan/internal/storage"
)

// WatchService reports the directories being watched for corpus files.
type WatchService interface {
	Directories() []string
}

// Server is the HTTP server for the Parmesan API.
type Server struct {
	engine  *search.Engine
	indexer *indexer.Indexer
	storage storage.Storage
	lemmas  keyword.LemmaIndex
	watch   WatchService
	config  *config.Config
	logger  *zap.Logger
	server  *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLemmaIndex enables lemma completion and reports the lemma index in status.
func WithLemmaIndex(idx keyword.LemmaIndex) Option {
	return func(s *Server) { s.lemmas = idx }
}

// WithWatcher reports watched directories in status.
func WithWatcher(w WatchService) Option {
	return func(s *Server) { s.watch = w }
}

// NewServer creates a server with the given dependencies.
func NewServer(
	engine *search.Engine,
	idx *indexer.Indexer,
	store storage.Storage,
	cfg *config.Config,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:  engine,
		indexer: idx,
		storage: store,
		config:  cfg,
		logger:  logger,
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
	r.Use(metrics.Middleware())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/search", s.handleSearchGet)
		r.Post("/search", s.handleSearch)

		r.Get("/collections", s.handleListCollections)
		r.Post("/collections", s.handleCreateCollection)
		r.Get("/collections/{id}/documents", s.handleListDocuments)
		r.Delete("/collections/{id}", s.handleDeleteCollection)

		r.Get("/documents/{id}", s.handleGetDocument)
		r.Post("/ingest", s.handleIngest)

		r.Get("/sentences/{id}/highlight", s.handleHighlight)
		r.Get("/definitions", s.handleDefinitions)
		r.Get("/queries/top", s.handleTopQueries)
		r.Get("/lemmas/complete", s.handleComplete)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
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
