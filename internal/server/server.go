// Package server provides the HTTP API for rfqrank.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/rfqrank/internal/config"
	"github.com/hyperjump/rfqrank/internal/conversation"
	"github.com/hyperjump/rfqrank/internal/metrics"
	"github.com/hyperjump/rfqrank/internal/models"
	"github.com/hyperjump/rfqrank/internal/scoring"
	"github.com/hyperjump/rfqrank/internal/storage"
	"github.com/hyperjump/rfqrank/internal/suppliers"
)

// requestTimeout leaves room for a model call and its retries.
const requestTimeout = 3 * time.Minute

// QuoteAnalyzer extracts quotes from reply text or files.
type QuoteAnalyzer interface {
	Analyze(ctx context.Context, briefingID, text string) (*models.Quote, error)
	AnalyzeFile(ctx context.Context, briefingID, path string) (*models.Quote, error)
}

// Deps are the collaborators of a Server. Analyzer, Conversations and Suppliers
// may be nil; their endpoints then answer 501.
type Deps struct {
	Storage       storage.Storage
	Engine        *scoring.Engine
	Analyzer      QuoteAnalyzer
	Conversations *conversation.Machine
	Suppliers     *suppliers.Directory
	Config        *config.Config
	Logger        *zap.Logger
}

// Server is the HTTP server for the rfqrank API.
type Server struct {
	storage       storage.Storage
	engine        *scoring.Engine
	analyzer      QuoteAnalyzer
	conversations *conversation.Machine
	suppliers     *suppliers.Directory
	config        *config.Config
	logger        *zap.Logger
	server        *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(d Deps) *Server {
	if d.Engine == nil {
		d.Engine = scoring.NewEngine(nil)
	}
	if d.Config == nil {
		d.Config = &config.Config{}
		config.ApplyDefaults(d.Config)
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Server{
		storage:       d.Storage,
		engine:        d.Engine,
		analyzer:      d.Analyzer,
		conversations: d.Conversations,
		suppliers:     d.Suppliers,
		config:        d.Config,
		logger:        d.Logger,
	}
}

// Handler returns the router with every route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	if s.config.Metrics.EnabledOrDefault() {
		r.Handle("/metrics", metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Route("/briefings/{briefingID}", func(r chi.Router) {
			r.Get("/quotes", s.handleListQuotes)
			r.Post("/quotes", s.handleCreateQuote)
			r.Post("/quotes/analyze", s.handleAnalyzeQuote)
			r.Get("/parameters", s.handleParameters)

			r.Get("/weights", s.handleGetWeights)
			r.Put("/weights", s.handlePutWeights)
			r.Patch("/weights/{key}", s.handlePatchWeight)
			r.Post("/weights/equalize", s.handleEqualizeWeights)
			r.Post("/weights/reset", s.handleResetWeights)

			r.Get("/ranking", s.handleRanking)
			r.Post("/ranking", s.handleRankingPreview)

			r.Post("/conversation", s.handleStartConversation)
			r.Get("/conversation", s.handleGetConversation)
			r.Delete("/conversation", s.handleResetConversation)
			r.Post("/conversation/reply", s.handleReplyConversation)
			r.Post("/conversation/select", s.handleSelectSuppliers)
		})

		r.Get("/quotes/{id}", s.handleGetQuote)
		r.Put("/quotes/{id}", s.handleUpdateQuote)
		r.Delete("/quotes/{id}", s.handleDeleteQuote)

		r.Get("/suppliers", s.handleListSuppliers)
		r.Post("/suppliers", s.handleAddSupplier)
		r.Get("/suppliers/search", s.handleSearchSuppliers)
		r.Delete("/suppliers/{key}", s.handleDeleteSupplier)
	})
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
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
