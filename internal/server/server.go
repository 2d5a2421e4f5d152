// Package server exposes the platform's HTTP surface: scheduler control,
// market-cap reads and overrides, token creation and trade submission.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"token-launchpad/internal/marketcap"
	"token-launchpad/internal/observability"
	"token-launchpad/internal/storage"
	"token-launchpad/internal/trade"
)

// Server holds the HTTP handlers' dependencies.
type Server struct {
	store     storage.TokenStore
	scheduler *marketcap.Scheduler
	trades    *trade.Client    // nil disables /trade
	confirmer *trade.Confirmer // nil disables background confirmation
	logger    *zap.Logger
}

// Option configures Server.
type Option func(*Server)

// WithTradeClient enables the trade submission endpoint.
func WithTradeClient(client *trade.Client, confirmer *trade.Confirmer) Option {
	return func(s *Server) {
		s.trades = client
		s.confirmer = confirmer
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates the HTTP server.
func New(store storage.TokenStore, scheduler *marketcap.Scheduler, opts ...Option) *Server {
	s := &Server{
		store:     store,
		scheduler: scheduler,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", observability.Handler())

	r.Route("/scheduler", func(r chi.Router) {
		r.Post("/start", s.handleSchedulerStart)
		r.Post("/stop", s.handleSchedulerStop)
		r.Get("/status", s.handleSchedulerStatus)
		r.Post("/trigger-update", s.handleTriggerUpdate)
	})

	r.Post("/tokens", s.handleCreateToken)
	r.Get("/tokens/needing-update", s.handleTokensNeedingUpdate)

	r.Route("/token/{mint}", func(r chi.Router) {
		r.Get("/", s.handleGetToken)
		r.Get("/market-cap", s.handleGetMarketCap)
		r.Post("/market-cap", s.handleOverrideMarketCap)
	})

	if s.trades != nil {
		r.Post("/trade", s.handleTrade)
	}

	return r
}

// requestLogger logs each request with its status and duration.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
