// Package api exposes the moderation pipeline and the gate over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/closetloop/gatekeeper/internal/config"
	"github.com/closetloop/gatekeeper/internal/gate"
	"github.com/closetloop/gatekeeper/internal/logger"
	"github.com/closetloop/gatekeeper/internal/metrics"
	"github.com/closetloop/gatekeeper/internal/ratelimit"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 64 << 10

// Options are the optional pieces of the server.
type Options struct {
	Feed      http.Handler         // nil disables /v1/feed
	IPLimiter *ratelimit.IPLimiter // nil disables per-IP limiting
}

// Server is the gatekeeper HTTP API.
type Server struct {
	gate      *gate.Gate
	logger    *logger.Logger
	router    *mux.Router
	server    *http.Server
	feed      http.Handler
	ipLimiter *ratelimit.IPLimiter
	started   time.Time
}

// New creates the API server. Call Start to listen.
func New(cfg config.ServerConfig, g *gate.Gate, opts Options, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Server{
		gate:      g,
		logger:    log.WithComponent("api"),
		router:    mux.NewRouter(),
		feed:      opts.Feed,
		ipLimiter: opts.IPLimiter,
		started:   time.Now(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", metrics.Handler()).Methods("GET")

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Use(s.loggingMiddleware)
	v1.Use(s.ipLimitMiddleware)

	if s.feed != nil {
		v1.Handle("/feed", s.feed).Methods("GET")
	}

	v1.HandleFunc("/detect", s.handleDetect).Methods("POST")
	v1.HandleFunc("/redact", s.handleRedact).Methods("POST")
	v1.HandleFunc("/validate", s.handleValidate).Methods("POST")
	v1.HandleFunc("/moderate", s.handleModerate).Methods("POST")

	v1.HandleFunc("/conversations/{id}/messages", s.handleSendMessage).Methods("POST")
	v1.HandleFunc("/listings/{id}/reviews", s.handleSubmitReview).Methods("POST")
	v1.HandleFunc("/profile/fields/{field}/sanitize", s.handleSanitizeField).Methods("POST")
}

// Handler returns the root handler. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("starting gatekeeper API",
		zap.String("addr", s.server.Addr),
		zap.Bool("feed_enabled", s.feed != nil),
		zap.Bool("ip_limit_enabled", s.ipLimiter != nil),
	)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: http server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping gatekeeper API")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","uptime_seconds":%d,"timestamp":"%s"}`,
		int(time.Since(s.started).Seconds()), time.Now().Format(time.RFC3339))
}
