package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jackchen1941/knowledge-platform-sub000/internal/engine"
	"github.com/jackchen1941/knowledge-platform-sub000/internal/entity"
	"github.com/jackchen1941/knowledge-platform-sub000/internal/notify"
	"github.com/jackchen1941/knowledge-platform-sub000/internal/syncdb"
)

// Server is the HTTP API server for the sync service.
type Server struct {
	config      Config
	http        *http.Server
	store       *syncdb.DB
	engine      *engine.Engine
	hub         *notify.Hub
	metrics     *Metrics
	rateLimiter *RateLimiter
}

// NewServer creates a new Server with the given config and store.
func NewServer(cfg Config, store *syncdb.DB) (*Server, error) {
	hub := notify.NewHub()
	s := &Server{
		config:      cfg,
		store:       store,
		engine:      engine.New(store, entity.NewRegistry(), hub),
		hub:         hub,
		metrics:     NewMetrics(),
		rateLimiter: NewRateLimiter(),
	}

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server", "err", err)
		}
	}()

	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// routes builds the HTTP handler with all routes and middleware.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health & metrics
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /metricz", s.handleMetrics)

	// Devices
	mux.HandleFunc("POST /v1/sync/devices", s.requireAuth(s.withRateLimit(s.handleRegisterDevice, s.config.RateLimitOther)))
	mux.HandleFunc("GET /v1/sync/devices", s.requireAuth(s.withRateLimit(s.handleListDevices, s.config.RateLimitOther)))
	mux.HandleFunc("DELETE /v1/sync/devices/{deviceID}", s.requireAuth(s.withRateLimit(s.handleDeactivateDevice, s.config.RateLimitOther)))

	// Sync
	mux.HandleFunc("POST /v1/sync/pull", s.requireAuth(s.withRateLimit(s.handlePull, s.config.RateLimitPull)))
	mux.HandleFunc("POST /v1/sync/push", s.requireAuth(s.withRateLimit(s.handlePush, s.config.RateLimitPush)))

	// Conflicts
	mux.HandleFunc("GET /v1/sync/conflicts", s.requireAuth(s.withRateLimit(s.handleListConflicts, s.config.RateLimitOther)))
	mux.HandleFunc("POST /v1/sync/conflicts/{id}/resolve", s.requireAuth(s.withRateLimit(s.handleResolveConflict, s.config.RateLimitOther)))

	// Notifications
	mux.HandleFunc("GET /ws", s.requireAuth(s.handleNotifications))

	return chain(mux, recoveryMiddleware, requestIDMiddleware, loggerMiddleware, metricsMiddleware(s.metrics), loggingMiddleware, maxBytesMiddleware(10<<20))
}

// handleHealth returns a health check response, pinging the database.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "db unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMetrics returns a snapshot of server metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

// handleNotifications upgrades the connection to the user's event stream.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	s.hub.Handler(user.UserID)(w, r)
}
