// Package gateway implements the C9 HTTP ingress: webhook routing,
// sliding-window rate limiting, HMAC signature verification, API-key
// auth, and the history/analytics/retention admin endpoints (§6).
// Grounded on the teacher's internal/gateway/http_server.go (stdlib
// net/http.ServeMux, no external router) and webhook_hooks.go
// (constant-time token compare, JSON response helpers).
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/convoyhq/convoy/internal/analytics"
	"github.com/convoyhq/convoy/internal/history"
	"github.com/convoyhq/convoy/internal/observability"
	"github.com/convoyhq/convoy/internal/orchestrator"
	"github.com/convoyhq/convoy/internal/ratelimit"
	"github.com/convoyhq/convoy/internal/retention"
	"github.com/convoyhq/convoy/internal/tenant"
)

// Config bundles a Server's collaborators and auth secrets.
type Config struct {
	Host           string
	Port           int
	Orchestrator   *orchestrator.Orchestrator
	Tenants        *tenant.Registry
	HistoryStore   *history.Store
	Analytics      *analytics.Reporter
	Retention      *retention.Engine
	RateLimitStore ratelimit.Store
	RateLimits     PathClassLimits
	APIKey         string
	WebhookSecret  string
	ReplayWindow   time.Duration
	Logger         *observability.Logger
	StartTime      time.Time
}

// PathClassLimits is the §4.9 per-path-class limit table.
type PathClassLimits struct {
	Health        int
	Webhook       int
	Authenticated int
	Default       int
}

// Server is the C9 HTTP ingress.
type Server struct {
	cfg        Config
	httpServer *http.Server
	listener   net.Listener
}

// New constructs a Server from its collaborators.
func New(cfg Config) *Server {
	if cfg.RateLimits == (PathClassLimits{}) {
		cfg.RateLimits = PathClassLimits{Health: 6000, Webhook: 200, Authenticated: 1000, Default: 100}
	}
	if cfg.ReplayWindow <= 0 {
		cfg.ReplayWindow = 300 * time.Second
	}
	return &Server{cfg: cfg}
}

// Mux builds the full route table. Exposed separately from Start so
// tests can exercise handlers with httptest without binding a port.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", s.withRateLimit(classHealth, s.handleHealth))

	mux.HandleFunc("/api/v1/telegram/webhook/", s.withRateLimit(classWebhook, s.handleTelegramWebhook))
	mux.HandleFunc("/api/v1/whatsapp/webhook/", s.withRateLimit(classWebhook, s.handleWhatsAppWebhook))
	mux.HandleFunc("/api/v1/messages", s.withRateLimit(classDefault, s.handleGenericMessage))
	mux.HandleFunc("/process", s.withRateLimit(classDefault, s.handleProcess))

	mux.HandleFunc("/sessions", s.withRateLimit(classAuthenticated, s.requireAPIKey(s.handleListSessions)))
	mux.HandleFunc("/sessions/", s.withRateLimit(classAuthenticated, s.requireAPIKey(s.handleGetSession)))
	mux.HandleFunc("/messages", s.withRateLimit(classAuthenticated, s.requireAPIKey(s.handleListMessages)))
	mux.HandleFunc("/analytics", s.withRateLimit(classAuthenticated, s.requireAPIKey(s.handleAnalyticsSummary)))
	mux.HandleFunc("/analytics/daily", s.withRateLimit(classAuthenticated, s.requireAPIKey(s.handleAnalyticsDaily)))
	mux.HandleFunc("/cleanup", s.withRateLimit(classAuthenticated, s.requireAPIKey(s.handleCleanup)))
	mux.HandleFunc("/cleanup/estimate", s.withRateLimit(classAuthenticated, s.requireAPIKey(s.handleCleanupEstimate)))

	return mux
}

// Start binds a listener and serves in the background, following the
// teacher's startHTTPServer shape (explicit listener, goroutine serve,
// ErrServerClosed swallowed on shutdown).
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway: listen: %w", err)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.listener = listener

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if s.cfg.Logger != nil {
				s.cfg.Logger.Error(ctx, "gateway server error", "error", err)
			}
		}
	}()

	if s.cfg.Logger != nil {
		s.cfg.Logger.Info(ctx, "gateway listening", "addr", addr)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := ""
	if !s.cfg.StartTime.IsZero() {
		uptime = time.Since(s.cfg.StartTime).Round(time.Second).String()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"services": map[string]string{"orchestrator": "ok"},
		"uptime":   uptime,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
