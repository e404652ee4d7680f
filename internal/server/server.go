package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alta-labs/wagerd/internal/domain"
	"github.com/alta-labs/wagerd/internal/server/handler"
	"github.com/alta-labs/wagerd/internal/server/middleware"
	"github.com/alta-labs/wagerd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// Rate limiting applies per client IP when a limiter is wired in.
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Wagers  *handler.WagerHandler
	Tokens  *handler.TokenHandler
	Rounds  *handler.RoundHandler
	Lockups *handler.LockupHandler
	Audit   *handler.AuditHandler
}

// Server is the HTTP + WebSocket API front end for the wager registry.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (rate limiting, auth, logging, CORS) and attaches
// the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Wager lifecycle.
	mux.HandleFunc("GET /api/wagers", handlers.Wagers.ListWagers)
	mux.HandleFunc("POST /api/wagers", handlers.Wagers.CreateWager)
	mux.HandleFunc("GET /api/wagers/{id}", handlers.Wagers.GetWager)
	mux.HandleFunc("POST /api/wagers/{id}/fill", handlers.Wagers.FillWager)
	mux.HandleFunc("POST /api/wagers/{id}/cancel", handlers.Wagers.CancelWager)
	mux.HandleFunc("POST /api/wagers/{id}/redeem", handlers.Wagers.Redeem)
	mux.HandleFunc("GET /api/wagers/{id}/winner", handlers.Wagers.CheckWinner)

	// Token allow-lists and the kill switch.
	mux.HandleFunc("GET /api/tokens/{class}", handlers.Tokens.ListTokens)
	mux.HandleFunc("PUT /api/tokens/payment", handlers.Tokens.UpdatePaymentTokens)
	mux.HandleFunc("PUT /api/tokens/wager", handlers.Tokens.UpdateWagerTokens)
	mux.HandleFunc("POST /api/tokens/{address}/refundable", handlers.Tokens.MarkRefundable)
	mux.HandleFunc("POST /api/admin/ownership", handlers.Tokens.TransferOwnership)

	// Oracle round inspection.
	mux.HandleFunc("GET /api/rounds/resolve", handlers.Rounds.Resolve)

	// Token lockups.
	mux.HandleFunc("GET /api/lockups", handlers.Lockups.ListLockups)
	mux.HandleFunc("POST /api/lockups", handlers.Lockups.CreateLockup)
	mux.HandleFunc("POST /api/lockups/{index}/unlock", handlers.Lockups.Unlock)

	// Audit log.
	mux.HandleFunc("GET /api/audit", handlers.Audit.List)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
