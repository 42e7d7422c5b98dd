// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vestival/algorand-tracker/internal/circuitbreaker"
	"github.com/vestival/algorand-tracker/internal/logging"
	"github.com/vestival/algorand-tracker/internal/models"
	"github.com/vestival/algorand-tracker/internal/ratelimit"
	"github.com/vestival/algorand-tracker/internal/service"
	"github.com/vestival/algorand-tracker/internal/types"
)

// Service interfaces for dependency injection and testing

// PortfolioServiceInterface defines the interface for portfolio service operations
type PortfolioServiceInterface interface {
	Refresh(ctx context.Context, userID string) (*service.RefreshResult, error)
	GetLatestSnapshot(ctx context.Context, userID string) (*models.PortfolioSnapshot, error)
	GetHistory(ctx context.Context, userID string, mode types.HistoryMode) ([]models.HistoryPoint, error)
}

// WalletServiceInterface defines the interface for wallet service operations
type WalletServiceInterface interface {
	Link(ctx context.Context, userID string, input *service.LinkWalletInput) (*service.WalletView, error)
	List(ctx context.Context, userID string) ([]*service.WalletView, error)
}

// Server represents the HTTP API server.
type Server struct {
	router           *mux.Router
	httpServer       *http.Server
	portfolioService PortfolioServiceInterface
	walletService    WalletServiceInterface
	limiter          *ratelimit.Limiter
	breakers         []*circuitbreaker.CircuitBreaker
	config           *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewServer creates a new API server instance. Breakers are reported by /health.
func NewServer(
	config *ServerConfig,
	portfolioService PortfolioServiceInterface,
	walletService WalletServiceInterface,
	limiter *ratelimit.Limiter,
	breakers ...*circuitbreaker.CircuitBreaker,
) *Server {
	s := &Server{
		router:           mux.NewRouter(),
		portfolioService: portfolioService,
		walletService:    walletService,
		limiter:          limiter,
		breakers:         breakers,
		config:           config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Wallet endpoints
	api.Handle("/wallets", s.protect("wallets-list", s.handleListWallets)).Methods("GET")
	api.Handle("/wallets", s.protect("wallets-link", s.handleLinkWallet)).Methods("POST")

	// Portfolio endpoints
	api.Handle("/portfolio/refresh", s.protect("portfolio-refresh", s.handleRefreshPortfolio)).Methods("POST")
	api.Handle("/portfolio/snapshot", s.protect("portfolio-snapshot", s.handleGetSnapshot)).Methods("GET")
	api.Handle("/portfolio/history", s.protect("portfolio-history", s.handleGetHistory)).Methods("GET")
}

// protect wraps a handler with the same-origin check, authentication and the route's rate limit
func (s *Server) protect(route string, handler http.HandlerFunc) http.Handler {
	var h http.Handler = handler
	if s.limiter != nil {
		h = RateLimitMiddleware(s.limiter, route)(h)
	}
	return SameOriginMiddleware(AuthMiddleware(h))
}

// Router exposes the configured handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// HealthResponse is returned by /health
type HealthResponse struct {
	Status    string                     `json:"status"`
	Service   string                     `json:"service"`
	Providers []circuitbreaker.Stats     `json:"providers"`
	RateLimit *ratelimit.MetricsSnapshot `json:"rateLimit,omitempty"`
}

// handleHealth reports "degraded" while any provider circuit is open.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Service: "algorand-tracker", Providers: []circuitbreaker.Stats{}}
	for _, b := range s.breakers {
		stats := b.GetStats()
		if stats.State == circuitbreaker.StateOpen {
			resp.Status = "degraded"
		}
		resp.Providers = append(resp.Providers, stats)
	}
	if s.limiter != nil {
		snapshot := s.limiter.Metrics().Snapshot()
		resp.RateLimit = &snapshot
	}
	respondJSON(w, http.StatusOK, resp)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.Infof("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
