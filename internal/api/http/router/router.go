package router

import (
	"net/http"

	"github.com/dtroode/learnhub-auth/internal/api/http/handler"
	"github.com/dtroode/learnhub-auth/internal/api/http/middleware"
	"github.com/dtroode/learnhub-auth/internal/edge"
	"github.com/dtroode/learnhub-auth/internal/logger"
	"github.com/dtroode/learnhub-auth/internal/metrics"
	"github.com/dtroode/learnhub-auth/internal/model"
)

// Options configures the optional parts of the router.
type Options struct {
	Cookies handler.CookieSettings
	// Pinger backs the health endpoint. Nil means always healthy.
	Pinger handler.Pinger
	// Metrics is served on MetricsPath when both are set.
	Metrics     *metrics.Auth
	MetricsPath string
	// WebRoot is a directory of pages served behind the edge gate.
	WebRoot string
}

// Router represents the HTTP router of the auth service.
// It wires handlers to routes and applies middleware.
type Router struct {
	authService    handler.AuthService
	tokens         middleware.TokenVerifier
	contextManager model.ContextManager
	opts           Options
	logger         *logger.Logger
}

// New creates new HTTP Router instance.
//
// Parameters:
//   - authService: The session service
//   - tokens: Verifier for access credentials
//   - contextManager: Stores verified claims in request contexts
//   - opts: Cookie settings and optional endpoints
//   - logger: The logger for request logging
//
// Returns a pointer to the newly created Router instance.
func New(
	authService handler.AuthService,
	tokens middleware.TokenVerifier,
	contextManager model.ContextManager,
	opts Options,
	logger *logger.Logger,
) *Router {
	return &Router{
		authService:    authService,
		tokens:         tokens,
		contextManager: contextManager,
		opts:           opts,
		logger:         logger,
	}
}

// Register builds the handler tree.
// It sets up request logging, authentication and the edge gate.
//
// Returns the root HTTP handler.
func (r *Router) Register() http.Handler {
	mux := http.NewServeMux()

	r.registerAuthRoutes(mux)

	health := handler.NewHealth(r.opts.Pinger, 0, r.logger)
	mux.HandleFunc("GET /api/health", health.Check)

	if r.opts.Metrics != nil && r.opts.MetricsPath != "" {
		mux.Handle("GET "+r.opts.MetricsPath, r.opts.Metrics.Handler())
	}

	r.registerPages(mux)

	logging := middleware.NewLogging(r.logger, r.opts.Metrics)
	return logging.Handle(mux)
}

func (r *Router) registerAuthRoutes(mux *http.ServeMux) {
	auth := handler.NewAuth(r.authService, r.contextManager, r.opts.Cookies, r.logger)
	authenticate := middleware.NewAuthenticate(r.tokens, r.contextManager, r.opts.Cookies.AccessName, r.logger)
	adminOnly := middleware.RequireRole(r.contextManager, model.RoleAdmin)

	mux.HandleFunc("POST /api/auth/register", auth.Register)
	mux.HandleFunc("POST /api/auth/login", auth.Login)
	mux.HandleFunc("GET /api/auth/me", auth.Me)
	mux.HandleFunc("POST /api/auth/refresh", auth.Refresh)
	mux.HandleFunc("POST /api/auth/logout", auth.Logout)

	mux.Handle("GET /api/auth/profile", authenticate.Handle(http.HandlerFunc(auth.Profile)))
	mux.Handle("POST /api/auth/logout-all", authenticate.Handle(http.HandlerFunc(auth.LogoutAll)))
	mux.Handle("POST /api/auth/users/{id}/revoke-sessions",
		authenticate.Handle(adminOnly(http.HandlerFunc(auth.RevokeSessions))))
}

func (r *Router) registerPages(mux *http.ServeMux) {
	if r.opts.WebRoot == "" {
		return
	}

	gate := edge.NewGate(r.opts.Cookies.AccessName, r.logger)
	mux.Handle("/", gate.Handle(http.FileServer(http.Dir(r.opts.WebRoot))))
}
