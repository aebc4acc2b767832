package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/aveksana/referrals-api/internal/auth"
	"github.com/aveksana/referrals-api/internal/config"
	"github.com/aveksana/referrals-api/internal/httputil"
	"github.com/aveksana/referrals-api/internal/logging"
	"github.com/aveksana/referrals-api/internal/referral"
	"github.com/aveksana/referrals-api/internal/user"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth           *auth.Handler
	AuthMiddleware *auth.Middleware
	Referral       *referral.Handler
	User           *user.Handler
	// Ping reports whether the backing store is reachable. Nil means always healthy.
	Ping func(ctx context.Context) error
}

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, h Handlers, logger *logging.Logger) *chi.Mux {
	r := chi.NewRouter()

	// CORS - must be first
	if len(cfg.Server.TrustedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Server.TrustedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           300, // 5 minutes
		}))
	}

	// Global middleware
	r.Use(SecurityHeaders(!cfg.Server.IsDevelopment())) // Security headers on all responses
	r.Use(middleware.Recoverer)                         // Recover from panics
	r.Use(middleware.RequestID)                         // Add request ID
	r.Use(middleware.RealIP)                            // Set RemoteAddr to real IP
	r.Use(logging.RequestLogger(logger))                // Structured logging with request context
	r.Use(middleware.Compress(5))                       // Compress responses

	r.Get("/health", handleHealth(h.Ping))

	// Swagger UI and user lookups - only in development
	if cfg.Server.IsDevelopment() {
		logger.Info("Swagger UI enabled at /swagger/*")
		r.Get("/swagger/*", httpSwagger.WrapHandler)
		if h.User != nil {
			r.Route("/users", h.User.Routes)
		}
	}

	requireAuth := h.AuthMiddleware.RequireAuth

	r.Route("/auth", func(r chi.Router) {
		h.Auth.Routes(r, requireAuth)
	})

	r.Route("/referrals", func(r chi.Router) {
		h.Referral.Routes(r, requireAuth)
	})

	return r
}

// handleHealth reports liveness and store reachability
// @Summary      Health check
// @Description  Check if the API is running and its store is reachable
// @Tags         health
// @Produce      json
// @Success      200 {object} map[string]string
// @Failure      503 {object} map[string]string
// @Router       /health [get]
func handleHealth(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			if err := ping(r.Context()); err != nil {
				logging.GetLoggerFromContext(r.Context()).Error("health check failed", "error", err.Error())
				httputil.RespondJSON(w, map[string]string{"status": "store unavailable"}, http.StatusServiceUnavailable)
				return
			}
		}
		httputil.RespondJSON(w, map[string]string{"status": "api is running"}, http.StatusOK)
	}
}
