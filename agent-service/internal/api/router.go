/**
 * @description
 * HTTP router for the agent-service. Every application route requires a
 * verified session; review routes additionally require an admin role and the
 * internal lookup requires the shared service key.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: routing and standard middleware.
 * - github.com/go-chi/cors: CORS for the storefront origin.
 */
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/multimart/marketplace/internal/role"
	"github.com/multimart/marketplace/internal/session"
)

// RouterConfig carries the auth settings for AgentRoutes.
type RouterConfig struct {
	Auth           session.AuthConfig
	InternalAPIKey string
	AllowedOrigins []string
}

// AgentRoutes creates and returns the router for the agent-service.
func AgentRoutes(h *AgentHandlers, cfg RouterConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Group(func(r chi.Router) {
		r.Use(InternalAuthMiddleware(cfg.InternalAPIKey))
		r.Get("/internal/applications/{id}", h.GetApplicationHandler)
	})

	auth := cfg.Auth
	auth.Required = true

	r.Group(func(r chi.Router) {
		r.Use(session.Middleware(auth, logger))

		r.Group(func(r chi.Router) {
			r.Use(RequireCapability(role.CapabilityCustomer, role.CapabilityAgent))
			r.Post("/applications", h.SubmitApplicationHandler)
			r.Get("/applications/mine", h.ListMyApplicationsHandler)
			r.Get("/products/{id}/referral-link", h.ReferralLinkHandler)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireCapability(role.CapabilityAdmin))
			r.Get("/applications", h.ListApplicationsHandler)
			r.Get("/applications/{id}", h.GetApplicationHandler)
			r.Post("/applications/{id}/approve", h.ApproveApplicationHandler)
			r.Post("/applications/{id}/reject", h.RejectApplicationHandler)
		})
	})

	return r
}
