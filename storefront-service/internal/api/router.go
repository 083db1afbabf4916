/**
 * @description
 * Router for the storefront-service. Sessions are resolved for every request
 * but never required here: each view group sits behind an access gate that
 * redirects instead of failing.
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
	"github.com/multimart/marketplace/storefront-service/internal/gate"
	sfmiddleware "github.com/multimart/marketplace/storefront-service/pkg/middleware"
)

// RouterConfig carries what the router needs besides the handler.
type RouterConfig struct {
	Auth        session.AuthConfig
	SignInPath  string
	RateLimiter *sfmiddleware.RateLimiter
}

// NewRouter registers the storefront routes.
func NewRouter(h *Handler, cfg RouterConfig, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	auth := cfg.Auth
	auth.Required = false
	r.Use(session.Middleware(auth, logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Storefront service is healthy"))
	})

	g := gate.New(session.ContextProvider{}, cfg.SignInPath, logger)
	limit := func(next http.Handler) http.Handler { return next }
	if cfg.RateLimiter != nil {
		limit = cfg.RateLimiter.Handler
	}

	r.Get(g.SignInPath(), h.handleSignIn)

	r.Route("/account/agent-applications", func(r chi.Router) {
		r.Use(g.Require(role.CapabilityCustomer, "/"))
		r.Get("/", h.handleListMyApplications)
		r.With(limit).Post("/", h.handleSubmitApplication)
	})

	r.Route("/agent", func(r chi.Router) {
		r.Use(g.Require(role.CapabilityAgent, "/"))
		r.Get("/dashboard", h.handleAgentDashboard)
		r.Get("/applications/{id}/referral-link", h.handleReferralLink)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(g.Require(role.CapabilityAdmin, "/"))
		r.Get("/", h.handleAdminHome)

		r.Route("/agent-applications", func(r chi.Router) {
			r.Get("/", h.handleConsole)
			r.Delete("/console", h.handleLeaveConsole)
			r.Group(func(r chi.Router) {
				r.Use(limit)
				r.Post("/{id}/approve", h.handleApprove)
				r.Post("/{id}/reject", h.handleReject)
			})
		})

		r.With(g.RestrictToRestrictedAdmin("/admin")).Get("/customers", h.handleCustomers)
	})

	return r
}
