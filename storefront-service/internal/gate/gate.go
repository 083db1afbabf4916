/**
 * @description
 * Route-level access gate for the storefront. A gate resolves the session
 * principal's raw role into a capability and either lets the request through
 * (tagging it with the layout it renders in) or redirects. Denials are a
 * navigation policy: they never produce an error body.
 */
package gate

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/multimart/marketplace/internal/domain"
	"github.com/multimart/marketplace/internal/role"
	"github.com/multimart/marketplace/internal/session"
)

// Layout is how an admitted view is framed.
type Layout string

const (
	// LayoutDirect renders the view as-is.
	LayoutDirect Layout = "direct"
	// LayoutDashboard wraps the view in the dashboard shell (side navigation).
	LayoutDashboard Layout = "dashboard"
)

type contextKey string

const layoutContextKey contextKey = "layout"

// Decision is the outcome of evaluating a gate for one request.
type Decision struct {
	Allow    bool
	Redirect string
	Layout   Layout
}

// Decide is the pure gate policy.
//   - no principal: redirect to sign-in
//   - capability mismatch: redirect to redirectTarget
//   - admin or agent: allow inside the dashboard shell
//   - anything else: allow directly
func Decide(p domain.Principal, signedIn bool, required role.Capability, redirectTarget, signInURL string) Decision {
	if !signedIn {
		return Decision{Redirect: signInURL}
	}
	if !role.Satisfies(p.RawRole, required) {
		return Decision{Redirect: redirectTarget}
	}

	switch required {
	case role.CapabilityAdmin, role.CapabilityRestrictedAdmin, role.CapabilityAgent:
		return Decision{Allow: true, Layout: LayoutDashboard}
	default:
		return Decision{Allow: true, Layout: LayoutDirect}
	}
}

// Gate builds access middleware over an injected session provider.
type Gate struct {
	session    session.Provider
	signInPath string
	logger     *slog.Logger
}

// New creates a Gate. signInPath is where signed-out visitors are sent.
func New(provider session.Provider, signInPath string, logger *slog.Logger) *Gate {
	if signInPath == "" {
		signInPath = "/sign-in"
	}
	return &Gate{session: provider, signInPath: signInPath, logger: logger}
}

// SignInPath is where signed-out visitors are sent.
func (g *Gate) SignInPath() string {
	return g.signInPath
}

// Require admits only principals whose capability matches required; others go
// to redirectTarget (or sign-in when there is no principal at all).
func (g *Gate) Require(required role.Capability, redirectTarget string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := g.session.Principal(r.Context())
			decision := Decide(p, ok, required, redirectTarget, g.signInURL(r))
			if !decision.Allow {
				g.deny(w, r, decision.Redirect, &domain.AuthorizationError{Reason: "requires " + required.String()})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithLayout(r.Context(), decision.Layout)))
		})
	}
}

// RestrictToRestrictedAdmin guards a sensitive path beneath an admin gate. It
// looks at the raw role, since the coarse admin capability folds several raw
// roles together; admins without the sub-capability go to landing.
func (g *Gate) RestrictToRestrictedAdmin(landing string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := g.session.Principal(r.Context())
			if !ok {
				g.deny(w, r, g.signInURL(r), &domain.AuthorizationError{Reason: "signed out"})
				return
			}
			if !role.HasRestrictedAdmin(p.RawRole) {
				g.deny(w, r, landing, &domain.AuthorizationError{Reason: "requires restricted-admin"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g *Gate) deny(w http.ResponseWriter, r *http.Request, target string, reason error) {
	if g.logger != nil {
		g.logger.Debug("access gate redirect", "path", r.URL.Path, "target", target, "reason", reason)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (g *Gate) signInURL(r *http.Request) string {
	return g.signInPath + "?redirect_url=" + url.QueryEscape(r.URL.RequestURI())
}

// WithLayout records the admitted layout for the view renderer.
func WithLayout(ctx context.Context, layout Layout) context.Context {
	return context.WithValue(ctx, layoutContextKey, layout)
}

// LayoutFromContext returns the layout chosen by the gate, LayoutDirect when ungated.
func LayoutFromContext(ctx context.Context) Layout {
	if layout, ok := ctx.Value(layoutContextKey).(Layout); ok {
		return layout
	}
	return LayoutDirect
}
