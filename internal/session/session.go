/**
 * @description
 * Session state for the signed-in principal. The principal is populated by the
 * auth middleware at request start and is read-only for everything downstream.
 * Consumers take a Provider instead of reaching into a global, so tests can
 * inject synthetic principals.
 */
package session

import (
	"context"
	"net/http"

	"github.com/multimart/marketplace/internal/domain"
)

type contextKey string

const (
	principalContextKey contextKey = "principal"
	tokenContextKey     contextKey = "sessionToken"
)

// Header names used by the local-only header fallback.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserRole  = "X-User-Role"
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"
)

// Provider exposes the current principal, if any.
type Provider interface {
	Principal(ctx context.Context) (domain.Principal, bool)
}

// ContextProvider reads the principal the auth middleware stored in the request context.
type ContextProvider struct{}

func (ContextProvider) Principal(ctx context.Context) (domain.Principal, bool) {
	return FromContext(ctx)
}

// Static always reports the same principal. A zero ID means signed out.
type Static domain.Principal

func (s Static) Principal(context.Context) (domain.Principal, bool) {
	p := domain.Principal(s)
	return p, p.ID != ""
}

// WithPrincipal stores p (and the bearer token it was read from) in ctx.
func WithPrincipal(ctx context.Context, p domain.Principal, token string) context.Context {
	ctx = context.WithValue(ctx, principalContextKey, p)
	if token != "" {
		ctx = context.WithValue(ctx, tokenContextKey, token)
	}
	return ctx
}

// FromContext returns the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(domain.Principal)
	if !ok || p.ID == "" {
		return domain.Principal{}, false
	}
	return p, true
}

// Credentials is what a backend call is made with on the principal's behalf.
type Credentials struct {
	Token     string
	Principal domain.Principal
}

// CredentialsFromContext collects the bearer token and principal of the current request.
func CredentialsFromContext(ctx context.Context) Credentials {
	token, _ := ctx.Value(tokenContextKey).(string)
	p, _ := FromContext(ctx)
	return Credentials{Token: token, Principal: p}
}

// Apply sets the bearer token on req. Without a token (header-fallback
// sessions in local environments) the identity headers are forwarded instead.
func (c Credentials) Apply(req *http.Request) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
		return
	}
	if c.Principal.ID == "" {
		return
	}
	req.Header.Set(HeaderUserID, c.Principal.ID)
	req.Header.Set(HeaderUserRole, c.Principal.RawRole)
	if c.Principal.Email != "" {
		req.Header.Set(HeaderUserEmail, c.Principal.Email)
	}
	if c.Principal.DisplayName != "" {
		req.Header.Set(HeaderUserName, c.Principal.DisplayName)
	}
}
