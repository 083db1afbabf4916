package session

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/multimart/marketplace/internal/domain"
)

// AuthConfig controls how incoming requests are authenticated.
type AuthConfig struct {
	JWKSURL          string
	ExpectedAudience string
	ExpectedIssuer   string
	// CookieName is checked when no Authorization header is sent (browser sessions).
	CookieName string
	// Required rejects unauthenticated requests with 401. When false the request
	// continues without a principal and the access gate decides what to do.
	Required bool
	// AllowHeaderFallback trusts X-User-* headers. Local environments only.
	AllowHeaderFallback bool
}

type jwksVerifier struct {
	jwksURL    string
	httpClient *http.Client
	cacheTTL   time.Duration

	mu       sync.RWMutex
	expires  time.Time
	keyByKID map[string]*rsa.PublicKey
}

func newJWKSVerifier(jwksURL string) *jwksVerifier {
	return &jwksVerifier{
		jwksURL:    strings.TrimSpace(jwksURL),
		httpClient: &http.Client{Timeout: 5 * time.Second},
		cacheTTL:   10 * time.Minute,
		keyByKID:   map[string]*rsa.PublicKey{},
	}
}

// Middleware validates the session JWT and stores the principal in the request context.
func Middleware(cfg AuthConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	verifier := newJWKSVerifier(cfg.JWKSURL)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, present, wellFormed := requestToken(r, cfg.CookieName)
			if present {
				if !wellFormed {
					reject(w, r, next, cfg.Required, "Invalid Authorization header format")
					return
				}

				principal, err := verifier.validateToken(
					r.Context(),
					tokenString,
					strings.TrimSpace(cfg.ExpectedAudience),
					strings.TrimSpace(cfg.ExpectedIssuer),
				)
				if err != nil {
					logger.Debug("session token rejected", "error", err, "path", r.URL.Path)
					reject(w, r, next, cfg.Required, "Invalid token")
					return
				}

				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal, tokenString)))
				return
			}

			if cfg.AllowHeaderFallback {
				if userID := strings.TrimSpace(r.Header.Get(HeaderUserID)); userID != "" {
					principal := domain.Principal{
						ID:          userID,
						RawRole:     strings.TrimSpace(r.Header.Get(HeaderUserRole)),
						Email:       strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserEmail))),
						DisplayName: strings.TrimSpace(r.Header.Get(HeaderUserName)),
					}
					next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal, "")))
					return
				}
			}

			reject(w, r, next, cfg.Required, "Authorization required")
		})
	}
}

func reject(w http.ResponseWriter, r *http.Request, next http.Handler, required bool, message string) {
	if required {
		http.Error(w, message, http.StatusUnauthorized)
		return
	}
	next.ServeHTTP(w, r)
}

// requestToken returns the bearer token from the Authorization header or the
// session cookie. present is true when either source was supplied at all.
func requestToken(r *http.Request, cookieName string) (token string, present bool, wellFormed bool) {
	if authHeader := strings.TrimSpace(r.Header.Get("Authorization")); authHeader != "" {
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return "", true, false
		}
		token = strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		return token, true, token != ""
	}

	if cookieName != "" {
		if cookie, err := r.Cookie(cookieName); err == nil && strings.TrimSpace(cookie.Value) != "" {
			return strings.TrimSpace(cookie.Value), true, true
		}
	}

	return "", false, false
}

func (v *jwksVerifier) validateToken(
	ctx context.Context,
	tokenString string,
	expectedAudience string,
	expectedIssuer string,
) (domain.Principal, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}), jwt.WithLeeway(30*time.Second))
	claims := jwt.MapClaims{}

	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || strings.TrimSpace(kid) == "" {
			return nil, errors.New("missing kid in token")
		}
		return v.getPublicKey(ctx, kid)
	})
	if err != nil || !token.Valid {
		return domain.Principal{}, fmt.Errorf("token validation failed: %w", err)
	}

	if expectedIssuer != "" {
		issuer, ok := claims["iss"].(string)
		if !ok || issuer != expectedIssuer {
			return domain.Principal{}, errors.New("issuer mismatch")
		}
	}

	if expectedAudience != "" {
		if !verifyAudienceClaim(claims["aud"], expectedAudience) {
			return domain.Principal{}, errors.New("audience mismatch")
		}
	}

	sub, ok := claims["sub"].(string)
	if !ok || strings.TrimSpace(sub) == "" {
		return domain.Principal{}, errors.New("subject claim missing")
	}

	return domain.Principal{
		ID:          sub,
		RawRole:     extractRoleClaim(claims),
		DisplayName: extractNameClaim(claims),
		Email:       extractEmailClaim(claims),
	}, nil
}

func verifyAudienceClaim(audClaim any, expected string) bool {
	switch aud := audClaim.(type) {
	case string:
		return aud == expected
	case []any:
		for _, item := range aud {
			s, ok := item.(string)
			if ok && s == expected {
				return true
			}
		}
	case []string:
		for _, item := range aud {
			if item == expected {
				return true
			}
		}
	}
	return false
}

// extractRoleClaim reads the role verbatim. Normalising it here would let a
// malformed role match a privileged one, so it is left to the role resolver.
func extractRoleClaim(claims jwt.MapClaims) string {
	if value, ok := claims["role"].(string); ok {
		return value
	}
	for _, nestedKey := range []string{"public_metadata", "metadata"} {
		if nested, ok := claims[nestedKey].(map[string]any); ok {
			if value, ok := nested["role"].(string); ok {
				return value
			}
		}
	}
	return ""
}

func extractNameClaim(claims jwt.MapClaims) string {
	if value, ok := claims["name"].(string); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	first, _ := claims["given_name"].(string)
	last, _ := claims["family_name"].(string)
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

func extractEmailClaim(claims jwt.MapClaims) string {
	for _, key := range []string{"email", "email_address", "primary_email_address"} {
		if value, ok := claims[key].(string); ok {
			trimmed := strings.ToLower(strings.TrimSpace(value))
			if trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

func (v *jwksVerifier) getPublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key := v.getCachedKey(kid); key != nil {
		return key, nil
	}

	if err := v.refreshKeys(ctx); err != nil {
		return nil, err
	}

	if key := v.getCachedKey(kid); key != nil {
		return key, nil
	}

	return nil, fmt.Errorf("key not found for kid %s", kid)
}

func (v *jwksVerifier) getCachedKey(kid string) *rsa.PublicKey {
	now := time.Now()

	v.mu.RLock()
	defer v.mu.RUnlock()

	if now.After(v.expires) {
		return nil
	}
	return v.keyByKID[kid]
}

func (v *jwksVerifier) refreshKeys(ctx context.Context) error {
	if v.jwksURL == "" {
		return errors.New("jwks url is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return err
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks endpoint returned %d", resp.StatusCode)
	}

	var payload struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return err
	}

	keys := map[string]*rsa.PublicKey{}
	for _, key := range payload.Keys {
		if key.Kid == "" || key.Kty != "RSA" || key.N == "" || key.E == "" {
			continue
		}
		pub, err := parseRSAPublicKey(key.N, key.E)
		if err != nil {
			continue
		}
		keys[key.Kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("no usable RSA keys in JWKS")
	}

	v.mu.Lock()
	v.keyByKID = keys
	v.expires = time.Now().Add(v.cacheTTL)
	v.mu.Unlock()

	return nil
}

func parseRSAPublicKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var exp uint64
	for _, b := range eb {
		exp = (exp << 8) | uint64(b)
	}
	if exp == 0 {
		return nil, errors.New("invalid exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(exp),
	}, nil
}
