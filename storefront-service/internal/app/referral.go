package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/multimart/marketplace/internal/domain"
	"github.com/multimart/marketplace/internal/session"
)

// LinkState tells the view whether a referral link can be shown yet.
type LinkState string

const (
	LinkAvailable       LinkState = "available"
	LinkNotYetAvailable LinkState = "not_yet_available"
)

// ReferralLink is derived on demand and never stored.
type ReferralLink struct {
	ApplicationID string    `json:"application_id"`
	URL           string    `json:"url,omitempty"`
	State         LinkState `json:"state"`
}

// ReferralAPI is the part of the agent service the issuer talks to.
type ReferralAPI interface {
	ReferralLink(ctx context.Context, creds session.Credentials, productID string) (string, error)
}

// ReferralIssuer turns an approved application into a shareable public link.
type ReferralIssuer struct {
	api        ReferralAPI
	publicBase string
	logger     *slog.Logger
}

// NewReferralIssuer validates publicURL (scheme defaults to https) and keeps only its authority.
func NewReferralIssuer(api ReferralAPI, publicURL string, logger *slog.Logger) (*ReferralIssuer, error) {
	base, err := PublicBase(publicURL)
	if err != nil {
		return nil, err
	}
	return &ReferralIssuer{api: api, publicBase: base, logger: logger}, nil
}

// IssueLink returns the canonical referral link for an approved application.
// Any other status, or a backend that has not provisioned the code yet, yields
// LinkNotYetAvailable rather than an error.
func (i *ReferralIssuer) IssueLink(ctx context.Context, creds session.Credentials, app domain.AgentApplication) (ReferralLink, error) {
	pending := ReferralLink{ApplicationID: app.ID, State: LinkNotYetAvailable}
	if app.Status != domain.StatusApproved {
		return pending, nil
	}

	raw, err := i.api.ReferralLink(ctx, creds, app.ProductID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || domain.IsConflict(err) {
			i.logger.Info("referral link not provisioned yet", "application_id", app.ID, "product_id", app.ProductID)
			return pending, nil
		}
		return ReferralLink{}, err
	}

	canonical, err := Canonicalize(raw, i.publicBase)
	if err != nil {
		return ReferralLink{}, &domain.TransportError{Op: "issue referral link", Err: err}
	}
	return ReferralLink{ApplicationID: app.ID, URL: canonical, State: LinkAvailable}, nil
}

// PublicBase reduces a configured storefront URL to "scheme://host[:port]".
func PublicBase(publicURL string) (string, error) {
	trimmed := strings.TrimSpace(publicURL)
	if trimmed == "" {
		return "", errors.New("public storefront URL is not configured")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid public storefront URL: %w", err)
	}
	if u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("invalid public storefront URL %q", publicURL)
	}
	return u.Scheme + "://" + u.Host, nil
}

// Canonicalize replaces the scheme and authority of raw with publicBase.
// Everything from the first '/', '?' or '#' after the authority is copied
// byte-for-byte, so path and query are never re-encoded. It is idempotent.
func Canonicalize(raw, publicBase string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty referral URL")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid referral URL: %w", err)
	}

	var rest string
	switch {
	case parsed.Scheme != "":
		// The scheme only counts when it leads the string and is followed by
		// an authority; a "://" inside the query is data.
		afterScheme := raw[len(parsed.Scheme):]
		if !strings.HasPrefix(afterScheme, "://") {
			return "", fmt.Errorf("referral URL %q has no authority", raw)
		}
		rest = afterAuthority(afterScheme[3:])
	case strings.HasPrefix(raw, "//"):
		rest = afterAuthority(raw[2:])
	case strings.HasPrefix(raw, "/"), strings.HasPrefix(raw, "?"), strings.HasPrefix(raw, "#"):
		rest = raw
	default:
		return "", fmt.Errorf("referral URL %q has no authority or path", raw)
	}

	return strings.TrimSuffix(publicBase, "/") + rest, nil
}

func afterAuthority(s string) string {
	if idx := strings.IndexAny(s, "/?#"); idx >= 0 {
		return s[idx:]
	}
	return ""
}
