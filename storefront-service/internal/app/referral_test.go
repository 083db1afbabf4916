package app

import (
	"context"
	"fmt"
	"testing"

	"github.com/multimart/marketplace/internal/domain"
	"github.com/shopspring/decimal"
)

func TestCanonicalize(t *testing.T) {
	const base = "https://shop.example.com"

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"internal host", "http://agent-service:8080/products/p1?ref=AG-7QK2M9XD", "https://shop.example.com/products/p1?ref=AG-7QK2M9XD"},
		{"already public", "https://shop.example.com/products/p1?ref=AG-7QK2M9XD", "https://shop.example.com/products/p1?ref=AG-7QK2M9XD"},
		{"relative path", "/products/p1?ref=AG-1", "https://shop.example.com/products/p1?ref=AG-1"},
		{"scheme relative", "//cdn.internal/products/p1?ref=AG-1", "https://shop.example.com/products/p1?ref=AG-1"},
		{"encoded bytes kept", "http://localhost:3000/products/solar%20kit?ref=AG-1&utm=a%2Bb", "https://shop.example.com/products/solar%20kit?ref=AG-1&utm=a%2Bb"},
		{"query without path", "http://localhost:3000?ref=AG-1", "https://shop.example.com?ref=AG-1"},
		{"fragment kept", "http://localhost:3000/p#share", "https://shop.example.com/p#share"},
		{"bare authority", "http://localhost:3000", "https://shop.example.com"},
		{"upper-case scheme", "HTTP://agent-service:8080/products/p1?ref=AG-1", "https://shop.example.com/products/p1?ref=AG-1"},
		{"url in query", "http://agent-service:8080/products/p1?ref=AG-1&next=https://x.io/y", "https://shop.example.com/products/p1?ref=AG-1&next=https://x.io/y"},
		{"relative with url in query", "/products/p1?ref=AG-1&next=https://x.io/y", "https://shop.example.com/products/p1?ref=AG-1&next=https://x.io/y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize(tt.raw, base)
			if err != nil {
				t.Fatalf("Canonicalize(%q): %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("Canonicalize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
			again, err := Canonicalize(got, base)
			if err != nil || again != got {
				t.Fatalf("not idempotent: %q -> %q (%v)", got, again, err)
			}
		})
	}
}

func TestCanonicalize_Rejects(t *testing.T) {
	for _, raw := range []string{
		"",
		"   ",
		"products/p1",
		"http://bad host/%zz",
		"staging.example.com/products/p1?ref=AG-1&next=https://x.io/y",
		"mailto:agent@example.com",
	} {
		if _, err := Canonicalize(raw, "https://shop.example.com"); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestPublicBase(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://shop.example.com", "https://shop.example.com", false},
		{"shop.example.com", "https://shop.example.com", false},
		{"http://localhost:3000/ignored/path?x=1", "http://localhost:3000", false},
		{"", "", true},
		{"ftp://shop.example.com", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := PublicBase(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("PublicBase(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("PublicBase(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestIssueLink(t *testing.T) {
	rate := decimal.NewFromInt(10)
	approved := *approvedCopy(pendingApplication("42", "Maria Moyo"), rate, "AG-7QK2M9XD")

	t.Run("approved", func(t *testing.T) {
		api := &stubAgentAPI{linkFn: func(_ context.Context, productID string) (string, error) {
			return fmt.Sprintf("http://agent-service:8080/products/%s?ref=AG-7QK2M9XD", productID), nil
		}}
		issuer, err := NewReferralIssuer(api, "shop.example.com", discardLogger())
		if err != nil {
			t.Fatalf("new issuer: %v", err)
		}
		link, err := issuer.IssueLink(context.Background(), customerCreds(), approved)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		if link.State != LinkAvailable || link.URL != "https://shop.example.com/products/prod-42?ref=AG-7QK2M9XD" {
			t.Fatalf("unexpected link %+v", link)
		}
	})

	t.Run("pending makes no call", func(t *testing.T) {
		api := &stubAgentAPI{}
		issuer, _ := NewReferralIssuer(api, "https://shop.example.com", discardLogger())
		link, err := issuer.IssueLink(context.Background(), customerCreds(), pendingApplication("42", "Maria Moyo"))
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		if link.State != LinkNotYetAvailable || link.URL != "" {
			t.Fatalf("expected not-yet-available, got %+v", link)
		}
		if api.Calls("link") != 0 {
			t.Fatal("no backend call expected for a pending application")
		}
	})

	for name, backendErr := range map[string]error{
		"not found": fmt.Errorf("referral link: %w", domain.ErrNotFound),
		"conflict":  &domain.ConflictError{Message: "no agent code yet"},
	} {
		t.Run(name, func(t *testing.T) {
			api := &stubAgentAPI{linkFn: func(context.Context, string) (string, error) { return "", backendErr }}
			issuer, _ := NewReferralIssuer(api, "https://shop.example.com", discardLogger())
			link, err := issuer.IssueLink(context.Background(), customerCreds(), approved)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if link.State != LinkNotYetAvailable {
				t.Fatalf("expected not-yet-available, got %+v", link)
			}
		})
	}

	t.Run("transport error surfaces", func(t *testing.T) {
		api := &stubAgentAPI{linkFn: func(context.Context, string) (string, error) {
			return "", &domain.TransportError{Op: "referral link", StatusCode: 502}
		}}
		issuer, _ := NewReferralIssuer(api, "https://shop.example.com", discardLogger())
		if _, err := issuer.IssueLink(context.Background(), customerCreds(), approved); err == nil {
			t.Fatal("expected transport error")
		}
	})
}
