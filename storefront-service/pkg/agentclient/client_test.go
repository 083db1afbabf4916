package agentclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/multimart/marketplace/internal/domain"
	"github.com/multimart/marketplace/internal/session"
	"github.com/shopspring/decimal"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", 2*time.Second)
}

var adminCreds = session.Credentials{Token: "admin-token"}

func TestApproveApplication_SendsRateAndDecodesResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/applications/42/approve" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer admin-token" {
			t.Errorf("expected bearer token to be forwarded, got %q", r.Header.Get("Authorization"))
		}
		var body struct {
			CommissionRate decimal.Decimal `json:"commission_rate"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if !body.CommissionRate.Equal(decimal.RequireFromString("12.5")) {
			t.Errorf("expected rate 12.5, got %s", body.CommissionRate)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"42","status":"approved","commission_rate":12.5,"agent_code":"AG-7QK2M9XZ","payout_method":"ecocash","payout_number":"0771"}`))
	})

	app, err := client.ApproveApplication(context.Background(), adminCreds, "42", decimal.RequireFromString("12.5"))
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if app.Status != domain.StatusApproved || app.AgentCode == nil || *app.AgentCode != "AG-7QK2M9XZ" {
		t.Fatalf("unexpected application: %+v", app)
	}
	if app.CommissionRate == nil || !app.CommissionRate.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected rate: %v", app.CommissionRate)
	}
}

func TestListApplications_EncodesFilter(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("status"); got != "pending" {
			t.Errorf("expected status=pending, got %q", got)
		}
		if got := r.URL.Query().Get("query"); got != "maria moyo" {
			t.Errorf("expected query to be encoded, got %q", got)
		}
		_, _ = w.Write([]byte(`[]`))
	})

	apps, err := client.ListApplications(context.Background(), adminCreds, domain.StatusPending, " maria moyo ")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(apps) != 0 {
		t.Fatalf("expected empty list, got %d", len(apps))
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"conflict", http.StatusConflict, `{"error":"application is not pending"}`, domain.IsConflict},
		{"validation", http.StatusUnprocessableEntity, `{"error":"invalid","fields":{"national_id":"too short"}}`, domain.IsValidation},
		{"forbidden", http.StatusForbidden, `{"error":"admin only"}`, func(err error) bool {
			var aerr *domain.AuthorizationError
			return errors.As(err, &aerr)
		}},
		{"not found", http.StatusNotFound, `{"error":"no link"}`, func(err error) bool { return errors.Is(err, domain.ErrNotFound) }},
		{"server", http.StatusBadGateway, `upstream down`, func(err error) bool {
			var terr *domain.TransportError
			return errors.As(err, &terr) && terr.StatusCode == http.StatusBadGateway
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := client.RejectApplication(context.Background(), adminCreds, "42", "national id mismatch")
			if err == nil || !tt.check(err) {
				t.Fatalf("unexpected classification for %d: %T %v", tt.status, err, err)
			}
		})
	}
}

func TestSubmitApplication_RateLimited(t *testing.T) {
	tests := []struct {
		name       string
		retryAfter string
		want       int
	}{
		{name: "header preserved", retryAfter: "1800", want: 1800},
		{name: "missing header", retryAfter: "", want: 1},
		{name: "garbage header", retryAfter: "soon", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"too many requests; retry in 1800s"}`))
			})

			_, err := client.SubmitApplication(context.Background(), adminCreds, domain.Submission{})
			var rerr *domain.RateLimitError
			if !errors.As(err, &rerr) {
				t.Fatalf("expected rate limit error, got %T %v", err, err)
			}
			if rerr.RetryAfterSeconds != tt.want {
				t.Fatalf("expected retry after %d, got %d", tt.want, rerr.RetryAfterSeconds)
			}
		})
	}
}

func TestGetApplication(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected method %s", r.Method)
		}
		if r.URL.Path != "/applications/42" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"Application not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"42","status":"approved","commission_rate":"12.5","agent_code":"AG-7QK2M9XZ","payout_method":"ecocash","payout_number":"0771"}`))
	})

	app, err := client.GetApplication(context.Background(), adminCreds, "42")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if app.AgentCode == nil || *app.AgentCode != "AG-7QK2M9XZ" {
		t.Fatalf("unexpected application: %+v", app)
	}

	if _, err := client.GetApplication(context.Background(), adminCreds, "43"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestValidationFieldsArePreserved(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"validation failed","fields":{"national_id":"must be at least 5 characters"}}`))
	})

	_, err := client.SubmitApplication(context.Background(), adminCreds, domain.Submission{})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Fields["national_id"] == "" {
		t.Fatalf("expected national_id field, got %v", verr.Fields)
	}
}

func TestTransportErrorOnUnreachableBackend(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", 500*time.Millisecond)
	_, err := client.ListMyApplications(context.Background(), adminCreds)
	var terr *domain.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestReferralLink(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products/prod 7/referral-link" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"url":"https://staging.multimart.test/products/prod%207?ref=AG-1"}`))
	})

	got, err := client.ReferralLink(context.Background(), adminCreds, "prod 7")
	if err != nil {
		t.Fatalf("referral link: %v", err)
	}
	if got != "https://staging.multimart.test/products/prod%207?ref=AG-1" {
		t.Fatalf("expected URL returned verbatim, got %q", got)
	}
}
