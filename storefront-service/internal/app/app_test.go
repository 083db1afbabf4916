package app

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/multimart/marketplace/internal/domain"
	"github.com/multimart/marketplace/internal/session"
	"github.com/shopspring/decimal"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func boolPtr(v bool) *bool { return &v }

func strPtr(v string) *string { return &v }

func adminCreds() session.Credentials {
	return session.Credentials{Token: "tok", Principal: domain.Principal{ID: "admin-1", RawRole: "super_admin"}}
}

func customerCreds() session.Credentials {
	return session.Credentials{Token: "tok", Principal: domain.Principal{ID: "user-1", RawRole: "client"}}
}

// stubAgentAPI implements every backend interface the app package uses. Each
// hook may be nil; calls are counted under mu.
type stubAgentAPI struct {
	mu    sync.Mutex
	calls map[string]int

	submitFn   func(ctx context.Context, sub domain.Submission) (*domain.AgentApplication, error)
	listMineFn func(ctx context.Context) ([]domain.AgentApplication, error)
	listFn     func(ctx context.Context, status domain.ApplicationStatus, query string) ([]domain.AgentApplication, error)
	getFn      func(ctx context.Context, id string) (*domain.AgentApplication, error)
	approveFn  func(ctx context.Context, id string, rate decimal.Decimal) (*domain.AgentApplication, error)
	rejectFn   func(ctx context.Context, id, reason string) (*domain.AgentApplication, error)
	linkFn     func(ctx context.Context, productID string) (string, error)
}

func (s *stubAgentAPI) count(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[name]++
}

func (s *stubAgentAPI) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *stubAgentAPI) SubmitApplication(ctx context.Context, _ session.Credentials, sub domain.Submission) (*domain.AgentApplication, error) {
	s.count("submit")
	return s.submitFn(ctx, sub)
}

func (s *stubAgentAPI) ListMyApplications(ctx context.Context, _ session.Credentials) ([]domain.AgentApplication, error) {
	s.count("list_mine")
	return s.listMineFn(ctx)
}

func (s *stubAgentAPI) ListApplications(ctx context.Context, _ session.Credentials, status domain.ApplicationStatus, query string) ([]domain.AgentApplication, error) {
	s.count("list")
	return s.listFn(ctx, status, query)
}

func (s *stubAgentAPI) GetApplication(ctx context.Context, _ session.Credentials, id string) (*domain.AgentApplication, error) {
	s.count("get")
	return s.getFn(ctx, id)
}

func (s *stubAgentAPI) ApproveApplication(ctx context.Context, _ session.Credentials, id string, rate decimal.Decimal) (*domain.AgentApplication, error) {
	s.count("approve")
	return s.approveFn(ctx, id, rate)
}

func (s *stubAgentAPI) RejectApplication(ctx context.Context, _ session.Credentials, id, reason string) (*domain.AgentApplication, error) {
	s.count("reject")
	return s.rejectFn(ctx, id, reason)
}

func (s *stubAgentAPI) ReferralLink(ctx context.Context, _ session.Credentials, productID string) (string, error) {
	s.count("link")
	return s.linkFn(ctx, productID)
}

func pendingApplication(id, name string) domain.AgentApplication {
	return domain.AgentApplication{
		ID:             id,
		ApplicantID:    "user-" + id,
		ApplicantEmail: name + "@example.com",
		ProductID:      "prod-" + id,
		ProductName:    "Solar Kit",
		FullName:       name,
		NationalID:     "63-1234" + id,
		PayoutMethod:   domain.PayoutEcocash,
		PayoutNumber:   "0771234567",
		AcceptedTerms:  true,
		Status:         domain.StatusPending,
	}
}
