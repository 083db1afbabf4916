package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/multimart/marketplace/internal/domain"
	"github.com/multimart/marketplace/internal/session"
	"github.com/shopspring/decimal"
)

// ReviewAPI is the part of the agent service the admin console talks to.
type ReviewAPI interface {
	ListApplications(ctx context.Context, creds session.Credentials, status domain.ApplicationStatus, query string) ([]domain.AgentApplication, error)
	GetApplication(ctx context.Context, creds session.Credentials, id string) (*domain.AgentApplication, error)
	ApproveApplication(ctx context.Context, creds session.Credentials, id string, rate decimal.Decimal) (*domain.AgentApplication, error)
	RejectApplication(ctx context.Context, creds session.Credentials, id, reason string) (*domain.AgentApplication, error)
}

// Filter narrows the console list. Both parts must match.
type Filter struct {
	Status domain.ApplicationStatus `json:"status,omitempty"`
	Query  string                   `json:"query,omitempty"`
}

// Matches applies the status filter AND a case-insensitive substring match of
// Query against name, national id, product name and applicant email.
func (f Filter) Matches(a domain.AgentApplication) bool {
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	for _, field := range []string{a.FullName, a.NationalID, a.ProductName, a.ApplicantEmail} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// FilterApplications returns the items f matches, in order.
func FilterApplications(items []domain.AgentApplication, f Filter) []domain.AgentApplication {
	out := make([]domain.AgentApplication, 0, len(items))
	for _, item := range items {
		if f.Matches(item) {
			out = append(out, item)
		}
	}
	return out
}

// ReviewConsole is one admin's working copy of the application list. Entries
// only change from backend-confirmed responses; a failed decision leaves the
// entry exactly as it was.
type ReviewConsole struct {
	api    ReviewAPI
	logger *slog.Logger

	mu          sync.Mutex
	items       []domain.AgentApplication
	inflight    map[string]struct{}
	loadSeq     uint64
	decisionSeq uint64
	closed      bool
}

// NewReviewConsole creates an empty console.
func NewReviewConsole(api ReviewAPI, logger *slog.Logger) *ReviewConsole {
	return &ReviewConsole{api: api, logger: logger, inflight: map[string]struct{}{}}
}

// Load fetches the listing (letting the backend pre-filter) and returns the
// client-side filtered view of it. If a decision was confirmed while the
// request was out, the decided entries win over the listing's older copies.
func (c *ReviewConsole) Load(ctx context.Context, creds session.Credentials, f Filter) ([]domain.AgentApplication, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, domain.ErrUnmounted
	}
	c.loadSeq++
	seq := c.loadSeq
	decisions := c.decisionSeq
	c.mu.Unlock()

	apps, err := c.api.ListApplications(ctx, creds, f.Status, f.Query)
	if err != nil {
		c.logger.Warn("agent application listing failed", "admin_id", creds.Principal.ID, "error", err)
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || seq != c.loadSeq {
		return nil, domain.ErrUnmounted
	}
	fetched := append([]domain.AgentApplication(nil), apps...)
	if decisions != c.decisionSeq {
		fetched = keepDecided(fetched, c.items)
	}
	c.items = fetched
	return FilterApplications(c.items, f), nil
}

// Visible filters the already-fetched set without a network call.
func (c *ReviewConsole) Visible(f Filter) []domain.AgentApplication {
	c.mu.Lock()
	defer c.mu.Unlock()
	return FilterApplications(c.items, f)
}

// CanReject is the enabling predicate of the reject action.
func (c *ReviewConsole) CanReject(reason string) bool {
	return domain.CanReject(reason)
}

// InFlight reports whether a decision on id is outstanding.
func (c *ReviewConsole) InFlight(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, busy := c.inflight[id]
	return busy
}

// Approve approves id at rate. The agent code comes from the backend; if the
// response lacks it the listing is re-fetched to pick it up.
func (c *ReviewConsole) Approve(ctx context.Context, creds session.Credentials, id string, rate decimal.Decimal) (*domain.AgentApplication, error) {
	if err := domain.ValidateCommissionRate(rate); err != nil {
		return nil, err
	}
	if err := c.begin(id); err != nil {
		return nil, err
	}
	defer c.end(id)

	updated, err := c.api.ApproveApplication(ctx, creds, id, rate)
	if err != nil {
		c.logger.Warn("agent application approve failed", "application_id", id, "admin_id", creds.Principal.ID, "error", err)
		return nil, err
	}

	if updated.AgentCode == nil || *updated.AgentCode == "" {
		refetched, err := c.refetch(ctx, creds, id)
		if err != nil {
			return nil, err
		}
		updated = refetched
	}

	if err := c.apply(*updated); err != nil {
		return nil, err
	}
	c.logger.Info("agent application approved", "application_id", id, "admin_id", creds.Principal.ID, "commission_rate", rate.String())
	return updated, nil
}

// Reject rejects id. Reasons below the minimum never reach the backend.
func (c *ReviewConsole) Reject(ctx context.Context, creds session.Credentials, id, reason string) (*domain.AgentApplication, error) {
	reason = strings.TrimSpace(reason)
	if err := domain.ValidateRejectionReason(reason); err != nil {
		return nil, err
	}
	if err := c.begin(id); err != nil {
		return nil, err
	}
	defer c.end(id)

	updated, err := c.api.RejectApplication(ctx, creds, id, reason)
	if err != nil {
		c.logger.Warn("agent application reject failed", "application_id", id, "admin_id", creds.Principal.ID, "error", err)
		return nil, err
	}

	if err := c.apply(*updated); err != nil {
		return nil, err
	}
	c.logger.Info("agent application rejected", "application_id", id, "admin_id", creds.Principal.ID)
	return updated, nil
}

// Summary counts the fetched set by status.
func (c *ReviewConsole) Summary() map[domain.ApplicationStatus]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := map[domain.ApplicationStatus]int{
		domain.StatusPending:  0,
		domain.StatusApproved: 0,
		domain.StatusRejected: 0,
	}
	for _, item := range c.items {
		counts[item.Status]++
	}
	return counts
}

// Close unmounts the console; decisions that finish afterwards are not applied.
func (c *ReviewConsole) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *ReviewConsole) begin(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrUnmounted
	}
	if _, busy := c.inflight[id]; busy {
		return domain.ErrInFlight
	}
	c.inflight[id] = struct{}{}
	return nil
}

func (c *ReviewConsole) end(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, id)
}

func (c *ReviewConsole) apply(updated domain.AgentApplication) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrUnmounted
	}
	c.decisionSeq++
	for i := range c.items {
		if c.items[i].ID == updated.ID {
			c.items[i] = updated
			return nil
		}
	}
	c.items = append(c.items, updated)
	return nil
}

// keepDecided replaces pending entries of fetched with the decided copy held
// in current. A decided application never returns to pending.
func keepDecided(fetched, current []domain.AgentApplication) []domain.AgentApplication {
	decided := make(map[string]domain.AgentApplication)
	for _, item := range current {
		if item.Status != domain.StatusPending {
			decided[item.ID] = item
		}
	}
	for i, item := range fetched {
		if item.Status != domain.StatusPending {
			continue
		}
		if local, ok := decided[item.ID]; ok {
			fetched[i] = local
		}
	}
	return fetched
}

func (c *ReviewConsole) refetch(ctx context.Context, creds session.Credentials, id string) (*domain.AgentApplication, error) {
	app, err := c.api.GetApplication(ctx, creds, id)
	if err != nil {
		return nil, fmt.Errorf("re-fetch approved application %s: %w", id, err)
	}
	return app, nil
}
