package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/multimart/marketplace/internal/domain"
	"github.com/shopspring/decimal"
)

func approvedCopy(app domain.AgentApplication, rate decimal.Decimal, code string) *domain.AgentApplication {
	out := app
	out.Status = domain.StatusApproved
	out.CommissionRate = &rate
	out.AgentCode = strPtr(code)
	reviewer := "admin-1"
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	out.ReviewedBy = &reviewer
	out.ReviewedAt = &at
	return &out
}

func rejectedCopy(app domain.AgentApplication, reason string) *domain.AgentApplication {
	out := app
	out.Status = domain.StatusRejected
	out.RejectionReason = strPtr(reason)
	return &out
}

func consoleListing() []domain.AgentApplication {
	maria := pendingApplication("42", "Maria Moyo")
	tendai := pendingApplication("7", "Tendai Dube")
	tendai.Status = domain.StatusApproved
	rate := decimal.NewFromInt(10)
	tendai.CommissionRate = &rate
	tendai.AgentCode = strPtr("AG-TENDAI01")
	anesu := pendingApplication("8", "Anesu Maria Ncube")
	anesu.Status = domain.StatusRejected
	anesu.RejectionReason = strPtr("incomplete identity documents")
	return []domain.AgentApplication{maria, tendai, anesu}
}

func loadedConsole(t *testing.T, api *stubAgentAPI) *ReviewConsole {
	t.Helper()
	if api.listFn == nil {
		api.listFn = func(context.Context, domain.ApplicationStatus, string) ([]domain.AgentApplication, error) {
			return consoleListing(), nil
		}
	}
	console := NewReviewConsole(api, discardLogger())
	if _, err := console.Load(context.Background(), adminCreds(), Filter{}); err != nil {
		t.Fatalf("load: %v", err)
	}
	return console
}

func TestFilterMatches(t *testing.T) {
	app := pendingApplication("42", "Maria Moyo")

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter", Filter{}, true},
		{"name case-insensitive", Filter{Query: "maria"}, true},
		{"national id", Filter{Query: "63-123442"}, true},
		{"product name", Filter{Query: "solar"}, true},
		{"email", Filter{Query: "MOYO@EXAMPLE"}, true},
		{"no field matches", Filter{Query: "zimbabwe"}, false},
		{"status and query", Filter{Status: domain.StatusPending, Query: "maria"}, true},
		{"status mismatch", Filter{Status: domain.StatusApproved, Query: "maria"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(app); got != tt.want {
				t.Fatalf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReviewConsoleVisible_StatusAndQueryAreConjunctive(t *testing.T) {
	console := loadedConsole(t, &stubAgentAPI{})

	got := console.Visible(Filter{Status: domain.StatusPending, Query: "maria"})
	if len(got) != 1 || got[0].ID != "42" {
		t.Fatalf("expected only application 42, got %+v", got)
	}

	all := console.Visible(Filter{Query: "maria"})
	if len(all) != 2 {
		t.Fatalf("expected both Marias without a status filter, got %d", len(all))
	}
}

func TestReviewConsoleApprove_UsesBackendCode(t *testing.T) {
	api := &stubAgentAPI{}
	api.approveFn = func(_ context.Context, id string, rate decimal.Decimal) (*domain.AgentApplication, error) {
		if id != "42" {
			t.Fatalf("unexpected id %q", id)
		}
		if !rate.Equal(decimal.RequireFromString("12.5")) {
			t.Fatalf("unexpected rate %s", rate)
		}
		return approvedCopy(pendingApplication("42", "Maria Moyo"), rate, "AG-7QK2M9XD"), nil
	}
	console := loadedConsole(t, api)

	got, err := console.Approve(context.Background(), adminCreds(), "42", decimal.RequireFromString("12.5"))
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got.AgentCode == nil || *got.AgentCode != "AG-7QK2M9XD" {
		t.Fatalf("expected backend code, got %v", got.AgentCode)
	}
	if got.CommissionRate == nil || got.CommissionRate.String() != "12.5" {
		t.Fatalf("expected 12.5, got %v", got.CommissionRate)
	}
	if err := got.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}

	visible := console.Visible(Filter{Status: domain.StatusApproved})
	if len(visible) != 2 {
		t.Fatalf("expected 42 to show as approved, got %d approved", len(visible))
	}
	if api.Calls("list") != 1 {
		t.Fatalf("no re-fetch expected when the code is present, got %d listings", api.Calls("list"))
	}
}

func TestReviewConsoleApprove_RefetchesWhenCodeMissing(t *testing.T) {
	rate := decimal.NewFromInt(15)
	api := &stubAgentAPI{}
	api.getFn = func(_ context.Context, id string) (*domain.AgentApplication, error) {
		if id != "42" {
			t.Fatalf("unexpected id %q", id)
		}
		return approvedCopy(pendingApplication("42", "Maria Moyo"), rate, "AG-LATECODE"), nil
	}
	api.approveFn = func(context.Context, string, decimal.Decimal) (*domain.AgentApplication, error) {
		app := approvedCopy(pendingApplication("42", "Maria Moyo"), rate, "")
		app.AgentCode = nil
		return app, nil
	}
	console := loadedConsole(t, api)

	got, err := console.Approve(context.Background(), adminCreds(), "42", rate)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got.AgentCode == nil || *got.AgentCode != "AG-LATECODE" {
		t.Fatalf("expected code from re-fetch, got %v", got.AgentCode)
	}
	if api.Calls("get") != 1 || api.Calls("list") != 1 {
		t.Fatalf("expected one single-item lookup and no extra listing, got get=%d list=%d", api.Calls("get"), api.Calls("list"))
	}
}

func TestReviewConsoleApprove_RefetchFailureIsReported(t *testing.T) {
	rate := decimal.NewFromInt(15)
	api := &stubAgentAPI{}
	api.getFn = func(context.Context, string) (*domain.AgentApplication, error) {
		return nil, fmt.Errorf("get application: %w", domain.ErrNotFound)
	}
	api.approveFn = func(context.Context, string, decimal.Decimal) (*domain.AgentApplication, error) {
		app := approvedCopy(pendingApplication("42", "Maria Moyo"), rate, "")
		app.AgentCode = nil
		return app, nil
	}
	console := loadedConsole(t, api)

	if _, err := console.Approve(context.Background(), adminCreds(), "42", rate); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found from re-fetch, got %v", err)
	}
}

func TestReviewConsoleApprove_RateBounds(t *testing.T) {
	tests := []struct {
		rate  string
		valid bool
	}{
		{"0", false},
		{"-1", false},
		{"0.01", true},
		{"50", true},
		{"50.01", false},
	}

	for _, tt := range tests {
		t.Run(tt.rate, func(t *testing.T) {
			api := &stubAgentAPI{}
			api.approveFn = func(_ context.Context, _ string, rate decimal.Decimal) (*domain.AgentApplication, error) {
				return approvedCopy(pendingApplication("42", "Maria Moyo"), rate, "AG-AAAAAAAA"), nil
			}
			console := loadedConsole(t, api)

			_, err := console.Approve(context.Background(), adminCreds(), "42", decimal.RequireFromString(tt.rate))
			if tt.valid && err != nil {
				t.Fatalf("expected %s to be accepted, got %v", tt.rate, err)
			}
			if !tt.valid {
				if !domain.IsValidation(err) {
					t.Fatalf("expected validation error for %s, got %v", tt.rate, err)
				}
				if api.Calls("approve") != 0 {
					t.Fatal("invalid rate must not reach the backend")
				}
			}
		})
	}
}

func TestReviewConsoleReject_ShortReasonBlocked(t *testing.T) {
	api := &stubAgentAPI{}
	console := loadedConsole(t, api)

	if console.CanReject("too short") {
		t.Fatal("9-character reason must not enable reject")
	}
	if !console.CanReject("  incomplete documents  ") {
		t.Fatal("long reason should enable reject")
	}
	_, err := console.Reject(context.Background(), adminCreds(), "42", "too short")
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if api.Calls("reject") != 0 {
		t.Fatal("short reason must not reach the backend")
	}
}

func TestReviewConsoleReject_Applies(t *testing.T) {
	api := &stubAgentAPI{}
	api.rejectFn = func(_ context.Context, id, reason string) (*domain.AgentApplication, error) {
		if reason != "incomplete identity documents" {
			t.Fatalf("expected trimmed reason, got %q", reason)
		}
		return rejectedCopy(pendingApplication(id, "Maria Moyo"), reason), nil
	}
	console := loadedConsole(t, api)

	if _, err := console.Reject(context.Background(), adminCreds(), "42", "  incomplete identity documents "); err != nil {
		t.Fatalf("reject: %v", err)
	}
	summary := console.Summary()
	if summary[domain.StatusPending] != 0 || summary[domain.StatusRejected] != 2 {
		t.Fatalf("unexpected summary %v", summary)
	}
}

func TestReviewConsole_ConflictLeavesEntryUnchanged(t *testing.T) {
	api := &stubAgentAPI{}
	api.approveFn = func(context.Context, string, decimal.Decimal) (*domain.AgentApplication, error) {
		return nil, &domain.ConflictError{Message: "application 42 is approved, not pending"}
	}
	console := loadedConsole(t, api)

	_, err := console.Approve(context.Background(), adminCreds(), "42", decimal.NewFromInt(10))
	if !domain.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	got := console.Visible(Filter{Query: "63-123442"})
	if len(got) != 1 || got[0].Status != domain.StatusPending || got[0].AgentCode != nil {
		t.Fatalf("entry must be unchanged after conflict, got %+v", got)
	}
	if console.InFlight("42") {
		t.Fatal("in-flight flag must clear after failure")
	}
}

func TestReviewConsoleApprove_SecondDecisionWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	api := &stubAgentAPI{}
	api.approveFn = func(_ context.Context, _ string, rate decimal.Decimal) (*domain.AgentApplication, error) {
		close(entered)
		<-release
		return approvedCopy(pendingApplication("42", "Maria Moyo"), rate, "AG-AAAAAAAA"), nil
	}
	console := loadedConsole(t, api)

	done := make(chan error, 1)
	go func() {
		_, err := console.Approve(context.Background(), adminCreds(), "42", decimal.NewFromInt(10))
		done <- err
	}()
	<-entered

	if !console.InFlight("42") {
		t.Fatal("expected 42 in flight")
	}
	if _, err := console.Approve(context.Background(), adminCreds(), "42", decimal.NewFromInt(20)); !errors.Is(err, domain.ErrInFlight) {
		t.Fatalf("expected ErrInFlight for approve, got %v", err)
	}
	if _, err := console.Reject(context.Background(), adminCreds(), "42", "incomplete identity documents"); !errors.Is(err, domain.ErrInFlight) {
		t.Fatalf("expected ErrInFlight for reject, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first approve: %v", err)
	}
	if api.Calls("approve") != 1 || api.Calls("reject") != 0 {
		t.Fatal("only the first decision may reach the backend")
	}
}

func TestReviewConsole_ClosedDiscardsLateDecision(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	api := &stubAgentAPI{}
	api.approveFn = func(_ context.Context, _ string, rate decimal.Decimal) (*domain.AgentApplication, error) {
		close(entered)
		<-release
		return approvedCopy(pendingApplication("42", "Maria Moyo"), rate, "AG-AAAAAAAA"), nil
	}
	console := loadedConsole(t, api)

	done := make(chan error, 1)
	go func() {
		_, err := console.Approve(context.Background(), adminCreds(), "42", decimal.NewFromInt(10))
		done <- err
	}()
	<-entered
	console.Close()
	close(release)

	if err := <-done; !errors.Is(err, domain.ErrUnmounted) {
		t.Fatalf("expected ErrUnmounted, got %v", err)
	}
	if summary := console.Summary(); summary[domain.StatusPending] != 1 {
		t.Fatalf("late decision must not be applied, got %v", summary)
	}
	if _, err := console.Load(context.Background(), adminCreds(), Filter{}); !errors.Is(err, domain.ErrUnmounted) {
		t.Fatalf("expected closed console to refuse loads, got %v", err)
	}
}

func TestReviewConsoleLoad_DecisionDuringLoadIsKept(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var listings int
	api := &stubAgentAPI{}
	api.listFn = func(context.Context, domain.ApplicationStatus, string) ([]domain.AgentApplication, error) {
		listings++
		if listings == 2 {
			close(entered)
			<-release
		}
		return consoleListing(), nil
	}
	api.approveFn = func(_ context.Context, _ string, rate decimal.Decimal) (*domain.AgentApplication, error) {
		return approvedCopy(pendingApplication("42", "Maria Moyo"), rate, "AG-7QK2M9XD"), nil
	}
	console := loadedConsole(t, api)

	type result struct {
		items []domain.AgentApplication
		err   error
	}
	done := make(chan result, 1)
	go func() {
		items, err := console.Load(context.Background(), adminCreds(), Filter{})
		done <- result{items, err}
	}()
	<-entered

	if _, err := console.Approve(context.Background(), adminCreds(), "42", decimal.RequireFromString("12.5")); err != nil {
		t.Fatalf("approve: %v", err)
	}
	close(release)

	res := <-done
	if res.err != nil {
		t.Fatalf("load: %v", res.err)
	}
	for _, items := range [][]domain.AgentApplication{res.items, console.Visible(Filter{Query: "63-123442"})} {
		if len(items) == 0 {
			t.Fatal("expected application 42 in the view")
		}
		for _, item := range items {
			if item.ID == "42" && (item.Status != domain.StatusApproved || item.AgentCode == nil) {
				t.Fatalf("confirmed approval reverted by an older listing: %+v", item)
			}
		}
	}
	if pending := console.Visible(Filter{Status: domain.StatusPending}); len(pending) != 0 {
		t.Fatalf("decided application must not be offered for review again, got %+v", pending)
	}
}

func TestReviewConsoleLoad_WithoutDecisionUsesListing(t *testing.T) {
	var listings int
	api := &stubAgentAPI{}
	api.listFn = func(context.Context, domain.ApplicationStatus, string) ([]domain.AgentApplication, error) {
		listings++
		items := consoleListing()
		if listings == 2 {
			items[1].TotalSales = decimal.NewFromInt(300)
		}
		return items, nil
	}
	console := loadedConsole(t, api)

	if _, err := console.Load(context.Background(), adminCreds(), Filter{}); err != nil {
		t.Fatalf("reload: %v", err)
	}
	got := console.Visible(Filter{Status: domain.StatusApproved})
	if len(got) != 1 || !got[0].TotalSales.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected the fresh listing to replace the list, got %+v", got)
	}
}
