package app

import (
	"time"

	"github.com/google/uuid"
	"github.com/multimart/marketplace/internal/domain"
	"github.com/shopspring/decimal"
)

// Routing keys published on the events exchange.
const (
	EventApplicationSubmitted     = "agent.application.submitted"
	EventApplicationApproved      = "agent.application.approved"
	EventApplicationRejected      = "agent.application.rejected"
	EventApplicationReviewOverdue = "agent.application.review_overdue"

	// EventLedgerUpdated is consumed, not published.
	EventLedgerUpdated = "commission.ledger.updated"
)

// ApplicationEvent is the payload of every agent.application.* state change.
type ApplicationEvent struct {
	EventID         string                   `json:"event_id"`
	Type            string                   `json:"type"`
	ApplicationID   string                   `json:"application_id"`
	ApplicantID     string                   `json:"applicant_id"`
	ApplicantEmail  string                   `json:"applicant_email,omitempty"`
	ProductID       string                   `json:"product_id"`
	Status          domain.ApplicationStatus `json:"status"`
	AgentCode       string                   `json:"agent_code,omitempty"`
	CommissionRate  *decimal.Decimal         `json:"commission_rate,omitempty"`
	RejectionReason string                   `json:"rejection_reason,omitempty"`
	ReviewedBy      string                   `json:"reviewed_by,omitempty"`
	OccurredAt      time.Time                `json:"occurred_at"`
}

// ReviewOverdueEvent reminds admins that applications have waited too long.
type ReviewOverdueEvent struct {
	EventID      string    `json:"event_id"`
	Type         string    `json:"type"`
	PendingCount int       `json:"pending_count"`
	OlderThan    time.Time `json:"older_than"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// LedgerUpdate is the commission.ledger.updated payload.
type LedgerUpdate struct {
	AgentCode       string          `json:"agent_code"`
	TotalSales      decimal.Decimal `json:"total_sales"`
	TotalCommission decimal.Decimal `json:"total_commission"`
}

func newApplicationEvent(eventType string, a *domain.AgentApplication, at time.Time) ApplicationEvent {
	evt := ApplicationEvent{
		EventID:        uuid.NewString(),
		Type:           eventType,
		ApplicationID:  a.ID,
		ApplicantID:    a.ApplicantID,
		ApplicantEmail: a.ApplicantEmail,
		ProductID:      a.ProductID,
		Status:         a.Status,
		CommissionRate: a.CommissionRate,
		OccurredAt:     at.UTC(),
	}
	if a.AgentCode != nil {
		evt.AgentCode = *a.AgentCode
	}
	if a.RejectionReason != nil {
		evt.RejectionReason = *a.RejectionReason
	}
	if a.ReviewedBy != nil {
		evt.ReviewedBy = *a.ReviewedBy
	}
	return evt
}
