/**
 * @description
 * Repository contract for the agent-service. The app layer depends on this
 * interface only; PostgresRepository is the production implementation.
 */
package store

import (
	"context"
	"errors"
	"time"

	"github.com/multimart/marketplace/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrApplicationNotFound = errors.New("agent application not found")
	ErrNotPending          = errors.New("agent application is not pending")
	ErrDuplicatePending    = errors.New("a pending application for this product already exists")
	ErrAgentCodeTaken      = errors.New("agent code already allocated")
	ErrUnknownAgentCode    = errors.New("no approved application for agent code")
)

// ApproveParams is the review decision written by Approve.
type ApproveParams struct {
	ID             string
	CommissionRate decimal.Decimal
	AgentCode      string
	ReviewedBy     string
	ReviewedAt     time.Time
}

// RejectParams is the review decision written by Reject.
type RejectParams struct {
	ID              string
	RejectionReason string
	ReviewedBy      string
	ReviewedAt      time.Time
}

// ListFilter narrows the admin listing. Zero values match everything.
type ListFilter struct {
	Status domain.ApplicationStatus
	Query  string
	Limit  int
}

// Repository defines the persistence operations of the agent-service.
type Repository interface {
	CreateApplication(ctx context.Context, app *domain.AgentApplication) (*domain.AgentApplication, error)
	GetApplication(ctx context.Context, id string) (*domain.AgentApplication, error)
	ListByApplicant(ctx context.Context, applicantID string) ([]domain.AgentApplication, error)
	ListApplications(ctx context.Context, filter ListFilter) ([]domain.AgentApplication, error)

	// Approve and Reject only transition pending rows. ErrNotPending when the
	// row exists in another state, ErrApplicationNotFound when it does not.
	Approve(ctx context.Context, params ApproveParams) (*domain.AgentApplication, error)
	Reject(ctx context.Context, params RejectParams) (*domain.AgentApplication, error)

	FindApprovedForProduct(ctx context.Context, applicantID, productID string) (*domain.AgentApplication, error)
	UpdateLedgerTotals(ctx context.Context, agentCode string, totalSales, totalCommission decimal.Decimal) error
	CountPendingOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}
