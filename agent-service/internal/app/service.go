/**
 * @description
 * Business logic of the agent-service: accepting applications, the admin
 * review state machine, agent-code allocation and referral link derivation.
 * The service re-validates everything the storefront validated; it owns the
 * canonical state.
 */
package app

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/multimart/marketplace/agent-service/internal/store"
	"github.com/multimart/marketplace/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	agentCodePrefix   = "AG-"
	agentCodeAttempts = 5
)

// EventPublisher publishes domain events.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body any) error
}

// SubmissionLimiter admits or refuses a submission. A refusal is a
// *domain.RateLimitError; any other error means the limiter is down.
type SubmissionLimiter interface {
	Admit(ctx context.Context, applicantID string) error
}

// Options configures a Service.
type Options struct {
	Exchange    string
	LinkBaseURL string
}

// Service implements the agent program operations.
type Service struct {
	repo    store.Repository
	events  EventPublisher
	limiter SubmissionLimiter
	logger  *slog.Logger
	opts    Options

	now     func() time.Time
	newID   func() string
	newCode func() (string, error)
}

// NewService wires a Service. limiter may be nil to disable submission limits.
func NewService(repo store.Repository, events EventPublisher, limiter SubmissionLimiter, logger *slog.Logger, opts Options) *Service {
	opts.LinkBaseURL = strings.TrimRight(opts.LinkBaseURL, "/")
	return &Service{
		repo:    repo,
		events:  events,
		limiter: limiter,
		logger:  logger,
		opts:    opts,
		now:     time.Now,
		newID:   uuid.NewString,
		newCode: GenerateAgentCode,
	}
}

// Submit creates a pending application for applicant.
func (s *Service) Submit(ctx context.Context, applicant domain.Principal, sub domain.Submission) (*domain.AgentApplication, error) {
	sub = sub.Normalize()
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	if s.limiter != nil {
		if err := s.limiter.Admit(ctx, applicant.ID); err != nil {
			var rlErr *domain.RateLimitError
			if errors.As(err, &rlErr) {
				s.logger.Info("agent application rate limited", "applicant_id", applicant.ID, "retry_after_seconds", rlErr.RetryAfterSeconds)
				return nil, rlErr
			}
			s.logger.Warn("submission rate limiter unavailable; allowing request", "applicant_id", applicant.ID, "error", err)
		}
	}

	application := sub.ToApplication(s.newID(), applicant)
	created, err := s.repo.CreateApplication(ctx, &application)
	if err != nil {
		if errors.Is(err, store.ErrDuplicatePending) {
			return nil, &domain.ConflictError{Message: "you already have a pending application for this product"}
		}
		return nil, fmt.Errorf("create application: %w", err)
	}

	s.logger.Info("agent application submitted", "application_id", created.ID, "applicant_id", applicant.ID, "product_id", created.ProductID)
	s.publish(ctx, EventApplicationSubmitted, created)
	return created, nil
}

// ListMine returns the caller's applications.
func (s *Service) ListMine(ctx context.Context, applicantID string) ([]domain.AgentApplication, error) {
	return s.repo.ListByApplicant(ctx, applicantID)
}

// List returns the admin listing.
func (s *Service) List(ctx context.Context, status domain.ApplicationStatus, query string) ([]domain.AgentApplication, error) {
	return s.repo.ListApplications(ctx, store.ListFilter{Status: status, Query: query})
}

// Get returns one application.
func (s *Service) Get(ctx context.Context, id string) (*domain.AgentApplication, error) {
	app, err := s.repo.GetApplication(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return app, nil
}

// Approve approves a pending application and allocates its agent code.
func (s *Service) Approve(ctx context.Context, reviewer domain.Principal, id string, rate decimal.Decimal) (*domain.AgentApplication, error) {
	if err := domain.ValidateCommissionRate(rate); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= agentCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, fmt.Errorf("generate agent code: %w", err)
		}

		approved, err := s.repo.Approve(ctx, store.ApproveParams{
			ID:             id,
			CommissionRate: rate,
			AgentCode:      code,
			ReviewedBy:     reviewer.ID,
			ReviewedAt:     s.now().UTC(),
		})
		if errors.Is(err, store.ErrAgentCodeTaken) {
			s.logger.Warn("agent code collision; retrying", "application_id", id, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, mapStoreError(err)
		}

		s.logger.Info("agent application approved", "application_id", id, "reviewer_id", reviewer.ID, "commission_rate", rate.String(), "agent_code", code)
		s.publish(ctx, EventApplicationApproved, approved)
		return approved, nil
	}

	return nil, fmt.Errorf("allocate agent code for %s: exhausted %d attempts", id, agentCodeAttempts)
}

// Reject rejects a pending application.
func (s *Service) Reject(ctx context.Context, reviewer domain.Principal, id, reason string) (*domain.AgentApplication, error) {
	reason = strings.TrimSpace(reason)
	if err := domain.ValidateRejectionReason(reason); err != nil {
		return nil, err
	}

	rejected, err := s.repo.Reject(ctx, store.RejectParams{
		ID:              id,
		RejectionReason: reason,
		ReviewedBy:      reviewer.ID,
		ReviewedAt:      s.now().UTC(),
	})
	if err != nil {
		return nil, mapStoreError(err)
	}

	s.logger.Info("agent application rejected", "application_id", id, "reviewer_id", reviewer.ID)
	s.publish(ctx, EventApplicationRejected, rejected)
	return rejected, nil
}

// ReferralLink returns the referral URL of the caller's approved application for productID.
func (s *Service) ReferralLink(ctx context.Context, applicantID, productID string) (string, error) {
	app, err := s.repo.FindApprovedForProduct(ctx, applicantID, productID)
	if err != nil {
		return "", mapStoreError(err)
	}
	if app.AgentCode == nil || *app.AgentCode == "" {
		return "", &domain.ConflictError{Message: "agent code is still being provisioned"}
	}
	return BuildReferralURL(s.opts.LinkBaseURL, productID, *app.AgentCode), nil
}

// BuildReferralURL formats base/products/{productID}?ref={code}.
func BuildReferralURL(base, productID, code string) string {
	return strings.TrimRight(base, "/") + "/products/" + url.PathEscape(productID) + "?ref=" + url.QueryEscape(code)
}

// GenerateAgentCode returns "AG-" followed by 8 uppercase base32 characters.
func GenerateAgentCode() (string, error) {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return agentCodePrefix + base32.StdEncoding.EncodeToString(buf), nil
}

func (s *Service) publish(ctx context.Context, routingKey string, app *domain.AgentApplication) {
	if s.events == nil {
		return
	}
	evt := newApplicationEvent(routingKey, app, s.now())
	if err := s.events.Publish(ctx, s.opts.Exchange, routingKey, evt); err != nil {
		s.logger.Error("failed to publish agent application event", "routing_key", routingKey, "application_id", app.ID, "error", err)
	}
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, store.ErrApplicationNotFound):
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	case errors.Is(err, store.ErrNotPending):
		return &domain.ConflictError{Message: "application has already been reviewed"}
	default:
		return err
	}
}
