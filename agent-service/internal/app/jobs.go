/**
 * @description
 * Scheduled job implementations for the agent-service.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// OverdueCounter reports how many applications have waited for review since before cutoff.
type OverdueCounter interface {
	CountPendingOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	repo         OverdueCounter
	events       EventPublisher
	logger       *slog.Logger
	exchange     string
	overdueAfter time.Duration
	now          func() time.Time
}

// NewJobs creates a new Jobs runner.
func NewJobs(repo OverdueCounter, events EventPublisher, logger *slog.Logger, exchange string, overdueAfter time.Duration) *Jobs {
	return &Jobs{
		repo:         repo,
		events:       events,
		logger:       logger,
		exchange:     exchange,
		overdueAfter: overdueAfter,
		now:          time.Now,
	}
}

// RemindOverdueReviews publishes a reminder when pending applications are older than the threshold.
func (j *Jobs) RemindOverdueReviews() {
	j.logger.Info("starting overdue review reminder job")
	ctx := context.Background()

	cutoff := j.now().UTC().Add(-j.overdueAfter)
	count, err := j.repo.CountPendingOlderThan(ctx, cutoff)
	if err != nil {
		j.logger.Error("failed to count overdue applications", "error", err)
		return
	}
	if count == 0 {
		j.logger.Info("no overdue applications")
		return
	}

	evt := ReviewOverdueEvent{
		EventID:      uuid.NewString(),
		Type:         EventApplicationReviewOverdue,
		PendingCount: count,
		OlderThan:    cutoff,
		OccurredAt:   j.now().UTC(),
	}
	if err := j.events.Publish(ctx, j.exchange, EventApplicationReviewOverdue, evt); err != nil {
		j.logger.Error("failed to publish overdue review reminder", "pending_count", count, "error", err)
		return
	}

	j.logger.Info("overdue review reminder job finished", "pending_count", count)
}
