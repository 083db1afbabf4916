package app

import (
	"errors"
	"testing"
	"time"
)

func newTestJobs(repo OverdueCounter, events EventPublisher) *Jobs {
	jobs := NewJobs(repo, events, testLogger(), "multimart.events", 72*time.Hour)
	jobs.now = func() time.Time { return time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC) }
	return jobs
}

func TestRemindOverdueReviews_SkipsWhenNothingOverdue(t *testing.T) {
	repo := newRepoStub()
	events := &publisherStub{}

	newTestJobs(repo, events).RemindOverdueReviews()

	if len(events.keys()) != 0 {
		t.Fatal("expected no reminder when nothing is overdue")
	}
	if want := time.Date(2026, 3, 7, 8, 0, 0, 0, time.UTC); !repo.lastCutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, repo.lastCutoff)
	}
}

func TestRemindOverdueReviews_PublishesCount(t *testing.T) {
	repo := newRepoStub()
	repo.pendingCount = 4
	events := &publisherStub{}

	newTestJobs(repo, events).RemindOverdueReviews()

	if len(events.events) != 1 {
		t.Fatalf("expected one reminder, got %d", len(events.events))
	}
	published := events.events[0]
	if published.exchange != "multimart.events" || published.routingKey != EventApplicationReviewOverdue {
		t.Fatalf("unexpected destination %s/%s", published.exchange, published.routingKey)
	}
	evt, ok := published.body.(ReviewOverdueEvent)
	if !ok {
		t.Fatalf("expected ReviewOverdueEvent, got %T", published.body)
	}
	if evt.PendingCount != 4 || evt.EventID == "" {
		t.Fatalf("unexpected reminder payload %+v", evt)
	}
}

func TestRemindOverdueReviews_CountErrorSkipsPublish(t *testing.T) {
	repo := newRepoStub()
	repo.pendingCount = 2
	repo.countErr = errors.New("db down")
	events := &publisherStub{}

	newTestJobs(repo, events).RemindOverdueReviews()

	if len(events.keys()) != 0 {
		t.Fatal("expected no reminder when counting fails")
	}
}

func TestScheduler_RejectsInvalidSchedule(t *testing.T) {
	scheduler := NewScheduler(newTestJobs(newRepoStub(), &publisherStub{}), testLogger(), "not a cron expression")
	defer scheduler.Stop()

	if err := scheduler.Start(); err == nil {
		t.Fatal("expected invalid schedule to be reported")
	}
}

func TestScheduler_StartsWithValidSchedule(t *testing.T) {
	scheduler := NewScheduler(newTestJobs(newRepoStub(), &publisherStub{}), testLogger(), "0 8 * * *")
	defer scheduler.Stop()

	if err := scheduler.Start(); err != nil {
		t.Fatalf("expected valid schedule, got %v", err)
	}
}
