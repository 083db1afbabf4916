package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/multimart/marketplace/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	defaultSubmissionKeyPrefix = "multimart:agent_submissions"
	submissionWindow           = time.Hour
)

// RedisSubmissionLimiter caps how many applications one applicant can submit
// per clock hour, shared across replicas. Each hour has its own counter key
// that expires when the hour closes.
type RedisSubmissionLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	now    func() time.Time
}

// NewRedisSubmissionLimiter creates a limiter allowing limitPerHour
// submissions. A nil client or a non-positive limit admits everything.
func NewRedisSubmissionLimiter(client redis.UniversalClient, prefix string, limitPerHour int) *RedisSubmissionLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = defaultSubmissionKeyPrefix
	}
	return &RedisSubmissionLimiter{client: client, prefix: prefix, limit: limitPerHour, now: time.Now}
}

// hourKey returns the counter key for applicantID at t and when it closes.
func (l *RedisSubmissionLimiter) hourKey(applicantID string, t time.Time) (string, time.Time) {
	opened := t.UTC().Truncate(submissionWindow)
	return fmt.Sprintf("%s:%s:%s", l.prefix, applicantID, opened.Format("2006010215")), opened.Add(submissionWindow)
}

// Admit counts one submission for applicantID. It returns a
// *domain.RateLimitError once the hour's allowance is spent; any other error
// means redis could not be reached.
func (l *RedisSubmissionLimiter) Admit(ctx context.Context, applicantID string) error {
	if l == nil || l.client == nil || l.limit <= 0 {
		return nil
	}
	applicantID = strings.TrimSpace(applicantID)
	if applicantID == "" {
		return nil
	}

	now := l.now()
	key, closes := l.hourKey(applicantID, now)

	var submitted *redis.IntCmd
	if _, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		submitted = pipe.Incr(ctx, key)
		pipe.ExpireAt(ctx, key, closes)
		return nil
	}); err != nil {
		return fmt.Errorf("count submission for %s: %w", applicantID, err)
	}

	if submitted.Val() <= int64(l.limit) {
		return nil
	}
	return &domain.RateLimitError{RetryAfterSeconds: retryAfter(closes.Sub(now))}
}

func retryAfter(wait time.Duration) int {
	seconds := int(math.Ceil(wait.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}
