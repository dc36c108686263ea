// Package jobs holds the scheduled server-side work: metric aggregation and
// insight generation. Both isolate per-user failures so one bad user never
// aborts a cycle.
package jobs

import (
	"context"
	"time"

	"browsepulse/internal/models"

	"go.uber.org/zap"
)

// EventSource reads the raw event stream.
type EventSource interface {
	ActiveUsers(ctx context.Context, since time.Time) ([]string, error)
	MetricForDay(ctx context.Context, userID string, dayStart, dayEnd time.Time) (models.DailyMetric, error)
}

// MetricSink persists recomputed metrics.
type MetricSink interface {
	Upsert(ctx context.Context, metric models.DailyMetric) error
}

// AggregationJob recomputes each active user's current-day metric from the
// full raw set. Recompute-from-scratch makes reruns idempotent.
type AggregationJob struct {
	events   EventSource
	metrics  MetricSink
	lookback time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewAggregationJob creates the job.
func NewAggregationJob(events EventSource, metrics MetricSink, lookback time.Duration, logger *zap.Logger) *AggregationJob {
	return &AggregationJob{
		events:   events,
		metrics:  metrics,
		lookback: lookback,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes one cycle. A job-level failure (cannot enumerate active users)
// skips the cycle; the schedule retries at the next tick.
func (j *AggregationJob) Run(ctx context.Context) {
	now := j.now().UTC()

	users, err := j.events.ActiveUsers(ctx, now.Add(-j.lookback))
	if err != nil {
		j.logger.Error("Aggregation cycle skipped, cannot list active users", zap.Error(err))
		return
	}
	if len(users) == 0 {
		return
	}

	dayStart := now.Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	var failed int
	for _, userID := range users {
		if err := j.aggregateUser(ctx, userID, dayStart, dayEnd, now); err != nil {
			j.logger.Error("Failed to aggregate user",
				zap.Error(err),
				zap.String("user_id", userID),
			)
			failed++
		}
	}

	j.logger.Info("Aggregation cycle finished",
		zap.Int("users", len(users)),
		zap.Int("failed", failed),
	)
}

func (j *AggregationJob) aggregateUser(ctx context.Context, userID string, dayStart, dayEnd, now time.Time) error {
	metric, err := j.events.MetricForDay(ctx, userID, dayStart, dayEnd)
	if err != nil {
		return err
	}

	metric.UserID = userID
	metric.Date = dayStart.Format("2006-01-02")
	metric.ComputedAt = now

	return j.metrics.Upsert(ctx, metric)
}
