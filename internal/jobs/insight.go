package jobs

import (
	"context"
	"errors"
	"time"

	"browsepulse/internal/insight"
	"browsepulse/internal/models"
	"browsepulse/internal/store"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// UserSource enumerates recently active users.
type UserSource interface {
	ActiveUsers(ctx context.Context, since time.Time) ([]string, error)
}

// MetricSource reads persisted daily metrics.
type MetricSource interface {
	Get(ctx context.Context, userID, date string) (models.DailyMetric, error)
}

// InsightSink reads and appends insights.
type InsightSink interface {
	Latest(ctx context.Context, userID string) (*models.Insight, error)
	Insert(ctx context.Context, in *models.Insight) error
}

// InsightJob turns fresh metrics into generated insights, debounced per user
// by a cooldown and by the metric signature.
type InsightJob struct {
	users       UserSource
	metrics     MetricSource
	insights    InsightSink
	generator   insight.Generator
	lookback    time.Duration
	cooldown    time.Duration
	concurrency int
	logger      *zap.Logger
	now         func() time.Time
}

// NewInsightJob creates the job. concurrency bounds simultaneous calls to the
// text-generation collaborator.
func NewInsightJob(
	users UserSource,
	metrics MetricSource,
	insights InsightSink,
	generator insight.Generator,
	lookback, cooldown time.Duration,
	concurrency int,
	logger *zap.Logger,
) *InsightJob {
	if concurrency < 1 {
		concurrency = 1
	}
	return &InsightJob{
		users:       users,
		metrics:     metrics,
		insights:    insights,
		generator:   generator,
		lookback:    lookback,
		cooldown:    cooldown,
		concurrency: concurrency,
		logger:      logger,
		now:         time.Now,
	}
}

// Run executes one cycle.
func (j *InsightJob) Run(ctx context.Context) {
	now := j.now().UTC()

	users, err := j.users.ActiveUsers(ctx, now.Add(-j.lookback))
	if err != nil {
		j.logger.Error("Insight cycle skipped, cannot list active users", zap.Error(err))
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency)

	for _, userID := range users {
		userID := userID
		g.Go(func() error {
			// Per-user failures are logged inside; never propagated, so
			// one user cannot cancel the rest of the batch.
			j.processUser(gctx, userID, now)
			return nil
		})
	}
	g.Wait()
}

func (j *InsightJob) processUser(ctx context.Context, userID string, now time.Time) {
	latest, err := j.insights.Latest(ctx, userID)
	if err != nil {
		j.logger.Error("Failed to load latest insight",
			zap.Error(err),
			zap.String("user_id", userID),
		)
		return
	}
	if latest != nil && now.Sub(latest.CreatedAt) < j.cooldown {
		return
	}

	date := now.Format("2006-01-02")
	metric, err := j.metrics.Get(ctx, userID, date)
	if err != nil {
		if errors.Is(err, store.ErrNoMetrics) {
			// Aggregation hasn't caught up yet; expected, not an error.
			return
		}
		j.logger.Error("Failed to load daily metric",
			zap.Error(err),
			zap.String("user_id", userID),
		)
		return
	}

	signature := metric.Signature()
	if latest != nil && latest.MetricSignature == signature {
		return
	}

	generated, err := j.generator.Generate(ctx, metric)
	if err != nil {
		j.logger.Error("Insight generation failed",
			zap.Error(err),
			zap.String("user_id", userID),
		)
		return
	}

	in := &models.Insight{
		UserID:          userID,
		MetricDate:      date,
		Title:           generated.Title,
		Body:            generated.Body,
		Tags:            generated.Tags,
		MetricSignature: signature,
		CreatedAt:       now,
	}
	if err := j.insights.Insert(ctx, in); err != nil {
		j.logger.Error("Failed to store insight",
			zap.Error(err),
			zap.String("user_id", userID),
		)
		return
	}

	j.logger.Info("Insight generated",
		zap.String("user_id", userID),
		zap.String("date", date),
	)
}
