package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"browsepulse/internal/models"
)

// ErrNoMetrics means no daily metric exists yet for that user/date. Callers
// treat it as an expected skip, not a failure.
var ErrNoMetrics = errors.New("no metrics for user and date")

// MetricStore persists daily metrics in Postgres keyed by (user, date).
type MetricStore struct {
	db *PostgresDB
}

// NewMetricStore creates the store.
func NewMetricStore(db *PostgresDB) *MetricStore {
	return &MetricStore{db: db}
}

// Upsert replaces the metric for its (user, date) key. Aggregation always
// recomputes the whole day, so a plain overwrite is correct.
func (s *MetricStore) Upsert(ctx context.Context, metric models.DailyMetric) error {
	byDomain, err := json.Marshal(metric.ByDomain)
	if err != nil {
		return fmt.Errorf("failed to encode domain breakdown: %w", err)
	}
	byHour, err := json.Marshal(metric.ByHour)
	if err != nil {
		return fmt.Errorf("failed to encode hourly breakdown: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO daily_metrics (
			user_id, date, scroll_distance, active_minutes, idle_minutes,
			click_count, by_domain, by_hour, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, date) DO UPDATE SET
			scroll_distance = EXCLUDED.scroll_distance,
			active_minutes = EXCLUDED.active_minutes,
			idle_minutes = EXCLUDED.idle_minutes,
			click_count = EXCLUDED.click_count,
			by_domain = EXCLUDED.by_domain,
			by_hour = EXCLUDED.by_hour,
			computed_at = EXCLUDED.computed_at
	`, metric.UserID, metric.Date, metric.ScrollDistance, metric.ActiveMinutes,
		metric.IdleMinutes, metric.ClickCount, byDomain, byHour, metric.ComputedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert daily metric: %w", err)
	}

	return nil
}

// Get loads the metric for one (user, date); ErrNoMetrics when absent.
func (s *MetricStore) Get(ctx context.Context, userID, date string) (models.DailyMetric, error) {
	metric := models.DailyMetric{
		UserID: userID,
		Date:   date,
	}

	var byDomain, byHour []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT scroll_distance, active_minutes, idle_minutes, click_count,
		       by_domain, by_hour, computed_at
		FROM daily_metrics WHERE user_id = $1 AND date = $2
	`, userID, date).Scan(
		&metric.ScrollDistance,
		&metric.ActiveMinutes,
		&metric.IdleMinutes,
		&metric.ClickCount,
		&byDomain,
		&byHour,
		&metric.ComputedAt,
	)
	if err == sql.ErrNoRows {
		return models.DailyMetric{}, ErrNoMetrics
	}
	if err != nil {
		return models.DailyMetric{}, fmt.Errorf("failed to get daily metric: %w", err)
	}

	if err := json.Unmarshal(byDomain, &metric.ByDomain); err != nil {
		return models.DailyMetric{}, fmt.Errorf("failed to decode domain breakdown: %w", err)
	}
	if err := json.Unmarshal(byHour, &metric.ByHour); err != nil {
		return models.DailyMetric{}, fmt.Errorf("failed to decode hourly breakdown: %w", err)
	}

	return metric, nil
}
