package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"browsepulse/internal/models"

	"go.uber.org/zap"
)

// EventStore persists and aggregates the raw event stream in ClickHouse.
type EventStore struct {
	db     *ClickHouseDB
	logger *zap.Logger
}

// NewEventStore creates the store.
func NewEventStore(db *ClickHouseDB, logger *zap.Logger) *EventStore {
	return &EventStore{db: db, logger: logger}
}

// InsertBatch writes one accepted upload batch. No deduplication: the
// client-side queue is the de-duplication boundary.
func (s *EventStore) InsertBatch(ctx context.Context, events []models.StoredEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.db.Conn.PrepareBatch(ctx, `
		INSERT INTO tracking_events (
			event_id, user_id, device_id, event_type, url, domain,
			duration_ms, scroll_distance, started_at, metadata, client_ts, server_ts
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, ev := range events {
		var durationMs, scrollDistance int64
		if ev.Event.DurationMs != nil {
			durationMs = *ev.Event.DurationMs
		}
		if ev.Event.ScrollDistance != nil {
			scrollDistance = *ev.Event.ScrollDistance
		}

		startedAt := ev.ClientTS
		if ev.Event.StartedAt != nil {
			startedAt = time.UnixMilli(*ev.Event.StartedAt)
		}

		metadata := "{}"
		if len(ev.Event.Metadata) > 0 {
			if data, err := json.Marshal(ev.Event.Metadata); err == nil {
				metadata = string(data)
			}
		}

		err := batch.Append(
			ev.EventID,
			ev.UserID,
			ev.DeviceID,
			ev.Event.Type,
			ev.Event.URL,
			ev.Event.Domain,
			durationMs,
			scrollDistance,
			startedAt,
			metadata,
			ev.ClientTS,
			ev.ServerTS,
		)
		if err != nil {
			s.logger.Error("Failed to append event to batch",
				zap.Error(err),
				zap.String("event_id", ev.EventID),
			)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	s.logger.Debug("Event batch inserted", zap.Int("count", len(events)))
	return nil
}

// ActiveUsers returns distinct user ids with any events received since the
// given time.
func (s *EventStore) ActiveUsers(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.db.Conn.Query(ctx, `
		SELECT DISTINCT user_id FROM tracking_events WHERE server_ts >= ?
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query active users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		users = append(users, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error reading active users: %w", err)
	}

	return users, nil
}

// MetricForDay recomputes the full daily metric for one user over
// [dayStart, dayEnd) from scratch. Order-independent by construction, so a
// rerun over an unchanged raw set yields an identical result.
func (s *EventStore) MetricForDay(ctx context.Context, userID string, dayStart, dayEnd time.Time) (models.DailyMetric, error) {
	metric := models.DailyMetric{
		UserID:   userID,
		Date:     dayStart.UTC().Format("2006-01-02"),
		ByDomain: make(map[string]models.DomainStat),
	}

	err := s.db.Conn.QueryRow(ctx, `
		SELECT
			sumIf(scroll_distance, event_type = 'scroll'),
			sumIf(duration_ms, event_type IN ('scroll', 'click', 'focus')) / 60000,
			sumIf(duration_ms, event_type = 'idle') / 60000,
			toInt64(countIf(event_type = 'click'))
		FROM tracking_events
		WHERE user_id = ? AND server_ts >= ? AND server_ts < ?
	`, userID, dayStart, dayEnd).Scan(
		&metric.ScrollDistance,
		&metric.ActiveMinutes,
		&metric.IdleMinutes,
		&metric.ClickCount,
	)
	if err != nil {
		return models.DailyMetric{}, fmt.Errorf("failed to compute totals: %w", err)
	}

	domainRows, err := s.db.Conn.Query(ctx, `
		SELECT
			domain,
			sumIf(duration_ms, event_type IN ('scroll', 'click', 'focus')) / 60000,
			sumIf(scroll_distance, event_type = 'scroll'),
			toInt64(countIf(event_type = 'click'))
		FROM tracking_events
		WHERE user_id = ? AND server_ts >= ? AND server_ts < ? AND domain != ''
		GROUP BY domain
	`, userID, dayStart, dayEnd)
	if err != nil {
		return models.DailyMetric{}, fmt.Errorf("failed to compute domain breakdown: %w", err)
	}
	defer domainRows.Close()

	for domainRows.Next() {
		var domain string
		var stat models.DomainStat
		if err := domainRows.Scan(&domain, &stat.ActiveMinutes, &stat.ScrollDistance, &stat.Clicks); err != nil {
			return models.DailyMetric{}, fmt.Errorf("failed to scan domain row: %w", err)
		}
		metric.ByDomain[domain] = stat
	}
	if err := domainRows.Err(); err != nil {
		return models.DailyMetric{}, fmt.Errorf("row error reading domain breakdown: %w", err)
	}

	hourRows, err := s.db.Conn.Query(ctx, `
		SELECT
			toHour(server_ts) AS hour,
			sumIf(duration_ms, event_type IN ('scroll', 'click', 'focus')) / 60000
		FROM tracking_events
		WHERE user_id = ? AND server_ts >= ? AND server_ts < ?
		GROUP BY hour
	`, userID, dayStart, dayEnd)
	if err != nil {
		return models.DailyMetric{}, fmt.Errorf("failed to compute hourly breakdown: %w", err)
	}
	defer hourRows.Close()

	for hourRows.Next() {
		var hour uint8
		var minutes float64
		if err := hourRows.Scan(&hour, &minutes); err != nil {
			return models.DailyMetric{}, fmt.Errorf("failed to scan hour row: %w", err)
		}
		if int(hour) < len(metric.ByHour) {
			metric.ByHour[hour] = minutes
		}
	}
	if err := hourRows.Err(); err != nil {
		return models.DailyMetric{}, fmt.Errorf("row error reading hourly breakdown: %w", err)
	}

	return metric, nil
}
