package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"browsepulse/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Queue is a durable FIFO queue of not-yet-delivered events. Entries are
// removed only after the upload coordinator receives an acknowledgment for
// their ids.
type Queue struct {
	db     *sql.DB
	logger *zap.Logger
}

// New creates a queue over the agent database.
func New(db *sql.DB, logger *zap.Logger) *Queue {
	return &Queue{
		db:     db,
		logger: logger,
	}
}

// Enqueue durably stores one event and returns its entry id. A storage
// failure is returned to the caller; the event is never silently dropped.
func (q *Queue) Enqueue(event models.TrackingEvent) (string, error) {
	eventData, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}

	id := uuid.New().String()
	_, err = q.db.Exec(`
		INSERT INTO pending_events (entry_id, event_data, enqueued_at)
		VALUES (?, ?, ?)
	`, id, string(eventData), time.Now())
	if err != nil {
		return "", fmt.Errorf("failed to enqueue event: %w", err)
	}

	q.logger.Debug("Event enqueued",
		zap.String("entry_id", id),
		zap.String("type", event.Type),
	)

	return id, nil
}

// ListPending returns up to limit of the oldest pending entries in insertion
// order. Re-readable any number of times; nothing is consumed.
func (q *Queue) ListPending(limit int) ([]models.QueueEntry, error) {
	rows, err := q.db.Query(`
		SELECT entry_id, event_data, enqueued_at
		FROM pending_events
		ORDER BY seq ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending events: %w", err)
	}
	defer rows.Close()

	var entries []models.QueueEntry
	for rows.Next() {
		var entry models.QueueEntry
		var eventData string

		if err := rows.Scan(&entry.ID, &eventData, &entry.EnqueuedAt); err != nil {
			q.logger.Error("Failed to scan row", zap.Error(err))
			continue
		}

		if err := json.Unmarshal([]byte(eventData), &entry.Event); err != nil {
			q.logger.Error("Failed to unmarshal event, removing corrupted entry",
				zap.Error(err),
				zap.String("entry_id", entry.ID),
			)
			q.db.Exec("DELETE FROM pending_events WHERE entry_id = ?", entry.ID)
			continue
		}

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pending events: %w", err)
	}

	return entries, nil
}

// RemoveAcknowledged deletes the given entry ids. Removing an absent id is a
// no-op, not an error, so retried acknowledgments stay safe.
func (q *Queue) RemoveAcknowledged(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query := "DELETE FROM pending_events WHERE entry_id IN ("
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += "?"
		args[i] = id
	}
	query += ")"

	result, err := q.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to remove events: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	q.logger.Debug("Acknowledged events removed from queue",
		zap.Int64("count", rowsAffected),
	)

	return nil
}

// Count returns the number of pending entries.
func (q *Queue) Count() (int, error) {
	var count int
	err := q.db.QueryRow(`SELECT COUNT(*) FROM pending_events`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending events: %w", err)
	}
	return count, nil
}

// Clear drops every pending entry. Used on logout.
func (q *Queue) Clear() error {
	result, err := q.db.Exec(`DELETE FROM pending_events`)
	if err != nil {
		return fmt.Errorf("failed to clear queue: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		q.logger.Info("Queue cleared", zap.Int64("count", rowsAffected))
	}

	return nil
}
