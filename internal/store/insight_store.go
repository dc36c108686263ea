package store

import (
	"context"
	"database/sql"
	"fmt"

	"browsepulse/internal/models"

	"github.com/google/uuid"
)

// InsightStore persists generated insights. Insights are append-only: a new
// one supersedes, never edits, its predecessors.
type InsightStore struct {
	db *PostgresDB
}

// NewInsightStore creates the store.
func NewInsightStore(db *PostgresDB) *InsightStore {
	return &InsightStore{db: db}
}

// Insert stores a new insight and fills in its id.
func (s *InsightStore) Insert(ctx context.Context, insight *models.Insight) error {
	insight.ID = uuid.New().String()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO insights (id, user_id, metric_date, title, body, tags, metric_signature, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, insight.ID, insight.UserID, insight.MetricDate, insight.Title, insight.Body,
		insight.Tags, insight.MetricSignature, insight.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert insight: %w", err)
	}

	return nil
}

// Latest returns the newest insight for a user, or nil when none exists.
func (s *InsightStore) Latest(ctx context.Context, userID string) (*models.Insight, error) {
	var insight models.Insight
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, metric_date, title, body, tags, metric_signature, created_at
		FROM insights WHERE user_id = $1
		ORDER BY created_at DESC LIMIT 1
	`, userID).Scan(
		&insight.ID,
		&insight.UserID,
		&insight.MetricDate,
		&insight.Title,
		&insight.Body,
		&insight.Tags,
		&insight.MetricSignature,
		&insight.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest insight: %w", err)
	}

	return &insight, nil
}
