// Package kv wraps the local sqlite store in a uniform key-value interface
// with a single error-reporting convention, so callers never touch SQL for
// small durable records.
package kv

import (
	"database/sql"
	"fmt"
	"time"
)

// Store is the uniform durable key-value surface.
type Store interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Remove(key string) error
	Clear() error
}

type sqliteStore struct {
	db *sql.DB
}

// New returns a Store backed by the kv_store table.
func New(db *sql.DB) Store {
	return &sqliteStore{db: db}
}

func (s *sqliteStore) Get(key string) ([]byte, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv_store WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return []byte(value), true, nil
}

func (s *sqliteStore) Set(key string, value []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(value), time.Now())
	if err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

func (s *sqliteStore) Remove(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv_store WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to remove key %s: %w", key, err)
	}
	return nil
}

func (s *sqliteStore) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM kv_store`); err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}
	return nil
}
