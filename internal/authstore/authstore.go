// Package authstore keeps the device's single authoritative AuthState on the
// durable kv layer. The background context is the only writer; page contexts
// see pushed copies.
package authstore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"browsepulse/internal/kv"
	"browsepulse/internal/models"

	"go.uber.org/zap"
)

const (
	authStateKey    = "auth_state"
	forcedLogoutKey = "forced_logout_at"
)

// Store persists and serves the auth state.
type Store struct {
	kv     kv.Store
	logger *zap.Logger
	mu     sync.Mutex
	now    func() time.Time
}

// New creates the store.
func New(store kv.Store, logger *zap.Logger) *Store {
	return &Store{
		kv:     store,
		logger: logger,
		now:    time.Now,
	}
}

// Get returns the current auth state; a missing record is the zero state.
func (s *Store) Get() (models.AuthState, error) {
	data, ok, err := s.kv.Get(authStateKey)
	if err != nil {
		return models.AuthState{}, fmt.Errorf("failed to load auth state: %w", err)
	}
	if !ok {
		return models.AuthState{}, nil
	}

	var state models.AuthState
	if err := json.Unmarshal(data, &state); err != nil {
		return models.AuthState{}, fmt.Errorf("failed to decode auth state: %w", err)
	}
	return state, nil
}

// Set merges the patch into the stored state, persists, and returns the new
// state. Nil patch fields leave the existing values alone.
func (s *Store) Set(patch models.AuthStatePatch) (models.AuthState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.Get()
	if err != nil {
		return models.AuthState{}, err
	}

	if patch.AccessToken != nil {
		state.AccessToken = *patch.AccessToken
	}
	if patch.RefreshToken != nil {
		state.RefreshToken = *patch.RefreshToken
	}
	if patch.User != nil {
		state.User = patch.User
	}
	if patch.TrackingEnabled != nil {
		state.TrackingEnabled = *patch.TrackingEnabled
	}

	if err := s.persist(state); err != nil {
		return models.AuthState{}, err
	}

	s.logger.Debug("Auth state updated",
		zap.Bool("logged_in", state.LoggedIn()),
		zap.Bool("tracking_enabled", state.TrackingEnabled),
	)

	return state, nil
}

// Clear wipes tokens and user and disables tracking. The queue is cleared by
// the caller; this store owns only the auth record.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persist(models.AuthState{}); err != nil {
		return err
	}
	s.logger.Info("Auth state cleared")
	return nil
}

// DisableTracking flips tracking off without touching tokens. Used when a
// refresh token is revoked and producers must stop queuing undeliverable
// events.
func (s *Store) DisableTracking() (models.AuthState, error) {
	disabled := false
	return s.Set(models.AuthStatePatch{TrackingEnabled: &disabled})
}

// MarkForcedLogout records the logout moment so pages that missed the live
// broadcast can detect it on their next check.
func (s *Store) MarkForcedLogout() error {
	ts := strconv.FormatInt(s.now().UnixMilli(), 10)
	if err := s.kv.Set(forcedLogoutKey, []byte(ts)); err != nil {
		return fmt.Errorf("failed to set forced-logout marker: %w", err)
	}
	return nil
}

// ForcedLogoutSince reports whether a forced logout happened within ttl.
func (s *Store) ForcedLogoutSince(ttl time.Duration) (bool, error) {
	data, ok, err := s.kv.Get(forcedLogoutKey)
	if err != nil {
		return false, fmt.Errorf("failed to read forced-logout marker: %w", err)
	}
	if !ok {
		return false, nil
	}

	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return false, nil
	}
	return s.now().Sub(time.UnixMilli(ms)) <= ttl, nil
}

func (s *Store) persist(state models.AuthState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode auth state: %w", err)
	}
	if err := s.kv.Set(authStateKey, data); err != nil {
		return fmt.Errorf("failed to persist auth state: %w", err)
	}
	return nil
}
