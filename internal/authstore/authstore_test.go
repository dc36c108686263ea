package authstore

import (
	"testing"
	"time"

	"browsepulse/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memKV is an in-memory kv.Store for tests.
type memKV struct {
	data map[string][]byte
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string][]byte)}
}

func (m *memKV) Get(key string) ([]byte, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Set(key string, value []byte) error {
	m.data[key] = value
	return nil
}

func (m *memKV) Remove(key string) error {
	delete(m.data, key)
	return nil
}

func (m *memKV) Clear() error {
	m.data = make(map[string][]byte)
	return nil
}

func str(s string) *string { return &s }

func TestSetMergesPartialUpdates(t *testing.T) {
	s := New(newMemKV(), zap.NewNop())

	state, err := s.Set(models.AuthStatePatch{
		AccessToken:  str("access-1"),
		RefreshToken: str("refresh-1"),
		User:         &models.User{ID: "u1", Email: "u1@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "access-1", state.AccessToken)
	assert.False(t, state.TrackingEnabled)

	// Updating only the access token leaves the rest alone.
	state, err = s.Set(models.AuthStatePatch{AccessToken: str("access-2")})
	require.NoError(t, err)
	assert.Equal(t, "access-2", state.AccessToken)
	assert.Equal(t, "refresh-1", state.RefreshToken)
	require.NotNil(t, state.User)
	assert.Equal(t, "u1", state.User.ID)
}

func TestSetPersistsAcrossInstances(t *testing.T) {
	store := newMemKV()

	s1 := New(store, zap.NewNop())
	_, err := s1.Set(models.AuthStatePatch{AccessToken: str("access")})
	require.NoError(t, err)

	s2 := New(store, zap.NewNop())
	state, err := s2.Get()
	require.NoError(t, err)
	assert.Equal(t, "access", state.AccessToken)
}

func TestClearWipesEverything(t *testing.T) {
	s := New(newMemKV(), zap.NewNop())

	enabled := true
	_, err := s.Set(models.AuthStatePatch{
		AccessToken:     str("access"),
		RefreshToken:    str("refresh"),
		User:            &models.User{ID: "u1"},
		TrackingEnabled: &enabled,
	})
	require.NoError(t, err)

	require.NoError(t, s.Clear())

	state, err := s.Get()
	require.NoError(t, err)
	assert.Empty(t, state.AccessToken)
	assert.Empty(t, state.RefreshToken)
	assert.Nil(t, state.User)
	assert.False(t, state.TrackingEnabled)
}

func TestDisableTrackingKeepsTokens(t *testing.T) {
	s := New(newMemKV(), zap.NewNop())

	enabled := true
	_, err := s.Set(models.AuthStatePatch{
		AccessToken:     str("access"),
		TrackingEnabled: &enabled,
	})
	require.NoError(t, err)

	state, err := s.DisableTracking()
	require.NoError(t, err)
	assert.False(t, state.TrackingEnabled)
	assert.Equal(t, "access", state.AccessToken)
}

func TestForcedLogoutMarkerExpires(t *testing.T) {
	s := New(newMemKV(), zap.NewNop())

	base := time.Now()
	s.now = func() time.Time { return base }

	require.NoError(t, s.MarkForcedLogout())

	recent, err := s.ForcedLogoutSince(5 * time.Minute)
	require.NoError(t, err)
	assert.True(t, recent)

	s.now = func() time.Time { return base.Add(10 * time.Minute) }
	recent, err = s.ForcedLogoutSince(5 * time.Minute)
	require.NoError(t, err)
	assert.False(t, recent)
}

func TestForcedLogoutAbsentMarker(t *testing.T) {
	s := New(newMemKV(), zap.NewNop())

	recent, err := s.ForcedLogoutSince(5 * time.Minute)
	require.NoError(t, err)
	assert.False(t, recent)
}
