package kv

import (
	"path/filepath"
	"testing"

	"browsepulse/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupStore(t *testing.T) Store {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return New(db.DB)
}

func TestGetMissingKey(t *testing.T) {
	s := setupStore(t)

	_, ok, err := s.Get("nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetGetRoundTrip(t *testing.T) {
	s := setupStore(t)

	require.NoError(t, s.Set("k", []byte("v1")))

	data, ok, err := s.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), data)

	// Upsert overwrites in place.
	require.NoError(t, s.Set("k", []byte("v2")))
	data, ok, err = s.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), data)
}

func TestRemove(t *testing.T) {
	s := setupStore(t)

	require.NoError(t, s.Set("k", []byte("v")))
	require.NoError(t, s.Remove("k"))

	_, ok, err := s.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)

	// Removing a missing key is not an error.
	require.NoError(t, s.Remove("k"))
}

func TestClear(t *testing.T) {
	s := setupStore(t)

	require.NoError(t, s.Set("a", []byte("1")))
	require.NoError(t, s.Set("b", []byte("2")))
	require.NoError(t, s.Clear())

	for _, key := range []string{"a", "b"} {
		_, ok, err := s.Get(key)
		require.NoError(t, err)
		assert.False(t, ok)
	}
}
