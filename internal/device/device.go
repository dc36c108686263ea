package device

import (
	"fmt"

	"browsepulse/internal/kv"

	"github.com/google/uuid"
)

const deviceIDKey = "device_id"

// GetOrCreateID returns the stable per-device identifier, generating and
// persisting one on first run. Queue entries and uploads are attributed to it.
func GetOrCreateID(store kv.Store) (string, error) {
	data, ok, err := store.Get(deviceIDKey)
	if err != nil {
		return "", fmt.Errorf("failed to read device id: %w", err)
	}
	if ok && len(data) > 0 {
		return string(data), nil
	}

	id := uuid.New().String()
	if err := store.Set(deviceIDKey, []byte(id)); err != nil {
		return "", fmt.Errorf("failed to persist device id: %w", err)
	}
	return id, nil
}
