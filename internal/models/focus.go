package models

import "time"

// FocusState is the snapshot of the focus-mode machine that gets persisted
// and broadcast to page contexts.
type FocusState struct {
	IsActive  bool      `json:"isActive"`
	EndTime   time.Time `json:"endTime,omitempty"`
	Blocklist []string  `json:"blocklist,omitempty"`
}
