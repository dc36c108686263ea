package models

import "time"

// Event type constants matching the page-side producer enum
const (
	EventScroll = "scroll"
	EventClick  = "click"
	EventIdle   = "idle"
	EventFocus  = "focus"
	EventBlur   = "blur"
)

// TrackingEvent represents a single browsing-behavior event. Immutable once
// created; producers fill it, everything downstream only reads it.
type TrackingEvent struct {
	Type           string            `json:"type"`
	URL            string            `json:"url"`
	Domain         string            `json:"domain"`
	DurationMs     *int64            `json:"durationMs,omitempty"`
	ScrollDistance *int64            `json:"scrollDistance,omitempty"`
	StartedAt      *int64            `json:"startedAt,omitempty"` // Unix timestamp in milliseconds
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// ValidEventType reports whether t is one of the known event types.
func ValidEventType(t string) bool {
	switch t {
	case EventScroll, EventClick, EventIdle, EventFocus, EventBlur:
		return true
	}
	return false
}

// QueueEntry is one durable row in the local queue. The id is assigned on
// enqueue and never reused; entries are removed only after the server
// acknowledges them.
type QueueEntry struct {
	ID         string        `json:"id"`
	Event      TrackingEvent `json:"event"`
	EnqueuedAt time.Time     `json:"enqueuedAt"`
}

// BatchUploadRequest is the body of POST /api/tracking/events.
type BatchUploadRequest struct {
	DeviceID       string          `json:"deviceId"`
	Events         []TrackingEvent `json:"events"`
	BatchTimestamp int64           `json:"batchTimestamp"` // Unix timestamp in milliseconds
}

// BatchUploadResponse acknowledges an accepted batch.
type BatchUploadResponse struct {
	Accepted int `json:"accepted"`
}

// StoredEvent is a raw event as persisted server-side, with the
// server-assigned id and receive timestamp attached.
type StoredEvent struct {
	EventID  string        `json:"eventId"`
	UserID   string        `json:"userId"`
	DeviceID string        `json:"deviceId"`
	Event    TrackingEvent `json:"event"`
	ClientTS time.Time     `json:"clientTs"`
	ServerTS time.Time     `json:"serverTs"`
}
