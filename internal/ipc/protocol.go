// Package ipc defines the message protocol between the background context and
// page contexts. Pages talk to the agent over a unix socket with JSON frames;
// they never share memory with it.
package ipc

import (
	"encoding/json"

	"browsepulse/internal/models"
)

// Command is a request frame from a page context, and also the frame shape of
// server pushes to subscribed pages.
type Command struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is the reply frame for a Command.
type Response struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Command names
const (
	CmdTrackingEvent         = "TRACKING_EVENT"
	CmdAuthUpdate            = "AUTH_UPDATE"
	CmdAuthLogout            = "AUTH_LOGOUT"
	CmdAuthStateRequest      = "AUTH_STATE_REQUEST"
	CmdTrackingStatusRequest = "TRACKING_STATUS_REQUEST"
	CmdFocusStart            = "FOCUS_START"
	CmdFocusStop             = "FOCUS_STOP"
	CmdNavCommitted          = "NAV_COMMITTED"
	CmdSubscribe             = "SUBSCRIBE"
)

// Push names sent to subscribed page contexts
const (
	PushAuthUpdate   = "AUTH_UPDATE"
	PushAuthLogout   = "AUTH_LOGOUT"
	PushFocusUpdate  = "FOCUS_UPDATE"
	PushSummaryStale = "SUMMARY_STALE"
)

// AuthUpdatePayload carries tokens and user identity; sent by login flows and
// pushed back out after every state change that yields usable tokens.
type AuthUpdatePayload struct {
	AccessToken  string       `json:"accessToken,omitempty"`
	RefreshToken string       `json:"refreshToken,omitempty"`
	User         *models.User `json:"user,omitempty"`
}

// FocusStartPayload starts a blocked-browsing window.
type FocusStartPayload struct {
	EndTime   int64    `json:"endTime"` // Unix timestamp in milliseconds
	Blocklist []string `json:"blocklist"`
}

// NavCommittedPayload reports a completed page navigation.
type NavCommittedPayload struct {
	URL string `json:"url"`
}

// NavDecision answers a NAV_COMMITTED: whether the page must show the
// blocking overlay.
type NavDecision struct {
	Block bool `json:"block"`
}

// TrackingStatus answers a TRACKING_STATUS_REQUEST.
type TrackingStatus struct {
	Active       bool `json:"active"`
	PendingCount int  `json:"pendingCount"`
	ForcedLogout bool `json:"forcedLogout"`
}

// Marshal encodes v into a raw payload, panicking only on unmarshalable
// types, which would be a programming error.
func Marshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// OKResponse builds a success response with optional data.
func OKResponse(v interface{}) Response {
	if v == nil {
		return Response{OK: true}
	}
	return Response{OK: true, Data: Marshal(v)}
}

// ErrorResponse builds a failure response.
func ErrorResponse(msg string) Response {
	return Response{OK: false, Error: msg}
}
