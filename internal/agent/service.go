// Package agent is the long-lived background context: it owns the
// authoritative auth state, the local queue, the focus machine, and the
// upload coordinator, and serves page contexts over IPC.
package agent

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"browsepulse/internal/authstore"
	"browsepulse/internal/broadcast"
	"browsepulse/internal/focus"
	"browsepulse/internal/ipc"
	"browsepulse/internal/kv"
	"browsepulse/internal/models"
	"browsepulse/internal/queue"
	"browsepulse/internal/uploader"

	"go.uber.org/zap"
)

const focusStateKey = "focus_state"

// ForcedLogoutTTL bounds how long the forced-logout marker stays visible to
// pages that missed the live broadcast.
const ForcedLogoutTTL = 5 * time.Minute

// Service dispatches inter-context commands and glues the client-side
// pipeline together.
type Service struct {
	queue       *queue.Queue
	auth        *authstore.Store
	focus       *focus.Machine
	coordinator *uploader.Coordinator
	hub         *broadcast.Hub
	kv          kv.Store
	logger      *zap.Logger
}

// New wires the service. The coordinator's hooks should already point at
// Hooks of this service (see BuildHooks).
func New(
	q *queue.Queue,
	auth *authstore.Store,
	fm *focus.Machine,
	coordinator *uploader.Coordinator,
	hub *broadcast.Hub,
	store kv.Store,
	logger *zap.Logger,
) *Service {
	return &Service{
		queue:       q,
		auth:        auth,
		focus:       fm,
		coordinator: coordinator,
		hub:         hub,
		kv:          store,
		logger:      logger,
	}
}

// BuildHooks returns the coordinator hooks that feed back into broadcasting.
// Defined here so the coordinator never imports the hub.
func BuildHooks(hub *broadcast.Hub, logger *zap.Logger) uploader.Hooks {
	return uploader.Hooks{
		AuthRefreshed: func(state models.AuthState) {
			hub.Publish(ipc.PushAuthUpdate, ipc.AuthUpdatePayload{
				AccessToken:  state.AccessToken,
				RefreshToken: state.RefreshToken,
				User:         state.User,
			})
		},
		AuthRevoked: func(state models.AuthState) {
			hub.Publish(ipc.PushAuthUpdate, ipc.AuthUpdatePayload{
				AccessToken:  state.AccessToken,
				RefreshToken: state.RefreshToken,
				User:         state.User,
			})
		},
		Drained: func(removed int) {
			logger.Debug("Acknowledged entries drained, summaries stale",
				zap.Int("removed", removed),
			)
			hub.Publish(ipc.PushSummaryStale, nil)
		},
	}
}

// Start restores persisted focus state. Called once on cold start.
func (s *Service) Start() error {
	data, ok, err := s.kv.Get(focusStateKey)
	if err != nil {
		return fmt.Errorf("failed to load focus state: %w", err)
	}
	if ok {
		var state models.FocusState
		if err := json.Unmarshal(data, &state); err == nil {
			s.focus.Restore(state)
		}
	}

	s.logger.Info("Agent service started")
	return nil
}

// AlarmTick is the periodic wake-up: trigger an upload only when the queue is
// non-empty.
func (s *Service) AlarmTick() {
	count, err := s.queue.Count()
	if err != nil {
		s.logger.Error("Failed to check queue on alarm", zap.Error(err))
		return
	}
	if count > 0 {
		s.coordinator.Trigger("alarm")
	}
}

// Handle dispatches one page-context command.
func (s *Service) Handle(cmd ipc.Command) ipc.Response {
	switch cmd.Name {
	case ipc.CmdTrackingEvent:
		return s.handleTrackingEvent(cmd.Payload)
	case ipc.CmdAuthUpdate:
		return s.handleAuthUpdate(cmd.Payload)
	case ipc.CmdAuthLogout:
		return s.handleLogout()
	case ipc.CmdAuthStateRequest:
		return s.handleAuthStateRequest()
	case ipc.CmdTrackingStatusRequest:
		return s.handleTrackingStatusRequest()
	case ipc.CmdFocusStart:
		return s.handleFocusStart(cmd.Payload)
	case ipc.CmdFocusStop:
		return s.handleFocusStop()
	case ipc.CmdNavCommitted:
		return s.handleNavCommitted(cmd.Payload)
	default:
		return ipc.ErrorResponse(fmt.Sprintf("unknown command: %s", cmd.Name))
	}
}

func (s *Service) handleTrackingEvent(payload json.RawMessage) ipc.Response {
	var event models.TrackingEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return ipc.ErrorResponse("invalid event payload")
	}
	if !models.ValidEventType(event.Type) {
		return ipc.ErrorResponse(fmt.Sprintf("unknown event type: %s", event.Type))
	}

	state, err := s.auth.Get()
	if err != nil {
		s.logger.Error("Failed to read auth state", zap.Error(err))
		return ipc.ErrorResponse("auth state unavailable")
	}
	if !state.LoggedIn() || !state.TrackingEnabled {
		return ipc.ErrorResponse("tracking is not active")
	}

	if event.Domain == "" && event.URL != "" {
		if u, err := url.Parse(event.URL); err == nil {
			event.Domain = u.Hostname()
		}
	}

	id, err := s.queue.Enqueue(event)
	if err != nil {
		// The queue is the only durability guarantee; the producer must
		// hear about the loss.
		s.logger.Error("Failed to enqueue event", zap.Error(err))
		return ipc.ErrorResponse("failed to store event")
	}

	s.coordinator.Trigger("enqueue")
	return ipc.OKResponse(map[string]string{"id": id})
}

func (s *Service) handleAuthUpdate(payload json.RawMessage) ipc.Response {
	var update ipc.AuthUpdatePayload
	if err := json.Unmarshal(payload, &update); err != nil {
		return ipc.ErrorResponse("invalid auth payload")
	}

	patch := models.AuthStatePatch{}
	if update.AccessToken != "" {
		patch.AccessToken = &update.AccessToken
	}
	if update.RefreshToken != "" {
		patch.RefreshToken = &update.RefreshToken
	}
	if update.User != nil {
		patch.User = update.User
	}
	if update.AccessToken != "" {
		enabled := true
		patch.TrackingEnabled = &enabled
	}

	state, err := s.auth.Set(patch)
	if err != nil {
		s.logger.Error("Failed to update auth state", zap.Error(err))
		return ipc.ErrorResponse("failed to persist auth state")
	}

	if state.LoggedIn() {
		s.hub.Publish(ipc.PushAuthUpdate, ipc.AuthUpdatePayload{
			AccessToken:  state.AccessToken,
			RefreshToken: state.RefreshToken,
			User:         state.User,
		})
		s.coordinator.Trigger("login")
	}

	return ipc.OKResponse(state)
}

func (s *Service) handleLogout() ipc.Response {
	if err := s.auth.Clear(); err != nil {
		s.logger.Error("Failed to clear auth state", zap.Error(err))
		return ipc.ErrorResponse("failed to clear auth state")
	}
	if err := s.queue.Clear(); err != nil {
		s.logger.Error("Failed to clear queue on logout", zap.Error(err))
		return ipc.ErrorResponse("failed to clear queue")
	}
	if err := s.auth.MarkForcedLogout(); err != nil {
		s.logger.Warn("Failed to set forced-logout marker", zap.Error(err))
	}

	s.hub.Publish(ipc.PushAuthLogout, nil)
	s.logger.Info("Logged out, queue and auth state cleared")
	return ipc.OKResponse(nil)
}

func (s *Service) handleAuthStateRequest() ipc.Response {
	state, err := s.auth.Get()
	if err != nil {
		s.logger.Error("Failed to read auth state", zap.Error(err))
		return ipc.ErrorResponse("auth state unavailable")
	}
	return ipc.OKResponse(state)
}

func (s *Service) handleTrackingStatusRequest() ipc.Response {
	state, err := s.auth.Get()
	if err != nil {
		s.logger.Error("Failed to read auth state", zap.Error(err))
		return ipc.ErrorResponse("auth state unavailable")
	}

	count, err := s.queue.Count()
	if err != nil {
		s.logger.Error("Failed to count queue", zap.Error(err))
		return ipc.ErrorResponse("queue unavailable")
	}

	forced, err := s.auth.ForcedLogoutSince(ForcedLogoutTTL)
	if err != nil {
		s.logger.Warn("Failed to check forced-logout marker", zap.Error(err))
	}

	return ipc.OKResponse(ipc.TrackingStatus{
		Active:       state.LoggedIn() && state.TrackingEnabled,
		PendingCount: count,
		ForcedLogout: forced,
	})
}

func (s *Service) handleFocusStart(payload json.RawMessage) ipc.Response {
	var req ipc.FocusStartPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return ipc.ErrorResponse("invalid focus payload")
	}

	if err := s.focus.Start(time.UnixMilli(req.EndTime), req.Blocklist); err != nil {
		return ipc.ErrorResponse(err.Error())
	}

	s.persistAndBroadcastFocus()
	return ipc.OKResponse(s.focus.Snapshot())
}

func (s *Service) handleFocusStop() ipc.Response {
	if err := s.focus.Stop(); err != nil {
		return ipc.ErrorResponse(err.Error())
	}

	s.persistAndBroadcastFocus()
	return ipc.OKResponse(s.focus.Snapshot())
}

func (s *Service) handleNavCommitted(payload json.RawMessage) ipc.Response {
	var nav ipc.NavCommittedPayload
	if err := json.Unmarshal(payload, &nav); err != nil {
		return ipc.ErrorResponse("invalid navigation payload")
	}

	// Passive expiry: the navigation check is where an out-of-time window
	// gets its explicit stop transition.
	if s.focus.Expired() {
		if err := s.focus.Stop(); err == nil {
			s.persistAndBroadcastFocus()
		}
	}

	host := ""
	if u, err := url.Parse(nav.URL); err == nil {
		host = u.Hostname()
	}

	return ipc.OKResponse(ipc.NavDecision{Block: s.focus.ShouldBlock(host)})
}

func (s *Service) persistAndBroadcastFocus() {
	snapshot := s.focus.Snapshot()

	data, err := json.Marshal(snapshot)
	if err == nil {
		if err := s.kv.Set(focusStateKey, data); err != nil {
			s.logger.Warn("Failed to persist focus state", zap.Error(err))
		}
	}

	s.hub.Publish(ipc.PushFocusUpdate, snapshot)
}
