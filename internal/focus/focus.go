// Package focus implements the focus-mode state machine: an explicit
// Inactive/Active pair with named transitions, so forbidden transitions are
// rejected instead of silently absorbed by flag twiddling.
package focus

import (
	"errors"
	"strings"
	"sync"
	"time"

	"browsepulse/internal/models"

	"go.uber.org/zap"
)

// ErrNotActive is returned by Stop when no focus window is running.
var ErrNotActive = errors.New("focus mode is not active")

// ErrPastEndTime is returned by Start when the requested window already ended.
var ErrPastEndTime = errors.New("focus end time is in the past")

// Machine tracks the active blocked-browsing window and its blocklist.
// Mutated only through Start and Stop.
type Machine struct {
	mu        sync.RWMutex
	active    bool
	endTime   time.Time
	blocklist []string
	logger    *zap.Logger
	now       func() time.Time
}

// New creates an inactive machine.
func New(logger *zap.Logger) *Machine {
	return &Machine{
		logger: logger,
		now:    time.Now,
	}
}

// Restore seeds the machine from a persisted snapshot. An already-expired
// snapshot restores as inactive.
func (m *Machine) Restore(state models.FocusState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !state.IsActive || !m.now().Before(state.EndTime) {
		return
	}
	m.active = true
	m.endTime = state.EndTime
	m.blocklist = append([]string(nil), state.Blocklist...)
}

// Start activates (or re-activates, refreshing endTime and blocklist) a focus
// window.
func (m *Machine) Start(endTime time.Time, blocklist []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.now().Before(endTime) {
		return ErrPastEndTime
	}

	m.active = true
	m.endTime = endTime
	m.blocklist = append([]string(nil), blocklist...)

	m.logger.Info("Focus mode started",
		zap.Time("end_time", endTime),
		zap.Int("blocklist_size", len(blocklist)),
	)
	return nil
}

// Stop deactivates the window. Stopping an inactive machine is a forbidden
// transition.
func (m *Machine) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return ErrNotActive
	}

	m.active = false
	m.endTime = time.Time{}
	m.blocklist = nil

	m.logger.Info("Focus mode stopped")
	return nil
}

// ShouldBlock reports whether a navigation to host must show the blocking
// overlay. The match is substring-based: a blocklist entry "x.com" matches
// "sub.x.com". Not a security boundary. A window whose endTime has passed
// never blocks; expiry is checked passively here, the caller issues the
// explicit Stop.
func (m *Machine) ShouldBlock(host string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.active || !m.now().Before(m.endTime) {
		return false
	}

	host = strings.ToLower(host)
	for _, entry := range m.blocklist {
		if entry != "" && strings.Contains(host, strings.ToLower(entry)) {
			return true
		}
	}
	return false
}

// Expired reports an Active window whose end time has passed.
func (m *Machine) Expired() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active && !m.now().Before(m.endTime)
}

// Snapshot returns the current state for persistence and broadcast.
func (m *Machine) Snapshot() models.FocusState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return models.FocusState{
		IsActive:  m.active,
		EndTime:   m.endTime,
		Blocklist: append([]string(nil), m.blocklist...),
	}
}
