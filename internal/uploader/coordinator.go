// Package uploader drains the local queue to the backend in a single-flight
// manner: at most one upload cycle runs at a time, triggers arriving mid-cycle
// coalesce into exactly one follow-up cycle.
package uploader

import (
	"context"
	"sync"
	"time"

	"browsepulse/internal/client"
	"browsepulse/internal/models"

	"go.uber.org/zap"
)

// Queue is the slice of the local queue the coordinator needs.
type Queue interface {
	ListPending(limit int) ([]models.QueueEntry, error)
	RemoveAcknowledged(ids []string) error
	Count() (int, error)
}

// AuthSource reads and updates the device auth state.
type AuthSource interface {
	Get() (models.AuthState, error)
	Set(patch models.AuthStatePatch) (models.AuthState, error)
	DisableTracking() (models.AuthState, error)
}

// Backend is the network surface of one upload cycle.
type Backend interface {
	UploadEvents(ctx context.Context, accessToken, deviceID string, events []models.TrackingEvent) error
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
}

// Hooks let the owning service observe coordinator outcomes without the
// coordinator knowing about broadcasting.
type Hooks struct {
	// AuthRefreshed fires after a successful token refresh has been persisted.
	AuthRefreshed func(models.AuthState)
	// AuthRevoked fires after tracking was disabled because the refresh
	// token was rejected.
	AuthRevoked func(models.AuthState)
	// Drained fires when a cycle removed acknowledged entries, so cached
	// summaries can be marked stale.
	Drained func(removed int)
}

// Coordinator owns the Idle/Uploading/pending state. All state is
// per-instance; multiple coordinators can run side by side in tests.
type Coordinator struct {
	queue     Queue
	auth      AuthSource
	backend   Backend
	hooks     Hooks
	deviceID  string
	batchSize int
	timeout   time.Duration
	logger    *zap.Logger

	mu        sync.Mutex
	uploading bool
	pending   bool
	idle      chan struct{} // closed when the in-flight run finishes
}

// New creates a coordinator. batchSize caps how many entries one cycle sends.
func New(queue Queue, auth AuthSource, backend Backend, deviceID string, batchSize int, timeout time.Duration, hooks Hooks, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		queue:     queue,
		auth:      auth,
		backend:   backend,
		hooks:     hooks,
		deviceID:  deviceID,
		batchSize: batchSize,
		timeout:   timeout,
		logger:    logger,
	}
}

// Trigger requests an upload. While Idle it starts a cycle; while Uploading
// it sets the sticky pending flag and returns immediately. Never surfaces
// transport errors to the caller.
func (c *Coordinator) Trigger(reason string) {
	c.mu.Lock()
	if c.uploading {
		c.pending = true
		c.mu.Unlock()
		c.logger.Debug("Upload already in flight, trigger coalesced",
			zap.String("reason", reason),
		)
		return
	}
	c.uploading = true
	c.pending = false
	c.idle = make(chan struct{})
	c.mu.Unlock()

	c.logger.Debug("Upload cycle starting", zap.String("reason", reason))
	go c.run()
}

// WaitIdle blocks until no cycle is in flight, or the timeout passes.
// Returns true when idle was reached.
func (c *Coordinator) WaitIdle(timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		c.mu.Lock()
		if !c.uploading {
			c.mu.Unlock()
			return true
		}
		idle := c.idle
		c.mu.Unlock()

		select {
		case <-idle:
			// Re-check: a coalesced follow-up may have started.
		case <-deadline.C:
			return false
		}
	}
}

func (c *Coordinator) run() {
	for {
		res := c.cycle()

		c.mu.Lock()
		if res.hasMore {
			c.pending = true
		}
		if c.pending {
			c.pending = false
			c.mu.Unlock()
			continue
		}
		c.uploading = false
		close(c.idle)
		c.mu.Unlock()
		return
	}
}

type cycleResult struct {
	hasMore bool
}

// cycle is one attempt to drain a batch. It never panics the coordinator;
// every failure path leaves the queue intact and returns normally.
func (c *Coordinator) cycle() cycleResult {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	state, err := c.auth.Get()
	if err != nil {
		c.logger.Error("Failed to read auth state", zap.Error(err))
		return cycleResult{}
	}
	if !state.LoggedIn() {
		return cycleResult{}
	}

	entries, err := c.queue.ListPending(c.batchSize)
	if err != nil {
		c.logger.Error("Failed to list pending events", zap.Error(err))
		return cycleResult{}
	}
	if len(entries) == 0 {
		return cycleResult{}
	}

	events := make([]models.TrackingEvent, len(entries))
	ids := make([]string, len(entries))
	for i, entry := range entries {
		events[i] = entry.Event
		ids[i] = entry.ID
	}

	err = c.backend.UploadEvents(ctx, state.AccessToken, c.deviceID, events)
	if err != nil {
		if client.IsAuthError(err) {
			// Exactly one refresh attempt per cycle; no entries are
			// removed either way.
			return cycleResult{hasMore: c.refresh(ctx, state)}
		}
		c.logger.Warn("Upload failed, batch stays queued",
			zap.Error(err),
			zap.Int("event_count", len(events)),
		)
		return cycleResult{}
	}

	if err := c.queue.RemoveAcknowledged(ids); err != nil {
		// The server has the batch; the entries will be re-sent next
		// cycle. Accepted at-least-once duplication window.
		c.logger.Error("Failed to remove acknowledged events", zap.Error(err))
		return cycleResult{}
	}

	if c.hooks.Drained != nil {
		c.hooks.Drained(len(ids))
	}

	remaining, err := c.queue.Count()
	if err != nil {
		c.logger.Error("Failed to count remaining events", zap.Error(err))
		return cycleResult{}
	}

	return cycleResult{hasMore: remaining > 0}
}

// refresh performs the single per-cycle token refresh. Returns true when the
// cycle should be retried with the new token.
func (c *Coordinator) refresh(ctx context.Context, state models.AuthState) bool {
	if state.RefreshToken == "" {
		c.revoke()
		return false
	}

	pair, err := c.backend.Refresh(ctx, state.RefreshToken)
	if err != nil {
		if client.IsAuthError(err) {
			c.revoke()
			return false
		}
		c.logger.Warn("Token refresh failed, will retry on next trigger", zap.Error(err))
		return false
	}

	newState, err := c.auth.Set(models.AuthStatePatch{
		AccessToken:  &pair.AccessToken,
		RefreshToken: &pair.RefreshToken,
	})
	if err != nil {
		c.logger.Error("Failed to persist refreshed tokens", zap.Error(err))
		return false
	}

	if c.hooks.AuthRefreshed != nil {
		c.hooks.AuthRefreshed(newState)
	}
	return true
}

func (c *Coordinator) revoke() {
	c.logger.Warn("Refresh token revoked, disabling tracking")
	newState, err := c.auth.DisableTracking()
	if err != nil {
		c.logger.Error("Failed to disable tracking", zap.Error(err))
		return
	}
	if c.hooks.AuthRevoked != nil {
		c.hooks.AuthRevoked(newState)
	}
}
