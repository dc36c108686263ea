package uploader

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"browsepulse/internal/client"
	"browsepulse/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeQueue struct {
	mu      sync.Mutex
	entries []models.QueueEntry
	lists   int
	removes [][]string
}

func (q *fakeQueue) add(n int) []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ids []string
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("e%d", len(q.entries)+1)
		q.entries = append(q.entries, models.QueueEntry{
			ID:         id,
			Event:      models.TrackingEvent{Type: models.EventClick, Domain: "example.com"},
			EnqueuedAt: time.Now(),
		})
		ids = append(ids, id)
	}
	return ids
}

func (q *fakeQueue) ListPending(limit int) ([]models.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.lists++
	if limit > len(q.entries) {
		limit = len(q.entries)
	}
	out := make([]models.QueueEntry, limit)
	copy(out, q.entries[:limit])
	return out, nil
}

func (q *fakeQueue) RemoveAcknowledged(ids []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.removes = append(q.removes, append([]string(nil), ids...))
	remove := make(map[string]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}
	var kept []models.QueueEntry
	for _, entry := range q.entries {
		if !remove[entry.ID] {
			kept = append(kept, entry)
		}
	}
	q.entries = kept
	return nil
}

func (q *fakeQueue) Count() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries), nil
}

type fakeAuth struct {
	mu    sync.Mutex
	state models.AuthState
}

func (a *fakeAuth) Get() (models.AuthState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state, nil
}

func (a *fakeAuth) Set(patch models.AuthStatePatch) (models.AuthState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if patch.AccessToken != nil {
		a.state.AccessToken = *patch.AccessToken
	}
	if patch.RefreshToken != nil {
		a.state.RefreshToken = *patch.RefreshToken
	}
	if patch.User != nil {
		a.state.User = patch.User
	}
	if patch.TrackingEnabled != nil {
		a.state.TrackingEnabled = *patch.TrackingEnabled
	}
	return a.state, nil
}

func (a *fakeAuth) DisableTracking() (models.AuthState, error) {
	disabled := false
	return a.Set(models.AuthStatePatch{TrackingEnabled: &disabled})
}

type uploadCall struct {
	token  string
	events int
}

type fakeBackend struct {
	mu         sync.Mutex
	uploads    []uploadCall
	uploadErrs []error // consumed in order; nil slice means always succeed
	refreshes  int
	refreshErr error
	gate       chan struct{} // when set, UploadEvents blocks until a receive
}

func (b *fakeBackend) UploadEvents(_ context.Context, accessToken, _ string, events []models.TrackingEvent) error {
	b.mu.Lock()
	gate := b.gate
	b.uploads = append(b.uploads, uploadCall{token: accessToken, events: len(events)})
	var err error
	if len(b.uploadErrs) > 0 {
		err = b.uploadErrs[0]
		b.uploadErrs = b.uploadErrs[1:]
	}
	b.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return err
}

func (b *fakeBackend) Refresh(_ context.Context, _ string) (*models.TokenPair, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refreshes++
	if b.refreshErr != nil {
		return nil, b.refreshErr
	}
	return &models.TokenPair{AccessToken: "new-access", RefreshToken: "new-refresh"}, nil
}

func (b *fakeBackend) uploadCalls() []uploadCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]uploadCall(nil), b.uploads...)
}

func loggedIn() *fakeAuth {
	return &fakeAuth{state: models.AuthState{
		AccessToken:     "access",
		RefreshToken:    "refresh",
		TrackingEnabled: true,
	}}
}

func newTestCoordinator(q *fakeQueue, a *fakeAuth, b *fakeBackend, batchSize int, hooks Hooks) *Coordinator {
	return New(q, a, b, "device-1", batchSize, 5*time.Second, hooks, zap.NewNop())
}

func TestSuccessfulCycleDrainsQueue(t *testing.T) {
	q := &fakeQueue{}
	ids := q.add(3)
	b := &fakeBackend{}

	var drained []int
	c := newTestCoordinator(q, loggedIn(), b, 80, Hooks{
		Drained: func(n int) { drained = append(drained, n) },
	})

	c.Trigger("test")
	require.True(t, c.WaitIdle(2*time.Second))

	calls := b.uploadCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, 3, calls[0].events)

	count, _ := q.Count()
	assert.Equal(t, 0, count)
	require.Len(t, q.removes, 1)
	assert.Equal(t, ids, q.removes[0])
	assert.Equal(t, []int{3}, drained)
}

func TestBatchOverflowStartsSecondCycle(t *testing.T) {
	q := &fakeQueue{}
	q.add(100)
	b := &fakeBackend{}

	c := newTestCoordinator(q, loggedIn(), b, 80, Hooks{})

	c.Trigger("test")
	require.True(t, c.WaitIdle(2*time.Second))

	calls := b.uploadCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, 80, calls[0].events)
	assert.Equal(t, 20, calls[1].events)

	count, _ := q.Count()
	assert.Equal(t, 0, count)
}

func TestTriggersWhileUploadingCoalesce(t *testing.T) {
	q := &fakeQueue{}
	q.add(3)
	gate := make(chan struct{})
	b := &fakeBackend{gate: gate}

	c := newTestCoordinator(q, loggedIn(), b, 80, Hooks{})

	c.Trigger("first")

	// Wait until the cycle is inside the upload call.
	require.Eventually(t, func() bool {
		return len(b.uploadCalls()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	c.Trigger("second")
	c.Trigger("third")
	b.mu.Lock()
	b.gate = nil
	b.mu.Unlock()
	close(gate)

	require.True(t, c.WaitIdle(2*time.Second))

	// One real upload; the single coalesced follow-up cycle found an empty
	// queue and sent nothing.
	assert.Len(t, b.uploadCalls(), 1)
	q.mu.Lock()
	lists := q.lists
	q.mu.Unlock()
	assert.Equal(t, 2, lists)
}

func TestEntriesEnqueuedMidCycleStayQueued(t *testing.T) {
	q := &fakeQueue{}
	first := q.add(3)
	gate := make(chan struct{})
	b := &fakeBackend{gate: gate}

	c := newTestCoordinator(q, loggedIn(), b, 80, Hooks{})

	c.Trigger("test")
	require.Eventually(t, func() bool {
		return len(b.uploadCalls()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Arrives while the batch is in flight.
	q.add(1)
	b.mu.Lock()
	b.gate = nil
	b.mu.Unlock()
	close(gate)

	require.True(t, c.WaitIdle(2*time.Second))

	// The first cycle removed exactly its own batch; the follow-up picked
	// up the straggler.
	require.NotEmpty(t, q.removes)
	assert.Equal(t, first, q.removes[0])

	count, _ := q.Count()
	assert.Equal(t, 0, count)
}

func TestAuthExpiredRefreshesOnceAndRetries(t *testing.T) {
	q := &fakeQueue{}
	q.add(3)
	b := &fakeBackend{
		uploadErrs: []error{&client.AuthError{Message: "expired", StatusCode: 401}},
	}
	auth := loggedIn()

	var refreshed []models.AuthState
	c := newTestCoordinator(q, auth, b, 80, Hooks{
		AuthRefreshed: func(s models.AuthState) { refreshed = append(refreshed, s) },
	})

	c.Trigger("test")
	require.True(t, c.WaitIdle(2*time.Second))

	b.mu.Lock()
	refreshes := b.refreshes
	b.mu.Unlock()
	assert.Equal(t, 1, refreshes)

	calls := b.uploadCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "access", calls[0].token)
	assert.Equal(t, "new-access", calls[1].token)

	// No removal happened on the failed cycle; the retry drained it.
	count, _ := q.Count()
	assert.Equal(t, 0, count)

	state, _ := auth.Get()
	assert.Equal(t, "new-access", state.AccessToken)
	require.Len(t, refreshed, 1)
	assert.Equal(t, "new-access", refreshed[0].AccessToken)
}

func TestRevokedRefreshDisablesTracking(t *testing.T) {
	q := &fakeQueue{}
	q.add(3)
	b := &fakeBackend{
		uploadErrs: []error{&client.AuthError{Message: "expired", StatusCode: 401}},
		refreshErr: &client.AuthError{Message: "revoked", StatusCode: 401},
	}
	auth := loggedIn()

	var revoked int
	c := newTestCoordinator(q, auth, b, 80, Hooks{
		AuthRevoked: func(models.AuthState) { revoked++ },
	})

	c.Trigger("test")
	require.True(t, c.WaitIdle(2*time.Second))

	state, _ := auth.Get()
	assert.False(t, state.TrackingEnabled)
	assert.Equal(t, 1, revoked)

	// The queue survives for a future successful login.
	count, _ := q.Count()
	assert.Equal(t, 3, count)
	assert.Empty(t, q.removes)
}

func TestTransientFailureLeavesQueueIntact(t *testing.T) {
	q := &fakeQueue{}
	q.add(3)
	b := &fakeBackend{
		uploadErrs: []error{&client.TransientError{Message: "boom", StatusCode: 500}},
	}

	c := newTestCoordinator(q, loggedIn(), b, 80, Hooks{})

	c.Trigger("test")
	require.True(t, c.WaitIdle(2*time.Second))

	count, _ := q.Count()
	assert.Equal(t, 3, count)
	assert.Empty(t, q.removes)

	// The coordinator survives and the next trigger succeeds.
	c.Trigger("retry")
	require.True(t, c.WaitIdle(2*time.Second))

	count, _ = q.Count()
	assert.Equal(t, 0, count)
}

func TestNoAccessTokenSkipsCycle(t *testing.T) {
	q := &fakeQueue{}
	q.add(3)
	b := &fakeBackend{}
	auth := &fakeAuth{}

	c := newTestCoordinator(q, auth, b, 80, Hooks{})

	c.Trigger("test")
	require.True(t, c.WaitIdle(2*time.Second))

	assert.Empty(t, b.uploadCalls())
	count, _ := q.Count()
	assert.Equal(t, 3, count)
}

func TestEmptyQueueSendsNothing(t *testing.T) {
	q := &fakeQueue{}
	b := &fakeBackend{}

	c := newTestCoordinator(q, loggedIn(), b, 80, Hooks{})

	c.Trigger("test")
	require.True(t, c.WaitIdle(2*time.Second))

	assert.Empty(t, b.uploadCalls())
}
