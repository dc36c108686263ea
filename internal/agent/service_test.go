package agent

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"browsepulse/internal/authstore"
	"browsepulse/internal/broadcast"
	"browsepulse/internal/client"
	"browsepulse/internal/database"
	"browsepulse/internal/focus"
	"browsepulse/internal/ipc"
	"browsepulse/internal/kv"
	"browsepulse/internal/models"
	"browsepulse/internal/queue"
	"browsepulse/internal/uploader"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// offlineBackend keeps every batch queued so tests can observe queue contents
// deterministically.
type offlineBackend struct{}

func (offlineBackend) UploadEvents(context.Context, string, string, []models.TrackingEvent) error {
	return &client.TransientError{Message: "offline"}
}

func (offlineBackend) Refresh(context.Context, string) (*models.TokenPair, error) {
	return nil, &client.TransientError{Message: "offline"}
}

type fixture struct {
	service *Service
	queue   *queue.Queue
	auth    *authstore.Store
	hub     *broadcast.Hub
	coord   *uploader.Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(filepath.Join(t.TempDir(), "agent.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := kv.New(db.DB)
	q := queue.New(db.DB, logger)
	auth := authstore.New(store, logger)
	fm := focus.New(logger)
	hub := broadcast.NewHub(logger)

	coord := uploader.New(q, auth, offlineBackend{}, "device-1", 80, time.Second, BuildHooks(hub, logger), logger)

	svc := New(q, auth, fm, coord, hub, store, logger)
	require.NoError(t, svc.Start())

	return &fixture{service: svc, queue: q, auth: auth, hub: hub, coord: coord}
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	resp := f.service.Handle(ipc.Command{
		Name: ipc.CmdAuthUpdate,
		Payload: ipc.Marshal(ipc.AuthUpdatePayload{
			AccessToken:  "access",
			RefreshToken: "refresh",
			User:         &models.User{ID: "u1", Email: "a@b.c"},
		}),
	})
	require.True(t, resp.OK, resp.Error)
	require.True(t, f.coord.WaitIdle(2*time.Second))
}

func (f *fixture) sendEvent(t *testing.T, event models.TrackingEvent) ipc.Response {
	t.Helper()
	return f.service.Handle(ipc.Command{
		Name:    ipc.CmdTrackingEvent,
		Payload: ipc.Marshal(event),
	})
}

func decodeData(t *testing.T, resp ipc.Response, v interface{}) {
	t.Helper()
	require.True(t, resp.OK, resp.Error)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func TestTrackingEventRejectedWhenLoggedOut(t *testing.T) {
	f := newFixture(t)

	resp := f.sendEvent(t, models.TrackingEvent{Type: models.EventClick, URL: "https://example.com"})
	assert.False(t, resp.OK)

	count, err := f.queue.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestTrackingEventEnqueuedWhenLoggedIn(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	resp := f.sendEvent(t, models.TrackingEvent{
		Type: models.EventScroll,
		URL:  "https://news.example.com/article",
	})
	require.True(t, resp.OK, resp.Error)

	var data map[string]string
	decodeData(t, resp, &data)
	assert.NotEmpty(t, data["id"])

	require.True(t, f.coord.WaitIdle(2*time.Second))

	entries, err := f.queue.ListPending(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	// Domain is derived from the URL when the producer omitted it.
	assert.Equal(t, "news.example.com", entries[0].Event.Domain)
}

func TestTrackingEventRejectsUnknownType(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	resp := f.sendEvent(t, models.TrackingEvent{Type: "keypress"})
	assert.False(t, resp.OK)
}

func TestLogoutClearsQueueAndAuth(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	for i := 0; i < 5; i++ {
		resp := f.sendEvent(t, models.TrackingEvent{Type: models.EventClick, URL: "https://example.com"})
		require.True(t, resp.OK, resp.Error)
	}
	require.True(t, f.coord.WaitIdle(2*time.Second))

	count, err := f.queue.Count()
	require.NoError(t, err)
	require.Equal(t, 5, count)

	resp := f.service.Handle(ipc.Command{Name: ipc.CmdAuthLogout})
	require.True(t, resp.OK, resp.Error)

	count, err = f.queue.Count()
	require.NoError(t, err)
	assert.Zero(t, count)

	state, err := f.auth.Get()
	require.NoError(t, err)
	assert.False(t, state.LoggedIn())

	// The forced-logout marker is visible to late status queries.
	var status ipc.TrackingStatus
	decodeData(t, f.service.Handle(ipc.Command{Name: ipc.CmdTrackingStatusRequest}), &status)
	assert.False(t, status.Active)
	assert.Zero(t, status.PendingCount)
	assert.True(t, status.ForcedLogout)
}

func TestAuthStateRequestMirrorsStore(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	var state models.AuthState
	decodeData(t, f.service.Handle(ipc.Command{Name: ipc.CmdAuthStateRequest}), &state)
	assert.Equal(t, "access", state.AccessToken)
	assert.True(t, state.TrackingEnabled)
	require.NotNil(t, state.User)
	assert.Equal(t, "u1", state.User.ID)
}

func TestTrackingStatusCountsPending(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	resp := f.sendEvent(t, models.TrackingEvent{Type: models.EventIdle, URL: "https://example.com"})
	require.True(t, resp.OK, resp.Error)
	require.True(t, f.coord.WaitIdle(2*time.Second))

	var status ipc.TrackingStatus
	decodeData(t, f.service.Handle(ipc.Command{Name: ipc.CmdTrackingStatusRequest}), &status)
	assert.True(t, status.Active)
	assert.Equal(t, 1, status.PendingCount)
	assert.False(t, status.ForcedLogout)
}

func TestFocusBlocksNavigation(t *testing.T) {
	f := newFixture(t)

	resp := f.service.Handle(ipc.Command{
		Name: ipc.CmdFocusStart,
		Payload: ipc.Marshal(ipc.FocusStartPayload{
			EndTime:   time.Now().Add(25 * time.Minute).UnixMilli(),
			Blocklist: []string{"reddit.com", "news.ycombinator.com"},
		}),
	})
	require.True(t, resp.OK, resp.Error)

	nav := func(url string) bool {
		var decision ipc.NavDecision
		decodeData(t, f.service.Handle(ipc.Command{
			Name:    ipc.CmdNavCommitted,
			Payload: ipc.Marshal(ipc.NavCommittedPayload{URL: url}),
		}), &decision)
		return decision.Block
	}

	assert.True(t, nav("https://www.reddit.com/r/golang"))
	assert.True(t, nav("https://news.ycombinator.com/item?id=1"))
	assert.False(t, nav("https://docs.example.com/page"))

	resp = f.service.Handle(ipc.Command{Name: ipc.CmdFocusStop})
	require.True(t, resp.OK, resp.Error)

	assert.False(t, nav("https://www.reddit.com/r/golang"))
}

func TestFocusStopWithoutSessionFails(t *testing.T) {
	f := newFixture(t)

	resp := f.service.Handle(ipc.Command{Name: ipc.CmdFocusStop})
	assert.False(t, resp.OK)
}

func TestFocusStateSurvivesRestart(t *testing.T) {
	logger := zap.NewNop()
	dir := t.TempDir()

	db, err := database.New(filepath.Join(dir, "agent.db"), logger)
	require.NoError(t, err)

	build := func(db *database.DB) *Service {
		store := kv.New(db.DB)
		q := queue.New(db.DB, logger)
		auth := authstore.New(store, logger)
		fm := focus.New(logger)
		hub := broadcast.NewHub(logger)
		coord := uploader.New(q, auth, offlineBackend{}, "device-1", 80, time.Second, BuildHooks(hub, logger), logger)
		svc := New(q, auth, fm, coord, hub, store, logger)
		require.NoError(t, svc.Start())
		return svc
	}

	first := build(db)
	resp := first.Handle(ipc.Command{
		Name: ipc.CmdFocusStart,
		Payload: ipc.Marshal(ipc.FocusStartPayload{
			EndTime:   time.Now().Add(25 * time.Minute).UnixMilli(),
			Blocklist: []string{"reddit.com"},
		}),
	})
	require.True(t, resp.OK, resp.Error)
	require.NoError(t, db.Close())

	db, err = database.New(filepath.Join(dir, "agent.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	second := build(db)
	var decision ipc.NavDecision
	decodeData(t, second.Handle(ipc.Command{
		Name:    ipc.CmdNavCommitted,
		Payload: ipc.Marshal(ipc.NavCommittedPayload{URL: "https://reddit.com/r/all"}),
	}), &decision)
	assert.True(t, decision.Block)
}

func TestUnknownCommandRejected(t *testing.T) {
	f := newFixture(t)

	resp := f.service.Handle(ipc.Command{Name: "NOT_A_COMMAND"})
	assert.False(t, resp.OK)
}

func TestAlarmTickSkipsEmptyQueue(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	// No queued events: the tick must not start a cycle.
	f.service.AlarmTick()
	assert.True(t, f.coord.WaitIdle(2*time.Second))

	count, err := f.queue.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}
