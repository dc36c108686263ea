package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegisteredTaskFires(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var fired atomic.Int32
	s.Register("tick", 10*time.Millisecond, func() {
		fired.Add(1)
	})

	require.Eventually(t, func() bool {
		return fired.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestReRegisterSamePeriodIsNoop(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var first, second atomic.Int32
	s.Register("tick", 10*time.Millisecond, func() { first.Add(1) })
	s.Register("tick", 10*time.Millisecond, func() { second.Add(1) })

	require.Eventually(t, func() bool {
		return first.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	// The second registration never replaced the running task.
	assert.Zero(t, second.Load())
}

func TestReRegisterDifferentPeriodReplaces(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var old, replacement atomic.Int32
	s.Register("tick", time.Hour, func() { old.Add(1) })
	s.Register("tick", 10*time.Millisecond, func() { replacement.Add(1) })

	require.Eventually(t, func() bool {
		return replacement.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.Zero(t, old.Load())
}

func TestStopHaltsTasks(t *testing.T) {
	s := New(zap.NewNop())

	var fired atomic.Int32
	s.Register("tick", 10*time.Millisecond, func() { fired.Add(1) })

	require.Eventually(t, func() bool {
		return fired.Load() >= 1
	}, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	after := fired.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, fired.Load())
}

func TestRegisterAfterStopIsIgnored(t *testing.T) {
	s := New(zap.NewNop())
	s.Stop()

	var fired atomic.Int32
	s.Register("tick", 10*time.Millisecond, func() { fired.Add(1) })

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, fired.Load())
}

func TestPanickingTaskKeepsTicking(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var fired atomic.Int32
	s.Register("tick", 10*time.Millisecond, func() {
		fired.Add(1)
		panic("boom")
	})

	require.Eventually(t, func() bool {
		return fired.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)
}
