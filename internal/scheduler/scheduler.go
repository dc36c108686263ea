// Package scheduler is a named periodic-task registry; intervals are
// configuration, not embedded schedule strings.
package scheduler

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

type entry struct {
	period time.Duration
	stop   chan struct{}
}

// Scheduler runs each registered task on its own ticker until Stop.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[string]*entry
	stopped bool
	wg      sync.WaitGroup
	logger  *zap.Logger
}

// New creates an empty scheduler.
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		tasks:  make(map[string]*entry),
		logger: logger,
	}
}

// Register starts a periodic task under name. Re-registering the same name
// with the same period is a no-op, so cold starts can register
// unconditionally; a different period replaces the old timer.
func (s *Scheduler) Register(name string, period time.Duration, task func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if existing, ok := s.tasks[name]; ok {
		if existing.period == period {
			s.logger.Debug("Task already registered", zap.String("name", name))
			return
		}
		close(existing.stop)
		delete(s.tasks, name)
	}

	e := &entry{
		period: period,
		stop:   make(chan struct{}),
	}
	s.tasks[name] = e

	s.wg.Add(1)
	go s.loop(name, e, task)

	s.logger.Info("Periodic task registered",
		zap.String("name", name),
		zap.Duration("period", period),
	)
}

// Stop halts every task and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for _, e := range s.tasks {
		close(e.stop)
	}
	s.tasks = make(map[string]*entry)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) loop(name string, e *entry, task func()) {
	defer s.wg.Done()

	ticker := time.NewTicker(e.period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runTask(name, task)
		case <-e.stop:
			return
		}
	}
}

// runTask isolates panics so a broken task cannot kill the ticker goroutine.
func (s *Scheduler) runTask(name string, task func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Periodic task panicked",
				zap.String("name", name),
				zap.Any("panic", r),
			)
		}
	}()
	task()
}
