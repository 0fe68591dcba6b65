package app

import (
	"context"
	"sync"
	"time"
)

// Scheduler runs deferred guarded transitions. Scheduling an existing key
// replaces its pending job, so re-scheduling after a restart is idempotent.
// Keys belong to the room, not to any client: a player leaving must never
// cancel the room's own advancement.
type Scheduler interface {
	Schedule(key string, at time.Time, fn func(ctx context.Context))
	Cancel(key string)
}

// TimerScheduler is the production Scheduler on top of time.AfterFunc.
type TimerScheduler struct {
	now func() time.Time

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// NewTimerScheduler builds a scheduler using the wall clock.
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{now: time.Now, timers: make(map[string]*time.Timer)}
}

func (s *TimerScheduler) Schedule(key string, at time.Time, fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if old, ok := s.timers[key]; ok {
		old.Stop()
	}
	delay := at.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	s.timers[key] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, key)
		s.mu.Unlock()
		fn(context.Background())
	})
}

func (s *TimerScheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
	}
}

// Close stops every pending timer. Jobs already firing still run.
func (s *TimerScheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
}
