package scheduler

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Scheduler runs one-shot callbacks keyed by id. Scheduling a key that is
// already pending replaces the earlier timer, and a cancelled or replaced
// timer never runs its callback.
type Scheduler struct {
	clock clockwork.Clock

	mu     sync.Mutex
	timers map[string]*entry
}

type entry struct {
	timer    clockwork.Timer
	done     chan struct{}
	deadline time.Time
}

// New creates a scheduler driven by clock. Use clockwork.NewRealClock() in
// production and a fake clock in tests.
func New(clock clockwork.Clock) *Scheduler {
	return &Scheduler{
		clock:  clock,
		timers: make(map[string]*entry),
	}
}

// Schedule arms fn to run after d under key, replacing any pending timer for
// the same key. The callback runs on its own goroutine.
func (s *Scheduler) Schedule(key string, d time.Duration, fn func()) time.Time {
	e := &entry{
		timer:    s.clock.NewTimer(d),
		done:     make(chan struct{}),
		deadline: s.clock.Now().Add(d),
	}

	s.mu.Lock()
	if existing, ok := s.timers[key]; ok {
		existing.stop()
		log.Debug().Str("key", key).Msg("replaced existing timer")
	}
	s.timers[key] = e
	s.mu.Unlock()

	go s.wait(key, e, fn)

	log.Debug().
		Str("key", key).
		Time("deadline", e.deadline).
		Dur("duration", d).
		Msg("scheduled one-shot timer")
	return e.deadline
}

func (s *Scheduler) wait(key string, e *entry, fn func()) {
	select {
	case <-e.timer.Chan():
		s.mu.Lock()
		current, ok := s.timers[key]
		if !ok || current != e {
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		s.mu.Unlock()

		log.Debug().Str("key", key).Msg("timer fired")
		fn()
	case <-e.done:
	}
}

// Cancel stops the pending timer for key. It reports whether one was pending.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.timers[key]
	if !ok {
		return false
	}
	e.stop()
	delete(s.timers, key)
	log.Debug().Str("key", key).Msg("cancelled timer")
	return true
}

// Deadline returns when the pending timer for key will fire.
func (s *Scheduler) Deadline(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.timers[key]
	if !ok {
		return time.Time{}, false
	}
	return e.deadline, true
}

// Pending returns the number of armed timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending timer.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.timers {
		e.stop()
		delete(s.timers, key)
	}
}

// stop halts the timer and drains its channel so the waiting goroutine exits.
func (e *entry) stop() {
	if !e.timer.Stop() {
		select {
		case <-e.timer.Chan():
		default:
		}
	}
	close(e.done)
}
