package schedule

import (
	"sync"
	"time"
)

// Slot is a single-slot cancellable delayed task. Scheduling replaces any
// pending run (last write wins); Cancel drops the pending run without firing.
// Used for the reconnect delay, the auto-continue delay and the auto-save
// debounce, all of which want exactly one pending execution at a time.
type Slot struct {
	mu    sync.Mutex
	timer *time.Timer
	seq   uint64
}

func (s *Slot) Schedule(d time.Duration, fn func()) {
	if s == nil || fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.seq++
	seq := s.seq
	s.timer = time.AfterFunc(d, func() {
		s.mu.Lock()
		stale := seq != s.seq
		if !stale {
			s.timer = nil
		}
		s.mu.Unlock()
		if stale {
			return
		}
		fn()
	})
}

func (s *Slot) Cancel() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.seq++
}

func (s *Slot) Pending() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}
