// Package timesource reports the best available wall-clock timestamp.
//
// Captures taken before the kernel clock is synchronised carry timestamp 0
// ("unknown"). The sync state is refreshed once per control-loop iteration by
// Update; Timestamp is safe to call from any goroutine.
package timesource

import (
	"sync/atomic"

	"watchpost/internal/clock"
)

// SyncChecker reports whether the system clock is synchronised.
type SyncChecker interface {
	Synced() (bool, error)
}

// Source combines a clock with a sync checker.
type Source struct {
	clock   clock.Clock
	checker SyncChecker
	synced  atomic.Bool
	checked atomic.Bool
}

// New builds a Source. A nil checker treats the clock as always synchronised.
func New(c clock.Clock, checker SyncChecker) *Source {
	if c == nil {
		c = clock.Real()
	}
	s := &Source{clock: c, checker: checker}
	if checker == nil {
		s.synced.Store(true)
		s.checked.Store(true)
	}
	return s
}

// Update re-reads the kernel sync state. It returns true when the state
// changed since the previous call.
func (s *Source) Update() bool {
	if s.checker == nil {
		return false
	}
	synced, err := s.checker.Synced()
	if err != nil {
		synced = false
	}
	previous := s.synced.Swap(synced)
	first := !s.checked.Swap(true)
	return first || previous != synced
}

// Synced reports the last observed sync state.
func (s *Source) Synced() bool {
	return s.synced.Load()
}

// Timestamp returns epoch seconds when synced, 0 otherwise.
func (s *Source) Timestamp() int64 {
	if !s.synced.Load() {
		return 0
	}
	return s.clock.Now().Unix()
}

// Static is a SyncChecker with a fixed answer.
type Static bool

func (s Static) Synced() (bool, error) { return bool(s), nil }
