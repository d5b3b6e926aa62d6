package lockfree

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// State is a lock-free state word with cache-line padding on both sides,
// so that frequently polled state does not share a line with its neighbours.
//
// The meaning of the values is defined by the owner. Use TryTransition for
// reversible states and Store only for terminal ones.
type State struct { // betteralign:ignore
	_ cpu.CacheLinePad //nolint:unused
	v atomic.Uint32
	_ cpu.CacheLinePad //nolint:unused
}

// Load returns the current state.
func (s *State) Load() uint32 {
	return s.v.Load()
}

// Store unconditionally sets the state.
func (s *State) Store(state uint32) {
	s.v.Store(state)
}

// TryTransition moves from one state to another, returning false if the
// current state was not from.
func (s *State) TryTransition(from, to uint32) bool {
	return s.v.CompareAndSwap(from, to)
}

// TransitionAny moves to the target from the first matching state in
// validFrom, returning false if none matched.
func (s *State) TransitionAny(validFrom []uint32, to uint32) bool {
	for _, from := range validFrom {
		if s.v.CompareAndSwap(from, to) {
			return true
		}
	}
	return false
}
