package lockfree

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Mode selects how a FreeList treats released slots.
type Mode uint8

const (
	// Pooled keeps released slots on the list, for reuse by Acquire.
	Pooled Mode = iota
	// Ephemeral drops released slots, leaving them to the garbage collector.
	// Acquire always allocates.
	Ephemeral
)

func (m Mode) String() string {
	switch m {
	case Pooled:
		return `pooled`
	case Ephemeral:
		return `ephemeral`
	default:
		return `unknown`
	}
}

// Slot is a single element handed out by a FreeList. Value is owned by the
// holder between Acquire and Release.
type Slot[T any] struct {
	Value  T
	next   *Slot[T]
	pooled bool
}

// FreeList is a LIFO pool of slots, safe for concurrent use.
//
// The head of the list is guarded by a root word that is acquired by swapping
// in a per-list marker, which keeps the pop path free of ABA hazards without
// tagged pointers. The critical section is a couple of pointer writes.
type FreeList[T any] struct { // betteralign:ignore
	_         cpu.CacheLinePad //nolint:unused
	head      atomic.Pointer[Slot[T]]
	_         cpu.CacheLinePad //nolint:unused
	locked    *Slot[T]
	size      atomic.Int64
	allocated atomic.Int64
	mode      Mode
}

// NewFreeList returns an empty list.
func NewFreeList[T any](mode Mode) *FreeList[T] {
	if mode != Pooled && mode != Ephemeral {
		panic(`lockfree: free list: invalid mode`)
	}
	return &FreeList[T]{
		locked: new(Slot[T]),
		mode:   mode,
	}
}

// Mode returns the mode the list was created with.
func (x *FreeList[T]) Mode() Mode {
	return x.mode
}

// Acquire pops a pooled slot, or allocates a new one. It never fails.
func (x *FreeList[T]) Acquire() *Slot[T] {
	if x.mode == Pooled && x.head.Load() != nil {
		top := x.lock()
		if top != nil {
			x.unlock(top.next)
			x.size.Add(-1)
			top.next = nil
			top.pooled = false
			return top
		}
		x.unlock(nil)
	}
	x.allocated.Add(1)
	return new(Slot[T])
}

// Release returns a slot to the list. The value is zeroed before the slot
// becomes visible to other callers. Releasing a slot twice panics.
func (x *FreeList[T]) Release(slot *Slot[T]) {
	if slot == nil {
		panic(`lockfree: free list: release of nil slot`)
	}
	var zero T
	slot.Value = zero
	if x.mode == Ephemeral {
		x.allocated.Add(-1)
		return
	}
	top := x.lock()
	if slot.pooled {
		x.unlock(top)
		panic(`lockfree: free list: slot released twice`)
	}
	slot.pooled = true
	slot.next = top
	x.unlock(slot)
	x.size.Add(1)
}

// Len is the number of pooled slots. The value is a hint under concurrency.
func (x *FreeList[T]) Len() int {
	return int(x.size.Load())
}

// Allocated is the number of slots allocated by Acquire, less slots dropped
// by an Ephemeral list.
func (x *FreeList[T]) Allocated() int {
	return int(x.allocated.Load())
}

func (x *FreeList[T]) lock() *Slot[T] {
	for i := 0; ; i++ {
		top := x.head.Load()
		if top != x.locked && x.head.CompareAndSwap(top, x.locked) {
			return top
		}
		Backoff(i)
	}
}

func (x *FreeList[T]) unlock(top *Slot[T]) {
	x.head.Store(top)
}
