package audiograph

import (
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-audiograph/lockfree"
)

// Handle identifies a slot in one of the graph's tables. The generation is
// bumped whenever the slot is recycled, which makes handles to released
// objects detectably stale. The zero Handle is never valid.
type Handle struct {
	Index      uint32
	Generation uint32
}

// Valid reports whether h could refer to a live object. It does not check
// that the object still exists.
func (h Handle) Valid() bool {
	return h.Generation != 0
}

type (
	// NodeHandle refers to a node.
	NodeHandle struct{ Handle }

	// ConnectionHandle refers to a connection between two ports.
	ConnectionHandle struct{ Handle }

	// UpdateRequestHandle refers to an in-flight update request.
	UpdateRequestHandle struct{ Handle }
)

type (
	// handleTable maps handles to payloads stored in a paged list, so that
	// payload addresses are stable. Indices are allocated on the control
	// side, serialised by mu. Payloads are owned by the render path.
	handleTable[T any] struct {
		list *lockfree.PagedList[tableSlot[T]]
		mu   sync.Mutex
	}

	tableSlot[T any] struct {
		value      T
		generation atomic.Uint32
	}
)

func newHandleTable[T any](pageSize int) *handleTable[T] {
	return &handleTable[T]{list: lockfree.NewPagedList[tableSlot[T]](pageSize)}
}

// allocate claims a slot and returns its handle.
func (x *handleTable[T]) allocate() Handle {
	x.mu.Lock()
	index := x.list.AllocateIndex()
	x.mu.Unlock()
	slot := x.list.At(index)
	gen := slot.generation.Load()
	if gen == 0 {
		gen = 1
		slot.generation.Store(gen)
	}
	return Handle{Index: uint32(index), Generation: gen}
}

// exists is the control side check: the slot is allocated and the
// generation matches.
func (x *handleTable[T]) exists(h Handle) bool {
	if !h.Valid() || !x.list.IsAllocated(int(h.Index)) {
		return false
	}
	return x.list.At(int(h.Index)).generation.Load() == h.Generation
}

// lookup returns the payload for h, or nil if h is stale.
func (x *handleTable[T]) lookup(h Handle) *T {
	if !x.exists(h) {
		return nil
	}
	return &x.list.At(int(h.Index)).value
}

// at returns the payload for an index, without any checks.
func (x *handleTable[T]) at(index uint32) *T {
	return &x.list.At(int(index)).value
}

// free invalidates every handle to the slot and returns it to the pool. The
// payload is left untouched, see reset.
func (x *handleTable[T]) free(index uint32) {
	slot := x.list.At(int(index))
	if slot.generation.Add(1) == 0 {
		slot.generation.Store(1)
	}
	x.list.FreeIndex(int(index))
}

// reset zeroes the payload and frees the slot. Only the owner of the payload
// may call it.
func (x *handleTable[T]) reset(index uint32) {
	var zero T
	x.list.At(int(index)).value = zero
	x.free(index)
}

// len is the number of allocated slots.
func (x *handleTable[T]) len() int {
	return x.list.Len()
}

// each calls fn with every allocated payload.
func (x *handleTable[T]) each(fn func(index uint32, value *T) bool) {
	x.list.Range(func(index int, slot *tableSlot[T]) bool {
		return fn(uint32(index), &slot.value)
	})
}
