package audiograph

import (
	"sync"
	"weak"
)

type leakKind uint8

const (
	leakJobMemory leakKind = iota
	leakKernelTemp
	leakKey
)

func (k leakKind) String() string {
	switch k {
	case leakJobMemory:
		return `job memory`
	case leakKernelTemp:
		return `kernel allocation`
	case leakKey:
		return `interpolation key`
	default:
		return `unknown`
	}
}

// leakRecord describes one outstanding allocation. alive, if set, reports
// whether the allocation is still reachable.
type leakRecord struct {
	alive func() bool
	node  NodeHandle
	ring  int
	size  int
	kind  leakKind
}

// leakTracker records outstanding allocations, in allocation order, for
// reporting when the graph is disposed. A nil tracker is disabled, and every
// method is a no-op.
type leakTracker struct {
	data   map[uint64]leakRecord
	ring   []uint64
	nextID uint64
	mu     sync.Mutex
}

func newLeakTracker() *leakTracker {
	return &leakTracker{
		data:   make(map[uint64]leakRecord),
		ring:   make([]uint64, 0, 256),
		nextID: 1, // 0 is the null marker
	}
}

// trackPointer records an allocation, using a weak pointer to notice if it
// is collected without being released.
func trackPointer[T any](x *leakTracker, kind leakKind, node NodeHandle, size int, ptr *T) uint64 {
	if x == nil {
		return 0
	}
	wp := weak.Make(ptr)
	return x.track(leakRecord{
		kind:  kind,
		node:  node,
		size:  size,
		alive: func() bool { return wp.Value() != nil },
	})
}

func (x *leakTracker) track(r leakRecord) uint64 {
	if x == nil {
		return 0
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	id := x.nextID
	x.nextID++
	r.ring = len(x.ring)
	x.ring = append(x.ring, id)
	x.data[id] = r
	return id
}

func (x *leakTracker) untrack(id uint64) {
	if x == nil || id == 0 {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	r, ok := x.data[id]
	if !ok {
		return
	}
	delete(x.data, id)
	if r.ring < len(x.ring) && x.ring[r.ring] == id {
		x.ring[r.ring] = 0
	}
	if len(x.ring) > 256 && len(x.data) < len(x.ring)/4 {
		x.compact()
	}
}

// outstanding is the number of tracked allocations.
func (x *leakTracker) outstanding() int {
	if x == nil {
		return 0
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.data)
}

// report calls fn for every outstanding record, oldest first, and resets
// the tracker.
func (x *leakTracker) report(fn func(r leakRecord, collected bool)) {
	if x == nil {
		return
	}
	x.mu.Lock()
	ring, data := x.ring, x.data
	x.ring = make([]uint64, 0, 256)
	x.data = make(map[uint64]leakRecord)
	x.mu.Unlock()

	for _, id := range ring {
		if id == 0 {
			continue
		}
		if r, ok := data[id]; ok {
			fn(r, r.alive != nil && !r.alive())
		}
	}
}

// compact removes null markers from the ring and rebuilds the map, since
// delete does not shrink it. Must be called with mu held.
func (x *leakTracker) compact() {
	ring := make([]uint64, 0, max(len(x.data), 256))
	data := make(map[uint64]leakRecord, len(x.data))
	for _, id := range x.ring {
		if id == 0 {
			continue
		}
		if r, ok := x.data[id]; ok {
			r.ring = len(ring)
			ring = append(ring, id)
			data[id] = r
		}
	}
	x.ring = ring
	x.data = data
}
