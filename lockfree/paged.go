package lockfree

import (
	"slices"
	"sync/atomic"
)

// DefaultPageSize is the page size used by NewPagedList when given a
// non-positive size.
const DefaultPageSize = 64

type (
	// PagedList hands out dense integer indices that map to element storage
	// which is never relocated, so pointers returned by At remain valid for
	// the lifetime of the list.
	//
	// AllocateIndex must only be called by one goroutine at a time. At,
	// FreeIndex and IsAllocated are safe from any goroutine. Element values
	// are not cleared by FreeIndex, and are not synchronised by the list.
	PagedList[T any] struct {
		dir      atomic.Pointer[[]*listPage[T]]
		first    *listPage[T]
		last     *listPage[T]
		count    atomic.Int64
		pageSize int
	}

	listPage[T any] struct {
		next  atomic.Pointer[listPage[T]]
		items []T
		used  []atomic.Bool
	}
)

// NewPagedList returns a list with a single empty page.
func NewPagedList[T any](pageSize int) *PagedList[T] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	x := &PagedList[T]{pageSize: pageSize}
	x.first = x.newPage()
	x.last = x.first
	dir := []*listPage[T]{x.first}
	x.dir.Store(&dir)
	return x
}

func (x *PagedList[T]) newPage() *listPage[T] {
	return &listPage[T]{
		items: make([]T, x.pageSize),
		used:  make([]atomic.Bool, x.pageSize),
	}
}

// AllocateIndex claims the lowest free index, appending a page when every
// slot is in use.
func (x *PagedList[T]) AllocateIndex() int {
	dir := *x.dir.Load()
	for p, page := range dir {
		for i := range page.used {
			if !page.used[i].Load() && page.used[i].CompareAndSwap(false, true) {
				x.count.Add(1)
				return p*x.pageSize + i
			}
		}
	}

	page := x.newPage()
	page.used[0].Store(true)
	x.last.next.Store(page)
	x.last = page
	grown := append(slices.Clip(slices.Clone(dir)), page)
	x.dir.Store(&grown)
	x.count.Add(1)
	return len(dir) * x.pageSize
}

// FreeIndex returns an index to the pool. Freeing an index that is not
// allocated panics.
func (x *PagedList[T]) FreeIndex(index int) {
	page, i := x.locate(index)
	if !page.used[i].CompareAndSwap(true, false) {
		panic(`lockfree: paged list: index freed twice`)
	}
	x.count.Add(-1)
}

// At returns a stable pointer to the element at index, which must be within
// the current capacity.
func (x *PagedList[T]) At(index int) *T {
	page, i := x.locate(index)
	return &page.items[i]
}

// IsAllocated reports whether index is currently allocated. Out of range
// indices are reported as not allocated.
func (x *PagedList[T]) IsAllocated(index int) bool {
	if index < 0 || index >= x.Capacity() {
		return false
	}
	page, i := x.locate(index)
	return page.used[i].Load()
}

// Len is the number of allocated indices.
func (x *PagedList[T]) Len() int {
	return int(x.count.Load())
}

// Capacity is the number of slots across all pages.
func (x *PagedList[T]) Capacity() int {
	return len(*x.dir.Load()) * x.pageSize
}

// PageSize is the number of slots per page.
func (x *PagedList[T]) PageSize() int {
	return x.pageSize
}

// Range calls fn for every allocated index, in index order, following the
// page links. Iteration stops when fn returns false.
func (x *PagedList[T]) Range(fn func(index int, value *T) bool) {
	base := 0
	for page := x.first; page != nil; page = page.next.Load() {
		for i := range page.used {
			if page.used[i].Load() && !fn(base+i, &page.items[i]) {
				return
			}
		}
		base += x.pageSize
	}
}

func (x *PagedList[T]) locate(index int) (*listPage[T], int) {
	dir := *x.dir.Load()
	if index < 0 || index >= len(dir)*x.pageSize {
		panic(`lockfree: paged list: index out of range`)
	}
	return dir[index/x.pageSize], index % x.pageSize
}
