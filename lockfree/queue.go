package lockfree

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

type (
	// Queue is an unbounded FIFO queue, safe for any number of concurrent
	// producers and consumers.
	//
	// The list always starts with a sentinel node, and the first element is
	// the sentinel's successor. Head and tail live together in a single
	// root, acquired by swapping it out for nil, so every operation is a
	// short O(1) critical section. Dequeued sentinels are recycled as the
	// storage for later enqueues.
	Queue[T any] struct { // betteralign:ignore
		_    cpu.CacheLinePad //nolint:unused
		root atomic.Pointer[queueRoot[T]]
		_    cpu.CacheLinePad //nolint:unused
		size atomic.Int64
	}

	queueRoot[T any] struct {
		head  *queueNode[T]
		tail  *queueNode[T]
		spare *queueNode[T]
	}

	queueNode[T any] struct {
		next  *queueNode[T]
		value T
	}
)

// NewQueue returns an empty queue.
func NewQueue[T any]() *Queue[T] {
	var q Queue[T]
	sentinel := new(queueNode[T])
	q.root.Store(&queueRoot[T]{head: sentinel, tail: sentinel})
	return &q
}

// Enqueue appends a value. Allocation only occurs when no recycled node is
// available.
func (x *Queue[T]) Enqueue(value T) {
	r := x.acquire()
	n := r.spare
	if n != nil {
		r.spare = n.next
		n.next = nil
	} else {
		n = new(queueNode[T])
	}
	n.value = value
	r.tail.next = n
	r.tail = n
	x.release(r)
	x.size.Add(1)
}

// TryDequeue removes and returns the oldest value, or false if the queue is
// empty. It never blocks on an empty queue.
func (x *Queue[T]) TryDequeue() (value T, ok bool) {
	r := x.acquire()
	first := r.head.next
	if first == nil {
		x.release(r)
		return value, false
	}
	value = first.value
	var zero T
	first.value = zero
	old := r.head
	r.head = first
	old.next = r.spare
	r.spare = old
	x.release(r)
	x.size.Add(-1)
	return value, true
}

// Dequeue removes and returns the oldest value, panicking if the queue is
// empty.
func (x *Queue[T]) Dequeue() T {
	value, ok := x.TryDequeue()
	if !ok {
		panic(`lockfree: queue: dequeue from empty queue`)
	}
	return value
}

// Peek returns the oldest value without removing it, panicking if the queue
// is empty.
func (x *Queue[T]) Peek() T {
	r := x.acquire()
	first := r.head.next
	if first == nil {
		x.release(r)
		panic(`lockfree: queue: peek at empty queue`)
	}
	value := first.value
	x.release(r)
	return value
}

// IsEmpty reports whether the queue held no values at the time of the call.
// Under concurrency the result is only a hint.
func (x *Queue[T]) IsEmpty() bool {
	r := x.acquire()
	empty := r.head.next == nil
	x.release(r)
	return empty
}

// Len is the number of queued values. The value is a hint under concurrency.
func (x *Queue[T]) Len() int {
	return int(x.size.Load())
}

func (x *Queue[T]) acquire() *queueRoot[T] {
	for i := 0; ; i++ {
		if r := x.root.Swap(nil); r != nil {
			return r
		}
		Backoff(i)
	}
}

func (x *Queue[T]) release(r *queueRoot[T]) {
	x.root.Store(r)
}
