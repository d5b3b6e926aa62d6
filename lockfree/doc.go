// Package lockfree implements the memory and concurrency primitives used by
// the audio graph render path.
//
// None of the types in this package take a mutex. Contended sections are
// guarded by a single atomic word that is acquired by compare-and-swap, and
// waiters spin briefly before yielding the processor via runtime.Gosched.
// Allocation happens only when a pool is empty or a container has to grow.
//
// The primitives:
//
//   - [FreeList]: pooled (or ephemeral) allocator of fixed-type slots.
//   - [Queue]: unbounded multi-producer, multi-consumer FIFO queue.
//   - [PagedList]: index allocator over pages that are never relocated.
//   - [Buffer]: ring-backed growable array with positional insert.
//   - [BatchAllocator]: carves several typed scalar slices out of one block.
//   - [State]: cache-line padded atomic state word.
package lockfree
