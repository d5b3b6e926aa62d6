package lockfree

import (
	"unsafe"

	"golang.org/x/exp/constraints"
)

// Scalar is the set of pointer-free element types a BatchAllocator may
// place in a shared block.
type Scalar interface {
	constraints.Integer | constraints.Float
}

type (
	// BatchAllocator collects several typed slice requests and satisfies all
	// of them with a single allocation. Requests are recorded with Defer, then
	// Allocate creates the block and assigns every requested slice.
	//
	// A BatchAllocator is reusable once Allocate returns, and is not safe for
	// concurrent use.
	BatchAllocator struct {
		requests []batchRequest
		size     uintptr
		align    uintptr
	}

	batchRequest struct {
		assign func(base unsafe.Pointer)
		offset uintptr
	}

	// Block is the memory backing a batch. Slices assigned from it keep it
	// alive; Size reports the number of bytes requested.
	Block struct {
		mem  []uint64
		size uintptr
	}
)

// Defer records a request for n elements of T, to be assigned to dst by the
// next Allocate.
func Defer[T Scalar](b *BatchAllocator, dst *[]T, n int) {
	if dst == nil {
		panic(`lockfree: batch: nil destination`)
	}
	if n < 0 {
		panic(`lockfree: batch: negative length`)
	}
	var zero T
	size, align := unsafe.Sizeof(zero), unsafe.Alignof(zero)
	offset := alignUp(b.size, align)
	b.size = offset + size*uintptr(n)
	b.align = max(b.align, align)
	b.requests = append(b.requests, batchRequest{
		offset: offset,
		assign: func(base unsafe.Pointer) {
			if base == nil || n == 0 {
				*dst = (*dst)[:0:0]
				return
			}
			*dst = unsafe.Slice((*T)(unsafe.Add(base, offset)), n)
		},
	})
}

// Len is the number of pending requests.
func (b *BatchAllocator) Len() int {
	return len(b.requests)
}

// Size is the number of bytes the pending requests need, including padding.
func (b *BatchAllocator) Size() uintptr {
	return b.size
}

// Allocate creates one zeroed block large enough for every pending request,
// assigns each destination slice, and resets the allocator.
func (b *BatchAllocator) Allocate() *Block {
	block := &Block{size: b.size}
	var base unsafe.Pointer
	if b.size != 0 {
		// uint64 storage is 8 byte aligned, enough for every Scalar type
		block.mem = make([]uint64, (b.size+7)/8)
		base = unsafe.Pointer(unsafe.SliceData(block.mem))
	}
	for _, r := range b.requests {
		r.assign(base)
	}
	clear(b.requests)
	b.requests = b.requests[:0]
	b.size = 0
	b.align = 0
	return block
}

// Size is the number of bytes requested for the block.
func (x *Block) Size() int {
	if x == nil {
		return 0
	}
	return int(x.size)
}

func alignUp(v, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}
