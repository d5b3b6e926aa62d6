package lockfree

// Buffer is a growable array backed by a power-of-two ring. It supports
// positional insert and removal, moving whichever side of the insertion point
// is shorter, and doubles its storage when full. Capacity never shrinks.
//
// Buffer is not safe for concurrent use.
type Buffer[E any] struct {
	s    []E
	r, w uint
}

// NewBuffer returns a buffer with room for at least size elements.
func NewBuffer[E any](size int) *Buffer[E] {
	if size < 0 {
		panic(`lockfree: buffer: negative size`)
	}
	n := 1
	for n < size {
		n <<= 1
	}
	return &Buffer[E]{s: make([]E, n)}
}

func (x *Buffer[E]) mask(val uint) uint {
	return val & (uint(len(x.s)) - 1)
}

func (x *Buffer[E]) bounds() (i1, l1, l2 int) {
	if x.r == x.w {
		return
	}
	i1 = int(x.mask(x.r))
	l1 = int(x.mask(x.w))
	if l1 <= i1 {
		l2 = l1
		l1 = len(x.s)
	}
	return
}

// Len is the number of elements.
func (x *Buffer[E]) Len() int {
	return int(x.w - x.r)
}

// Cap is the number of elements that fit before the next growth.
func (x *Buffer[E]) Cap() int {
	return len(x.s)
}

// Get returns the element at i.
func (x *Buffer[E]) Get(i int) E {
	if i < 0 || i >= x.Len() {
		panic(`lockfree: buffer: get: index out of range`)
	}
	return x.s[x.mask(x.r+uint(i))]
}

// Set replaces the element at i.
func (x *Buffer[E]) Set(i int, value E) {
	if i < 0 || i >= x.Len() {
		panic(`lockfree: buffer: set: index out of range`)
	}
	x.s[x.mask(x.r+uint(i))] = value
}

// Slice appends the elements, in order, to dst.
func (x *Buffer[E]) Slice(dst []E) []E {
	i1, l1, l2 := x.bounds()
	dst = append(dst, x.s[i1:l1]...)
	return append(dst, x.s[:l2]...)
}

// Search returns the smallest index for which pred is true, assuming pred is
// false then true over the elements, or Len if there is none.
func (x *Buffer[E]) Search(pred func(E) bool) int {
	lo, hi := 0, x.Len()
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if pred(x.Get(mid)) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// Append adds value to the end.
func (x *Buffer[E]) Append(value E) {
	x.Insert(x.Len(), value)
}

// Insert places value at index, shifting later (or earlier) elements.
func (x *Buffer[E]) Insert(index int, value E) {
	l := x.Len()
	if index < 0 || index > l {
		panic(`lockfree: buffer: insert: index out of range`)
	}

	if l == len(x.s) {
		x.grow()
	}

	if index < l>>1 {
		// front half: open the gap by moving the leading elements left
		x.r--
		for i := 0; i < index; i++ {
			x.s[x.mask(x.r+uint(i))] = x.s[x.mask(x.r+uint(i+1))]
		}
	} else {
		x.w++
		for i := l; i > index; i-- {
			x.s[x.mask(x.r+uint(i))] = x.s[x.mask(x.r+uint(i-1))]
		}
	}
	x.s[x.mask(x.r+uint(index))] = value
}

// RemoveAt removes the element at index, closing the gap.
func (x *Buffer[E]) RemoveAt(index int) E {
	l := x.Len()
	if index < 0 || index >= l {
		panic(`lockfree: buffer: remove: index out of range`)
	}
	value := x.s[x.mask(x.r+uint(index))]
	var zero E
	if index < l>>1 {
		for i := index; i > 0; i-- {
			x.s[x.mask(x.r+uint(i))] = x.s[x.mask(x.r+uint(i-1))]
		}
		x.s[x.mask(x.r)] = zero
		x.r++
	} else {
		for i := index; i < l-1; i++ {
			x.s[x.mask(x.r+uint(i))] = x.s[x.mask(x.r+uint(i+1))]
		}
		x.w--
		x.s[x.mask(x.w)] = zero
	}
	return value
}

// RemoveBefore drops the first index elements.
func (x *Buffer[E]) RemoveBefore(index int) {
	if index < 0 || index > x.Len() {
		panic(`lockfree: buffer: remove before: index out of range`)
	}
	var zero E
	for i := 0; i < index; i++ {
		x.s[x.mask(x.r+uint(i))] = zero
	}
	x.r += uint(index)
}

// Reset removes every element, keeping the storage.
func (x *Buffer[E]) Reset() {
	clear(x.s)
	x.r, x.w = 0, 0
}

func (x *Buffer[E]) grow() {
	size := uint(len(x.s)) << 1
	if size == 0 {
		size = 1
	}
	if size < uint(len(x.s)) {
		panic(`lockfree: buffer: grow: overflow`)
	}
	s := make([]E, size)
	i1, l1, l2 := x.bounds()
	n := copy(s, x.s[i1:l1])
	n += copy(s[n:], x.s[:l2])
	x.s = s
	x.r = 0
	x.w = uint(n)
}
