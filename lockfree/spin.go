package lockfree

import (
	"runtime"
)

// spinLimit is the number of failed acquisition attempts before a waiter
// starts yielding the processor.
const spinLimit = 16

// Backoff is called after the n-th (zero based) failed attempt of a spin
// loop. It yields the processor once the attempt count passes a small limit.
func Backoff(n int) {
	if n >= spinLimit {
		runtime.Gosched()
	}
}
