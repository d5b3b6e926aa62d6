// Package output provides audiograph output drivers: Headless, which
// captures the mix in memory, and Oto, which plays it on the default audio
// device.
package output

import (
	"errors"
	"fmt"
	"sync"

	"github.com/joeycumines/go-audiograph"
)

// ErrNotInitialized is returned by drivers used before Initialize.
var ErrNotInitialized = errors.New("output: driver not initialized")

// Headless captures mixed output in memory, up to a limit.
type Headless struct {
	samples    []float32
	limit      int
	channels   int
	sampleRate int
	quantum    int
	mixes      int
	frames     int
	format     audiograph.SampleFormat
	mixing     bool
	disposed   bool
	mu         sync.Mutex
}

// NewHeadless returns a driver that keeps at most limit frames, discarding
// the oldest. A limit <= 0 keeps nothing, but still counts frames.
func NewHeadless(limit int) *Headless {
	return &Headless{limit: limit}
}

func (x *Headless) Initialize(channelCount int, format audiograph.SampleFormat, sampleRate, quantumSize int) error {
	if channelCount <= 0 {
		return fmt.Errorf("output: invalid channel count %d", channelCount)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.channels = channelCount
	x.format = format
	x.sampleRate = sampleRate
	x.quantum = quantumSize
	x.samples = make([]float32, 0, max(x.limit, 0)*channelCount)
	return nil
}

func (x *Headless) BeginMix(int) {
	x.mu.Lock()
	x.mixing = true
	x.mu.Unlock()
}

func (x *Headless) EndMix(out []float32, frameCount int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.mixing = false
	if x.channels == 0 || x.disposed {
		return
	}
	x.mixes++
	x.frames += frameCount
	if x.limit <= 0 {
		return
	}
	x.samples = append(x.samples, out...)
	if over := len(x.samples) - x.limit*x.channels; over > 0 {
		x.samples = x.samples[:copy(x.samples, x.samples[over:])]
	}
}

func (x *Headless) Dispose() {
	x.mu.Lock()
	x.disposed = true
	x.mu.Unlock()
}

// Samples returns a copy of the captured interleaved samples.
func (x *Headless) Samples() []float32 {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]float32(nil), x.samples...)
}

// Encoded returns the captured samples, encoded in the format passed to
// Initialize.
func (x *Headless) Encoded() ([]byte, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.channels == 0 {
		return nil, ErrNotInitialized
	}
	dst := make([]byte, len(x.samples)*bytesPerSample(x.format))
	encode(dst, x.samples, x.format)
	return dst, nil
}

// Mixes is the number of completed EndMix calls.
func (x *Headless) Mixes() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.mixes
}

// Frames is the total number of frames mixed.
func (x *Headless) Frames() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.frames
}

// Disposed reports whether Dispose has been called.
func (x *Headless) Disposed() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.disposed
}
