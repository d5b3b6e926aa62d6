//go:build !headless

package output

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/joeycumines/go-audiograph"
)

// Available reports whether the Oto driver was compiled in.
const Available = true

// Oto plays the mix on the default audio device. The device pulls samples,
// so Play hands the driver a Mixer (normally the *audiograph.Graph) which it
// drives from the device's callback goroutine. That goroutine is then the
// graph's render context.
//
// Only one Oto may be initialized per process.
type Oto struct {
	ctx        *oto.Context
	player     *oto.Player
	source     atomic.Pointer[mixSource] // read without locking, from the device goroutine
	dst        []byte
	bufferSize time.Duration
	channels   int
	format     audiograph.SampleFormat
	written    int
	mu         sync.Mutex // setup and teardown only
}

// Mixer renders frames of output through a driver. *audiograph.Graph
// implements it.
type Mixer interface {
	OutputMix(d audiograph.OutputDriver, frames int) error
}

type mixSource struct {
	mixer Mixer
}

// NewOto returns an uninitialized driver. The buffer size is the device
// latency; zero selects oto's default.
func NewOto(bufferSize time.Duration) *Oto {
	return &Oto{bufferSize: bufferSize}
}

func (x *Oto) Initialize(channelCount int, format audiograph.SampleFormat, sampleRate, _ int) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.ctx != nil {
		return errors.New("output: oto driver already initialized")
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channelCount,
		Format:       oto.FormatFloat32LE,
		BufferSize:   x.bufferSize,
	}
	if format == audiograph.SampleFormatInt16 {
		op.Format = oto.FormatSignedInt16LE
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("output: oto context: %w", err)
	}
	<-ready

	x.ctx = ctx
	x.channels = channelCount
	x.format = format
	return nil
}

// Play starts pulling output from m.
func (x *Oto) Play(m Mixer) error {
	if m == nil {
		panic(`output: nil mixer`)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.ctx == nil {
		return ErrNotInitialized
	}
	x.source.Store(&mixSource{mixer: m})
	if x.player == nil {
		x.player = x.ctx.NewPlayer(x)
	}
	x.player.Play()
	return nil
}

// Pause stops pulling output, until the next Play.
func (x *Oto) Pause() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.player != nil {
		x.player.Pause()
	}
}

// Read implements io.Reader for the oto player. It renders as many whole
// frames as fit p, and pads the remainder with silence.
func (x *Oto) Read(p []byte) (int, error) {
	src := x.source.Load()
	if src == nil {
		clear(p)
		return len(p), nil
	}

	frames := len(p) / (bytesPerSample(x.format) * x.channels)
	x.dst = p
	x.written = 0
	if frames != 0 {
		if err := src.mixer.OutputMix(x, frames); err != nil {
			if errors.Is(err, audiograph.ErrGraphDisposed) {
				return 0, io.EOF
			}
			x.written = 0
		}
	}
	clear(p[x.written:])
	x.dst = nil
	return len(p), nil
}

func (x *Oto) BeginMix(int) {}

func (x *Oto) EndMix(out []float32, _ int) {
	x.written = encode(x.dst, out, x.format)
}

func (x *Oto) Dispose() {
	x.source.Store(nil)
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.player != nil {
		_ = x.player.Close()
		x.player = nil
	}
}
