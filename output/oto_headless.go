//go:build headless

package output

import (
	"errors"
	"time"

	"github.com/joeycumines/go-audiograph"
)

// Available reports whether the Oto driver was compiled in.
const Available = false

// errUnavailable is returned by Oto.Initialize in headless builds.
var errUnavailable = errors.New("output: oto driver unavailable in headless builds")

// Oto is a stand-in for the audio device driver, in headless builds. It
// never initializes.
type Oto struct{}

// Mixer renders frames of output through a driver.
type Mixer interface {
	OutputMix(d audiograph.OutputDriver, frames int) error
}

func NewOto(time.Duration) *Oto { return &Oto{} }

func (*Oto) Initialize(int, audiograph.SampleFormat, int, int) error { return errUnavailable }

func (*Oto) Play(Mixer) error { return ErrNotInitialized }

func (*Oto) Pause() {}

func (*Oto) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

func (*Oto) BeginMix(int) {}

func (*Oto) EndMix([]float32, int) {}

func (*Oto) Dispose() {}
