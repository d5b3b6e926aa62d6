package kernels

import (
	"github.com/joeycumines/go-audiograph"
)

// SamplePlayer parameters and provider slots.
const (
	PlayerGain = iota
)

const (
	PlayerSource = iota
)

// playerMaxChannels bounds the channel count read from a provider.
const playerMaxChannels = 8

// SamplePlayer reads its source provider into its first output, at the
// source's channel layout. The source's sample rate must match the graph's,
// since no resampling is performed. An exhausted or nil source is silent.
type SamplePlayer struct {
	scratch []float32
}

var SamplePlayerType = audiograph.RegisterKernel[SamplePlayer](audiograph.Descriptor{
	Name: `sample player`,
	Parameters: []audiograph.ParameterDescriptor{
		PlayerGain: {Name: `gain`, Min: 0, Max: 4, Default: 1},
	},
	Providers: []audiograph.ProviderSlotDescriptor{
		PlayerSource: {Name: `source`, Shape: audiograph.ProviderSingle},
	},
})

// CreateSamplePlayer records a sample player with an output port of
// channels channels.
func CreateSamplePlayer(b *audiograph.CommandBlock, channels int) (audiograph.NodeHandle, error) {
	return create(b, SamplePlayerType, nil, []int{channels})
}

func (x *SamplePlayer) Initialize(ctx *audiograph.InitContext) error {
	x.scratch = ctx.Allocate(ctx.Frames * playerMaxChannels)
	return nil
}

func (x *SamplePlayer) Execute(ctx *audiograph.ExecuteContext) {
	if len(ctx.Outputs) == 0 {
		return
	}
	src := ctx.Providers.Get(PlayerSource, 0)
	if src == nil {
		return
	}
	channels := min(src.Channels(), playerMaxChannels)
	if channels <= 0 {
		return
	}
	n := src.Read(x.scratch[:ctx.Frames*channels]) / channels
	out := ctx.Outputs[0]
	gain := ctx.Parameters.Slice(PlayerGain)
	for c := 0; c < out.Channels; c++ {
		d := out.Channel(c)
		sc := c % channels
		for f := 0; f < n; f++ {
			d[f] = x.scratch[f*channels+sc] * gain[f]
		}
	}
}

func (x *SamplePlayer) Dispose() {
	x.scratch = nil
}

// SliceProvider is a SampleProvider over interleaved samples in memory.
// It is not safe for concurrent use, and must not be shared between nodes.
type SliceProvider struct {
	samples  []float32
	channels int
	rate     int
	pos      int
	loop     bool
}

// NewSliceProvider returns a provider of samples, interleaved with
// channels channels, at rate Hz. If loop is set, playback restarts from the
// beginning once exhausted.
func NewSliceProvider(samples []float32, channels, rate int, loop bool) *SliceProvider {
	if channels <= 0 {
		panic(`kernels: invalid channel count`)
	}
	return &SliceProvider{
		samples:  samples[:len(samples)-len(samples)%channels],
		channels: channels,
		rate:     rate,
		loop:     loop,
	}
}

func (x *SliceProvider) Channels() int   { return x.channels }
func (x *SliceProvider) SampleRate() int { return x.rate }

func (x *SliceProvider) Read(dst []float32) int {
	var n int
	for n < len(dst) {
		if x.pos == len(x.samples) {
			if !x.loop || len(x.samples) == 0 {
				break
			}
			x.pos = 0
		}
		c := copy(dst[n:], x.samples[x.pos:])
		x.pos += c
		n += c
	}
	return n
}

// Remaining is the number of samples left before the end of the data.
func (x *SliceProvider) Remaining() int {
	return len(x.samples) - x.pos
}
