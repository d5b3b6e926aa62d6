package kernels

import (
	"math"

	"github.com/joeycumines/go-audiograph"
)

// Sine parameters.
const (
	SineFrequency = iota
	SineAmplitude
)

// Sine is a sine oscillator, with one output port.
type Sine struct {
	phase      float64
	sampleRate float64
}

var SineType = audiograph.RegisterKernel[Sine](audiograph.Descriptor{
	Name: `sine`,
	Parameters: []audiograph.ParameterDescriptor{
		SineFrequency: {Name: `frequency`, Min: 0, Max: 20000, Default: 440},
		SineAmplitude: {Name: `amplitude`, Min: 0, Max: 1, Default: 0.25},
	},
})

// CreateSine records a sine node with an output port of channels channels.
func CreateSine(b *audiograph.CommandBlock, channels int) (audiograph.NodeHandle, error) {
	return create(b, SineType, nil, []int{channels})
}

func (x *Sine) Initialize(ctx *audiograph.InitContext) error {
	x.sampleRate = float64(ctx.SampleRate)
	return nil
}

func (x *Sine) Execute(ctx *audiograph.ExecuteContext) {
	if len(ctx.Outputs) == 0 {
		return
	}
	out := ctx.Outputs[0]
	freq := ctx.Parameters.Slice(SineFrequency)
	amp := ctx.Parameters.Slice(SineAmplitude)
	first := out.Channel(0)
	for i := range first {
		first[i] = float32(math.Sin(2*math.Pi*x.phase)) * amp[i]
		x.phase += float64(freq[i]) / x.sampleRate
		x.phase -= math.Floor(x.phase)
	}
	for c := 1; c < out.Channels; c++ {
		copy(out.Channel(c), first)
	}
}

func (x *Sine) Dispose() {}

// Constant parameters.
const (
	ConstantValue = iota
)

// Constant writes its value parameter to every channel of its output, so
// its output traces the parameter's automation exactly.
type Constant struct{}

var ConstantType = audiograph.RegisterKernel[Constant](audiograph.Descriptor{
	Name: `constant`,
	Parameters: []audiograph.ParameterDescriptor{
		ConstantValue: {Name: `value`, Min: -math.MaxFloat32, Max: math.MaxFloat32},
	},
})

// CreateConstant records a constant node with an output port of channels
// channels.
func CreateConstant(b *audiograph.CommandBlock, channels int) (audiograph.NodeHandle, error) {
	return create(b, ConstantType, nil, []int{channels})
}

func (*Constant) Initialize(*audiograph.InitContext) error { return nil }

func (*Constant) Execute(ctx *audiograph.ExecuteContext) {
	value := ctx.Parameters.Slice(ConstantValue)
	for _, out := range ctx.Outputs {
		for c := 0; c < out.Channels; c++ {
			copy(out.Channel(c), value)
		}
	}
}

func (*Constant) Dispose() {}
