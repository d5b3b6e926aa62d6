package kernels

import (
	"github.com/joeycumines/go-audiograph"
)

// Gain parameters.
const (
	GainLevel = iota
)

// Gain scales its first input into its first output.
type Gain struct{}

var GainType = audiograph.RegisterKernel[Gain](audiograph.Descriptor{
	Name: `gain`,
	Parameters: []audiograph.ParameterDescriptor{
		GainLevel: {Name: `gain`, Min: 0, Max: 4, Default: 1},
	},
})

// CreateGain records a gain node with one input and one output port, each
// of channels channels.
func CreateGain(b *audiograph.CommandBlock, channels int) (audiograph.NodeHandle, error) {
	return create(b, GainType, []int{channels}, []int{channels})
}

func (*Gain) Initialize(*audiograph.InitContext) error { return nil }

func (*Gain) Execute(ctx *audiograph.ExecuteContext) {
	if len(ctx.Inputs) == 0 || len(ctx.Outputs) == 0 {
		return
	}
	each(ctx.Outputs[0], ctx.Inputs[0], ctx.Parameters.Slice(GainLevel))
}

func (*Gain) Dispose() {}

// Mixer parameters.
const (
	MixerLevel = iota
)

// Mixer sums every input port into its first output, then applies its level.
type Mixer struct{}

var MixerType = audiograph.RegisterKernel[Mixer](audiograph.Descriptor{
	Name: `mixer`,
	Parameters: []audiograph.ParameterDescriptor{
		MixerLevel: {Name: `level`, Min: 0, Max: 4, Default: 1},
	},
})

// CreateMixer records a mixer with inputs input ports and one output port,
// all of channels channels.
func CreateMixer(b *audiograph.CommandBlock, inputs, channels int) (audiograph.NodeHandle, error) {
	in := make([]int, inputs)
	for i := range in {
		in[i] = channels
	}
	return create(b, MixerType, in, []int{channels})
}

func (*Mixer) Initialize(*audiograph.InitContext) error { return nil }

func (*Mixer) Execute(ctx *audiograph.ExecuteContext) {
	if len(ctx.Outputs) == 0 {
		return
	}
	level := ctx.Parameters.Slice(MixerLevel)
	for _, in := range ctx.Inputs {
		each(ctx.Outputs[0], in, level)
	}
}

func (*Mixer) Dispose() {}
