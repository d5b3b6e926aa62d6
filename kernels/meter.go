package kernels

import (
	"github.com/joeycumines/go-audiograph"
)

// PeakMeter tracks the peak absolute sample of its first input, and passes
// the input through to its first output, if it has one.
//
// The meter's state belongs to the render path. Read it with an update
// request:
//
//	b.CreateUpdateRequest(n, audiograph.UpdateAs(func(m *kernels.PeakMeter) error {
//		peak = m.Reset()
//		return nil
//	}), nil)
type PeakMeter struct {
	peak   float32
	quanta uint64
}

var PeakMeterType = audiograph.RegisterKernel[PeakMeter](audiograph.Descriptor{Name: `peak meter`})

// CreatePeakMeter records a peak meter with one input and one output port,
// each of channels channels.
func CreatePeakMeter(b *audiograph.CommandBlock, channels int) (audiograph.NodeHandle, error) {
	return create(b, PeakMeterType, []int{channels}, []int{channels})
}

func (*PeakMeter) Initialize(*audiograph.InitContext) error { return nil }

func (x *PeakMeter) Execute(ctx *audiograph.ExecuteContext) {
	if len(ctx.Inputs) == 0 {
		return
	}
	in := ctx.Inputs[0]
	for _, v := range in.Samples {
		if v < 0 {
			v = -v
		}
		x.peak = max(x.peak, v)
	}
	x.quanta++
	if len(ctx.Outputs) != 0 {
		copy(ctx.Outputs[0].Samples, in.Samples)
	}
}

func (*PeakMeter) Dispose() {}

// Peak is the highest absolute sample since the last Reset.
func (x *PeakMeter) Peak() float32 {
	return x.peak
}

// Quanta is the number of quanta metered since the last Reset.
func (x *PeakMeter) Quanta() uint64 {
	return x.quanta
}

// Reset returns the peak, and starts a new measurement.
func (x *PeakMeter) Reset() float32 {
	p := x.peak
	x.peak = 0
	x.quanta = 0
	return p
}
