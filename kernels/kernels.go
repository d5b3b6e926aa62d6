// Package kernels provides small reference kernels for audiograph: signal
// sources, gain stages, a mixer, a sample player and a peak meter.
//
// Each kernel's type is registered at init, and exported as a package
// variable. The Create functions record the node creation and its ports into
// a command block.
package kernels

import (
	"github.com/joeycumines/go-audiograph"
)

// create records a node of kt with the given input and output port channel
// counts.
func create(b *audiograph.CommandBlock, kt *audiograph.KernelType, inputs, outputs []int) (audiograph.NodeHandle, error) {
	n, err := b.CreateNode(kt)
	if err != nil {
		return audiograph.NodeHandle{}, err
	}
	for _, c := range inputs {
		if err := b.AddInletPort(n, c); err != nil {
			return audiograph.NodeHandle{}, err
		}
	}
	for _, c := range outputs {
		if err := b.AddOutletPort(n, c); err != nil {
			return audiograph.NodeHandle{}, err
		}
	}
	return n, nil
}

// each copies channel c%src.Channels of src, scaled, into channel c of dst,
// for every channel of dst.
func each(dst, src audiograph.SampleBuffer, gain []float32) {
	for c := 0; c < dst.Channels; c++ {
		d := dst.Channel(c)
		s := src.Channel(c % src.Channels)
		for i := range d {
			d[i] += s[i] * gain[i]
		}
	}
}
