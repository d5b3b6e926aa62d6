package audiograph

// SampleProvider is a pull-based source of interleaved samples, attached to
// a node's provider slots and read by its kernel during Execute. Read fills
// dst and returns the number of samples written, which is less than len(dst)
// only once the source is exhausted. Read must not block.
type SampleProvider interface {
	Channels() int
	SampleRate() int
	Read(dst []float32) int
}

// SampleBuffer is a planar block of samples: channel c occupies
// Samples[c*Frames : (c+1)*Frames].
type SampleBuffer struct {
	Samples  []float32
	Channels int
	Frames   int
}

// Channel returns the samples of channel c.
func (x SampleBuffer) Channel(c int) []float32 {
	return x.Samples[c*x.Frames : (c+1)*x.Frames : (c+1)*x.Frames]
}

// Clear zeroes every sample.
func (x SampleBuffer) Clear() {
	clear(x.Samples)
}

// Interleave writes the samples to dst, frame by frame, returning the number
// of samples written.
func (x SampleBuffer) Interleave(dst []float32) int {
	n := min(len(dst)/max(x.Channels, 1), x.Frames)
	for c := 0; c < x.Channels; c++ {
		src := x.Channel(c)
		for f := 0; f < n; f++ {
			dst[f*x.Channels+c] = src[f]
		}
	}
	return n * x.Channels
}

// InitContext is passed to Kernel.Initialize.
type InitContext struct {
	node       *node
	graph      *Graph
	SampleRate int
	Frames     int
	Node       NodeHandle
}

// Allocate returns n zeroed samples of kernel-owned memory, reclaimed after
// the kernel's Dispose.
func (x *InitContext) Allocate(n int) []float32 {
	if n < 0 {
		fatalf(nil, "negative kernel allocation")
	}
	return x.graph.allocateTemp(x.node, n)
}

// ExecuteContext is passed to Kernel.Execute. Inputs and Outputs have one
// buffer per port, and are valid only for the duration of the call. Inputs
// must be treated as read only, since they may alias another node's output.
type ExecuteContext struct {
	Inputs     []SampleBuffer
	Outputs    []SampleBuffer
	Parameters Parameters
	Providers  Providers
	Clock      uint64
	SampleRate int
	Frames     int
	Node       NodeHandle
}

// Parameters exposes the per-sample values of a node's parameters for the
// current quantum.
type Parameters struct {
	values []float32
	count  int
	frames int
}

// Count is the number of parameters.
func (x Parameters) Count() int {
	return x.count
}

// Value returns parameter index at the frame offset within the quantum.
func (x Parameters) Value(index, offset int) float32 {
	if index < 0 || index >= x.count || offset < 0 || offset >= x.frames {
		panic(`audiograph: parameter value out of range`)
	}
	return x.values[index*x.frames+offset]
}

// Slice returns every per-sample value of parameter index.
func (x Parameters) Slice(index int) []float32 {
	if index < 0 || index >= x.count {
		panic(`audiograph: parameter index out of range`)
	}
	return x.values[index*x.frames : (index+1)*x.frames : (index+1)*x.frames]
}

// Providers exposes a node's sample provider slots.
type Providers struct {
	slots []providerSlot
}

// Slots is the number of provider slots.
func (x Providers) Slots() int {
	return len(x.slots)
}

// Count is the number of providers in slot, including nil entries.
func (x Providers) Count(slot int) int {
	return x.slots[slot].len()
}

// Get returns provider i of slot, which may be nil.
func (x Providers) Get(slot, i int) SampleProvider {
	return x.slots[slot].get(i)
}
