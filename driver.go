package audiograph

// SampleFormat identifies the sample encoding an output driver should
// produce. The graph always mixes in float32.
type SampleFormat uint8

const (
	// SampleFormatFloat32 is 32-bit IEEE-754 float, little endian.
	SampleFormatFloat32 SampleFormat = iota
	// SampleFormatInt16 is signed 16-bit PCM, little endian.
	SampleFormatInt16
)

func (f SampleFormat) valid() bool {
	return f == SampleFormatFloat32 || f == SampleFormatInt16
}

func (f SampleFormat) String() string {
	switch f {
	case SampleFormatFloat32:
		return `float32`
	case SampleFormatInt16:
		return `int16`
	default:
		return `unknown`
	}
}

// OutputDriver receives the mixed output of the root node.
//
// Initialize is called once, by Graph.AttachOutput. BeginMix and EndMix
// bracket every Graph.OutputMix call, on the rendering goroutine, and must not
// block. EndMix receives interleaved samples owned by the graph, valid only
// until it returns. Dispose is called by Graph.Dispose.
type OutputDriver interface {
	Initialize(channelCount int, format SampleFormat, sampleRate, quantumSize int) error
	BeginMix(frameCount int)
	EndMix(output []float32, frameCount int)
	Dispose()
}
