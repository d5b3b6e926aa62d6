package audiograph

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/require"
)

type (
	// constKernel writes its value parameter to every output channel
	constKernel struct{}

	// passKernel copies (or mixes, when the layouts differ) each input
	// port into the output port of the same index
	passKernel struct{}

	// recordKernel counts executions, and remembers what it saw
	recordKernel struct {
		clocks     []uint64
		inputs     []*float32
		executed   int
		initFrames int
		disposed   *bool
	}

	// failKernel fails initialisation
	failKernel struct{}

	// providerKernel reads its providers into its output
	providerKernel struct {
		counts []int
	}

	fakeProvider struct {
		value    float32
		channels int
		reads    int
	}

	fakeDriver struct {
		out        []float32
		channels   int
		format     SampleFormat
		sampleRate int
		quantum    int
		begins     int
		ends       int
		disposed   bool
		initErr    error
	}

	// syncBuffer is a bytes.Buffer safe for concurrent writes
	syncBuffer struct {
		b  bytes.Buffer
		mu sync.Mutex
	}
)

var (
	constKernelType = RegisterKernel[constKernel](Descriptor{
		Name:       `test constant`,
		Parameters: []ParameterDescriptor{{Name: `value`, Min: -10, Max: 10}},
	})
	passKernelType   = RegisterKernel[passKernel](Descriptor{Name: `test pass`})
	recordKernelType = RegisterKernel[recordKernel](Descriptor{Name: `test record`})
	failKernelType   = RegisterKernel[failKernel](Descriptor{Name: `test fail`})

	providerKernelType = RegisterKernel[providerKernel](Descriptor{
		Name: `test provider`,
		Providers: []ProviderSlotDescriptor{
			{Name: `single`, Shape: ProviderSingle},
			{Name: `fixed`, Shape: ProviderFixedArray, Size: 2},
			{Name: `variable`, Shape: ProviderVariableArray},
		},
	})
)

func (*constKernel) Initialize(*InitContext) error { return nil }
func (*constKernel) Dispose()                       {}
func (*constKernel) Execute(ctx *ExecuteContext) {
	v := ctx.Parameters.Slice(0)
	for _, out := range ctx.Outputs {
		for c := 0; c < out.Channels; c++ {
			copy(out.Channel(c), v)
		}
	}
}

func (*passKernel) Initialize(*InitContext) error { return nil }
func (*passKernel) Dispose()                       {}
func (*passKernel) Execute(ctx *ExecuteContext) {
	for i := 0; i < len(ctx.Inputs) && i < len(ctx.Outputs); i++ {
		mixInto(ctx.Outputs[i], ctx.Inputs[i], &automation{components: 1, anchor: [MaxAttenuationComponents]float32{1}}, ctx.Clock)
	}
}

func (x *recordKernel) Initialize(ctx *InitContext) error {
	x.initFrames = len(ctx.Allocate(ctx.Frames))
	return nil
}
func (x *recordKernel) Execute(ctx *ExecuteContext) {
	x.executed++
	x.clocks = append(x.clocks, ctx.Clock)
	if len(ctx.Inputs) != 0 {
		x.inputs = append(x.inputs, &ctx.Inputs[0].Samples[0])
	}
}
func (x *recordKernel) Dispose() {
	if x.disposed != nil {
		*x.disposed = true
	}
}

func (*failKernel) Initialize(*InitContext) error { return errors.New(`init failed`) }
func (*failKernel) Execute(*ExecuteContext)        {}
func (*failKernel) Dispose()                       {}

func (*providerKernel) Initialize(*InitContext) error { return nil }
func (*providerKernel) Dispose()                       {}
func (x *providerKernel) Execute(ctx *ExecuteContext) {
	x.counts = x.counts[:0]
	for s := 0; s < ctx.Providers.Slots(); s++ {
		x.counts = append(x.counts, ctx.Providers.Count(s))
	}
	if len(ctx.Outputs) == 0 {
		return
	}
	buf := make([]float32, ctx.Frames)
	out := ctx.Outputs[0].Channel(0)
	for s := 0; s < ctx.Providers.Slots(); s++ {
		for i := 0; i < ctx.Providers.Count(s); i++ {
			p := ctx.Providers.Get(s, i)
			if p == nil {
				continue
			}
			n := p.Read(buf)
			for f := 0; f < n; f++ {
				out[f] += buf[f]
			}
		}
	}
}

func (x *fakeProvider) Channels() int   { return max(x.channels, 1) }
func (x *fakeProvider) SampleRate() int { return DefaultSampleRate }
func (x *fakeProvider) Read(dst []float32) int {
	x.reads++
	for i := range dst {
		dst[i] = x.value
	}
	return len(dst)
}

func (x *fakeDriver) Initialize(channelCount int, format SampleFormat, sampleRate, quantumSize int) error {
	if x.initErr != nil {
		return x.initErr
	}
	x.channels, x.format, x.sampleRate, x.quantum = channelCount, format, sampleRate, quantumSize
	return nil
}
func (x *fakeDriver) BeginMix(int) { x.begins++ }
func (x *fakeDriver) EndMix(output []float32, _ int) {
	x.ends++
	x.out = append(x.out, output...)
}
func (x *fakeDriver) Dispose() { x.disposed = true }

func (x *syncBuffer) Write(p []byte) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.b.Write(p)
}

func (x *syncBuffer) String() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.b.String()
}

func newTestLogger(w *syncBuffer) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w), stumpy.WithTimeField(``)),
		stumpy.L.WithLevel(logiface.LevelDebug),
	).Logger()
}

// newTestGraph returns a mono graph with small quanta, disposed at cleanup.
func newTestGraph(t *testing.T, opts ...Option) *Graph {
	t.Helper()
	g, err := New(append([]Option{
		WithChannels(1),
		WithQuantumSize(64),
		WithStrictValidation(false),
	}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Dispose() })
	return g
}

// build records then completes a block.
func build(t *testing.T, g *Graph, fn func(b *CommandBlock)) {
	t.Helper()
	b := g.NewCommandBlock()
	fn(b)
	require.NoError(t, b.Complete())
}

func must[T any](t *testing.T) func(v T, err error) T {
	return func(v T, err error) T {
		t.Helper()
		require.NoError(t, err)
		return v
	}
}

// render mixes frames frames.
func render(t *testing.T, g *Graph, frames int) []float32 {
	t.Helper()
	out := make([]float32, frames*g.Channels())
	require.NoError(t, g.Mix(out))
	return out
}

// renderQuanta mixes n whole quanta.
func renderQuanta(t *testing.T, g *Graph, n int) []float32 {
	t.Helper()
	return render(t, g, n*g.QuantumSize())
}

// scheduleErr builds a block under strict validation, renders a quantum,
// and returns the first schedule-time failure, if any.
func scheduleErr(t *testing.T, g *Graph, fn func(b *CommandBlock)) (err error) {
	t.Helper()
	build(t, g, fn)
	defer func() {
		if r := recover(); r != nil {
			var ok bool
			if err, ok = r.(*CommandError); !ok {
				panic(r)
			}
		}
	}()
	g.cfg.strictValidation = true
	defer func() { g.cfg.strictValidation = false }()
	renderQuanta(t, g, 1)
	return nil
}

// nodeOf returns the render-side payload of h.
func nodeOf(t *testing.T, g *Graph, h NodeHandle) *node {
	t.Helper()
	n := g.nodes.lookup(h.Handle)
	require.NotNil(t, n)
	return n
}

// kernelOf returns the kernel of h.
func kernelOf[K any](t *testing.T, g *Graph, h NodeHandle) *K {
	t.Helper()
	k, ok := any(nodeOf(t, g, h).kernel).(*K)
	require.True(t, ok)
	return k
}

// constToRoot records a constant node with the given channels, connected to
// the root, with its value set.
func constToRoot(t *testing.T, b *CommandBlock, channels int, value float32) NodeHandle {
	t.Helper()
	n := must[NodeHandle](t)(b.CreateNode(constKernelType))
	require.NoError(t, b.AddOutletPort(n, channels))
	require.NoError(t, b.SetFloat(n, 0, value))
	must[ConnectionHandle](t)(b.Connect(n, 0, b.graph.Root(), 0))
	return n
}
