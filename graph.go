package audiograph

import (
	"sync/atomic"

	"github.com/joeycumines/go-audiograph/lockfree"
)

// Graph lifecycle states, stored in Graph.state.
const (
	graphActive uint32 = iota
	graphDisposing
	graphDisposed
)

// Graph is a real-time audio processing graph.
//
// A Graph is used from two contexts. The control context builds and
// completes command blocks, drains update request completions with Update,
// and may run Dispatch. The render context calls Mix or OutputMix, which
// applies pending blocks and renders quanta; it never waits on a lock held by
// the control context, and allocates only when the graph's structure changes.
// The exception is logging of render-path failures, see WithLogger.
// Both contexts may be any goroutine, but each must be used by one goroutine
// at a time.
type Graph struct {
	state lockfree.State

	cfg         *graphOptions
	log         *graphLogger
	metrics     *renderMetrics
	leaks       *leakTracker
	nodes       *handleTable[node]
	connections *handleTable[connection]
	requests    *handleTable[struct{}]
	keys        *lockfree.FreeList[interpKey]
	pending     *lockfree.Queue[*CommandBlock]
	completed   *lockfree.Queue[*UpdateRequest]
	completions chan struct{}
	done        chan struct{}
	exec        *executor
	output      atomic.Pointer[outputHolder]
	rootNode    *node

	// render-owned state
	plan            renderPlan
	released        []*node
	scratch         []*node
	marked          []*node
	staging         []float32
	outScratch      []float32
	batch           lockfree.BatchAllocator
	renderClock     uint64
	quantum         uint64
	stagingPos      int
	liveNodes       int
	liveConnections int

	clock     atomic.Uint64
	rendering atomic.Bool
	root      NodeHandle
}

type outputHolder struct {
	driver OutputDriver
}

// rootKernel is the kernel of the root node. Its single input port is the
// graph's mix, which the graph reads directly after execution.
type rootKernel struct{}

func (*rootKernel) Initialize(*InitContext) error { return nil }
func (*rootKernel) Execute(*ExecuteContext)        {}
func (*rootKernel) Dispose()                       {}

var rootKernelType = RegisterKernel[rootKernel](Descriptor{Name: `root`})

// New creates a graph with a root node whose single input port has the
// configured channel count.
func New(opts ...Option) (*Graph, error) {
	cfg, err := resolveGraphOptions(opts)
	if err != nil {
		return nil, err
	}

	g := &Graph{
		cfg:         cfg,
		log:         newGraphLogger(cfg.logger, cfg.logRates),
		nodes:       newHandleTable[node](lockfree.DefaultPageSize),
		connections: newHandleTable[connection](lockfree.DefaultPageSize),
		requests:    newHandleTable[struct{}](lockfree.DefaultPageSize),
		keys:        lockfree.NewFreeList[interpKey](lockfree.Pooled),
		pending:     lockfree.NewQueue[*CommandBlock](),
		completed:   lockfree.NewQueue[*UpdateRequest](),
		completions: make(chan struct{}, 64),
		done:        make(chan struct{}),
		staging:     make([]float32, cfg.channels*cfg.quantumSize),
	}
	g.stagingPos = len(g.staging)
	if cfg.metricsEnabled {
		g.metrics = newRenderMetrics()
	}
	if cfg.leakTracking {
		g.leaks = newLeakTracker()
	}

	g.root = NodeHandle{g.nodes.allocate()}
	if err := g.createNode(g.root, rootKernelType); err != nil {
		return nil, err
	}
	g.rootNode = g.nodes.at(g.root.Index)
	g.rootNode.root = true
	g.rootNode.inputs = []inputPort{{channels: cfg.channels}}
	g.rootNode.advance(NodeConfigured)

	if cfg.parallelism > 1 {
		g.exec = newExecutor(g, cfg.parallelism-1)
	}
	return g, nil
}

// Root returns the handle of the root node. Connect to its input port 0 to
// make a node audible.
func (g *Graph) Root() NodeHandle {
	return g.root
}

// Channels is the channel count of the root node and the mixed output.
func (g *Graph) Channels() int {
	return g.cfg.channels
}

// SampleRate is the configured sample rate, in Hz.
func (g *Graph) SampleRate() int {
	return g.cfg.sampleRate
}

// QuantumSize is the number of frames rendered per quantum.
func (g *Graph) QuantumSize() int {
	return g.cfg.quantumSize
}

// Clock returns the render clock: the number of frames rendered so far. It
// is safe to call from any goroutine, and is the time base for interpolation
// keys.
func (g *Graph) Clock() uint64 {
	return g.clock.Load()
}

// NodeState returns the lifecycle state of a node, as last published by the
// render path. Stale handles report NodeFree.
func (g *Graph) NodeState(h NodeHandle) NodeState {
	if !g.nodes.exists(h.Handle) {
		return NodeFree
	}
	n := g.nodes.at(h.Index)
	s := n.loadState()
	if s == NodeCleared {
		return NodeFree
	}
	return s
}

// NodeExists reports whether h refers to a node that has been allocated and
// not yet cleared. Creation may still be pending.
func (g *Graph) NodeExists(h NodeHandle) bool {
	return g.nodes.exists(h.Handle)
}

// ConnectionExists reports whether h refers to an allocated connection.
func (g *Graph) ConnectionExists(h ConnectionHandle) bool {
	return g.connections.exists(h.Handle)
}

// Metrics returns a snapshot of render statistics. It returns the zero
// value unless the graph was created WithMetrics(true).
func (g *Graph) Metrics() Metrics {
	if g.metrics == nil {
		return Metrics{}
	}
	return g.metrics.snapshot()
}

// Dispose stops the graph: pending blocks are cancelled, every node is
// disposed, the output driver (if any) is disposed, and outstanding
// allocations are reported when leak tracking is enabled. It waits for an
// in-progress render to finish. Subsequent calls return ErrGraphDisposed.
func (g *Graph) Dispose() error {
	if !g.state.TryTransition(graphActive, graphDisposing) {
		return ErrGraphDisposed
	}
	for i := 0; !g.rendering.CompareAndSwap(false, true); i++ {
		lockfree.Backoff(i)
	}
	defer g.rendering.Store(false)

	g.cancelPending()

	if g.exec != nil {
		g.exec.close()
	}

	g.nodes.each(func(_ uint32, n *node) bool {
		if n.live() {
			g.releaseNode(n)
		}
		return true
	})
	for _, n := range g.released {
		g.clearNode(n)
	}
	clear(g.released)
	g.released = nil
	g.plan.reset()

	// deliver completions that are already queued
	g.Update()
	close(g.done)

	if h := g.output.Swap(nil); h != nil {
		h.driver.Dispose()
	}

	g.leaks.report(g.log.leaked)
	g.log.disposed(g.quantum, g.liveNodes, g.liveConnections)
	g.state.Store(graphDisposed)
	return nil
}

// cancelPending cancels every enqueued block, delivering the completions of
// any update requests they carried. Blocks are dequeued exactly once, so it
// is safe to call from Dispose and a racing CommandBlock.Complete.
func (g *Graph) cancelPending() {
	var cancelled bool
	for {
		b, ok := g.pending.TryDequeue()
		if !ok {
			break
		}
		b.cancelAll()
		cancelled = true
	}
	if cancelled {
		g.Update()
	}
}

func (g *Graph) disposed() bool {
	return g.state.Load() != graphActive
}

// acquireKey takes an interpolation key from the pool. Safe from any
// goroutine.
func (g *Graph) acquireKey(n NodeHandle) *keySlot {
	s := g.keys.Acquire()
	s.Value.leak = trackPointer(g.leaks, leakKey, n, 0, s)
	return s
}

// releaseKey returns an interpolation key to the pool.
func (g *Graph) releaseKey(s *keySlot) {
	g.leaks.untrack(s.Value.leak)
	g.keys.Release(s)
}

// allocateTemp provides kernel-owned memory, freed with the node.
func (g *Graph) allocateTemp(n *node, size int) []float32 {
	t := tempAllocation{samples: make([]float32, size)}
	if g.leaks != nil {
		t.leak = g.leaks.track(leakRecord{kind: leakKernelTemp, node: n.handle, size: size * 4})
	}
	n.temps = append(n.temps, t)
	return t.samples
}

// commandFailed reports a schedule-time validation failure.
func (g *Graph) commandFailed(err *CommandError) {
	if g.metrics != nil {
		g.metrics.failed.Add(1)
	}
	if g.cfg.strictValidation {
		panic(err)
	}
	g.log.commandFailed(err)
}
