package audiograph

import (
	"sync/atomic"

	"github.com/joeycumines/go-audiograph/lockfree"
)

// NodeState is the lifecycle state of a node.
//
//	NodeCreated → NodeConfigured  [port added]
//	NodeConfigured → NodeConnected [connection made]
//	any live state → NodeRunning   [first execution]
//	any live state → NodeReleased  [ReleaseNode]
//	NodeReleased → NodeCleared     [cleanup, at least one quantum later]
//
// NodeFree is reported for handles whose slot has not been created yet, or
// has been recycled.
type NodeState uint32

const (
	NodeFree NodeState = iota
	NodeCreated
	NodeConfigured
	NodeConnected
	NodeRunning
	NodeReleased
	NodeCleared
)

// String returns a human-readable representation of the state.
func (s NodeState) String() string {
	switch s {
	case NodeFree:
		return `Free`
	case NodeCreated:
		return `Created`
	case NodeConfigured:
		return `Configured`
	case NodeConnected:
		return `Connected`
	case NodeRunning:
		return `Running`
	case NodeReleased:
		return `Released`
	case NodeCleared:
		return `Cleared`
	default:
		return `Unknown`
	}
}

func (s NodeState) live() bool {
	return s >= NodeCreated && s <= NodeRunning
}

type (
	inputPort struct {
		// feed and sources are planner scratch: the last scheduled inbound
		// connection, and the number of them
		feed     *connection
		channels int
		sources  int
		// stolen is set by the planner when the port aliases its single
		// source's output for the current quantum
		stolen bool
	}

	outputPort struct {
		channels  int
		consumers int
	}

	parameter struct {
		auto automation
		desc ParameterDescriptor
	}

	providerSlot struct {
		items *lockfree.Buffer[SampleProvider]
		desc  ProviderSlotDescriptor
	}

	tempAllocation struct {
		samples []float32
		leak    uint64
	}

	// node is the render-owned payload of a node slot. Only state is read
	// from the control side.
	node struct {
		kernel      Kernel
		kernelType  *KernelType
		inbound     *connection
		outbound    *connection
		inputs      []inputPort
		outputs     []outputPort
		params      []parameter
		providers   []providerSlot
		temps       []tempAllocation
		job         jobMemory
		handle      NodeHandle
		releasedAt  uint64
		state       atomic.Uint32
		pending     atomic.Int32
		depCount    int32
		reachable   bool
		scheduled   bool
		visited     bool
		root        bool
	}
)

func (x *node) loadState() NodeState {
	return NodeState(x.state.Load())
}

func (x *node) setState(s NodeState) {
	x.state.Store(uint32(s))
}

// advance moves the state forward to s, never backwards.
func (x *node) advance(s NodeState) {
	if cur := x.loadState(); cur.live() && cur < s {
		x.setState(s)
	}
}

func (x *node) live() bool {
	return x.loadState().live()
}

// clear resets every field but the state word, which is set to NodeCleared.
func (x *node) clear() {
	x.kernel = nil
	x.kernelType = nil
	x.inbound = nil
	x.outbound = nil
	x.inputs = nil
	x.outputs = nil
	x.params = nil
	x.providers = nil
	x.temps = nil
	x.job = jobMemory{}
	x.handle = NodeHandle{}
	x.releasedAt = 0
	x.pending.Store(0)
	x.depCount = 0
	x.reachable = false
	x.scheduled = false
	x.visited = false
	x.root = false
	x.setState(NodeCleared)
}

func (x *providerSlot) len() int {
	return x.items.Len()
}

func (x *providerSlot) get(i int) SampleProvider {
	return x.items.Get(i)
}

func newProviderSlot(desc ProviderSlotDescriptor) providerSlot {
	var n int
	switch desc.Shape {
	case ProviderSingle:
		n = 1
	case ProviderFixedArray:
		n = desc.Size
	}
	items := lockfree.NewBuffer[SampleProvider](n)
	for i := 0; i < n; i++ {
		items.Append(nil)
	}
	return providerSlot{desc: desc, items: items}
}
