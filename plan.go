package audiograph

import (
	"github.com/joeycumines/go-audiograph/lockfree"
)

type (
	// jobRequirements is the memory layout of a node's job. The job is
	// reallocated only when it changes.
	jobRequirements struct {
		inPorts      int
		outPorts     int
		inSamples    int
		outSamples   int
		paramSamples int
	}

	// jobMemory is a node's per-quantum working memory: owned input
	// scratch, outputs and per-sample parameter values, carved from a single
	// block.
	jobMemory struct {
		block   *lockfree.Block
		inputs  []float32
		outputs []float32
		params  []float32
		own     []SampleBuffer
		ctx     ExecuteContext
		req     jobRequirements
		leak    uint64
	}

	// renderPlan is the execution plan of one quantum. It is built in full
	// before any node executes, and is not modified until the quantum ends.
	renderPlan struct {
		// live is every live node, scheduled or not
		live []*node
		// order is the scheduled nodes, in dependency order
		order []*node
		// roots is the number of nodes at the start of order that have no
		// scheduled sources
		roots int
	}
)

func (x *renderPlan) reset() {
	clear(x.live)
	clear(x.order)
	x.live = x.live[:0]
	x.order = x.order[:0]
	x.roots = 0
}

func (g *Graph) jobRequirements(n *node) jobRequirements {
	frames := g.cfg.quantumSize
	req := jobRequirements{
		inPorts:      len(n.inputs),
		outPorts:     len(n.outputs),
		paramSamples: len(n.params) * frames,
	}
	for _, p := range n.inputs {
		req.inSamples += p.channels * frames
	}
	for _, p := range n.outputs {
		req.outSamples += p.channels * frames
	}
	return req
}

// ensureJob (re)allocates the node's job memory if its layout changed.
func (g *Graph) ensureJob(n *node) {
	req := g.jobRequirements(n)
	j := &n.job
	if j.block != nil && j.req == req {
		return
	}
	g.releaseJob(n)

	frames := g.cfg.quantumSize
	lockfree.Defer(&g.batch, &j.inputs, req.inSamples)
	lockfree.Defer(&g.batch, &j.outputs, req.outSamples)
	lockfree.Defer(&g.batch, &j.params, req.paramSamples)
	j.block = g.batch.Allocate()
	j.leak = trackPointer(g.leaks, leakJobMemory, n.handle, j.block.Size(), j.block)
	j.req = req

	j.own = make([]SampleBuffer, req.inPorts)
	off := 0
	for i, p := range n.inputs {
		size := p.channels * frames
		j.own[i] = SampleBuffer{Samples: j.inputs[off : off+size : off+size], Channels: p.channels, Frames: frames}
		off += size
	}
	outputs := make([]SampleBuffer, req.outPorts)
	off = 0
	for i, p := range n.outputs {
		size := p.channels * frames
		outputs[i] = SampleBuffer{Samples: j.outputs[off : off+size : off+size], Channels: p.channels, Frames: frames}
		off += size
	}

	j.ctx = ExecuteContext{
		Inputs:     make([]SampleBuffer, req.inPorts),
		Outputs:    outputs,
		Parameters: Parameters{values: j.params, count: len(n.params), frames: frames},
		Providers:  Providers{slots: n.providers},
		SampleRate: g.cfg.sampleRate,
		Frames:     frames,
		Node:       n.handle,
	}
	copy(j.ctx.Inputs, j.own)
}

// releaseJob drops the node's job memory.
func (g *Graph) releaseJob(n *node) {
	if n.job.block == nil {
		return
	}
	g.leaks.untrack(n.job.leak)
	n.job = jobMemory{}
}

// buildPlan computes the plan for the current quantum: reachability from
// the root, job memory, dependency counts, the execution order, and the
// input buffer of every port.
func (g *Graph) buildPlan() {
	p := &g.plan
	p.reset()

	g.nodes.each(func(_ uint32, n *node) bool {
		if n.live() {
			n.reachable = false
			n.scheduled = false
			p.live = append(p.live, n)
		}
		return true
	})

	// walk inbound edges back from the root
	stack := append(g.scratch[:0], g.rootNode)
	g.rootNode.reachable = true
	for len(stack) != 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for c := n.inbound; c != nil; c = c.nextIn {
			if !c.src.reachable {
				c.src.reachable = true
				stack = append(stack, c.src)
			}
		}
	}
	clear(stack[:cap(stack)])
	g.scratch = stack[:0]

	for _, n := range p.live {
		n.scheduled = n.reachable || g.cfg.executeUnreachable
		if n.scheduled {
			g.ensureJob(n)
		}
	}

	for _, n := range p.live {
		if !n.scheduled {
			continue
		}
		n.depCount = 0
		for i := range n.inputs {
			n.inputs[i].feed = nil
			n.inputs[i].sources = 0
		}
		for c := n.inbound; c != nil; c = c.nextIn {
			if !c.src.scheduled {
				continue
			}
			n.depCount++
			port := &n.inputs[c.dstPort]
			port.feed = c
			port.sources++
		}
		n.pending.Store(n.depCount)
		for i := range n.inputs {
			g.resolveInput(n, i)
		}
		if n.depCount == 0 {
			p.order = append(p.order, n)
		}
	}

	// Kahn's algorithm, consuming depCount
	p.roots = len(p.order)
	for i := 0; i < len(p.order); i++ {
		for c := p.order[i].outbound; c != nil; c = c.nextOut {
			if d := c.dst; d.scheduled {
				d.depCount--
				if d.depCount == 0 {
					p.order = append(p.order, d)
				}
			}
		}
	}
}

// resolveInput decides whether input port i steals its source's output
// buffer: it must have exactly one scheduled source, whose output port
// feeds nothing else, unattenuated and with the same channel layout.
func (g *Graph) resolveInput(n *node, i int) {
	port := &n.inputs[i]
	port.stolen = false
	if c := port.feed; port.sources == 1 && c.atten.unity() {
		out := &c.src.outputs[c.srcPort]
		if out.consumers == 1 && out.channels == port.channels {
			port.stolen = true
			n.job.ctx.Inputs[i] = c.src.job.ctx.Outputs[c.srcPort]
		}
	}
	port.feed = nil
	if !port.stolen {
		n.job.ctx.Inputs[i] = n.job.own[i]
	}
}
