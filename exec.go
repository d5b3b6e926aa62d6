package audiograph

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-audiograph/lockfree"
)

// renderQuantum renders one quantum: apply pending blocks, plan, execute,
// then clean up and advance the clock.
func (g *Graph) renderQuantum() {
	var start time.Time
	if g.metrics != nil || g.log.enabled() {
		start = time.Now()
	}

	g.applyPending()
	g.buildPlan()
	if g.exec != nil && len(g.plan.order) > 1 {
		g.exec.run(&g.plan)
	} else {
		for _, n := range g.plan.order {
			g.executeNode(n)
		}
	}
	g.cleanup()

	if start.IsZero() {
		return
	}
	elapsed := time.Since(start)
	budget := time.Duration(g.cfg.quantumSize) * time.Second / time.Duration(g.cfg.sampleRate)
	overrun := elapsed > budget
	if overrun {
		g.log.overrun(g.quantum-1, elapsed, budget)
	}
	if m := g.metrics; m != nil {
		m.recordLatency(elapsed)
		m.quanta.Add(1)
		if overrun {
			m.overruns.Add(1)
		}
		m.liveNodes.Store(int64(g.liveNodes))
		m.liveConnections.Store(int64(g.liveConnections))
	}
}

// applyPending schedules every completed block, in completion order.
func (g *Graph) applyPending() {
	for {
		b, ok := g.pending.TryDequeue()
		if !ok {
			return
		}
		b.drain(g.applyCommand)
	}
}

// executeNode mixes the node's owned inputs, renders its parameters, and
// runs its kernel. Its sources must already have executed.
func (g *Graph) executeNode(n *node) {
	j := &n.job
	clock := g.renderClock

	for i := range n.inputs {
		if !n.inputs[i].stolen {
			j.own[i].Clear()
		}
	}
	for c := n.inbound; c != nil; c = c.nextIn {
		if !c.src.scheduled || n.inputs[c.dstPort].stolen {
			continue
		}
		mixInto(j.own[c.dstPort], c.src.job.ctx.Outputs[c.srcPort], &c.atten, clock)
	}

	for i := range n.params {
		n.params[i].auto.render(j.ctx.Parameters.Slice(i), 0, clock)
	}
	clear(j.outputs)

	j.ctx.Clock = clock
	n.kernelType.checkKernel(n.kernel)
	n.kernel.Execute(&j.ctx)
	n.advance(NodeRunning)
}

// mixInto adds src to dst, scaled by the attenuation. Channel k of the
// wider layout maps source channel k%src.Channels to destination channel
// k%dst.Channels.
func mixInto(dst, src SampleBuffer, atten *automation, clock uint64) {
	for k := range max(dst.Channels, src.Channels) {
		d := dst.Channel(k % dst.Channels)
		s := src.Channel(k % src.Channels)
		s = s[:len(d)]
		lane := 0
		if atten.components > 1 {
			lane = k % dst.Channels
		}
		if atten.keyed() {
			for i := range d {
				d[i] += s[i] * atten.valueAt(lane, clock+uint64(i))
			}
			continue
		}
		switch v := atten.anchor[lane]; v {
		case 0:
		case 1:
			for i := range d {
				d[i] += s[i]
			}
		default:
			for i := range d {
				d[i] += s[i] * v
			}
		}
	}
}

// cleanup ends the quantum: elapsed keys are retired, nodes released before
// this quantum are cleared, and the clock advances.
func (g *Graph) cleanup() {
	end := g.renderClock + uint64(g.cfg.quantumSize)
	for _, n := range g.plan.live {
		if !n.live() {
			continue
		}
		for i := range n.params {
			n.params[i].auto.retire(g, end)
		}
		for c := n.inbound; c != nil; c = c.nextIn {
			c.atten.retire(g, end)
		}
	}

	kept := g.released[:0]
	for _, n := range g.released {
		if n.releasedAt < g.quantum {
			g.clearNode(n)
		} else {
			kept = append(kept, n)
		}
	}
	clear(g.released[len(kept):])
	g.released = kept

	g.renderClock = end
	g.clock.Store(end)
	g.quantum++
}

// executor runs a plan across a fixed pool of workers. The rendering
// goroutine participates, and waits for completion by spinning.
type executor struct {
	g         *Graph
	ready     *lockfree.Queue[*node]
	wake      []chan struct{}
	stop      chan struct{}
	remaining atomic.Int64
	wg        sync.WaitGroup
}

func newExecutor(g *Graph, workers int) *executor {
	x := &executor{
		g:     g,
		ready: lockfree.NewQueue[*node](),
		wake:  make([]chan struct{}, workers),
		stop:  make(chan struct{}),
	}
	x.wg.Add(workers)
	for i := range x.wake {
		x.wake[i] = make(chan struct{}, 1)
		go x.worker(x.wake[i])
	}
	return x
}

// run executes every node of the plan, respecting dependencies, and
// returns once all have executed.
func (x *executor) run(p *renderPlan) {
	x.remaining.Store(int64(len(p.order)))
	for _, n := range p.order[:p.roots] {
		x.ready.Enqueue(n)
	}
	for _, ch := range x.wake {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	for i := 0; x.remaining.Load() != 0; {
		if x.drainOne() {
			i = 0
			continue
		}
		lockfree.Backoff(i)
		i++
	}
}

// drainOne executes one ready node, if there is one.
func (x *executor) drainOne() bool {
	n, ok := x.ready.TryDequeue()
	if !ok {
		return false
	}
	x.g.executeNode(n)
	for c := n.outbound; c != nil; c = c.nextOut {
		if c.dst.scheduled && c.dst.pending.Add(-1) == 0 {
			x.ready.Enqueue(c.dst)
		}
	}
	x.remaining.Add(-1)
	return true
}

func (x *executor) worker(wake <-chan struct{}) {
	defer x.wg.Done()
	for {
		select {
		case <-x.stop:
			return
		case <-wake:
		}
		for i := 0; x.remaining.Load() != 0; {
			if x.drainOne() {
				i = 0
				continue
			}
			lockfree.Backoff(i)
			i++
		}
	}
}

func (x *executor) close() {
	close(x.stop)
	x.wg.Wait()
}
