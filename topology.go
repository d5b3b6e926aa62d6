package audiograph

import (
	"fmt"
)

// connection is the render-owned payload of a connection slot. Each
// connection is linked into its source's outbound list and its destination's
// inbound list.
type connection struct {
	src     *node
	dst     *node
	nextIn  *connection
	nextOut *connection
	atten   automation
	handle  ConnectionHandle
	srcPort int
	dstPort int
	live    bool
}

// checkComponents validates an attenuation component count against the
// destination port.
func (x *connection) checkComponents(n int) error {
	if n <= 0 || n > MaxAttenuationComponents {
		return ErrComponentCount
	}
	if n != 1 && n != x.dst.inputs[x.dstPort].channels {
		return ErrChannelMismatch
	}
	return nil
}

// liveNode resolves a handle on the render path.
func (g *Graph) liveNode(h NodeHandle) (*node, error) {
	n := g.nodes.lookup(h.Handle)
	if n == nil || !n.live() {
		return nil, ErrStaleHandle
	}
	return n, nil
}

func (g *Graph) liveConnection(h ConnectionHandle) (*connection, error) {
	c := g.connections.lookup(h.Handle)
	if c == nil || !c.live {
		return nil, ErrStaleHandle
	}
	return c, nil
}

func (g *Graph) parameter(h NodeHandle, index int) (*parameter, error) {
	n, err := g.liveNode(h)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(n.params) {
		return nil, ErrParameterIndex
	}
	return &n.params[index], nil
}

// createNode builds the node payload for an allocated handle and
// initialises its kernel. On failure the slot is returned to the pool.
func (g *Graph) createNode(h NodeHandle, kt *KernelType) error {
	if !g.nodes.exists(h.Handle) {
		return ErrStaleHandle
	}
	n := g.nodes.at(h.Index)
	n.handle = h
	n.kernelType = kt
	n.kernel = kt.newKernel()
	n.params = make([]parameter, len(kt.desc.Parameters))
	for i, d := range kt.desc.Parameters {
		n.params[i] = parameter{desc: d, auto: newAutomation(1, d.Default)}
	}
	n.providers = make([]providerSlot, len(kt.desc.Providers))
	for i, d := range kt.desc.Providers {
		n.providers[i] = newProviderSlot(d)
	}
	n.setState(NodeCreated)
	ctx := InitContext{
		node:       n,
		graph:      g,
		SampleRate: g.cfg.sampleRate,
		Frames:     g.cfg.quantumSize,
		Node:       h,
	}
	if err := n.kernel.Initialize(&ctx); err != nil {
		g.clearNode(n)
		return fmt.Errorf("kernel %s: initialize: %w", kt.Name(), err)
	}
	g.liveNodes++
	return nil
}

// releaseNode detaches a node and queues it for clearing.
func (g *Graph) releaseNode(n *node) {
	for n.inbound != nil {
		g.disconnect(n.inbound)
	}
	for n.outbound != nil {
		g.disconnect(n.outbound)
	}
	n.setState(NodeReleased)
	n.releasedAt = g.quantum
	g.released = append(g.released, n)
	g.liveNodes--
}

// clearNode disposes the kernel, frees everything the node owns, and
// recycles its slot.
func (g *Graph) clearNode(n *node) {
	if n.kernel != nil {
		n.kernel.Dispose()
	}
	for i := range n.params {
		n.params[i].auto.releaseKeys(g)
	}
	for _, t := range n.temps {
		g.leaks.untrack(t.leak)
	}
	g.releaseJob(n)
	index := n.handle.Index
	n.clear()
	g.nodes.free(index)
}

// connect links a new connection into both nodes' lists, after validating
// ports and acyclicity.
func (g *Graph) connect(h ConnectionHandle, srcHandle NodeHandle, srcPort int, dstHandle NodeHandle, dstPort int) error {
	if !g.connections.exists(h.Handle) {
		return ErrStaleHandle
	}
	src, err := g.liveNode(srcHandle)
	if err != nil {
		return err
	}
	dst, err := g.liveNode(dstHandle)
	if err != nil {
		return err
	}
	if src.root {
		return ErrRootNode
	}
	if srcPort < 0 || srcPort >= len(src.outputs) || dstPort < 0 || dstPort >= len(dst.inputs) {
		return ErrPortIndex
	}
	if findConnection(src, srcPort, dst, dstPort) != nil {
		return fmt.Errorf("%w: ports already connected", ErrPortIndex)
	}
	if g.reaches(dst, src) {
		return ErrCycle
	}

	c := g.connections.at(h.Index)
	*c = connection{
		src:     src,
		dst:     dst,
		srcPort: srcPort,
		dstPort: dstPort,
		handle:  h,
		live:    true,
		atten:   newAutomation(1, 1),
	}
	c.nextOut = src.outbound
	src.outbound = c
	c.nextIn = dst.inbound
	dst.inbound = c
	src.outputs[srcPort].consumers++
	src.advance(NodeConnected)
	dst.advance(NodeConnected)
	g.liveConnections++
	return nil
}

// disconnect unlinks a connection and recycles its slot.
func (g *Graph) disconnect(c *connection) {
	for p := &c.src.outbound; *p != nil; p = &(*p).nextOut {
		if *p == c {
			*p = c.nextOut
			break
		}
	}
	for p := &c.dst.inbound; *p != nil; p = &(*p).nextIn {
		if *p == c {
			*p = c.nextIn
			break
		}
	}
	c.src.outputs[c.srcPort].consumers--
	c.atten.releaseKeys(g)
	g.liveConnections--
	g.connections.reset(c.handle.Index)
}

func findConnection(src *node, srcPort int, dst *node, dstPort int) *connection {
	for c := src.outbound; c != nil; c = c.nextOut {
		if c.dst == dst && c.srcPort == srcPort && c.dstPort == dstPort {
			return c
		}
	}
	return nil
}

// reaches reports whether to is downstream of from.
func (g *Graph) reaches(from, to *node) bool {
	if from == to {
		return true
	}
	found := false
	stack := append(g.scratch[:0], from)
	marked := append(g.marked[:0], from)
	from.visited = true
	for len(stack) != 0 && !found {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for c := n.outbound; c != nil; c = c.nextOut {
			if c.dst == to {
				found = true
				break
			}
			if !c.dst.visited {
				c.dst.visited = true
				marked = append(marked, c.dst)
				stack = append(stack, c.dst)
			}
		}
	}
	for _, n := range marked {
		n.visited = false
	}
	clear(marked)
	clear(stack[:cap(stack)])
	g.scratch, g.marked = stack[:0], marked[:0]
	return found
}
