package audiograph

type (
	createNodeCommand struct {
		kernelType *KernelType
		handle     NodeHandle
	}

	releaseNodeCommand struct {
		node NodeHandle
	}

	addPortCommand struct {
		node     NodeHandle
		channels int
		output   bool
	}

	connectCommand struct {
		handle  ConnectionHandle
		src     NodeHandle
		dst     NodeHandle
		srcPort int
		dstPort int
	}

	// disconnectCommand removes either conn, if valid, or the connection
	// between the given ports.
	disconnectCommand struct {
		conn    ConnectionHandle
		src     NodeHandle
		dst     NodeHandle
		srcPort int
		dstPort int
	}

	setFloatCommand struct {
		node  NodeHandle
		param int
		value float32
	}

	addFloatKeyCommand struct {
		key   *keySlot
		node  NodeHandle
		param int
	}

	setAttenuationCommand struct {
		conn       ConnectionHandle
		components int
		value      [MaxAttenuationComponents]float32
	}

	addAttenuationKeyCommand struct {
		key        *keySlot
		conn       ConnectionHandle
		components int
	}

	providerCommand struct {
		provider SampleProvider
		node     NodeHandle
		slot     int
		index    int
		op       providerOp
	}

	updateKernelCommand struct {
		fn      UpdateFunc
		request *UpdateRequest
		node    NodeHandle
	}
)

type providerOp uint8

const (
	providerSet providerOp = iota
	providerInsert
	providerRemove
)

// applyCommand schedules then disposes a command, reporting failures.
func (g *Graph) applyCommand(cmd command) {
	if err := cmd.schedule(g); err != nil {
		op, n := cmd.describe()
		g.commandFailed(&CommandError{Op: op, Node: n, Err: err})
	} else if g.metrics != nil {
		g.metrics.applied.Add(1)
	}
	cmd.dispose(g)
}

// cancelCommand cancels then disposes a command.
func (g *Graph) cancelCommand(cmd command) {
	cmd.cancel(g)
	cmd.dispose(g)
}

func (x *createNodeCommand) schedule(g *Graph) error {
	return g.createNode(x.handle, x.kernelType)
}

func (x *createNodeCommand) cancel(g *Graph) {
	g.nodes.free(x.handle.Index)
}

func (x *createNodeCommand) dispose(*Graph) {}

func (x *createNodeCommand) describe() (string, NodeHandle) {
	return `create node`, x.handle
}

func (x *releaseNodeCommand) schedule(g *Graph) error {
	n, err := g.liveNode(x.node)
	if err != nil {
		return err
	}
	if n.root {
		return ErrRootNode
	}
	g.releaseNode(n)
	return nil
}

func (x *releaseNodeCommand) cancel(*Graph) {}

func (x *releaseNodeCommand) dispose(*Graph) {}

func (x *releaseNodeCommand) describe() (string, NodeHandle) {
	return `release node`, x.node
}

func (x *addPortCommand) schedule(g *Graph) error {
	n, err := g.liveNode(x.node)
	if err != nil {
		return err
	}
	if n.root {
		return ErrRootNode
	}
	if n.loadState() >= NodeRunning {
		return ErrPortAfterRun
	}
	if x.output {
		n.outputs = append(n.outputs, outputPort{channels: x.channels})
	} else {
		n.inputs = append(n.inputs, inputPort{channels: x.channels})
	}
	n.advance(NodeConfigured)
	return nil
}

func (x *addPortCommand) cancel(*Graph) {}

func (x *addPortCommand) dispose(*Graph) {}

func (x *addPortCommand) describe() (string, NodeHandle) {
	if x.output {
		return `add outlet port`, x.node
	}
	return `add inlet port`, x.node
}

func (x *connectCommand) schedule(g *Graph) error {
	err := g.connect(x.handle, x.src, x.srcPort, x.dst, x.dstPort)
	if err != nil {
		g.connections.reset(x.handle.Index)
	}
	return err
}

func (x *connectCommand) cancel(g *Graph) {
	g.connections.free(x.handle.Index)
}

func (x *connectCommand) dispose(*Graph) {}

func (x *connectCommand) describe() (string, NodeHandle) {
	return `connect`, x.dst
}

func (x *disconnectCommand) schedule(g *Graph) error {
	var c *connection
	if x.conn.Valid() {
		c = g.connections.lookup(x.conn.Handle)
		if c == nil || !c.live {
			return ErrStaleHandle
		}
	} else {
		src, err := g.liveNode(x.src)
		if err != nil {
			return err
		}
		dst, err := g.liveNode(x.dst)
		if err != nil {
			return err
		}
		if c = findConnection(src, x.srcPort, dst, x.dstPort); c == nil {
			return ErrNotConnected
		}
	}
	g.disconnect(c)
	return nil
}

func (x *disconnectCommand) cancel(*Graph) {}

func (x *disconnectCommand) dispose(*Graph) {}

func (x *disconnectCommand) describe() (string, NodeHandle) {
	return `disconnect`, x.dst
}

func (x *setFloatCommand) schedule(g *Graph) error {
	p, err := g.parameter(x.node, x.param)
	if err != nil {
		return err
	}
	v := clampParameter(p.desc, x.value)
	p.auto.set(g, [MaxAttenuationComponents]float32{v}, 1, g.renderClock)
	return nil
}

func (x *setFloatCommand) cancel(*Graph) {}

func (x *setFloatCommand) dispose(*Graph) {}

func (x *setFloatCommand) describe() (string, NodeHandle) {
	return `set float`, x.node
}

func (x *addFloatKeyCommand) schedule(g *Graph) error {
	p, err := g.parameter(x.node, x.param)
	if err != nil {
		return err
	}
	x.key.Value.value[0] = clampParameter(p.desc, x.key.Value.value[0])
	if err := p.auto.push(x.key, g.renderClock); err != nil {
		return err
	}
	x.key = nil
	return nil
}

func (x *addFloatKeyCommand) cancel(*Graph) {}

func (x *addFloatKeyCommand) dispose(g *Graph) {
	if x.key != nil {
		g.releaseKey(x.key)
		x.key = nil
	}
}

func (x *addFloatKeyCommand) describe() (string, NodeHandle) {
	if x.key != nil && x.key.Value.sustain {
		return `sustain float`, x.node
	}
	return `add float key`, x.node
}

func (x *setAttenuationCommand) schedule(g *Graph) error {
	c, err := g.liveConnection(x.conn)
	if err != nil {
		return err
	}
	if err := c.checkComponents(x.components); err != nil {
		return err
	}
	c.atten.set(g, x.value, x.components, g.renderClock)
	return nil
}

func (x *setAttenuationCommand) cancel(*Graph) {}

func (x *setAttenuationCommand) dispose(*Graph) {}

func (x *setAttenuationCommand) describe() (string, NodeHandle) {
	return `set attenuation`, NodeHandle{}
}

func (x *addAttenuationKeyCommand) schedule(g *Graph) error {
	c, err := g.liveConnection(x.conn)
	if err != nil {
		return err
	}
	if x.components != 0 {
		if err := c.checkComponents(x.components); err != nil {
			return err
		}
		if x.components != c.atten.components {
			if c.atten.keyed() {
				return ErrChannelMismatch
			}
			// widen the constant value before ramping per component
			for i := c.atten.components; i < x.components; i++ {
				c.atten.anchor[i] = c.atten.anchor[0]
				c.atten.current[i] = c.atten.current[0]
			}
			c.atten.components = x.components
		}
	}
	if x.key.Value.sustain {
		x.key.Value.value = c.atten.current
	}
	if err := c.atten.push(x.key, g.renderClock); err != nil {
		return err
	}
	x.key = nil
	return nil
}

func (x *addAttenuationKeyCommand) cancel(*Graph) {}

func (x *addAttenuationKeyCommand) dispose(g *Graph) {
	if x.key != nil {
		g.releaseKey(x.key)
		x.key = nil
	}
}

func (x *addAttenuationKeyCommand) describe() (string, NodeHandle) {
	return `add attenuation key`, NodeHandle{}
}

func (x *providerCommand) schedule(g *Graph) error {
	n, err := g.liveNode(x.node)
	if err != nil {
		return err
	}
	if x.slot >= len(n.providers) {
		return ErrProviderSlot
	}
	s := &n.providers[x.slot]
	switch x.op {
	case providerSet:
		if x.index < 0 || x.index >= s.len() {
			return ErrProviderIndex
		}
		s.items.Set(x.index, x.provider)
	case providerInsert:
		if s.desc.Shape != ProviderVariableArray {
			return ErrProviderShape
		}
		index := x.index
		if index == -1 {
			index = s.len()
		}
		if index < 0 || index > s.len() {
			return ErrProviderIndex
		}
		s.items.Insert(index, x.provider)
	case providerRemove:
		if s.desc.Shape != ProviderVariableArray {
			return ErrProviderShape
		}
		if x.index < 0 || x.index >= s.len() {
			return ErrProviderIndex
		}
		s.items.RemoveAt(x.index)
	}
	return nil
}

func (x *providerCommand) cancel(*Graph) {}

func (x *providerCommand) dispose(*Graph) {
	x.provider = nil
}

func (x *providerCommand) describe() (string, NodeHandle) {
	switch x.op {
	case providerInsert:
		return `insert sample provider`, x.node
	case providerRemove:
		return `remove sample provider`, x.node
	default:
		return `set sample provider`, x.node
	}
}

func (x *updateKernelCommand) schedule(g *Graph) error {
	n, err := g.liveNode(x.node)
	if err == nil {
		err = x.fn(n.kernel)
	}
	if x.request != nil {
		// the request carries the error back to the caller
		g.completeRequest(x.request, err)
		return nil
	}
	return err
}

func (x *updateKernelCommand) cancel(g *Graph) {
	if x.request != nil {
		g.cancelRequest(x.request)
	}
}

func (x *updateKernelCommand) dispose(*Graph) {
	x.fn = nil
	x.request = nil
}

func (x *updateKernelCommand) describe() (string, NodeHandle) {
	if x.request != nil {
		return `update request`, x.node
	}
	return `update kernel`, x.node
}

func clampParameter(desc ParameterDescriptor, v float32) float32 {
	return min(max(v, desc.Min), desc.Max)
}
