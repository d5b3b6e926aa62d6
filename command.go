package audiograph

import (
	"fmt"
	"sync"
)

// commandChunkSize is the number of commands per chunk of a CommandBlock.
const commandChunkSize = 64

// command is a single mutation, recorded on the control side and applied on
// the render path. For every command exactly one of schedule or cancel is
// called, followed by dispose.
type command interface {
	schedule(g *Graph) error
	cancel(g *Graph)
	dispose(g *Graph)
	describe() (op string, node NodeHandle)
}

// commandChunk is a fixed-size segment of a block's command list.
type commandChunk struct {
	cmds [commandChunkSize]command
	next *commandChunk
	pos  int
}

var commandChunkPool = sync.Pool{
	New: func() any {
		return &commandChunk{}
	},
}

func newCommandChunk() *commandChunk {
	c := commandChunkPool.Get().(*commandChunk)
	c.pos = 0
	c.next = nil
	return c
}

// returnCommandChunk clears the chunk, so it retains no commands, and pools
// it.
func returnCommandChunk(c *commandChunk) {
	clear(c.cmds[:c.pos])
	c.pos = 0
	c.next = nil
	commandChunkPool.Put(c)
}

// CommandBlock records commands for atomic submission to the render path.
//
// A block is built by a single goroutine. Builder methods perform only the
// checks possible without render state (the block is open, handles exist,
// simple argument ranges), returning errors immediately. Everything else is
// validated when the command is scheduled: a command that fails there is
// reported through the logger and skipped, without affecting the rest of the
// block.
//
// Complete hands the whole block to the render path, which applies it,
// in order, at the start of the next quantum. Cancel discards it.
type CommandBlock struct {
	graph  *Graph
	head   *commandChunk
	tail   *commandChunk
	length int
	done   bool
}

// NewCommandBlock returns an empty block.
func (g *Graph) NewCommandBlock() *CommandBlock {
	return &CommandBlock{graph: g}
}

// Len is the number of recorded commands.
func (b *CommandBlock) Len() int {
	return b.length
}

func (b *CommandBlock) push(cmd command) {
	if b.tail == nil {
		b.tail = newCommandChunk()
		b.head = b.tail
	}
	if b.tail.pos == len(b.tail.cmds) {
		c := newCommandChunk()
		b.tail.next = c
		b.tail = c
	}
	b.tail.cmds[b.tail.pos] = cmd
	b.tail.pos++
	b.length++
}

// check validates that the block may still be used.
func (b *CommandBlock) check() error {
	if b.done {
		return ErrBlockCompleted
	}
	if b.graph.disposed() {
		return ErrGraphDisposed
	}
	return nil
}

// drain calls fn for every command, in order, returning the chunks to the
// pool as they are consumed.
func (b *CommandBlock) drain(fn func(cmd command)) {
	for c := b.head; c != nil; {
		for i := 0; i < c.pos; i++ {
			fn(c.cmds[i])
		}
		next := c.next
		returnCommandChunk(c)
		c = next
	}
	b.head = nil
	b.tail = nil
	b.length = 0
}

// mark returns a position that rollback can return to.
func (b *CommandBlock) mark() int {
	return b.length
}

// rollback cancels and disposes every command recorded after mark.
func (b *CommandBlock) rollback(mark int) {
	if mark >= b.length {
		return
	}
	var (
		last *commandChunk
		i    int
	)
	for c := b.head; c != nil; {
		next, n := c.next, c.pos
		keep := min(max(mark-i, 0), n)
		for j := keep; j < n; j++ {
			b.graph.cancelCommand(c.cmds[j])
			c.cmds[j] = nil
		}
		c.pos = keep
		if keep != 0 {
			last = c
		} else {
			returnCommandChunk(c)
		}
		i += n
		c = next
	}
	if last == nil {
		b.head, b.tail = nil, nil
	} else {
		last.next = nil
		b.tail = last
	}
	b.length = mark
}

// Complete submits the block to the render path as a single unit. The
// block may not be used afterwards.
func (b *CommandBlock) Complete() error {
	if b.done {
		return ErrBlockCompleted
	}
	b.done = true
	b.graph.pending.Enqueue(b)
	// checked after the enqueue, since Dispose may drain pending at any point
	if b.graph.disposed() {
		b.graph.cancelPending()
		return ErrGraphDisposed
	}
	return nil
}

// Cancel discards the block, releasing everything its commands reserved.
// The block may not be used afterwards.
func (b *CommandBlock) Cancel() {
	if b.done {
		return
	}
	b.done = true
	b.cancelAll()
}

func (b *CommandBlock) cancelAll() {
	b.drain(b.graph.cancelCommand)
}

// CreateNode records the creation of a node running kt. The returned handle
// may be used by later commands, in this or later blocks.
func (b *CommandBlock) CreateNode(kt *KernelType) (NodeHandle, error) {
	if err := b.check(); err != nil {
		return NodeHandle{}, err
	}
	if kt == nil || kt.newKernel == nil {
		return NodeHandle{}, ErrInvalidKernelType
	}
	h := NodeHandle{b.graph.nodes.allocate()}
	b.push(&createNodeCommand{handle: h, kernelType: kt})
	return h, nil
}

// ReleaseNode records the release of a node, along with all of its
// connections. The node's slot is reused no sooner than one full quantum
// after the release is applied.
func (b *CommandBlock) ReleaseNode(n NodeHandle) error {
	if err := b.checkNode(n); err != nil {
		return err
	}
	if n == b.graph.root {
		return ErrRootNode
	}
	b.push(&releaseNodeCommand{node: n})
	return nil
}

// AddInletPort records the addition of an input port with the given
// channel count.
func (b *CommandBlock) AddInletPort(n NodeHandle, channels int) error {
	return b.addPort(n, channels, false)
}

// AddOutletPort records the addition of an output port with the given
// channel count.
func (b *CommandBlock) AddOutletPort(n NodeHandle, channels int) error {
	return b.addPort(n, channels, true)
}

func (b *CommandBlock) addPort(n NodeHandle, channels int, output bool) error {
	if err := b.checkNode(n); err != nil {
		return err
	}
	if channels <= 0 || channels > MaxChannels {
		return ErrInvalidChannelCount
	}
	b.push(&addPortCommand{node: n, channels: channels, output: output})
	return nil
}

// Connect records a connection from an output port of src to an input port
// of dst.
func (b *CommandBlock) Connect(src NodeHandle, srcPort int, dst NodeHandle, dstPort int) (ConnectionHandle, error) {
	if err := b.checkNode(src); err != nil {
		return ConnectionHandle{}, err
	}
	if err := b.checkNode(dst); err != nil {
		return ConnectionHandle{}, err
	}
	if srcPort < 0 || dstPort < 0 {
		return ConnectionHandle{}, ErrPortIndex
	}
	if src == dst {
		return ConnectionHandle{}, ErrCycle
	}
	h := ConnectionHandle{b.graph.connections.allocate()}
	b.push(&connectCommand{handle: h, src: src, dst: dst, srcPort: srcPort, dstPort: dstPort})
	return h, nil
}

// Disconnect records the removal of the connection between the given ports.
func (b *CommandBlock) Disconnect(src NodeHandle, srcPort int, dst NodeHandle, dstPort int) error {
	if err := b.checkNode(src); err != nil {
		return err
	}
	if err := b.checkNode(dst); err != nil {
		return err
	}
	b.push(&disconnectCommand{src: src, dst: dst, srcPort: srcPort, dstPort: dstPort})
	return nil
}

// DisconnectConnection records the removal of a connection by handle.
func (b *CommandBlock) DisconnectConnection(c ConnectionHandle) error {
	if err := b.checkConnection(c); err != nil {
		return err
	}
	b.push(&disconnectCommand{conn: c})
	return nil
}

// SetFloat records setting a parameter to a constant value, discarding any
// pending keys.
func (b *CommandBlock) SetFloat(n NodeHandle, param int, value float32) error {
	if err := b.checkNode(n); err != nil {
		return err
	}
	b.push(&setFloatCommand{node: n, param: param, value: value})
	return nil
}

// AddFloatKey records a key that ramps a parameter linearly to value,
// reaching it at the given render clock.
func (b *CommandBlock) AddFloatKey(n NodeHandle, param int, clock uint64, value float32) error {
	return b.addFloatKey(n, param, clock, value, false)
}

// SustainFloat records a key that holds a parameter at the value it has
// when the key becomes active, until the given render clock.
func (b *CommandBlock) SustainFloat(n NodeHandle, param int, clock uint64) error {
	return b.addFloatKey(n, param, clock, 0, true)
}

func (b *CommandBlock) addFloatKey(n NodeHandle, param int, clock uint64, value float32, sustain bool) error {
	if err := b.checkNode(n); err != nil {
		return err
	}
	key := b.graph.acquireKey(n)
	key.Value.clock = clock
	key.Value.sustain = sustain
	for i := range key.Value.value {
		key.Value.value[i] = value
	}
	b.push(&addFloatKeyCommand{node: n, param: param, key: key})
	return nil
}

// SetAttenuation records a constant attenuation for a connection. A single
// value applies to every channel, otherwise there must be one value per
// channel of the destination port.
func (b *CommandBlock) SetAttenuation(c ConnectionHandle, values ...float32) error {
	if err := b.checkConnection(c); err != nil {
		return err
	}
	var v [MaxAttenuationComponents]float32
	if err := attenuationValues(&v, values); err != nil {
		return err
	}
	b.push(&setAttenuationCommand{conn: c, value: v, components: len(values)})
	return nil
}

// AddAttenuationKey records a key that ramps a connection's attenuation to
// values, reaching it at the given render clock. The component count must
// match the connection's current attenuation.
func (b *CommandBlock) AddAttenuationKey(c ConnectionHandle, clock uint64, values ...float32) error {
	if err := b.checkConnection(c); err != nil {
		return err
	}
	key := b.graph.acquireKey(NodeHandle{})
	if err := attenuationValues(&key.Value.value, values); err != nil {
		b.graph.releaseKey(key)
		return err
	}
	key.Value.clock = clock
	b.push(&addAttenuationKeyCommand{conn: c, key: key, components: len(values)})
	return nil
}

// SustainAttenuation records a key that holds a connection's attenuation
// until the given render clock.
func (b *CommandBlock) SustainAttenuation(c ConnectionHandle, clock uint64) error {
	if err := b.checkConnection(c); err != nil {
		return err
	}
	key := b.graph.acquireKey(NodeHandle{})
	key.Value.clock = clock
	key.Value.sustain = true
	b.push(&addAttenuationKeyCommand{conn: c, key: key})
	return nil
}

// SetSampleProvider records setting element index of a provider slot. For
// ProviderSingle slots index must be zero.
func (b *CommandBlock) SetSampleProvider(n NodeHandle, slot, index int, p SampleProvider) error {
	return b.providerCommand(n, slot, index, p, providerSet)
}

// InsertSampleProvider records inserting a provider into a variable array
// slot. An index of -1 appends.
func (b *CommandBlock) InsertSampleProvider(n NodeHandle, slot, index int, p SampleProvider) error {
	return b.providerCommand(n, slot, index, p, providerInsert)
}

// RemoveSampleProvider records removing element index of a variable array
// slot.
func (b *CommandBlock) RemoveSampleProvider(n NodeHandle, slot, index int) error {
	return b.providerCommand(n, slot, index, nil, providerRemove)
}

func (b *CommandBlock) providerCommand(n NodeHandle, slot, index int, p SampleProvider, op providerOp) error {
	if err := b.checkNode(n); err != nil {
		return err
	}
	if slot < 0 {
		return ErrProviderSlot
	}
	b.push(&providerCommand{node: n, slot: slot, index: index, provider: p, op: op})
	return nil
}

// UpdateKernel records a call of fn with the node's live kernel, on the
// render path. No completion is reported; failures are logged.
func (b *CommandBlock) UpdateKernel(n NodeHandle, fn UpdateFunc) error {
	if err := b.checkNode(n); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("audiograph: nil update function")
	}
	b.push(&updateKernelCommand{node: n, fn: fn})
	return nil
}

// CreateUpdateRequest records a call of fn with the node's live kernel, on
// the render path, with completion reported back to the control side via
// Graph.Update. If callback is non-nil it is called from Graph.Update once the
// request completes, and is responsible for calling Dispose.
func (b *CommandBlock) CreateUpdateRequest(n NodeHandle, fn UpdateFunc, callback func(*UpdateRequest)) (*UpdateRequest, error) {
	if err := b.checkNode(n); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("audiograph: nil update function")
	}
	req := b.graph.newUpdateRequest(n, fn, callback)
	b.push(&updateKernelCommand{node: n, fn: fn, request: req})
	return req, nil
}

func (b *CommandBlock) checkNode(n NodeHandle) error {
	if err := b.check(); err != nil {
		return err
	}
	if !b.graph.nodes.exists(n.Handle) {
		return ErrStaleHandle
	}
	return nil
}

func (b *CommandBlock) checkConnection(c ConnectionHandle) error {
	if err := b.check(); err != nil {
		return err
	}
	if !b.graph.connections.exists(c.Handle) {
		return ErrStaleHandle
	}
	return nil
}

func attenuationValues(dst *[MaxAttenuationComponents]float32, values []float32) error {
	if len(values) == 0 || len(values) > MaxAttenuationComponents {
		return ErrComponentCount
	}
	copy(dst[:], values)
	return nil
}
