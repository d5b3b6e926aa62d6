package audiograph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandBlock_chunks(t *testing.T) {
	g := newTestGraph(t)
	var n NodeHandle
	build(t, g, func(b *CommandBlock) { n = constToRoot(t, b, 1, 0) })

	b := g.NewCommandBlock()
	for i := 0; i < commandChunkSize*2+5; i++ {
		require.NoError(t, b.SetFloat(n, 0, float32(i)/1000))
	}
	assert.Equal(t, commandChunkSize*2+5, b.Len())
	require.NoError(t, b.Complete())

	out := renderQuanta(t, g, 1)
	assert.InDelta(t, float32(commandChunkSize*2+4)/1000, out[0], 1e-6)
}

func TestCommandBlock_rollback(t *testing.T) {
	for _, tc := range [...]struct {
		name     string
		recorded int
		mark     int
	}{
		{`nothing after mark`, 10, 10},
		{`within first chunk`, 10, 4},
		{`to empty`, 10, 0},
		{`chunk boundary`, commandChunkSize + 10, commandChunkSize},
		{`across chunks`, commandChunkSize*2 + 10, commandChunkSize - 1},
		{`into second chunk`, commandChunkSize*3 + 1, commandChunkSize + 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			g := newTestGraph(t)
			var n NodeHandle
			build(t, g, func(b *CommandBlock) { n = constToRoot(t, b, 1, 0) })

			b := g.NewCommandBlock()
			for i := 0; i < tc.mark; i++ {
				require.NoError(t, b.SetFloat(n, 0, 0.5))
			}
			mark := b.mark()
			require.Equal(t, tc.mark, mark)
			var created []NodeHandle
			for i := tc.mark; i < tc.recorded; i++ {
				if i%2 == 0 {
					created = append(created, must[NodeHandle](t)(b.CreateNode(constKernelType)))
				} else {
					require.NoError(t, b.SetFloat(n, 0, 1))
				}
			}
			b.rollback(mark)
			assert.Equal(t, tc.mark, b.Len())
			for _, h := range created {
				assert.False(t, g.NodeExists(h))
			}

			// the block is still usable, and appends after the mark
			require.NoError(t, b.SetFloat(n, 0, 0.25))
			require.NoError(t, b.Complete())
			assert.Equal(t, float32(0.25), renderQuanta(t, g, 1)[0])
		})
	}
}

func TestCommandBlock_completed(t *testing.T) {
	g := newTestGraph(t)
	b := g.NewCommandBlock()
	require.NoError(t, b.Complete())
	assert.ErrorIs(t, b.Complete(), ErrBlockCompleted)
	_, err := b.CreateNode(constKernelType)
	assert.ErrorIs(t, err, ErrBlockCompleted)
	assert.ErrorIs(t, b.SetFloat(g.Root(), 0, 0), ErrBlockCompleted)
	b.Cancel()

	b = g.NewCommandBlock()
	b.Cancel()
	b.Cancel()
	assert.ErrorIs(t, b.Complete(), ErrBlockCompleted)
}

func TestCommandBlock_invalidArguments(t *testing.T) {
	g := newTestGraph(t)
	b := g.NewCommandBlock()
	defer b.Cancel()

	_, err := b.CreateNode(nil)
	assert.ErrorIs(t, err, ErrInvalidKernelType)
	_, err = b.CreateNode(&KernelType{})
	assert.ErrorIs(t, err, ErrInvalidKernelType)

	_, err = b.Connect(g.Root(), -1, g.Root(), 0)
	assert.ErrorIs(t, err, ErrPortIndex)

	assert.ErrorIs(t, b.SetSampleProvider(g.Root(), -1, 0, nil), ErrProviderSlot)
	assert.Error(t, b.UpdateKernel(g.Root(), nil))
	_, err = b.CreateUpdateRequest(g.Root(), nil, nil)
	assert.Error(t, err)
	assert.Zero(t, b.Len())
}

func TestCommandBlock_cancelReleasesReservations(t *testing.T) {
	g := newTestGraph(t, WithLeakTracking(true))
	var n NodeHandle
	build(t, g, func(b *CommandBlock) { n = constToRoot(t, b, 1, 0) })
	renderQuanta(t, g, 1)
	base := g.leaks.outstanding()

	b := g.NewCommandBlock()
	created := must[NodeHandle](t)(b.CreateNode(constKernelType))
	require.NoError(t, b.AddFloatKey(n, 0, 1000, 1))
	require.NoError(t, b.AddFloatKey(n, 0, 2000, 0))
	assert.Equal(t, base+2, g.leaks.outstanding())
	b.Cancel()

	assert.False(t, g.NodeExists(created))
	assert.Equal(t, base, g.leaks.outstanding())
}

func TestCommandBlock_failedCommandsReleaseKeys(t *testing.T) {
	g := newTestGraph(t, WithLeakTracking(true))
	var n NodeHandle
	build(t, g, func(b *CommandBlock) { n = constToRoot(t, b, 1, 0) })
	renderQuanta(t, g, 1)
	base := g.leaks.outstanding()

	build(t, g, func(b *CommandBlock) {
		require.NoError(t, b.AddFloatKey(n, 0, 1000, 1))
		// out of order, and a bad parameter
		require.NoError(t, b.AddFloatKey(n, 0, 500, 1))
		require.NoError(t, b.AddFloatKey(n, 9, 2000, 1))
	})
	renderQuanta(t, g, 1)
	assert.Equal(t, base+1, g.leaks.outstanding())

	// a constant discards pending keys
	build(t, g, func(b *CommandBlock) { require.NoError(t, b.SetFloat(n, 0, 1)) })
	renderQuanta(t, g, 1)
	assert.Equal(t, base, g.leaks.outstanding())
}

func TestCommandBlock_blocksApplyInOrder(t *testing.T) {
	g := newTestGraph(t)
	var n NodeHandle
	build(t, g, func(b *CommandBlock) { n = constToRoot(t, b, 1, 0) })
	first, second := g.NewCommandBlock(), g.NewCommandBlock()
	require.NoError(t, second.SetFloat(n, 0, 2))
	require.NoError(t, first.SetFloat(n, 0, 1))
	// completion order, not creation order
	require.NoError(t, second.Complete())
	require.NoError(t, first.Complete())
	assert.Equal(t, float32(1), renderQuanta(t, g, 1)[0])
}

func TestCommandBlock_releaseDropsConnections(t *testing.T) {
	g := newTestGraph(t, WithMetrics(true))
	var a, b NodeHandle
	var c ConnectionHandle
	build(t, g, func(blk *CommandBlock) {
		a = constToRoot(t, blk, 1, 1)
		b = must[NodeHandle](t)(blk.CreateNode(passKernelType))
		require.NoError(t, blk.AddInletPort(b, 1))
		require.NoError(t, blk.AddOutletPort(b, 1))
		c = must[ConnectionHandle](t)(blk.Connect(a, 0, b, 0))
	})
	renderQuanta(t, g, 1)
	assert.Equal(t, 2, g.Metrics().LiveConnections)

	build(t, g, func(blk *CommandBlock) { require.NoError(t, blk.ReleaseNode(a)) })
	renderQuanta(t, g, 1)
	assert.False(t, g.ConnectionExists(c))
	assert.Zero(t, g.Metrics().LiveConnections)
	assert.Nil(t, nodeOf(t, g, b).inbound)
}
