package kernels

import (
	"math"
	"testing"

	"github.com/joeycumines/go-audiograph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGraph(t *testing.T, channels int) *audiograph.Graph {
	t.Helper()
	g, err := audiograph.New(
		audiograph.WithChannels(channels),
		audiograph.WithQuantumSize(32),
		audiograph.WithSampleRate(1000),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Dispose() })
	return g
}

func complete(t *testing.T, g *audiograph.Graph, fn func(b *audiograph.CommandBlock) error) {
	t.Helper()
	b := g.NewCommandBlock()
	if err := fn(b); err != nil {
		b.Cancel()
		require.NoError(t, err)
	}
	require.NoError(t, b.Complete())
}

func mix(t *testing.T, g *audiograph.Graph, frames int) []float32 {
	t.Helper()
	out := make([]float32, frames*g.Channels())
	require.NoError(t, g.Mix(out))
	return out
}

func TestSine(t *testing.T) {
	g := newGraph(t, 2)
	complete(t, g, func(b *audiograph.CommandBlock) error {
		n, err := CreateSine(b, 1)
		if err != nil {
			return err
		}
		if err := b.SetFloat(n, SineFrequency, 250); err != nil {
			return err
		}
		if err := b.SetFloat(n, SineAmplitude, 1); err != nil {
			return err
		}
		_, err = b.Connect(n, 0, g.Root(), 0)
		return err
	})
	out := mix(t, g, 64)
	// a quarter cycle per frame
	for f, want := range []float32{0, 1, 0, -1, 0, 1} {
		assert.InDelta(t, want, out[f*2], 1e-5, `frame %d`, f)
		assert.Equal(t, out[f*2], out[f*2+1])
	}
	// phase carries across quanta
	assert.InDelta(t, 0, out[32*2], 1e-4)
	assert.InDelta(t, 1, out[33*2], 1e-4)
}

func TestSine_defaults(t *testing.T) {
	g := newGraph(t, 1)
	complete(t, g, func(b *audiograph.CommandBlock) error {
		n, err := CreateSine(b, 1)
		if err != nil {
			return err
		}
		_, err = b.Connect(n, 0, g.Root(), 0)
		return err
	})
	out := mix(t, g, 32)
	var peak float32
	for _, v := range out {
		peak = max(peak, float32(math.Abs(float64(v))))
	}
	assert.InDelta(t, 0.25, peak, 0.01)
}

func TestGainAndMixer(t *testing.T) {
	g := newGraph(t, 1)
	complete(t, g, func(b *audiograph.CommandBlock) error {
		a, err := CreateConstant(b, 1)
		if err != nil {
			return err
		}
		c, err := CreateConstant(b, 1)
		if err != nil {
			return err
		}
		gain, err := CreateGain(b, 1)
		if err != nil {
			return err
		}
		m, err := CreateMixer(b, 2, 1)
		if err != nil {
			return err
		}
		for _, err := range []error{
			b.SetFloat(a, ConstantValue, 0.5),
			b.SetFloat(c, ConstantValue, -0.25),
			b.SetFloat(gain, GainLevel, 3),
			b.SetFloat(m, MixerLevel, 0.5),
		} {
			if err != nil {
				return err
			}
		}
		for _, link := range [][2]audiograph.NodeHandle{{a, gain}, {gain, m}} {
			if _, err := b.Connect(link[0], 0, link[1], 0); err != nil {
				return err
			}
		}
		if _, err := b.Connect(c, 0, m, 1); err != nil {
			return err
		}
		_, err = b.Connect(m, 0, g.Root(), 0)
		return err
	})
	out := mix(t, g, 32)
	// (0.5*3 - 0.25) * 0.5
	assert.InDelta(t, 0.625, out[0], 1e-6)
	assert.InDelta(t, 0.625, out[31], 1e-6)
}

func TestGain_spreadsChannels(t *testing.T) {
	g := newGraph(t, 2)
	complete(t, g, func(b *audiograph.CommandBlock) error {
		src, err := CreateConstant(b, 1)
		if err != nil {
			return err
		}
		gain, err := CreateGain(b, 2)
		if err != nil {
			return err
		}
		if err := b.SetFloat(src, ConstantValue, 0.5); err != nil {
			return err
		}
		if _, err := b.Connect(src, 0, gain, 0); err != nil {
			return err
		}
		_, err = b.Connect(gain, 0, g.Root(), 0)
		return err
	})
	out := mix(t, g, 1)
	assert.Equal(t, []float32{0.5, 0.5}, out)
}

func TestSamplePlayer(t *testing.T) {
	g := newGraph(t, 2)
	// stereo ramp, 40 frames
	samples := make([]float32, 80)
	for i := range samples {
		samples[i] = float32(i)
	}
	src := NewSliceProvider(samples, 2, 1000, false)
	complete(t, g, func(b *audiograph.CommandBlock) error {
		n, err := CreateSamplePlayer(b, 2)
		if err != nil {
			return err
		}
		if err := b.SetSampleProvider(n, PlayerSource, 0, src); err != nil {
			return err
		}
		if err := b.SetFloat(n, PlayerGain, 2); err != nil {
			return err
		}
		_, err = b.Connect(n, 0, g.Root(), 0)
		return err
	})
	out := mix(t, g, 64)
	for i := 0; i < 80; i++ {
		require.Equal(t, float32(2*i), out[i], i)
	}
	for i := 80; i < len(out); i++ {
		require.Zero(t, out[i], i)
	}
	assert.Zero(t, src.Remaining())
}

func TestSamplePlayer_noSource(t *testing.T) {
	g := newGraph(t, 1)
	complete(t, g, func(b *audiograph.CommandBlock) error {
		n, err := CreateSamplePlayer(b, 1)
		if err != nil {
			return err
		}
		_, err = b.Connect(n, 0, g.Root(), 0)
		return err
	})
	for _, v := range mix(t, g, 32) {
		require.Zero(t, v)
	}
}

func TestSliceProvider(t *testing.T) {
	p := NewSliceProvider([]float32{1, 2, 3, 4, 5}, 2, 44100, true)
	assert.Equal(t, 2, p.Channels())
	assert.Equal(t, 44100, p.SampleRate())
	// the trailing partial frame is dropped
	assert.Equal(t, 4, p.Remaining())

	dst := make([]float32, 6)
	assert.Equal(t, 6, p.Read(dst))
	assert.Equal(t, []float32{1, 2, 3, 4, 1, 2}, dst)
	assert.Equal(t, 2, p.Remaining())

	once := NewSliceProvider([]float32{1, 2}, 1, 44100, false)
	assert.Equal(t, 2, once.Read(dst))
	assert.Zero(t, once.Read(dst))

	empty := NewSliceProvider(nil, 1, 44100, true)
	assert.Zero(t, empty.Read(dst))

	assert.Panics(t, func() { NewSliceProvider(nil, 0, 44100, false) })
}

func TestPeakMeter(t *testing.T) {
	g := newGraph(t, 2)
	var meter audiograph.NodeHandle
	complete(t, g, func(b *audiograph.CommandBlock) error {
		src, err := CreateConstant(b, 2)
		if err != nil {
			return err
		}
		if meter, err = CreatePeakMeter(b, 2); err != nil {
			return err
		}
		if err := b.SetFloat(src, ConstantValue, -0.5); err != nil {
			return err
		}
		if err := b.AddFloatKey(src, ConstantValue, 48, 0.25); err != nil {
			return err
		}
		if _, err := b.Connect(src, 0, meter, 0); err != nil {
			return err
		}
		_, err = b.Connect(meter, 0, g.Root(), 0)
		return err
	})
	out := mix(t, g, 64)
	// passed through
	assert.Equal(t, float32(-0.5), out[0])
	assert.Equal(t, float32(0.25), out[len(out)-1])

	var peak float32
	var quanta uint64
	complete(t, g, func(b *audiograph.CommandBlock) error {
		_, err := b.CreateUpdateRequest(meter, audiograph.UpdateAs(func(m *PeakMeter) error {
			quanta = m.Quanta()
			peak = m.Reset()
			return nil
		}), func(r *audiograph.UpdateRequest) {
			assert.NoError(t, r.Err())
			assert.NoError(t, r.Dispose())
		})
		return err
	})
	mix(t, g, 32)
	assert.Equal(t, 1, g.Update())
	assert.Equal(t, float32(0.5), peak)
	assert.Equal(t, uint64(2), quanta)
}
