package audiograph

import (
	"fmt"
)

// Mix renders interleaved output into out, which must hold a whole number
// of frames. As many quanta as needed are rendered. Samples of the last
// quantum that do not fit are kept for the next call, so the frame count may
// vary between calls.
//
// Mix is the render context. It must not be called concurrently with itself
// or with OutputMix, and returns ErrConcurrentRender if it is.
func (g *Graph) Mix(out []float32) error {
	if len(out)%g.cfg.channels != 0 {
		return fmt.Errorf("%w: %d samples for %d channels", ErrChannelLayout, len(out), g.cfg.channels)
	}
	if !g.rendering.CompareAndSwap(false, true) {
		return ErrConcurrentRender
	}
	defer g.rendering.Store(false)
	if g.disposed() {
		return ErrGraphDisposed
	}
	g.mix(out)
	return nil
}

func (g *Graph) mix(out []float32) {
	for len(out) != 0 {
		if g.stagingPos == len(g.staging) {
			g.renderQuantum()
			g.rootNode.job.ctx.Inputs[0].Interleave(g.staging)
			g.stagingPos = 0
		}
		n := copy(out, g.staging[g.stagingPos:])
		g.stagingPos += n
		out = out[n:]
	}
}

// AttachOutput initialises d for the graph's layout, and makes it the
// driver disposed with the graph. Any previously attached driver is
// disposed.
func (g *Graph) AttachOutput(d OutputDriver) error {
	if d == nil {
		return ErrNoOutput
	}
	if g.disposed() {
		return ErrGraphDisposed
	}
	if err := d.Initialize(g.cfg.channels, g.cfg.format, g.cfg.sampleRate, g.cfg.quantumSize); err != nil {
		g.log.outputError(`initialize`, err)
		return err
	}
	if prev := g.output.Swap(&outputHolder{driver: d}); prev != nil {
		prev.driver.Dispose()
	}
	return nil
}

// OutputMix renders frames frames and passes them to d, bracketed by
// BeginMix and EndMix. If d is nil the attached driver is used.
func (g *Graph) OutputMix(d OutputDriver, frames int) error {
	if d == nil {
		h := g.output.Load()
		if h == nil {
			return ErrNoOutput
		}
		d = h.driver
	}
	if frames < 0 {
		return fmt.Errorf("%w: negative frame count", ErrChannelLayout)
	}
	if !g.rendering.CompareAndSwap(false, true) {
		return ErrConcurrentRender
	}
	defer g.rendering.Store(false)
	if g.disposed() {
		return ErrGraphDisposed
	}

	size := frames * g.cfg.channels
	if cap(g.outScratch) < size {
		g.outScratch = make([]float32, size)
	}
	out := g.outScratch[:size]

	d.BeginMix(frames)
	g.mix(out)
	d.EndMix(out, frames)
	return nil
}
