package audiograph

import (
	"context"
	"time"
)

// DispatchConfig models optional configuration for Graph.Dispatch.
type DispatchConfig struct {
	// MaxSize is the maximum number of completion signals coalesced into one
	// Update call. Setting this to a value < 0 disables the limit.
	//
	// Defaults to 16, if 0.
	MaxSize int

	// MinSize is the (target) minimum number of signals to wait for before
	// calling Update. Once PartialTimeout elapses after the first signal,
	// Update is called regardless.
	//
	// Defaults to 1, if 0.
	MinSize int

	// PartialTimeout is the maximum time to wait for MinSize signals, after
	// the first.
	//
	// Defaults to 10ms, if 0.
	PartialTimeout time.Duration
}

// Dispatch runs the control side of update request delivery: it waits for
// the render path to signal completions, coalescing them per cfg, and calls
// Update for each batch. It returns the context's error once ctx is done,
// or ErrGraphDisposed once the graph is disposed.
//
// Dispatch counts as the control context for Update, so callbacks run on
// its goroutine. The cfg parameter may be nil.
func (g *Graph) Dispatch(ctx context.Context, cfg *DispatchConfig) error {
	if ctx == nil {
		panic(`audiograph: nil context`)
	}

	maxSize := 16
	minSize := 1
	partialTimeout := 10 * time.Millisecond
	if cfg != nil {
		if cfg.MaxSize != 0 {
			maxSize = cfg.MaxSize
		}
		if cfg.MinSize != 0 {
			minSize = cfg.MinSize
		}
		if cfg.PartialTimeout != 0 {
			partialTimeout = cfg.PartialTimeout
		}
	}

	// completions queued before the call
	g.Update()

	for {
		if err := g.awaitCompletions(ctx, maxSize, minSize, partialTimeout); err != nil {
			// deliver whatever arrived before stopping
			g.Update()
			return err
		}
		g.Update()
	}
}

// awaitCompletions receives at least one signal, up to minSize within the
// partial timeout, then whatever else is immediately available, up to
// maxSize.
func (g *Graph) awaitCompletions(ctx context.Context, maxSize, minSize int, partialTimeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var (
		partialTimeoutCh <-chan time.Time
		size             int
	)

MinSizeLoop:
	for (maxSize < 0 || size < maxSize) && (size == 0 || size < minSize) {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-g.done:
			return ErrGraphDisposed

		case <-partialTimeoutCh:
			break MinSizeLoop

		case <-g.completions:
			size++
			if size == 1 && partialTimeout > 0 {
				timer := time.NewTimer(partialTimeout)
				//goland:noinspection GoDeferInLoop
				defer timer.Stop()
				partialTimeoutCh = timer.C
			}
		}
	}

MaxSizeLoop:
	for maxSize < 0 || size < maxSize {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-g.completions:
			size++

		default:
			break MaxSizeLoop
		}
	}

	return ctx.Err()
}
