package audiograph

import (
	"context"
	"errors"
	"sync"
	"time"
)

type (
	// SubmitterConfig models optional configuration, for Graph.NewSubmitter.
	SubmitterConfig struct {
		// MaxSize restricts the maximum number of build functions per block,
		// if positive.
		// **Defaults to 16, if 0, or SubmitterConfig is nil.**
		MaxSize int

		// FlushInterval specifies the maximum duration before an incomplete
		// block is completed, if positive.
		// **Defaults to 5ms, if 0, or SubmitterConfig is nil.**
		// If MaxSize is specified, time-based flushing can be disabled, by
		// setting this <= 0.
		FlushInterval time.Duration
	}

	// BuildFunc records commands into a block shared with other submissions.
	// If it returns an error, the commands it recorded are cancelled, and the
	// rest of the block is unaffected.
	BuildFunc func(b *CommandBlock) error

	// Submitter coalesces commands from many goroutines into shared command
	// blocks, so the render path applies them together. Instances must be
	// initialized using Graph.NewSubmitter.
	Submitter struct {
		graph         *Graph
		maxSize       int
		flushInterval time.Duration
		ctx           context.Context
		cancel        context.CancelFunc
		done          chan struct{}
		stopped       chan struct{}
		stopOnce      sync.Once
		jobCh         chan *submitJob   // sent on Submit (ping)
		batchCh       chan *submitBatch // received on Submit (pong)
		batch         *submitBatch      // pending batch, also used for result
	}

	submitBatch struct {
		err  error
		done chan struct{}
		jobs []*submitJob
	}

	submitJob struct {
		err error
		fn  BuildFunc
	}

	// SubmitResult models a scheduled BuildFunc.
	SubmitResult struct {
		job   *submitJob
		batch *submitBatch
	}
)

// NewSubmitter starts a Submitter. The provided config may be nil. A panic
// will occur if both MaxSize and FlushInterval are disabled.
//
// Close and/or Shutdown should be called when the Submitter is no longer
// needed.
func (g *Graph) NewSubmitter(config *SubmitterConfig) *Submitter {
	x := Submitter{
		graph:         g,
		maxSize:       16,
		flushInterval: 5 * time.Millisecond,
		batch:         newSubmitBatch(),
		done:          make(chan struct{}),
		stopped:       make(chan struct{}),
		jobCh:         make(chan *submitJob),
		batchCh:       make(chan *submitBatch),
	}

	if config != nil {
		if config.MaxSize != 0 {
			x.maxSize = config.MaxSize
		}
		if config.FlushInterval != 0 {
			x.flushInterval = config.FlushInterval
		}
	}

	if x.flushInterval <= 0 && x.maxSize <= 0 {
		panic(`audiograph: one of MaxSize or FlushInterval must be specified`)
	}

	x.ctx, x.cancel = context.WithCancel(context.Background())

	go x.run()

	return &x
}

// Submit schedules fn to be recorded into the next block, returning an
// error if ctx is canceled, or the Submitter is stopped. SubmitResult.Wait
// reports the outcome.
func (x *Submitter) Submit(ctx context.Context, fn BuildFunc) (*SubmitResult, error) {
	if fn == nil {
		panic(`audiograph: nil build function`)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := x.ctx.Err(); err != nil {
		return nil, err
	}

	job := &submitJob{fn: fn}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()

	case <-x.ctx.Done():
		return nil, x.ctx.Err()

	case <-x.stopped:
		return nil, context.Canceled

	case x.jobCh <- job: // ping
		batch := <-x.batchCh // pong
		return &SubmitResult{job: job, batch: batch}, nil
	}
}

// Shutdown prevents further submissions, then waits for every scheduled
// function to be recorded and its block completed. An error is returned if
// ctx is canceled prior to this, causing a forced Close.
func (x *Submitter) Shutdown(ctx context.Context) (err error) {
	x.stop()

	select {
	case <-ctx.Done():
		if x.ctx.Err() == nil {
			err = ctx.Err()
		}
		x.cancel()
		<-x.done
	case <-x.done:
	}

	return err
}

// Close cancels every pending submission, and prevents further ones,
// blocking until the Submitter has stopped.
func (x *Submitter) Close() error {
	x.cancel()
	<-x.done
	return nil
}

func (x *Submitter) stop() {
	x.stopOnce.Do(func() {
		close(x.stopped)
	})
}

func (x *Submitter) run() {
	defer close(x.done)
	defer x.cancel()

	// pending batches are cancelled on forced close
	defer func() {
		x.batch.cancel(x.ctx.Err())
	}()

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	flush := func() {
		timerCh = nil
		if len(x.batch.jobs) == 0 {
			return
		}
		batch := x.batch
		x.batch = newSubmitBatch()
		batch.run(x.graph)
	}

	for {
		select {
		case <-x.ctx.Done():
			return

		case <-x.stopped:
			// note: there won't be any more jobs coming
			flush()
			return

		case job := <-x.jobCh: // ping
			x.batchCh <- x.batch // pong

			x.batch.jobs = append(x.batch.jobs, job)

			if x.maxSize > 0 && len(x.batch.jobs) >= x.maxSize {
				if timerCh != nil {
					timer.Stop()
				}
				flush()
			} else if x.flushInterval > 0 && len(x.batch.jobs) == 1 {
				// first job -> start the timer for flush
				if timer == nil {
					timer = time.NewTimer(x.flushInterval)
				} else {
					timer.Reset(x.flushInterval)
				}
				timerCh = timer.C
			}

		case <-timerCh:
			flush()
		}
	}
}

func newSubmitBatch() *submitBatch {
	return &submitBatch{done: make(chan struct{})}
}

// run records every job into one block, rolling back the commands of any
// job that fails, then completes the block.
func (x *submitBatch) run(g *Graph) {
	x.err = errors.New(`audiograph: panic in BuildFunc`)
	defer close(x.done)

	b := g.NewCommandBlock()
	for _, job := range x.jobs {
		mark := b.mark()
		if job.err = job.fn(b); job.err != nil {
			b.rollback(mark)
		}
	}

	if b.Len() == 0 {
		b.Cancel()
		x.err = nil
		return
	}
	x.err = b.Complete()
}

func (x *submitBatch) cancel(err error) {
	if len(x.jobs) == 0 {
		return
	}
	if err == nil {
		err = context.Canceled
	}
	x.err = err
	close(x.done)
}

// Wait for the submission's block to be completed. The BuildFunc's own
// error takes precedence over the block's.
func (x *SubmitResult) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()

	case <-x.batch.done:
		if x.job.err != nil {
			return x.job.err
		}
		return x.batch.err
	}
}
