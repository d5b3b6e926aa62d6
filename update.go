package audiograph

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// UpdateFunc is applied to a node's live kernel on the render path. It must
// not block, and must not allocate.
type UpdateFunc func(k Kernel) error

// UpdateAs adapts fn, written for kernel type K, to an UpdateFunc. The
// resulting function returns ErrKernelMismatch if the node runs a different
// kernel type.
func UpdateAs[K any](fn func(k *K) error) UpdateFunc {
	if fn == nil {
		panic(`audiograph: nil update function`)
	}
	return func(k Kernel) error {
		v, ok := any(k).(*K)
		if !ok {
			return fmt.Errorf("%w: got %T", ErrKernelMismatch, k)
		}
		return fn(v)
	}
}

// Update request states.
const (
	requestPending uint32 = iota
	requestScheduled
	requestCompleted
)

// UpdateRequest tracks an update function applied on the render path, whose
// completion is delivered to the control side by Graph.Update.
type UpdateRequest struct {
	err      error
	graph    *Graph
	callback func(*UpdateRequest)
	done     chan struct{}
	handle   UpdateRequestHandle
	node     NodeHandle
	state    atomic.Uint32
}

// Handle identifies the request until it is disposed.
func (x *UpdateRequest) Handle() UpdateRequestHandle {
	return x.handle
}

// Node is the target node.
func (x *UpdateRequest) Node() NodeHandle {
	return x.node
}

// Done is closed once Graph.Update has delivered the request's completion.
func (x *UpdateRequest) Done() <-chan struct{} {
	return x.done
}

// HasCompleted reports whether the completion has been delivered.
func (x *UpdateRequest) HasCompleted() bool {
	return x.state.Load() == requestCompleted
}

// Err returns the update function's error, ErrStaleHandle if the node was
// gone, or ErrRequestCanceled if the request never ran. It is nil until the
// request completes.
func (x *UpdateRequest) Err() error {
	if !x.HasCompleted() {
		return nil
	}
	return x.err
}

// Dispose frees the request's handle. It fails with ErrRequestPending
// until the request has completed.
func (x *UpdateRequest) Dispose() error {
	if !x.HasCompleted() {
		return ErrRequestPending
	}
	if x.graph != nil {
		x.graph.requests.free(x.handle.Index)
		x.graph = nil
	}
	return nil
}

func (g *Graph) newUpdateRequest(n NodeHandle, fn UpdateFunc, callback func(*UpdateRequest)) *UpdateRequest {
	return &UpdateRequest{
		graph:    g,
		callback: callback,
		done:     make(chan struct{}),
		handle:   UpdateRequestHandle{g.requests.allocate()},
		node:     n,
	}
}

// completeRequest is called on the render path, once the update function
// has run.
func (g *Graph) completeRequest(r *UpdateRequest, err error) {
	r.err = err
	r.state.Store(requestScheduled)
	g.completed.Enqueue(r)
	g.signalCompletion()
}

// cancelRequest completes a request whose command was cancelled.
func (g *Graph) cancelRequest(r *UpdateRequest) {
	g.completeRequest(r, ErrRequestCanceled)
}

// signalCompletion wakes Dispatch, without blocking. Dropped signals are
// harmless, since Update drains every queued completion.
func (g *Graph) signalCompletion() {
	select {
	case g.completions <- struct{}{}:
	default:
	}
}

// Update delivers every completed update request: each is marked complete,
// its Done channel is closed, and its callback, if any, is called. It
// returns the number of requests delivered. Update belongs to the control
// context.
func (g *Graph) Update() int {
	var count int
	for {
		r, ok := g.completed.TryDequeue()
		if !ok {
			return count
		}
		count++
		r.state.Store(requestCompleted)
		close(r.done)
		if r.err != nil && !errors.Is(r.err, ErrRequestCanceled) {
			g.log.updateFailed(r.node, r.err)
		}
		if cb := r.callback; cb != nil {
			r.callback = nil
			cb(r)
		}
	}
}
