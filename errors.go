package audiograph

import (
	"errors"
	"fmt"
)

// Misuse errors. Those raised while building a command block are returned
// directly; those detected when a command is scheduled on the render path are
// wrapped in a *CommandError and reported through the logger (or panic, with
// strict validation).
var (
	// ErrStaleHandle is returned when a handle's generation no longer
	// matches its slot, usually because the node or connection was released.
	ErrStaleHandle = errors.New("audiograph: stale or invalid handle")

	// ErrParameterIndex indicates a parameter index outside the kernel's
	// parameter table.
	ErrParameterIndex = errors.New("audiograph: parameter index out of range")

	// ErrProviderSlot indicates a sample provider slot index outside the
	// kernel's provider table.
	ErrProviderSlot = errors.New("audiograph: sample provider slot out of range")

	// ErrProviderShape indicates an operation that does not fit the slot's
	// shape, such as inserting into a fixed-size array.
	ErrProviderShape = errors.New("audiograph: operation does not match sample provider slot shape")

	// ErrProviderIndex indicates an element index outside a provider slot.
	ErrProviderIndex = errors.New("audiograph: sample provider index out of range")

	// ErrPortIndex indicates a port index outside the node's port list.
	ErrPortIndex = errors.New("audiograph: port index out of range")

	// ErrChannelMismatch indicates an attenuation whose component count
	// does not fit the destination port.
	ErrChannelMismatch = errors.New("audiograph: attenuation does not match port channel count")

	// ErrChannelLayout is returned when an output buffer is not a whole
	// number of frames of the graph's channel layout.
	ErrChannelLayout = errors.New("audiograph: buffer is not a multiple of the channel count")

	// ErrPortAfterRun indicates an attempt to add a port to a node that has
	// already produced samples.
	ErrPortAfterRun = errors.New("audiograph: cannot add ports after the node has run")

	// ErrKeyOrder indicates an interpolation key that is not strictly later
	// than the last key of the chain.
	ErrKeyOrder = errors.New("audiograph: interpolation key out of order")

	// ErrComponentCount indicates an attenuation with no components, or more
	// than MaxAttenuationComponents.
	ErrComponentCount = errors.New("audiograph: invalid attenuation component count")

	// ErrCycle indicates a connection that would make the graph cyclic.
	ErrCycle = errors.New("audiograph: connection would create a cycle")

	// ErrRootNode indicates an operation that is not allowed on the root.
	ErrRootNode = errors.New("audiograph: operation not allowed on the root node")

	// ErrNotConnected indicates a disconnect of ports that are not
	// connected.
	ErrNotConnected = errors.New("audiograph: ports are not connected")

	// ErrKernelMismatch indicates an update function written for a
	// different kernel type than the node's.
	ErrKernelMismatch = errors.New("audiograph: kernel type does not match node")

	// ErrInvalidKernelType indicates a nil or unregistered kernel type.
	ErrInvalidKernelType = errors.New("audiograph: invalid kernel type")

	// ErrInvalidChannelCount indicates a port with no channels.
	ErrInvalidChannelCount = errors.New("audiograph: invalid channel count")

	// ErrBlockCompleted is returned when a command block is used after
	// Complete or Cancel.
	ErrBlockCompleted = errors.New("audiograph: command block already completed")

	// ErrGraphDisposed is returned once the graph has been disposed.
	ErrGraphDisposed = errors.New("audiograph: graph disposed")

	// ErrRequestPending is returned when disposing an update request that
	// the render path has not completed.
	ErrRequestPending = errors.New("audiograph: update request has not completed")

	// ErrRequestCanceled is the result of an update request whose block was
	// cancelled, or discarded when the graph was disposed.
	ErrRequestCanceled = errors.New("audiograph: update request canceled")

	// ErrNoOutput is returned by OutputMix when no driver is attached.
	ErrNoOutput = errors.New("audiograph: no output driver attached")

	// ErrConcurrentRender indicates two goroutines rendering at once.
	ErrConcurrentRender = errors.New("audiograph: concurrent render")
)

// CommandError describes a command that failed validation when it was
// scheduled. A failed command is disposed and skipped. The rest of its block
// and the quantum continue.
type CommandError struct {
	Err  error
	Op   string
	Node NodeHandle
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	if e.Node.Valid() {
		return fmt.Sprintf("audiograph: %s (node %d/%d): %v", e.Op, e.Node.Index, e.Node.Generation, e.Err)
	}
	return fmt.Sprintf("audiograph: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying misuse error.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// FatalError is the panic value for unrecoverable defects: mismatched kernel
// registrations, allocator misuse and render re-entrancy.
type FatalError struct {
	Cause   error
	Message string
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	if e.Cause != nil {
		return "audiograph: fatal: " + e.Message + ": " + e.Cause.Error()
	}
	return "audiograph: fatal: " + e.Message
}

// Unwrap returns the cause, if any.
func (e *FatalError) Unwrap() error {
	return e.Cause
}

func fatalf(cause error, format string, args ...any) {
	panic(&FatalError{Cause: cause, Message: fmt.Sprintf(format, args...)})
}
