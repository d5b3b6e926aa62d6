// Package audiograph implements a real-time audio processing graph, with
// lock-free command submission between a control context and a render
// context.
//
// # Architecture
//
// A [Graph] holds nodes, each backed by a [Kernel] registered with
// [RegisterKernel], wired together by connections between numbered ports.
// Every graph has a root node whose input is what the graph outputs.
//
// Mutations are recorded on a [CommandBlock], obtained from
// [Graph.NewCommandBlock], and enqueued as a unit by [CommandBlock.Complete].
// The render context applies completed blocks in order at the start of the
// next quantum, see [Graph.Mix] and [Graph.OutputMix]. Misuse detected at
// that point fails only the offending command, and is logged. With
// [WithStrictValidation] it panics instead.
//
// Parameters and connection attenuation may be set to a constant, or driven
// by timestamped interpolation keys, see [CommandBlock.AddFloatKey].
//
// # Thread Safety
//
// The graph is used from two contexts:
//   - The control context builds command blocks, and drains update request
//     completions via [Graph.Update] or [Graph.Dispatch]
//   - The render context renders quanta, and never waits on the control context
//
// A [Submitter] may be used to build command blocks from any number of
// goroutines, coalescing them into batches.
//
// # Update Requests
//
// Kernel state is owned by the render context. [CommandBlock.UpdateKernel] and
// [CommandBlock.CreateUpdateRequest] run a function against the live kernel
// on the render path, see also [UpdateAs]. Update functions must not
// allocate.
package audiograph
