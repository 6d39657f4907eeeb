// Package task supervises a single long-running native inference call.
//
// The controller owns at most one in-flight task, exposes start, pause,
// resume, and cancel to the surrounding application, and emits a stream of
// progress events followed by exactly one terminal event. Pause only
// suppresses progress notifications; the native computation keeps running.
// Cancellation is cooperative: the native engine polls the abort check at its
// own cadence, so latency is bounded by that cadence rather than a hard
// interrupt.
//
// The boundary shim in this package guarantees that nothing invoked by native
// code can unwind back across the call boundary: callbacks are recover-wrapped
// and translate controller state into plain return values.
package task
