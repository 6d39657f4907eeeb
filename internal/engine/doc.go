// Package engine wraps one loaded native speech-recognition binary behind a
// single blocking inference entry point with two callback slots: progress and
// abort-check. The real backend is whisper.cpp behind the whisper_cpp build
// tag; the default build uses a deterministic stub so the rest of the system
// compiles and tests without cgo.
//
// Callbacks passed to Infer are invoked from the native call's thread. They
// must never panic; the task package's boundary shim enforces that before the
// callbacks reach this package.
package engine
