package engine

import (
	"context"
	"errors"
	"time"
)

// SampleRate is the PCM sample rate every engine tier expects.
const SampleRate = 16000

// ErrAborted is the distinguished status for a native call that terminated
// early because the abort check returned true. It is deliberately not an
// engine failure; the task controller decides how to classify it.
var ErrAborted = errors.New("inference aborted at abort check")

// Params configures one inference call.
type Params struct {
	Language  string
	Threads   int
	Translate bool
}

// Segment is one timed span of recognized speech.
type Segment struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Text  string        `json:"text"`
}

// Transcript is the terminal result of a successful inference call.
type Transcript struct {
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

// Text joins the segment texts into a single string.
func (t Transcript) Text() string {
	var out string
	for i, seg := range t.Segments {
		if i > 0 {
			out += " "
		}
		out += seg.Text
	}
	return out
}

// ProgressFunc receives percent complete in [0,100]. Its return is void on
// purpose: progress must never carry control flow back into the native call.
type ProgressFunc func(percent int)

// AbortFunc is polled by the native engine at its own cadence. Returning true
// asks the engine to terminate early; Infer then returns ErrAborted.
type AbortFunc func() bool

// Engine is an owned wrapper around one loaded native binary. Infer blocks
// for the duration of the native call and is expected to run on a dedicated
// worker goroutine. Implementations serialize Infer internally; the task
// controller additionally guarantees a single in-flight call.
type Engine interface {
	// Infer runs recognition over mono 16 kHz float32 PCM. The context is
	// consulted only between native invocations; cancellation mid-call is
	// cooperative via onAbort.
	Infer(ctx context.Context, samples []float32, params Params, onProgress ProgressFunc, onAbort AbortFunc) (Transcript, error)
	// Describe names the loaded backend for logs and diagnostics.
	Describe() string
	Close() error
}
