//go:build !whisper_cpp

package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"murmur/internal/logging"
)

// stubEngine stands in for whisper.cpp when the project is built without
// cgo. It walks the same callback protocol as the native backend (progress
// reports, periodic abort polls) over a fixed number of steps and produces
// an empty transcript, so everything above the boundary behaves identically.
type stubEngine struct {
	mu   sync.Mutex
	opts LoadOptions
}

const (
	stubSteps = 20
	// stubSpeedup paces the walk at a fraction of the clip's real duration
	// so callers exercising pause and cancel have a window to act in.
	stubSpeedup = 4
)

func newNativeEngine(opts LoadOptions, logger *slog.Logger) (Engine, error) {
	logging.NewComponentLogger(logger, "engine").Warn("built without whisper_cpp; using stub engine",
		logging.String(logging.FieldAccelerator, string(opts.Accelerator)),
		logging.String(logging.FieldImpact, "inference produces no transcript text"),
	)
	return &stubEngine{opts: opts}, nil
}

func (e *stubEngine) Describe() string {
	return "stub/" + string(e.opts.Accelerator)
}

func (e *stubEngine) Close() error { return nil }

func (e *stubEngine) Infer(ctx context.Context, samples []float32, params Params, onProgress ProgressFunc, onAbort AbortFunc) (Transcript, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Transcript{}, err
	}

	clip := time.Duration(float64(len(samples)) / SampleRate * float64(time.Second))
	pause := clip / (stubSpeedup * stubSteps)
	if pause < time.Millisecond {
		pause = time.Millisecond
	}
	for step := 0; step <= stubSteps; step++ {
		if onAbort != nil && onAbort() {
			return Transcript{}, ErrAborted
		}
		if onProgress != nil {
			onProgress(step * 100 / stubSteps)
		}
		time.Sleep(pause)
	}

	lang := params.Language
	if lang == "" || lang == "auto" {
		lang = "en"
	}
	return Transcript{Language: lang}, nil
}
