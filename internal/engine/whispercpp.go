//go:build whisper_cpp

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperpkg "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"murmur/internal/logging"
)

// nativeEngine is the whisper.cpp-backed implementation. The model is loaded
// once per resolved tier and reused across tasks; Infer is serialized because
// whisper.cpp crashes under concurrent processing on one model.
type nativeEngine struct {
	mu     sync.Mutex
	model  whisperpkg.Model
	opts   LoadOptions
	logger *slog.Logger
}

func newNativeEngine(opts LoadOptions, logger *slog.Logger) (Engine, error) {
	model, err := whisperpkg.New(opts.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", opts.ModelPath, err)
	}
	log := logging.NewComponentLogger(logger, "engine")
	log.Info("native engine loaded",
		logging.String(logging.FieldAccelerator, string(opts.Accelerator)),
		logging.String("model", opts.ModelPath),
		logging.String("library", opts.LibraryPath),
	)
	return &nativeEngine{model: model, opts: opts, logger: log}, nil
}

func (e *nativeEngine) Describe() string {
	return "whisper.cpp/" + string(e.opts.Accelerator)
}

func (e *nativeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model != nil {
		e.model.Close()
		e.model = nil
	}
	return nil
}

func (e *nativeEngine) Infer(ctx context.Context, samples []float32, params Params, onProgress ProgressFunc, onAbort AbortFunc) (Transcript, error) {
	if len(samples) == 0 {
		return Transcript{}, errors.New("no audio samples")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return Transcript{}, errors.New("engine closed")
	}
	if err := ctx.Err(); err != nil {
		return Transcript{}, err
	}

	wctx, err := e.model.NewContext()
	if err != nil {
		return Transcript{}, fmt.Errorf("create context: %w", err)
	}
	threads := params.Threads
	if threads > 0 {
		wctx.SetThreads(uint(threads))
	}
	lang := params.Language
	if lang == "" {
		lang = "auto"
	}
	if err := wctx.SetLanguage(lang); err != nil {
		return Transcript{}, fmt.Errorf("set language %q: %w", lang, err)
	}
	wctx.SetTranslate(params.Translate)
	wctx.SetTokenTimestamps(true)

	// The encoder-begin slot is whisper.cpp's abort poll: returning false
	// stops processing before the next encoder pass. The abort decision is
	// tracked here rather than inferred from the native return code, so an
	// abort is reported as ErrAborted no matter how the binding surfaces it.
	aborted := false
	encoderBegin := func() bool {
		if onAbort != nil && onAbort() {
			aborted = true
			return false
		}
		return true
	}
	progress := func(percent int) {
		if onProgress != nil {
			onProgress(percent)
		}
	}

	processErr := wctx.Process(samples, encoderBegin, nil, progress)
	if aborted {
		return Transcript{}, ErrAborted
	}
	if processErr != nil {
		return Transcript{}, fmt.Errorf("process audio: %w", processErr)
	}

	transcript := Transcript{Language: wctx.Language()}
	if transcript.Language == "" {
		transcript.Language = wctx.DetectedLanguage()
	}
	for {
		seg, err := wctx.NextSegment()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return transcript, fmt.Errorf("read segment: %w", err)
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		transcript.Segments = append(transcript.Segments, Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  text,
		})
	}
	return transcript, nil
}
