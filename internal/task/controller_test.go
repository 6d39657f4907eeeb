package task

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"murmur/internal/engine"
	"murmur/internal/hostcaps"
	"murmur/internal/logging"
	"murmur/internal/resolve"
	"murmur/internal/services"
)

// scriptedEngine runs an arbitrary body in place of a native call.
type scriptedEngine struct {
	run func(onProgress engine.ProgressFunc, onAbort engine.AbortFunc) (engine.Transcript, error)
}

func (e *scriptedEngine) Infer(_ context.Context, _ []float32, _ engine.Params, onProgress engine.ProgressFunc, onAbort engine.AbortFunc) (engine.Transcript, error) {
	return e.run(onProgress, onAbort)
}

func (e *scriptedEngine) Describe() string { return "scripted" }
func (e *scriptedEngine) Close() error     { return nil }

type fakeSource struct {
	engine engine.Engine
	err    error
}

func (s *fakeSource) Resolve(hostcaps.Descriptor, []string) (*resolve.ResolvedEngine, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &resolve.ResolvedEngine{
		Candidate: resolve.Candidate{ID: "test-cpu", Tier: resolve.TierFallback, Accelerator: hostcaps.AccelNone},
		LoadedAt:  time.Now().UTC(),
		Engine:    s.engine,
	}, nil
}

func cpuOnlyProbe(*slog.Logger) hostcaps.Descriptor {
	return hostcaps.Descriptor{
		Platform:     "linux",
		Arch:         "amd64",
		Accelerators: hostcaps.NewAcceleratorSet(),
	}
}

func newTestController(eng engine.Engine) *Controller {
	return New(&fakeSource{engine: eng}, engine.Params{Language: "auto", Threads: 1},
		nil, logging.NewNop(), WithProbe(cpuOnlyProbe))
}

// drain collects every event until the stream closes and returns the
// terminal one.
func drain(t *testing.T, events <-chan Event) (Event, []Event) {
	t.Helper()
	var all []Event
	for evt := range events {
		all = append(all, evt)
	}
	if len(all) == 0 {
		t.Fatal("event stream closed without a terminal event")
	}
	last := all[len(all)-1]
	if last.Type != EventTerminal {
		t.Fatalf("last event has type %s, want terminal", last.Type)
	}
	return last, all
}

func TestStartRunsToCompletion(t *testing.T) {
	eng := &scriptedEngine{run: func(onProgress engine.ProgressFunc, onAbort engine.AbortFunc) (engine.Transcript, error) {
		for _, p := range []int{25, 50, 75, 100} {
			if onAbort() {
				return engine.Transcript{}, engine.ErrAborted
			}
			onProgress(p)
		}
		return engine.Transcript{Language: "en", Segments: []engine.Segment{{Text: "hello"}}}, nil
	}}
	ctrl := newTestController(eng)

	id, events, err := ctrl.Start(context.Background(), []float32{0.1, 0.2})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty task id")
	}

	terminal, all := drain(t, events)
	if terminal.State != StateCompleted {
		t.Fatalf("terminal state = %s, want completed", terminal.State)
	}
	if terminal.Transcript == nil || len(terminal.Transcript.Segments) != 1 {
		t.Fatalf("terminal event carries transcript %+v, want one segment", terminal.Transcript)
	}
	var sawProgress bool
	for _, evt := range all {
		if evt.Type == EventProgress {
			sawProgress = true
		}
		if evt.TaskID != id {
			t.Fatalf("event for task %q, want %q", evt.TaskID, id)
		}
	}
	if !sawProgress {
		t.Fatal("no progress events observed")
	}
}

func TestCancelAbortsNativeCall(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	eng := &scriptedEngine{run: func(_ engine.ProgressFunc, onAbort engine.AbortFunc) (engine.Transcript, error) {
		close(started)
		<-release
		if onAbort() {
			return engine.Transcript{}, engine.ErrAborted
		}
		return engine.Transcript{}, nil
	}}
	ctrl := newTestController(eng)

	id, events, err := ctrl.Start(context.Background(), []float32{0.1})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	<-started
	if err := ctrl.Cancel(id); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	// A second cancel of a cancelling task is a no-op, not an error.
	if err := ctrl.Cancel(id); err != nil {
		t.Fatalf("repeated cancel failed: %v", err)
	}
	close(release)

	terminal, _ := drain(t, events)
	if terminal.State != StateCancelled {
		t.Fatalf("terminal state = %s, want cancelled", terminal.State)
	}
	if terminal.Error != "" {
		t.Fatalf("cancelled task carries error %q", terminal.Error)
	}
}

func TestCancelFromPausedBlocksResume(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	eng := &scriptedEngine{run: func(onProgress engine.ProgressFunc, onAbort engine.AbortFunc) (engine.Transcript, error) {
		close(started)
		<-release
		onProgress(50)
		if onAbort() {
			return engine.Transcript{}, engine.ErrAborted
		}
		return engine.Transcript{}, nil
	}}
	ctrl := newTestController(eng)

	id, events, err := ctrl.Start(context.Background(), []float32{0.1})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	<-started
	if err := ctrl.Pause(id); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if err := ctrl.Cancel(id); err != nil {
		t.Fatalf("cancel from paused failed: %v", err)
	}
	// Cancellation wins over a late resume; the task can no longer return
	// to running.
	if err := ctrl.Resume(id); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("resume after cancel: err = %v, want validation error", err)
	}
	close(release)

	terminal, all := drain(t, events)
	if terminal.State != StateCancelled {
		t.Fatalf("terminal state = %s, want cancelled", terminal.State)
	}
	for _, evt := range all {
		if evt.Type == EventProgress {
			t.Fatalf("progress event delivered after pause: %+v", evt)
		}
		if evt.Type == EventState && evt.State == StateRunning {
			t.Fatalf("task returned to running after cancel: %+v", evt)
		}
	}
}

func TestAbortWithoutCancelIsUnexpectedTermination(t *testing.T) {
	eng := &scriptedEngine{run: func(engine.ProgressFunc, engine.AbortFunc) (engine.Transcript, error) {
		return engine.Transcript{}, engine.ErrAborted
	}}
	ctrl := newTestController(eng)

	_, events, err := ctrl.Start(context.Background(), []float32{0.1})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	terminal, _ := drain(t, events)
	if terminal.State != StateFailed {
		t.Fatalf("terminal state = %s, want failed", terminal.State)
	}
	if terminal.FailureKind != "unexpected_termination" {
		t.Fatalf("failure kind = %q, want unexpected_termination", terminal.FailureKind)
	}
}

func TestSuccessAfterCancelIsCancelledWithTranscript(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	eng := &scriptedEngine{run: func(engine.ProgressFunc, engine.AbortFunc) (engine.Transcript, error) {
		close(started)
		<-release
		// Finished before the abort poll, so the result is complete.
		return engine.Transcript{Language: "en", Segments: []engine.Segment{{Text: "done"}}}, nil
	}}
	ctrl := newTestController(eng)

	id, events, err := ctrl.Start(context.Background(), []float32{0.1})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	<-started
	if err := ctrl.Cancel(id); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	close(release)

	terminal, _ := drain(t, events)
	if terminal.State != StateCancelled {
		t.Fatalf("terminal state = %s, want cancelled", terminal.State)
	}
	if terminal.Transcript == nil || len(terminal.Transcript.Segments) != 1 {
		t.Fatal("finished transcript was dropped on late cancel")
	}
}

func TestSecondStartRejectedWhileRunning(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	eng := &scriptedEngine{run: func(engine.ProgressFunc, engine.AbortFunc) (engine.Transcript, error) {
		close(started)
		<-release
		return engine.Transcript{}, nil
	}}
	ctrl := newTestController(eng)

	id, events, err := ctrl.Start(context.Background(), []float32{0.1})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	<-started

	if _, _, err := ctrl.Start(context.Background(), []float32{0.2}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("second start returned %v, want validation error", err)
	}

	snap, ok := ctrl.Status()
	if !ok || snap.TaskID != id || snap.State != StateRunning {
		t.Fatalf("first task disturbed by rejected start: %+v", snap)
	}
	close(release)
	if terminal, _ := drain(t, events); terminal.State != StateCompleted {
		t.Fatalf("terminal state = %s, want completed", terminal.State)
	}

	// Once the first task is terminal, a new start succeeds.
	_, events, err = ctrl.Start(context.Background(), []float32{0.3})
	if err != nil {
		t.Fatalf("start after completion failed: %v", err)
	}
	drain(t, events)
}

func TestPauseSuppressesProgressAndCompletionStillFires(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	eng := &scriptedEngine{run: func(onProgress engine.ProgressFunc, _ engine.AbortFunc) (engine.Transcript, error) {
		onProgress(10)
		close(started)
		<-release
		onProgress(90)
		return engine.Transcript{Language: "en"}, nil
	}}
	ctrl := newTestController(eng)

	id, events, err := ctrl.Start(context.Background(), []float32{0.1})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	<-started
	if err := ctrl.Pause(id); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if err := ctrl.Pause(id); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("pausing a paused task returned %v, want validation error", err)
	}
	close(release)

	terminal, all := drain(t, events)
	if terminal.State != StateCompleted {
		t.Fatalf("terminal state = %s, want completed even while paused", terminal.State)
	}
	for _, evt := range all {
		if evt.Type == EventProgress && evt.Percent == 90 {
			t.Fatal("progress emitted while paused")
		}
	}
}

func TestResumeRestoresProgress(t *testing.T) {
	started := make(chan struct{})
	paused := make(chan struct{})
	resumed := make(chan struct{})
	eng := &scriptedEngine{run: func(onProgress engine.ProgressFunc, _ engine.AbortFunc) (engine.Transcript, error) {
		close(started)
		<-paused
		onProgress(50)
		<-resumed
		onProgress(80)
		return engine.Transcript{}, nil
	}}
	ctrl := newTestController(eng)

	id, events, err := ctrl.Start(context.Background(), []float32{0.1})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	<-started
	if err := ctrl.Pause(id); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	close(paused)
	if err := ctrl.Resume(id); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	close(resumed)

	_, all := drain(t, events)
	var saw80 bool
	for _, evt := range all {
		if evt.Type == EventProgress && evt.Percent == 80 {
			saw80 = true
		}
	}
	if !saw80 {
		t.Fatal("progress after resume was not delivered")
	}
}

func TestEnginePanicBecomesFailedTask(t *testing.T) {
	eng := &scriptedEngine{run: func(engine.ProgressFunc, engine.AbortFunc) (engine.Transcript, error) {
		panic("native library fault")
	}}
	ctrl := newTestController(eng)

	_, events, err := ctrl.Start(context.Background(), []float32{0.1})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	terminal, _ := drain(t, events)
	if terminal.State != StateFailed {
		t.Fatalf("terminal state = %s, want failed", terminal.State)
	}
	if terminal.FailureKind != "engine_error" {
		t.Fatalf("failure kind = %q, want engine_error", terminal.FailureKind)
	}
}

func TestStartRejectsEmptyAudio(t *testing.T) {
	ctrl := newTestController(&scriptedEngine{})
	if _, _, err := ctrl.Start(context.Background(), nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("empty audio returned %v, want validation error", err)
	}
}

func TestStartSurfacesResolutionFailure(t *testing.T) {
	srcErr := services.Wrap(services.ErrResolution, "resolve", "walk", "no usable engine binary", nil)
	ctrl := New(&fakeSource{err: srcErr}, engine.Params{}, nil, logging.NewNop(), WithProbe(cpuOnlyProbe))

	_, _, err := ctrl.Start(context.Background(), []float32{0.1})
	if !errors.Is(err, services.ErrResolution) {
		t.Fatalf("start returned %v, want resolution error", err)
	}
	if _, ok := ctrl.Status(); ok {
		t.Fatal("task created despite resolution failure")
	}
}

func TestControlsRejectUnknownID(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	eng := &scriptedEngine{run: func(engine.ProgressFunc, engine.AbortFunc) (engine.Transcript, error) {
		close(started)
		<-release
		return engine.Transcript{}, nil
	}}
	ctrl := newTestController(eng)
	_, events, err := ctrl.Start(context.Background(), []float32{0.1})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	<-started
	defer func() {
		close(release)
		drain(t, events)
	}()

	if err := ctrl.Pause("not-a-task"); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("pause returned %v, want unknown task", err)
	}
	if err := ctrl.Resume("not-a-task"); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("resume returned %v, want unknown task", err)
	}
	if err := ctrl.Cancel("not-a-task"); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("cancel returned %v, want unknown task", err)
	}
}
