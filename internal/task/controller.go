package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"murmur/internal/engine"
	"murmur/internal/hostcaps"
	"murmur/internal/logging"
	"murmur/internal/resolve"
	"murmur/internal/services"
)

// ErrUnknownTask is returned when an id does not name the controller's
// current task.
var ErrUnknownTask = errors.New("unknown task id")

// EngineSource yields the resolved engine a task runs against. Implemented
// by *resolve.Resolver; tests substitute fakes.
type EngineSource interface {
	Resolve(desc hostcaps.Descriptor, preference []string) (*resolve.ResolvedEngine, error)
}

// eventBuffer bounds the per-task event channel. Progress events are dropped
// when the consumer lags; the terminal event is never dropped.
const eventBuffer = 64

type activeTask struct {
	id        string
	state     State
	createdAt time.Time
	percent   int
	backend   string

	// cancelRequested is monotonic: set once, never reset. The native
	// worker polls it through the shim while the controlling thread writes
	// it, hence atomics.
	cancelRequested atomic.Bool
	pauseRequested  atomic.Bool

	events chan Event
}

// Option configures optional controller behavior.
type Option func(*Controller)

// WithProbe overrides host capability probing, used by tests.
func WithProbe(probe func(*slog.Logger) hostcaps.Descriptor) Option {
	return func(c *Controller) {
		if probe != nil {
			c.probe = probe
		}
	}
}

// Controller owns at most one in-flight inference task and drives the engine
// through the boundary-safety protocol. State transitions happen under one
// mutex on the controlling side; the worker only touches the atomic flags
// and the finalize path.
type Controller struct {
	source     EngineSource
	params     engine.Params
	preference []string
	logger     *slog.Logger
	probe      func(*slog.Logger) hostcaps.Descriptor

	mu   sync.Mutex
	task *activeTask
}

// New constructs a controller over the given engine source.
func New(source EngineSource, params engine.Params, preference []string, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		source:     source,
		params:     params,
		preference: preference,
		logger:     logging.NewComponentLogger(logger, "task"),
		probe:      hostcaps.Probe,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start creates a new task over the provided audio and dispatches the native
// call to a worker goroutine. It returns immediately with the task id and
// its event stream; the channel is closed after the terminal event. Start is
// rejected while another task is active, and resolution failures surface
// before any task is created.
func (c *Controller) Start(ctx context.Context, samples []float32) (string, <-chan Event, error) {
	if len(samples) == 0 {
		return "", nil, services.Wrap(services.ErrValidation, "task", "start", "audio buffer is empty", nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.task != nil && !c.task.state.Terminal() {
		return "", nil, services.Wrap(services.ErrValidation, "task", "start",
			fmt.Sprintf("task %s is %s; cancel it before starting another", c.task.id, c.task.state), nil)
	}

	desc := c.probe(c.logger)
	resolved, err := c.source.Resolve(desc, c.preference)
	if err != nil {
		return "", nil, err
	}

	t := &activeTask{
		id:        uuid.NewString(),
		state:     StateRunning,
		createdAt: time.Now().UTC(),
		backend:   resolved.Engine.Describe(),
		events:    make(chan Event, eventBuffer),
	}
	c.task = t

	c.logger.Info("task started",
		logging.String(logging.FieldTaskID, t.id),
		logging.String(logging.FieldTier, string(resolved.Candidate.Tier)),
		logging.String("backend", t.backend),
		logging.Int("samples", len(samples)),
	)

	sh := newShim(c.logger, &t.cancelRequested, &t.pauseRequested, func(percent int) {
		c.deliverProgress(t, percent)
	})
	go c.runWorker(ctx, t, resolved.Engine, samples, sh)

	return t.id, t.events, nil
}

// Pause suppresses progress notifications for the running task. The native
// computation is not interrupted and still runs to completion; this is a
// documented limitation, not a defect.
func (c *Controller) Pause(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, err := c.current(id)
	if err != nil {
		return err
	}
	if t.state != StateRunning {
		return services.Wrap(services.ErrValidation, "task", "pause",
			fmt.Sprintf("cannot pause a %s task", t.state), nil)
	}
	t.pauseRequested.Store(true)
	c.setState(t, StatePaused)
	return nil
}

// Resume re-enables progress notifications for a paused task.
func (c *Controller) Resume(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, err := c.current(id)
	if err != nil {
		return err
	}
	if t.state != StatePaused {
		return services.Wrap(services.ErrValidation, "task", "resume",
			fmt.Sprintf("cannot resume a %s task", t.state), nil)
	}
	t.pauseRequested.Store(false)
	c.setState(t, StateRunning)
	return nil
}

// Cancel requests cooperative termination. The cancel flag is monotonic; the
// native engine observes it at its next abort-check poll, so cancellation
// latency is bounded by the engine's own polling cadence.
func (c *Controller) Cancel(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, err := c.current(id)
	if err != nil {
		return err
	}
	switch t.state {
	case StateRunning, StatePaused:
	case StateCancelling:
		return nil
	default:
		return services.Wrap(services.ErrValidation, "task", "cancel",
			fmt.Sprintf("cannot cancel a %s task", t.state), nil)
	}
	t.cancelRequested.Store(true)
	c.setState(t, StateCancelling)
	return nil
}

// Status returns a snapshot of the current task, or ok=false when the
// controller is idle.
func (c *Controller) Status() (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.task == nil {
		return Snapshot{State: StateIdle}, false
	}
	t := c.task
	return Snapshot{
		TaskID:    t.id,
		State:     t.state,
		Percent:   t.percent,
		CreatedAt: t.createdAt,
		Backend:   t.backend,
	}, true
}

func (c *Controller) current(id string) (*activeTask, error) {
	if c.task == nil || c.task.id != id {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	return c.task, nil
}

// setState transitions under c.mu and emits a state event for non-terminal
// moves. Terminal transitions go through finalize.
func (c *Controller) setState(t *activeTask, next State) {
	if !canTransition(t.state, next) {
		c.logger.Error("invalid state transition suppressed",
			logging.String(logging.FieldTaskID, t.id),
			logging.String("from", string(t.state)),
			logging.String("to", string(next)),
		)
		return
	}
	t.state = next
	c.logger.Info("task state changed",
		logging.String(logging.FieldTaskID, t.id),
		logging.String(logging.FieldState, string(next)),
	)
	c.send(t, Event{TaskID: t.id, Type: EventState, State: next, Percent: t.percent, At: time.Now().UTC()})
}

func (c *Controller) deliverProgress(t *activeTask, percent int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.state.Terminal() {
		return
	}
	t.percent = percent
	c.send(t, Event{TaskID: t.id, Type: EventProgress, State: t.state, Percent: percent, At: time.Now().UTC()})
}

// send delivers without blocking the native thread: progress and state
// events are dropped when the consumer lags. Terminal delivery uses
// sendTerminal, which never drops.
func (c *Controller) send(t *activeTask, evt Event) {
	select {
	case t.events <- evt:
	default:
	}
}

func (c *Controller) runWorker(ctx context.Context, t *activeTask, eng engine.Engine, samples []float32, sh *shim) {
	var (
		transcript engine.Transcript
		inferErr   error
	)
	func() {
		// A panic escaping the native entry point must terminate the task,
		// never the process.
		defer func() {
			if r := recover(); r != nil {
				inferErr = services.Wrap(services.ErrEngine, "engine", "infer",
					fmt.Sprintf("panic in native call path: %v", r), nil)
			}
		}()
		transcript, inferErr = eng.Infer(ctx, samples, c.params, sh.progress(), sh.abortCheck())
	}()
	c.finalize(t, transcript, inferErr)
}

// finalize inspects the native call's outcome together with the cancel flag
// and emits the single terminal event.
func (c *Controller) finalize(t *activeTask, transcript engine.Transcript, inferErr error) {
	c.mu.Lock()
	evt := Event{TaskID: t.id, Type: EventTerminal, Percent: t.percent, At: time.Now().UTC()}
	cancelled := t.cancelRequested.Load()

	switch {
	case inferErr == nil && !cancelled:
		t.state = StateCompleted
		evt.Transcript = &transcript
	case inferErr == nil && cancelled:
		// The native call finished before observing the abort request.
		// The cancel still wins, but the finished transcript is attached
		// so callers may keep the partial work.
		t.state = StateCancelled
		evt.Transcript = &transcript
	case errors.Is(inferErr, engine.ErrAborted) && cancelled:
		t.state = StateCancelled
	case errors.Is(inferErr, engine.ErrAborted) && !cancelled:
		// An abort status without a matching cancel request means the
		// engine self-terminated for an unmodeled reason. Detect it
		// explicitly instead of assuming it impossible.
		err := services.Wrap(services.ErrUnexpectedTermination, "task", "finalize",
			"native engine aborted without a cancel request", nil)
		t.state = StateFailed
		evt.FailureKind = services.FailureKind(err)
		evt.Error = err.Error()
	default:
		err := inferErr
		if !errors.Is(err, services.ErrEngine) {
			err = services.Wrap(services.ErrEngine, "engine", "infer", "native call failed", inferErr)
		}
		t.state = StateFailed
		evt.FailureKind = services.FailureKind(err)
		evt.Error = err.Error()
	}
	evt.State = t.state

	c.logger.Info("task finished",
		logging.String(logging.FieldTaskID, t.id),
		logging.String(logging.FieldState, string(t.state)),
		logging.Bool("cancel_requested", cancelled),
	)
	c.mu.Unlock()

	// Delivered outside the lock: the send may block on a slow consumer,
	// and Status or Cancel must stay responsive while it does. Consumers
	// read until close, so the terminal event is never lost.
	t.events <- evt
	close(t.events)
}
