package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"

	"murmur/internal/config"
	"murmur/internal/diagstore"
	"murmur/internal/engine"
	"murmur/internal/hostcaps"
	"murmur/internal/language"
	"murmur/internal/logging"
	"murmur/internal/resolve"
	"murmur/internal/services"
	"murmur/internal/task"
)

// Daemon coordinates the resolver, controller, API server, and resource
// watcher, and enforces single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *diagstore.Store
	resolver   *resolve.Resolver
	controller *task.Controller
	hub        *eventHub
	api        *apiServer
	watcher    *resourceWatcher

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	mu                sync.Mutex
	taskActive        bool
	taskStartedAt     time.Time
	invalidatePending bool
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool           `json:"running"`
	PID           int            `json:"pid"`
	LockFilePath  string         `json:"lock_file_path"`
	DiagnosticsDB string         `json:"diagnostics_db,omitempty"`
	Backend       string         `json:"backend,omitempty"`
	Task          *task.Snapshot `json:"task,omitempty"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	lang, err := language.Normalize(cfg.Engine.Language)
	if err != nil {
		return nil, err
	}
	params := engine.Params{
		Language:  lang,
		Threads:   cfg.Engine.Threads,
		Translate: cfg.Engine.Translate,
	}

	resolver := resolve.New(cfg.Paths.ResourceDir, cfg.Engine.ModelPath, logger)
	controller := task.New(resolver, params, cfg.Engine.DevicePreference, logger)

	var store *diagstore.Store
	if cfg.Paths.DiagnosticsDB != "" {
		store, err = diagstore.Open(cfg.Paths.DiagnosticsDB)
		if err != nil {
			return nil, fmt.Errorf("open diagnostics store: %w", err)
		}
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "murmurd.lock")
	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		store:      store,
		resolver:   resolver,
		controller: controller,
		hub:        newEventHub(logger),
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}
	d.api = newAPIServer(cfg.Daemon.APIBind, d, logger)
	return d, nil
}

// Start acquires the daemon lock and launches the API server and watcher.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another murmur daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if d.api != nil {
		if err := d.api.start(d.ctx); err != nil {
			_ = d.lock.Unlock()
			d.cancel()
			return err
		}
	}
	if d.cfg.Daemon.WatchResources {
		watcher, err := newResourceWatcher(d, d.cfg.Paths.ResourceDir, d.logger)
		if err != nil {
			d.logger.Warn("resource watcher unavailable", logging.Error(err))
		} else {
			d.watcher = watcher
			d.watcher.start(d.ctx)
		}
	}

	d.running.Store(true)
	d.logger.Info("murmur daemon started",
		logging.String("lock", d.lockPath),
		logging.String("bind", d.cfg.Daemon.APIBind),
	)
	return nil
}

// Wait blocks until the daemon context ends.
func (d *Daemon) Wait() {
	if d.ctx != nil {
		<-d.ctx.Done()
	}
}

// Stop shuts down background services and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.api != nil {
		d.api.stop()
	}
	if d.watcher != nil {
		d.watcher.stop()
		d.watcher = nil
	}
	d.hub.closeAll()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("murmur daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	d.resolver.Invalidate()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// StartTask decodes nothing itself; callers hand it engine-ready samples.
// It starts the controller task and pumps its event stream to subscribers
// and the diagnostics store. The task runs under the daemon lifecycle
// context, not the caller's: API requests return as soon as the task is
// accepted, and the task must outlive them.
func (d *Daemon) StartTask(samples []float32) (string, error) {
	d.mu.Lock()
	if !d.running.Load() || d.ctx == nil {
		d.mu.Unlock()
		return "", errors.New("daemon not running")
	}
	if d.taskActive {
		d.mu.Unlock()
		return "", services.Wrap(services.ErrValidation, "daemon", "start_task",
			"a task is already running", nil)
	}
	d.taskActive = true
	d.taskStartedAt = time.Now().UTC()
	d.mu.Unlock()

	id, events, err := d.controller.Start(d.ctx, samples)
	if err != nil {
		d.taskFinished()
		d.recordResolution()
		return "", err
	}
	d.recordResolution()
	go d.pump(id, d.taskStartedAt, events)
	return id, nil
}

// Pause suppresses progress events for the current task.
func (d *Daemon) Pause(id string) error { return d.controller.Pause(id) }

// Resume re-enables progress events for the current task.
func (d *Daemon) Resume(id string) error { return d.controller.Resume(id) }

// Cancel requests cooperative termination of the current task.
func (d *Daemon) Cancel(id string) error { return d.controller.Cancel(id) }

// TaskStatus returns the controller's current snapshot.
func (d *Daemon) TaskStatus() (task.Snapshot, bool) { return d.controller.Status() }

// Status reports daemon runtime information.
func (d *Daemon) Status() Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
	}
	if d.store != nil {
		status.DiagnosticsDB = d.store.Path()
	}
	if resolved := d.resolver.Resolved(); resolved != nil {
		status.Backend = resolved.Engine.Describe()
	}
	if snap, ok := d.controller.Status(); ok {
		status.Task = &snap
	}
	return status
}

// Probe reports the host capability descriptor.
func (d *Daemon) Probe() hostcaps.Descriptor {
	return hostcaps.Probe(d.logger)
}

// pump fans one task's events out to websocket subscribers and records the
// terminal outcome.
func (d *Daemon) pump(id string, startedAt time.Time, events <-chan task.Event) {
	var terminal *task.Event
	for evt := range events {
		if evt.Type == task.EventTerminal {
			terminal = &evt
		}
		d.hub.broadcast(evt)
	}
	d.taskFinished()
	if terminal == nil || d.store == nil {
		return
	}

	rec := diagstore.TaskRecord{
		TaskID:       id,
		State:        string(terminal.State),
		FailureKind:  terminal.FailureKind,
		ErrorMessage: terminal.Error,
		Percent:      terminal.Percent,
		StartedAt:    startedAt,
		FinishedAt:   terminal.At,
	}
	if resolved := d.resolver.Resolved(); resolved != nil {
		rec.Backend = resolved.Engine.Describe()
	}
	if terminal.Transcript != nil {
		rec.Language = terminal.Transcript.Language
		rec.SegmentCount = len(terminal.Transcript.Segments)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.store.RecordTaskOutcome(ctx, rec); err != nil {
		d.logger.Warn("failed to record task outcome", logging.Error(err))
	}
}

// taskFinished clears the active flag and applies any resource invalidation
// deferred while the task was running.
func (d *Daemon) taskFinished() {
	d.mu.Lock()
	pending := d.invalidatePending
	d.invalidatePending = false
	d.taskActive = false
	d.mu.Unlock()
	if pending {
		d.applyInvalidation()
	}
}

// requestInvalidation is called by the watcher when engine binaries change
// on disk. The resolver is never invalidated under a running task; the
// request is deferred until the task reaches a terminal state.
func (d *Daemon) requestInvalidation() {
	d.mu.Lock()
	if d.taskActive {
		d.invalidatePending = true
		d.mu.Unlock()
		d.logger.Info("resource change detected, invalidation deferred until task completes")
		return
	}
	d.mu.Unlock()
	d.applyInvalidation()
}

func (d *Daemon) applyInvalidation() {
	d.resolver.Invalidate()
	hostcaps.Invalidate()
	d.logger.Info("engine resolution invalidated after resource change")
}

// recordResolution persists the most recent resolver walk.
func (d *Daemon) recordResolution() {
	if d.store == nil {
		return
	}
	walk := d.resolver.LastWalk()
	if len(walk) == 0 {
		return
	}
	rec := diagstore.ResolutionRecord{
		ResolvedAt: time.Now().UTC(),
		Platform:   runtime.GOOS,
		Arch:       runtime.GOARCH,
		Outcome:    "no_usable_binary",
	}
	for _, attempt := range walk {
		rec.Attempts = append(rec.Attempts, diagstore.AttemptRecord{
			CandidateID: attempt.Candidate.ID,
			Outcome:     attempt.Outcome,
			Detail:      attempt.Detail,
		})
	}
	if resolved := d.resolver.Resolved(); resolved != nil {
		rec.CandidateID = resolved.Candidate.ID
		rec.Tier = string(resolved.Candidate.Tier)
		rec.Accelerator = string(resolved.Candidate.Accelerator)
		rec.Library = resolved.Candidate.Library
		rec.Outcome = "selected"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.store.RecordResolution(ctx, rec); err != nil {
		d.logger.Warn("failed to record resolution", logging.Error(err))
	}
}
