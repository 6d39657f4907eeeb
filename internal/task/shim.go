package task

import (
	"log/slog"
	"sync/atomic"

	"murmur/internal/engine"
	"murmur/internal/logging"
)

// shim binds controller state into the two callbacks the native engine is
// permitted to invoke. Both callbacks uphold one invariant: no failure ever
// unwinds into the native stack frames that called them. A panic inside a
// downstream progress consumer previously aborted the whole process; the
// recover here is the fix.
type shim struct {
	logger          *slog.Logger
	cancelRequested *atomic.Bool
	pauseRequested  *atomic.Bool
	deliver         func(percent int)
}

func newShim(logger *slog.Logger, cancel, pause *atomic.Bool, deliver func(percent int)) *shim {
	return &shim{
		logger:          logging.NewComponentLogger(logger, "boundary"),
		cancelRequested: cancel,
		pauseRequested:  pause,
		deliver:         deliver,
	}
}

// progress returns the callback handed to the native engine for percent
// updates. While the task is paused, updates are suppressed rather than
// queued; the return value carries no control semantics.
func (s *shim) progress() engine.ProgressFunc {
	return func(percent int) {
		defer s.recoverFault("progress")
		if s.pauseRequested.Load() {
			return
		}
		if s.deliver != nil {
			s.deliver(percent)
		}
	}
}

// abortCheck returns the callback the native engine polls. It reports
// exactly the cancel flag and performs no other logic.
func (s *shim) abortCheck() engine.AbortFunc {
	return func() (stop bool) {
		defer s.recoverFault("abort-check")
		return s.cancelRequested.Load()
	}
}

func (s *shim) recoverFault(slot string) {
	if r := recover(); r != nil {
		s.logger.Error("callback fault contained at native boundary",
			logging.String("callback", slot),
			logging.Any("panic", r),
			logging.String(logging.FieldEventType, "callback_fault"),
		)
	}
}
