package daemon

import (
	"context"
	"path/filepath"
	"runtime"
	"time"

	"log/slog"

	"github.com/fsnotify/fsnotify"

	"murmur/internal/logging"
	"murmur/internal/resolve"
)

// watchDebounce coalesces the burst of events a binary swap produces into a
// single invalidation.
const watchDebounce = 500 * time.Millisecond

// resourceWatcher invalidates the resolver when engine libraries in the
// resource directory change on disk.
type resourceWatcher struct {
	daemon    *Daemon
	logger    *slog.Logger
	watcher   *fsnotify.Watcher
	libraries map[string]struct{}
	done      chan struct{}
}

func newResourceWatcher(d *Daemon, resourceDir string, logger *slog.Logger) (*resourceWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(resourceDir); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	libraries := make(map[string]struct{})
	for _, cand := range resolve.Candidates(runtime.GOOS, runtime.GOARCH) {
		libraries[cand.Library] = struct{}{}
	}

	return &resourceWatcher{
		daemon:    d,
		logger:    logging.NewComponentLogger(logger, "watcher"),
		watcher:   watcher,
		libraries: libraries,
		done:      make(chan struct{}),
	}, nil
}

func (w *resourceWatcher) start(ctx context.Context) {
	go w.run(ctx)
}

func (w *resourceWatcher) run(ctx context.Context) {
	defer close(w.done)
	var debounce *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Info("engine library changed",
				logging.String("path", event.Name),
				logging.String("op", event.Op.String()),
			)
			if debounce == nil {
				debounce = time.NewTimer(watchDebounce)
			} else {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(watchDebounce)
			}
			fire = debounce.C
		case <-fire:
			fire = nil
			w.daemon.requestInvalidation()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("resource watch error", logging.Error(err))
		}
	}
}

// relevant reports whether the event touches one of this platform's engine
// libraries.
func (w *resourceWatcher) relevant(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename) {
		return false
	}
	_, ok := w.libraries[filepath.Base(event.Name)]
	return ok
}

func (w *resourceWatcher) stop() {
	_ = w.watcher.Close()
	<-w.done
}
