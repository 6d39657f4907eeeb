package daemon

import (
	"sync"

	"log/slog"

	"murmur/internal/logging"
	"murmur/internal/task"
)

// subscriberBuffer bounds each subscriber's queue. Slow websocket clients
// lose progress events rather than stalling the pump.
const subscriberBuffer = 32

// eventHub fans task events out to API subscribers.
type eventHub struct {
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	subs   map[chan task.Event]struct{}
}

func newEventHub(logger *slog.Logger) *eventHub {
	return &eventHub{
		logger: logging.NewComponentLogger(logger, "events"),
		subs:   make(map[chan task.Event]struct{}),
	}
}

// subscribe registers a new consumer. The returned cancel func is safe to
// call more than once.
func (h *eventHub) subscribe() (<-chan task.Event, func()) {
	ch := make(chan task.Event, subscriberBuffer)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

// broadcast delivers to every subscriber without blocking. Terminal events
// evict the oldest queued event instead of being dropped.
func (h *eventHub) broadcast(evt task.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- evt:
			continue
		default:
		}
		if evt.Type != task.EventTerminal {
			continue
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- evt:
		default:
		}
	}
}

func (h *eventHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
		delete(h.subs, ch)
	}
}
