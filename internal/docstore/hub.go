package docstore

import "sync"

// hub fans collection change notifications out to live queries.
//
// Each watcher owns a one-slot signal channel: notifications arriving while
// a signal is pending collapse into it, so a burst of writes costs a watcher
// one re-query.
type hub struct {
	mu       sync.Mutex
	watchers map[string]map[*watcher]struct{}
	closed   chan struct{}
	once     sync.Once
}

type watcher struct {
	signal chan struct{}
}

func newHub() *hub {
	return &hub{
		watchers: make(map[string]map[*watcher]struct{}),
		closed:   make(chan struct{}),
	}
}

// watch registers interest in a collection path. The returned stop func
// must be called once the watcher is no longer needed.
func (h *hub) watch(collection string) (<-chan struct{}, func()) {
	w := &watcher{signal: make(chan struct{}, 1)}

	h.mu.Lock()
	set, ok := h.watchers[collection]
	if !ok {
		set = make(map[*watcher]struct{})
		h.watchers[collection] = set
	}
	set[w] = struct{}{}
	h.mu.Unlock()

	stop := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.watchers[collection]; ok {
			delete(set, w)
			if len(set) == 0 {
				delete(h.watchers, collection)
			}
		}
	}
	return w.signal, stop
}

func (h *hub) notify(collection string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for w := range h.watchers[collection] {
		select {
		case w.signal <- struct{}{}:
		default:
		}
	}
}

func (h *hub) close() {
	h.once.Do(func() { close(h.closed) })
}

func (h *hub) isClosed() bool {
	select {
	case <-h.closed:
		return true
	default:
		return false
	}
}

func (h *hub) watcherCount(collection string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers[collection])
}
