package routing

import (
	"sync"
	"time"
)

// Debouncer coalesces repeated triggers for the same key into one action per
// quiescent period. A trigger arriving while one is pending replaces the
// pending action and restarts its timer, so a burst of rapid messages yields
// a single outbound menu instead of one per message.
type Debouncer struct {
	window time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer with the given quiescence window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: map[string]*time.Timer{},
	}
}

// Trigger schedules fn to run after the window elapses with no further
// trigger for key. The latest fn wins.
func (d *Debouncer) Trigger(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if timer, ok := d.pending[key]; ok {
		timer.Stop()
	}
	d.pending[key] = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		delete(d.pending, key)
		stopped := d.stopped
		d.mu.Unlock()
		if !stopped {
			fn()
		}
	})
}

// Stop cancels all pending actions and rejects further triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for key, timer := range d.pending {
		timer.Stop()
		delete(d.pending, key)
	}
}
