// Package debounce coalesces bursts of raw filesystem events into settled
// change signals.
//
// A single logical save commonly produces several raw events. The debouncer
// keeps a timer per path: the first event arms it, every further event
// resets it, and only when the quiet period elapses with no new event does
// the path settle and emit one Signal. Debounce state is independent across
// paths; no cross-path ordering is implied.
package debounce

import (
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Signal is one settled change for a path. Produced here, consumed exactly
// once by the revision writer.
type Signal struct {
	Path       string
	DetectedAt time.Time
}

// Debouncer coalesces raw events per path into settled signals.
type Debouncer struct {
	quiet time.Duration

	mu      sync.Mutex
	pending map[string]*window
	closed  bool

	out  chan Signal
	done chan struct{}
}

// window is the quiet-period state for one path. deadline moves forward on
// every observed event; a timer fire older than the deadline is stale.
type window struct {
	timer    *time.Timer
	deadline time.Time
}

// New creates a debouncer with the given quiet period.
func New(quiet time.Duration) *Debouncer {
	return &Debouncer{
		quiet:   quiet,
		pending: map[string]*window{},
		out:     make(chan Signal, 64),
		done:    make(chan struct{}),
	}
}

// Signals returns the channel of settled change signals.
func (d *Debouncer) Signals() <-chan Signal {
	return d.out
}

// Observe records a raw event for path. The first event for an idle path
// arms its quiet-period timer; further events extend the window.
func (d *Debouncer) Observe(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	if w, ok := d.pending[path]; ok {
		w.deadline = time.Now().Add(d.quiet)
		w.timer.Reset(d.quiet)
		return
	}
	w := &window{deadline: time.Now().Add(d.quiet)}
	w.timer = time.AfterFunc(d.quiet, func() { d.settle(path, w) })
	d.pending[path] = w
}

// settle fires when a path's quiet-period timer elapses. An event can slip
// in between the fire and this call and extend the window; such a stale
// fire emits nothing, the reset timer settles at the new deadline.
func (d *Debouncer) settle(path string, w *window) {
	d.mu.Lock()
	cur, ok := d.pending[path]
	if d.closed || !ok || cur != w {
		d.mu.Unlock()
		return
	}
	if time.Now().Before(w.deadline) {
		d.mu.Unlock()
		return
	}
	delete(d.pending, path)
	d.mu.Unlock()

	select {
	case d.out <- Signal{Path: path, DetectedAt: time.Now()}:
	case <-d.done:
	}
}

// Cancel drops any pending change for path. Used when a target is removed
// so its timer cannot fire afterwards.
func (d *Debouncer) Cancel(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if w, ok := d.pending[path]; ok {
		w.timer.Stop()
		delete(d.pending, path)
	}
}

// CancelUnder drops pending changes for every path at or beneath dir.
// Used when a directory target is removed.
func (d *Debouncer) CancelUnder(dir string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for path, w := range d.pending {
		if pathWithin(path, dir) {
			w.timer.Stop()
			delete(d.pending, path)
		}
	}
}

func pathWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// PendingCount returns the number of paths currently in the quiet window.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close stops all pending timers and unblocks in-flight settlements.
// No signal is emitted after Close returns.
func (d *Debouncer) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for path, w := range d.pending {
		w.timer.Stop()
		delete(d.pending, path)
	}
	d.mu.Unlock()

	close(d.done)
}
