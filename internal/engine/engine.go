// Package engine wires the revision pipeline together: store, watcher,
// debouncer, writer, journal, and notifier.
//
// The engine owns the public operations the presentation layer calls
// (add/remove/list/import/export); every mutation goes through the store
// and is followed by a watcher reconcile, so the subscription set always
// tracks the persisted target set.
package engine

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"revisiond/internal/config"
	"revisiond/internal/debounce"
	"revisiond/internal/journal"
	"revisiond/internal/logging"
	"revisiond/internal/notify"
	"revisiond/internal/revision"
	"revisiond/internal/store"
	"revisiond/internal/watcher"
)

// ErrJournalDisabled is returned by History when no journal is kept.
var ErrJournalDisabled = errors.New("revision journal is disabled")

// Status is a snapshot of engine state for the control surface.
type Status struct {
	StartedAt  time.Time
	Targets    int
	Watches    int
	Pending    int
	Revisions  int64
	LastErrors map[string]string
}

// Engine runs the revision pipeline.
type Engine struct {
	cfg      *config.Config
	log      *logging.Logger
	store    *store.Store
	deb      *debounce.Debouncer
	sup      *watcher.Supervisor
	writer   *revision.Writer
	journal  *journal.Journal
	notifier notify.Notifier

	startedAt time.Time

	errMu      sync.Mutex
	lastErrors map[string]string

	done    chan struct{}
	wg      sync.WaitGroup
	started bool
	stopped bool
	mu      sync.Mutex
}

// New builds an engine from configuration. The target set is loaded
// immediately; watching starts with Start.
func New(cfg *config.Config, log *logging.Logger) (*Engine, error) {
	st, err := store.Open(cfg.Store.TargetsPath)
	if err != nil {
		return nil, fmt.Errorf("open target store: %w", err)
	}

	var jnl *journal.Journal
	if cfg.Journal.Enabled {
		jnl, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
	}

	var notifier notify.Notifier = notify.NewLogNotifier(log)
	if cfg.Notify.Desktop {
		if desktop, derr := notify.NewDesktopNotifier(); derr == nil {
			notifier = desktop
		} else {
			log.Warn("desktop notifications unavailable, logging instead", "error", derr)
		}
	}

	deb := debounce.New(cfg.QuietPeriod())
	sup, err := watcher.New(deb, log)
	if err != nil {
		if jnl != nil {
			jnl.Close()
		}
		return nil, err
	}

	writer := revision.New(st, revision.Options{
		Journal:     jnl,
		Notifier:    notifier,
		MaxFileSize: cfg.Watch.MaxFileSize,
		Logger:      log,
	})

	return &Engine{
		cfg:        cfg,
		log:        log.WithComponent("engine"),
		store:      st,
		deb:        deb,
		sup:        sup,
		writer:     writer,
		journal:    jnl,
		notifier:   notifier,
		lastErrors: map[string]string{},
		done:       make(chan struct{}),
	}, nil
}

// Start subscribes all persisted targets and begins consuming settled
// changes. Call once.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.startedAt = time.Now()
	e.mu.Unlock()

	e.sup.Start()
	e.sup.Reconcile(e.store.List())

	e.wg.Add(1)
	go e.consumeLoop()

	e.log.Info("engine started", "targets", e.store.Len())
}

// consumeLoop dispatches each settled change in its own goroutine so a
// slow disk on one path never stalls revisions for other paths. The
// writer's per-path lock serializes same-path settlements.
func (e *Engine) consumeLoop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.done:
			return
		case sig := <-e.deb.Signals():
			e.wg.Add(1)
			go func(sig debounce.Signal) {
				defer e.wg.Done()
				if err := e.writer.OnChange(sig); err != nil {
					e.log.Error("revision failed", "path", sig.Path, "error", err)
					e.setLastError(sig.Path, err)
				} else {
					e.clearLastError(sig.Path)
				}
			}(sig)
		}
	}
}

// Stop shuts the pipeline down: no new signals settle, in-flight revision
// writes complete, then resources are released.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.mu.Unlock()

	close(e.done)
	e.deb.Close()
	if err := e.sup.Close(); err != nil {
		e.log.Warn("watcher shutdown", "error", err)
	}
	e.wg.Wait()

	if e.journal != nil {
		if err := e.journal.Close(); err != nil {
			e.log.Warn("journal close", "error", err)
		}
	}
	if closer, ok := e.notifier.(io.Closer); ok {
		closer.Close()
	}

	e.log.Info("engine stopped")
}

// AddTarget adds or updates a watched target and reconciles subscriptions.
func (e *Engine) AddTarget(path, revisionDir string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	absDir, err := filepath.Abs(revisionDir)
	if err != nil {
		return fmt.Errorf("resolve revision directory: %w", err)
	}

	if err := e.store.Add(store.Target{Path: absPath, RevisionDir: absDir}); err != nil {
		return err
	}
	e.sup.Reconcile(e.store.List())
	return nil
}

// RemoveTarget removes a watched target, cancels its pending debounce
// state, and reconciles subscriptions.
func (e *Engine) RemoveTarget(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	if err := e.store.Remove(absPath); err != nil {
		return err
	}
	e.clearLastError(absPath)
	e.sup.Reconcile(e.store.List())
	return nil
}

// Targets returns the watched targets in store order.
func (e *Engine) Targets() []store.Target {
	return e.store.List()
}

// ImportTargets applies a record batch and reconciles subscriptions.
func (e *Engine) ImportTargets(records []store.Record) (applied, skipped int, err error) {
	applied, skipped, err = e.store.Import(records)
	if applied > 0 {
		e.sup.Reconcile(e.store.List())
	}
	return applied, skipped, err
}

// ExportTargets returns the target set as records.
func (e *Engine) ExportTargets() []store.Record {
	return e.store.Export()
}

// History returns the recorded revisions for a path, newest first.
func (e *Engine) History(path string, limit int) ([]journal.Entry, error) {
	if e.journal == nil {
		return nil, ErrJournalDisabled
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	return e.journal.History(absPath, limit)
}

// Status returns a snapshot of engine state.
func (e *Engine) Status() Status {
	st := Status{
		StartedAt: e.startedAt,
		Targets:   e.store.Len(),
		Watches:   e.sup.WatchCount(),
		Pending:   e.deb.PendingCount(),
	}
	if e.journal != nil {
		if n, err := e.journal.Count(); err == nil {
			st.Revisions = n
		}
	}

	e.errMu.Lock()
	if len(e.lastErrors) > 0 {
		st.LastErrors = make(map[string]string, len(e.lastErrors))
		for k, v := range e.lastErrors {
			st.LastErrors[k] = v
		}
	}
	e.errMu.Unlock()
	return st
}

func (e *Engine) setLastError(path string, err error) {
	e.errMu.Lock()
	e.lastErrors[path] = err.Error()
	e.errMu.Unlock()
}

func (e *Engine) clearLastError(path string) {
	e.errMu.Lock()
	delete(e.lastErrors, path)
	e.errMu.Unlock()
}
