// Package watcher owns the OS-level filesystem subscriptions for all
// configured targets and routes raw events into the debouncer.
package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"revisiond/internal/debounce"
	"revisiond/internal/logging"
	"revisiond/internal/store"
)

// Supervisor manages fsnotify subscriptions for the configured targets.
// Directory targets are watched recursively and fan out to the files they
// contain; every raw modification or creation event becomes one
// debouncer observation keyed by the affected file's path.
type Supervisor struct {
	fsw *fsnotify.Watcher
	deb *debounce.Debouncer
	log *logging.Logger

	mu      sync.Mutex
	targets map[string]store.Target // by target path
	roots   map[string][]string     // target path -> directories subscribed for it
	dirRefs map[string]int          // directory -> subscription refcount

	done    chan struct{}
	wg      sync.WaitGroup
	started bool
}

// New creates a supervisor feeding the given debouncer.
func New(deb *debounce.Debouncer, log *logging.Logger) (*Supervisor, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &Supervisor{
		fsw:     fsw,
		deb:     deb,
		log:     log.WithComponent("watcher"),
		targets: map[string]store.Target{},
		roots:   map[string][]string{},
		dirRefs: map[string]int{},
		done:    make(chan struct{}),
	}, nil
}

// Start begins routing raw events. Call once.
func (s *Supervisor) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	s.wg.Add(1)
	go s.eventLoop()
}

// Close tears down all subscriptions and stops the event loop.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return s.fsw.Close()
	}
	s.mu.Unlock()

	close(s.done)
	err := s.fsw.Close()
	s.wg.Wait()
	return err
}

// StartWatching subscribes to raw events for the target. A file target is
// observed through its parent directory; a directory target is walked and
// every subdirectory subscribed.
func (s *Supervisor) StartWatching(t store.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(t)
}

func (s *Supervisor) startLocked(t store.Target) error {
	if _, ok := s.targets[t.Path]; ok {
		// Already subscribed; refresh the snapshot (revision dir may have
		// changed).
		s.targets[t.Path] = t
		return nil
	}

	info, err := os.Stat(t.Path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", t.Path, err)
	}

	var dirs []string
	if info.IsDir() {
		walkErr := filepath.WalkDir(t.Path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				s.log.Warn("skipping unreadable path", "path", p, "error", err)
				return nil
			}
			if d.IsDir() {
				dirs = append(dirs, p)
			}
			return nil
		})
		if walkErr != nil {
			return fmt.Errorf("walk %s: %w", t.Path, walkErr)
		}
	} else {
		dirs = []string{filepath.Dir(t.Path)}
	}

	var added []string
	for _, dir := range dirs {
		if err := s.refDir(dir); err != nil {
			for _, a := range added {
				s.unrefDir(a)
			}
			return err
		}
		added = append(added, dir)
	}

	s.targets[t.Path] = t
	s.roots[t.Path] = added
	return nil
}

// StopWatching cancels the subscription for a target path and drops any
// pending debounce timers it could still fire.
func (s *Supervisor) StopWatching(path string) {
	s.mu.Lock()
	_, ok := s.targets[path]
	var recursive bool
	if ok {
		recursive = s.isDirTarget(path)
		for _, dir := range s.roots[path] {
			s.unrefDir(dir)
		}
		delete(s.targets, path)
		delete(s.roots, path)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	if recursive {
		s.deb.CancelUnder(path)
	}
	s.deb.Cancel(path)
}

// Reconcile diffs the live subscription set against the current targets,
// starting and stopping subscriptions as needed. Per-target subscription
// failures are logged and dropped; a target that becomes watchable later is
// picked up by the next call.
func (s *Supervisor) Reconcile(targets []store.Target) {
	desired := make(map[string]store.Target, len(targets))
	for _, t := range targets {
		desired[t.Path] = t
	}

	s.mu.Lock()
	var stale []string
	for path := range s.targets {
		if _, ok := desired[path]; !ok {
			stale = append(stale, path)
		}
	}
	s.mu.Unlock()

	for _, path := range stale {
		s.StopWatching(path)
		s.log.Info("stopped watching", "path", path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range targets {
		if _, ok := s.targets[t.Path]; ok {
			s.targets[t.Path] = t
			continue
		}
		if err := s.startLocked(t); err != nil {
			s.log.Warn("cannot watch target", "path", t.Path, "error", err)
			continue
		}
		s.log.Info("watching", "path", t.Path, "revision_dir", t.RevisionDir)
	}
}

// WatchCount returns the number of subscribed targets.
func (s *Supervisor) WatchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.targets)
}

// refDir subscribes a directory, sharing subscriptions between targets
// whose files live in the same directory.
func (s *Supervisor) refDir(dir string) error {
	if s.dirRefs[dir] == 0 {
		if err := s.fsw.Add(dir); err != nil {
			return fmt.Errorf("subscribe %s: %w", dir, err)
		}
	}
	s.dirRefs[dir]++
	return nil
}

func (s *Supervisor) unrefDir(dir string) {
	if s.dirRefs[dir] == 0 {
		return
	}
	s.dirRefs[dir]--
	if s.dirRefs[dir] == 0 {
		delete(s.dirRefs, dir)
		// Removal errors are expected when the directory is already gone.
		if err := s.fsw.Remove(dir); err != nil {
			s.log.Debug("unsubscribe", "dir", dir, "error", err)
		}
	}
}

// eventLoop drains fsnotify and feeds the debouncer. It never blocks on
// file I/O; settlement and revision work happen elsewhere.
func (s *Supervisor) eventLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return

		case ev, ok := <-s.fsw.Events:
			if !ok {
				return
			}
			s.handleEvent(ev)

		case err, ok := <-s.fsw.Errors:
			if !ok {
				return
			}
			s.log.Warn("watch error", "error", err)
		}
	}
}

func (s *Supervisor) handleEvent(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	info, err := os.Stat(ev.Name)
	if err != nil {
		// Deleted between event and processing; the next change starts a
		// fresh cycle.
		return
	}

	if info.IsDir() {
		s.handleNewDir(ev.Name)
		return
	}

	if _, ok := s.resolve(ev.Name); ok {
		s.deb.Observe(ev.Name)
	}
}

// handleNewDir extends a recursive directory subscription when a new
// subdirectory appears under a directory target.
func (s *Supervisor) handleNewDir(dir string) {
	s.mu.Lock()
	owner := ""
	for path := range s.targets {
		if path == dir {
			continue
		}
		if s.isDirTarget(path) && within(dir, path) {
			owner = path
			break
		}
	}
	if owner == "" {
		s.mu.Unlock()
		return
	}

	var files []string
	walkErr := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := s.refDir(p); err != nil {
				s.log.Warn("cannot watch new directory", "path", p, "error", err)
				return nil
			}
			s.roots[owner] = append(s.roots[owner], p)
		} else {
			files = append(files, p)
		}
		return nil
	})
	s.mu.Unlock()

	if walkErr != nil {
		s.log.Warn("walk new directory", "path", dir, "error", walkErr)
	}
	for _, f := range files {
		if _, ok := s.resolve(f); ok {
			s.deb.Observe(f)
		}
	}
}

// isDirTarget reports whether a target path is watched recursively.
// Caller holds s.mu.
func (s *Supervisor) isDirTarget(path string) bool {
	roots := s.roots[path]
	return len(roots) != 1 || roots[0] != filepath.Dir(path)
}

// resolve maps an event path to the target covering it: an exact file
// match or an ancestor directory target. Paths inside any target's
// revision directory resolve to nothing, so the engine never revisions its
// own output.
func (s *Supervisor) resolve(path string) (store.Target, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.targets {
		if within(path, t.RevisionDir) {
			return store.Target{}, false
		}
	}

	if t, ok := s.targets[path]; ok {
		return t, true
	}

	var best store.Target
	found := false
	for p, t := range s.targets {
		if p == path || !within(path, p) {
			continue
		}
		if !found || len(p) > len(best.Path) {
			best = t
			found = true
		}
	}
	return best, found
}

func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
