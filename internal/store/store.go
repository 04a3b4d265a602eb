// Package store persists the set of watched targets for revisiond.
//
// The store is the single source of truth for target metadata. It holds an
// ordered collection of targets keyed by path, backed by a CSV table with
// columns path, revision_dir, last_fingerprint. Every mutation is flushed
// atomically (write to a temporary file, then rename) so a crash between an
// in-memory change and the persisted write is never observable.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"revisiond/internal/fingerprint"
	"revisiond/internal/logging"
)

// ErrNotFound is returned when a target path is not in the store.
var ErrNotFound = errors.New("target not found")

// csvHeader is the persisted column layout.
var csvHeader = []string{"path", "revision_dir", "last_fingerprint"}

// Store is the ordered, path-keyed collection of watched targets.
type Store struct {
	mu      sync.RWMutex
	path    string
	targets []Target
	index   map[string]int
}

// Open loads the store from the CSV table at path. A missing file yields an
// empty store. Malformed rows are skipped with a warning; a single bad row
// never prevents the remaining targets from loading.
func Open(path string) (*Store, error) {
	s := &Store{
		path:  path,
		index: make(map[string]int),
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("open target table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	for line := 1; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A syntactically corrupt row is skipped like a semantically
			// invalid one; the reader resumes on the next line.
			logging.Warn("skipping malformed target row", "line", line, "error", err)
			continue
		}
		if line == 1 && len(row) > 0 && row[0] == csvHeader[0] {
			continue
		}
		t, err := parseRow(row)
		if err != nil {
			logging.Warn("skipping malformed target row", "line", line, "error", err)
			continue
		}
		if _, dup := s.index[t.Path]; dup {
			logging.Warn("skipping duplicate target row", "line", line, "path", t.Path)
			continue
		}
		s.index[t.Path] = len(s.targets)
		s.targets = append(s.targets, t)
	}

	return s, nil
}

func parseRow(row []string) (Target, error) {
	if len(row) < 2 {
		return Target{}, fmt.Errorf("expected at least 2 columns, got %d", len(row))
	}
	t := Target{Path: row[0], RevisionDir: row[1]}
	if len(row) > 2 && row[2] != "" {
		fp, err := fingerprint.Parse(row[2])
		if err != nil {
			return Target{}, fmt.Errorf("column last_fingerprint: %w", err)
		}
		t.LastFingerprint = &fp
	}
	if err := t.Validate(); err != nil {
		return Target{}, err
	}
	return t, nil
}

// Add inserts a target or, if the path is already present, updates its
// revision directory. The existing last fingerprint is preserved on update
// so re-adding a path does not spuriously re-revision unchanged content.
func (s *Store) Add(t Target) error {
	if err := t.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.index[t.Path]; ok {
		prev := s.targets[i]
		updated := prev
		updated.RevisionDir = t.RevisionDir
		s.targets[i] = updated
		if err := s.persistLocked(); err != nil {
			s.targets[i] = prev
			return err
		}
		return nil
	}

	s.index[t.Path] = len(s.targets)
	s.targets = append(s.targets, t)
	if err := s.persistLocked(); err != nil {
		delete(s.index, t.Path)
		s.targets = s.targets[:len(s.targets)-1]
		return err
	}
	return nil
}

// Remove deletes the target with the given path. Returns ErrNotFound if the
// path is not in the store.
func (s *Store) Remove(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[path]
	if !ok {
		return ErrNotFound
	}

	removed := s.targets[i]
	s.targets = append(s.targets[:i:i], s.targets[i+1:]...)
	delete(s.index, path)
	for j := i; j < len(s.targets); j++ {
		s.index[s.targets[j].Path] = j
	}

	if err := s.persistLocked(); err != nil {
		restored := make([]Target, 0, len(s.targets)+1)
		restored = append(restored, s.targets[:i]...)
		restored = append(restored, removed)
		restored = append(restored, s.targets[i:]...)
		s.targets = restored
		for j := i; j < len(s.targets); j++ {
			s.index[s.targets[j].Path] = j
		}
		return err
	}
	return nil
}

// UpdateFingerprint records the fingerprint of the most recently revisioned
// content for path. Returns ErrNotFound if the target was removed in the
// meantime; callers racing a removal treat that as a no-op.
func (s *Store) UpdateFingerprint(path string, fp fingerprint.Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[path]
	if !ok {
		return ErrNotFound
	}

	prev := s.targets[i]
	updated := prev
	updated.LastFingerprint = &fp
	s.targets[i] = updated

	if err := s.persistLocked(); err != nil {
		s.targets[i] = prev
		return err
	}
	return nil
}

// Get returns the target with the given path.
func (s *Store) Get(path string) (Target, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[path]
	if !ok {
		return Target{}, false
	}
	return s.targets[i], true
}

// Resolve maps an observed file path to the target covering it: an exact
// match, or the deepest ancestor directory target. Paths inside any
// target's revision directory resolve to nothing.
func (s *Store) Resolve(path string) (Target, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.targets {
		if isWithin(path, t.RevisionDir) {
			return Target{}, false
		}
	}

	if i, ok := s.index[path]; ok {
		return s.targets[i], true
	}

	best := -1
	for i, t := range s.targets {
		if !isWithin(path, t.Path) || t.Path == path {
			continue
		}
		if best == -1 || len(t.Path) > len(s.targets[best].Path) {
			best = i
		}
	}
	if best == -1 {
		return Target{}, false
	}
	return s.targets[best], true
}

// List returns the targets in insertion order.
func (s *Store) List() []Target {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Target, len(s.targets))
	copy(out, s.targets)
	return out
}

// Len returns the number of targets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.targets)
}

// persistLocked writes the CSV table atomically. Caller holds s.mu.
func (s *Store) persistLocked() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".targets-*.csv")
	if err != nil {
		return fmt.Errorf("create temp table: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := csv.NewWriter(tmp)
	if err := w.Write(csvHeader); err != nil {
		tmp.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for _, t := range s.targets {
		fp := ""
		if t.LastFingerprint != nil {
			fp = t.LastFingerprint.String()
		}
		if err := w.Write([]string{t.Path, t.RevisionDir, fp}); err != nil {
			tmp.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush table: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp table: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp table: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace target table: %w", err)
	}
	return nil
}
