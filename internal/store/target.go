package store

import (
	"fmt"
	"path/filepath"
	"strings"

	"revisiond/internal/fingerprint"
)

// Target is a watched file or directory together with the directory its
// revisions are written to.
type Target struct {
	// Path is the absolute path to the watched file or directory.
	// Unique key within the store.
	Path string

	// RevisionDir is the directory revisions for this target are written
	// to. Created on first revision if absent.
	RevisionDir string

	// LastFingerprint is the content fingerprint of the most recently
	// revisioned content. Nil until the first successful observation.
	LastFingerprint *fingerprint.Fingerprint
}

// Validate checks target invariants. The revision directory must never be
// nested under the watched path, or the watcher would observe its own
// output and recurse.
func (t Target) Validate() error {
	if t.Path == "" {
		return fmt.Errorf("target path must not be empty")
	}
	if !filepath.IsAbs(t.Path) {
		return fmt.Errorf("target path %q must be absolute", t.Path)
	}
	if t.RevisionDir == "" {
		return fmt.Errorf("revision directory must not be empty")
	}
	if !filepath.IsAbs(t.RevisionDir) {
		return fmt.Errorf("revision directory %q must be absolute", t.RevisionDir)
	}
	if isWithin(t.RevisionDir, t.Path) {
		return fmt.Errorf("revision directory %q must not be nested under watched path %q", t.RevisionDir, t.Path)
	}
	return nil
}

// isWithin reports whether child is parent or lies beneath parent.
func isWithin(child, parent string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
