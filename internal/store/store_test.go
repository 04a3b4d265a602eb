package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"revisiond/internal/fingerprint"
)

func tempStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "targets.csv")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s, path
}

func mustAdd(t *testing.T, s *Store, path, revDir string) {
	t.Helper()
	if err := s.Add(Target{Path: path, RevisionDir: revDir}); err != nil {
		t.Fatalf("Add(%s): %v", path, err)
	}
}

func TestOpenMissingFileYieldsEmptyStore(t *testing.T) {
	s, _ := tempStore(t)
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
}

func TestAddPersistsAcrossReload(t *testing.T) {
	s, path := tempStore(t)

	fp := fingerprint.Bytes([]byte("v1"))
	mustAdd(t, s, "/docs/a.md", "/revs/a")
	mustAdd(t, s, "/docs/b.md", "/revs/b")
	if err := s.UpdateFingerprint("/docs/a.md", fp); err != nil {
		t.Fatalf("UpdateFingerprint: %v", err)
	}

	// Reload simulates a daemon restart.
	reloaded, err := Open(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Len() != 2 {
		t.Fatalf("Len = %d, want 2", reloaded.Len())
	}

	got, ok := reloaded.Get("/docs/a.md")
	if !ok {
		t.Fatal("target /docs/a.md missing after reload")
	}
	if got.RevisionDir != "/revs/a" {
		t.Errorf("RevisionDir = %q, want /revs/a", got.RevisionDir)
	}
	if got.LastFingerprint == nil || *got.LastFingerprint != fp {
		t.Error("fingerprint lost across reload")
	}

	b, _ := reloaded.Get("/docs/b.md")
	if b.LastFingerprint != nil {
		t.Error("fresh target has non-nil fingerprint")
	}
}

func TestAddPreservesOrder(t *testing.T) {
	s, _ := tempStore(t)
	mustAdd(t, s, "/docs/c.md", "/revs/c")
	mustAdd(t, s, "/docs/a.md", "/revs/a")
	mustAdd(t, s, "/docs/b.md", "/revs/b")

	var got []string
	for _, tt := range s.List() {
		got = append(got, tt.Path)
	}
	want := []string{"/docs/c.md", "/docs/a.md", "/docs/b.md"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("List order = %v, want %v", got, want)
		}
	}
}

func TestReAddUpdatesDirKeepsFingerprint(t *testing.T) {
	s, _ := tempStore(t)
	mustAdd(t, s, "/docs/a.md", "/revs/a")

	fp := fingerprint.Bytes([]byte("v1"))
	if err := s.UpdateFingerprint("/docs/a.md", fp); err != nil {
		t.Fatal(err)
	}

	mustAdd(t, s, "/docs/a.md", "/revs/elsewhere")

	got, _ := s.Get("/docs/a.md")
	if got.RevisionDir != "/revs/elsewhere" {
		t.Errorf("RevisionDir = %q, want /revs/elsewhere", got.RevisionDir)
	}
	if got.LastFingerprint == nil || *got.LastFingerprint != fp {
		t.Error("re-adding a path dropped its fingerprint")
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestRemove(t *testing.T) {
	s, _ := tempStore(t)
	mustAdd(t, s, "/docs/a.md", "/revs/a")
	mustAdd(t, s, "/docs/b.md", "/revs/b")

	if err := s.Remove("/docs/a.md"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := s.Get("/docs/a.md"); ok {
		t.Error("removed target still present")
	}
	if _, ok := s.Get("/docs/b.md"); !ok {
		t.Error("unrelated target lost on remove")
	}

	if err := s.Remove("/docs/a.md"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Remove = %v, want ErrNotFound", err)
	}
}

func TestUpdateFingerprintMissingTarget(t *testing.T) {
	s, _ := tempStore(t)
	err := s.UpdateFingerprint("/gone.md", fingerprint.Bytes([]byte("x")))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestValidateRejectsNestedRevisionDir(t *testing.T) {
	cases := []Target{
		{Path: "/docs", RevisionDir: "/docs/.revisions"},
		{Path: "/docs", RevisionDir: "/docs"},
		{Path: "", RevisionDir: "/revs"},
		{Path: "relative/doc.md", RevisionDir: "/revs"},
		{Path: "/docs/a.md", RevisionDir: ""},
		{Path: "/docs/a.md", RevisionDir: "revs"},
	}
	for _, c := range cases {
		if err := c.Validate(); err == nil {
			t.Errorf("Validate(%+v) succeeded, want error", c)
		}
	}

	ok := Target{Path: "/docs", RevisionDir: "/docs-revisions"}
	if err := ok.Validate(); err != nil {
		t.Errorf("Validate(%+v) = %v, want nil", ok, err)
	}
}

func TestOpenSkipsMalformedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.csv")
	content := "path,revision_dir,last_fingerprint\n" +
		"/docs/a.md,/revs/a,\n" +
		"only-one-column\n" +
		"/docs/\"broken,/revs/broken,\n" +
		"/docs/bad.md,/revs/bad,nothex\n" +
		"relative.md,/revs/rel,\n" +
		"/docs/b.md,/revs/b,\n" +
		"/docs/a.md,/revs/duplicate,\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2 (malformed and duplicate rows skipped)", s.Len())
	}
	a, _ := s.Get("/docs/a.md")
	if a.RevisionDir != "/revs/a" {
		t.Errorf("duplicate row overwrote first occurrence: %q", a.RevisionDir)
	}
	if _, ok := s.Get("/docs/b.md"); !ok {
		t.Error("rows after the unparsable one were not loaded")
	}
}

func TestPersistFailureLeavesMemoryUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.csv")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	mustAdd(t, s, "/docs/a.md", "/revs/a")

	// Replace the table file with a directory so the rename cannot land.
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(path, 0700); err != nil {
		t.Fatal(err)
	}

	if err := s.Add(Target{Path: "/docs/b.md", RevisionDir: "/revs/b"}); err == nil {
		t.Fatal("Add succeeded with unwritable table")
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1 after failed Add", s.Len())
	}
	if _, ok := s.Get("/docs/b.md"); ok {
		t.Error("failed Add left target in memory")
	}

	if err := s.Remove("/docs/a.md"); err == nil {
		t.Fatal("Remove succeeded with unwritable table")
	}
	if _, ok := s.Get("/docs/a.md"); !ok {
		t.Error("failed Remove dropped target from memory")
	}

	fp := fingerprint.Bytes([]byte("v1"))
	if err := s.UpdateFingerprint("/docs/a.md", fp); err == nil {
		t.Fatal("UpdateFingerprint succeeded with unwritable table")
	}
	if got, _ := s.Get("/docs/a.md"); got.LastFingerprint != nil {
		t.Error("failed UpdateFingerprint kept the new fingerprint")
	}

	applied, _, err := s.Import([]Record{{Path: "/docs/c.md", RevisionDir: "/revs/c"}})
	if err == nil {
		t.Fatal("Import succeeded with unwritable table")
	}
	if applied != 0 {
		t.Errorf("applied = %d, want 0 after failed Import", applied)
	}
	if _, ok := s.Get("/docs/c.md"); ok {
		t.Error("failed Import left record in memory")
	}

	// Once the path is writable again the same mutation goes through.
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	mustAdd(t, s, "/docs/b.md", "/revs/b")
	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2 after retry", s.Len())
	}
}

func TestResolve(t *testing.T) {
	s, _ := tempStore(t)
	mustAdd(t, s, "/docs/a.md", "/revs/a")
	mustAdd(t, s, "/notes", "/revs/notes")
	mustAdd(t, s, "/notes/deep", "/revs/deep")

	// Exact file match.
	if got, ok := s.Resolve("/docs/a.md"); !ok || got.Path != "/docs/a.md" {
		t.Errorf("Resolve exact = %+v, %v", got, ok)
	}

	// File under a directory target.
	if got, ok := s.Resolve("/notes/todo.md"); !ok || got.Path != "/notes" {
		t.Errorf("Resolve under dir = %+v, %v", got, ok)
	}

	// Deepest ancestor wins.
	if got, ok := s.Resolve("/notes/deep/x.md"); !ok || got.Path != "/notes/deep" {
		t.Errorf("Resolve deepest = %+v, %v", got, ok)
	}

	// Unwatched path resolves to nothing.
	if _, ok := s.Resolve("/elsewhere/y.md"); ok {
		t.Error("unwatched path resolved to a target")
	}

	// Paths inside a revision directory never resolve.
	if _, ok := s.Resolve("/revs/notes/todo_20240101T000000000.md"); ok {
		t.Error("revision directory path resolved to a target")
	}
}
