package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"revisiond/internal/debounce"
	"revisiond/internal/logging"
	"revisiond/internal/store"
)

// Filesystem notification latency varies wildly between platforms and CI
// machines, so assertions use generous timeouts.
const eventTimeout = 3 * time.Second

func newTestSupervisor(t *testing.T) (*Supervisor, *debounce.Debouncer) {
	t.Helper()
	deb := debounce.New(50 * time.Millisecond)
	sup, err := New(deb, logging.Default())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sup.Start()
	t.Cleanup(func() {
		sup.Close()
		deb.Close()
	})
	return sup, deb
}

func expectSignal(t *testing.T, deb *debounce.Debouncer, path string) {
	t.Helper()
	deadline := time.After(eventTimeout)
	for {
		select {
		case sig := <-deb.Signals():
			if sig.Path == path {
				return
			}
			// Unrelated settlements (editor temp files etc) are skipped.
		case <-deadline:
			t.Fatalf("no signal for %s within %s", path, eventTimeout)
		}
	}
}

func expectNoSignal(t *testing.T, deb *debounce.Debouncer, window time.Duration) {
	t.Helper()
	select {
	case sig := <-deb.Signals():
		t.Fatalf("unexpected signal for %s", sig.Path)
	case <-time.After(window):
	}
}

func TestFileTargetSignalsOnWrite(t *testing.T) {
	sup, deb := newTestSupervisor(t)
	base := t.TempDir()

	doc := filepath.Join(base, "draft.md")
	if err := os.WriteFile(doc, []byte("v1"), 0600); err != nil {
		t.Fatal(err)
	}

	target := store.Target{Path: doc, RevisionDir: filepath.Join(base, "revs")}
	if err := sup.StartWatching(target); err != nil {
		t.Fatalf("StartWatching: %v", err)
	}

	if err := os.WriteFile(doc, []byte("v2"), 0600); err != nil {
		t.Fatal(err)
	}
	expectSignal(t, deb, doc)
}

func TestSiblingFileIgnored(t *testing.T) {
	sup, deb := newTestSupervisor(t)
	base := t.TempDir()

	doc := filepath.Join(base, "draft.md")
	sibling := filepath.Join(base, "other.md")
	if err := os.WriteFile(doc, []byte("v1"), 0600); err != nil {
		t.Fatal(err)
	}

	target := store.Target{Path: doc, RevisionDir: filepath.Join(base, "revs")}
	if err := sup.StartWatching(target); err != nil {
		t.Fatal(err)
	}

	// The parent directory is subscribed, but only the target file may
	// reach the debouncer.
	if err := os.WriteFile(sibling, []byte("noise"), 0600); err != nil {
		t.Fatal(err)
	}
	expectNoSignal(t, deb, 300*time.Millisecond)
}

func TestDirectoryTargetCoversContainedFiles(t *testing.T) {
	sup, deb := newTestSupervisor(t)
	base := t.TempDir()

	notes := filepath.Join(base, "notes")
	sub := filepath.Join(notes, "sub")
	if err := os.MkdirAll(sub, 0700); err != nil {
		t.Fatal(err)
	}

	target := store.Target{Path: notes, RevisionDir: filepath.Join(base, "revs")}
	if err := sup.StartWatching(target); err != nil {
		t.Fatal(err)
	}

	top := filepath.Join(notes, "a.md")
	if err := os.WriteFile(top, []byte("v1"), 0600); err != nil {
		t.Fatal(err)
	}
	expectSignal(t, deb, top)

	nested := filepath.Join(sub, "b.md")
	if err := os.WriteFile(nested, []byte("v1"), 0600); err != nil {
		t.Fatal(err)
	}
	expectSignal(t, deb, nested)
}

func TestNewSubdirectoryPickedUp(t *testing.T) {
	sup, deb := newTestSupervisor(t)
	base := t.TempDir()

	notes := filepath.Join(base, "notes")
	if err := os.MkdirAll(notes, 0700); err != nil {
		t.Fatal(err)
	}

	target := store.Target{Path: notes, RevisionDir: filepath.Join(base, "revs")}
	if err := sup.StartWatching(target); err != nil {
		t.Fatal(err)
	}

	// A directory created after subscription must be folded into the
	// recursive watch.
	created := filepath.Join(notes, "chapter2")
	if err := os.MkdirAll(created, 0700); err != nil {
		t.Fatal(err)
	}
	// Give the event loop a moment to extend the subscription.
	time.Sleep(300 * time.Millisecond)

	doc := filepath.Join(created, "draft.md")
	if err := os.WriteFile(doc, []byte("v1"), 0600); err != nil {
		t.Fatal(err)
	}
	expectSignal(t, deb, doc)
}

func TestRevisionDirExcluded(t *testing.T) {
	sup, deb := newTestSupervisor(t)
	base := t.TempDir()

	// A file target whose revision directory lies inside another watched
	// directory target: writes into it raise raw events, but they must
	// never reach the debouncer or the engine would revision its own
	// output.
	notes := filepath.Join(base, "notes")
	soloRevs := filepath.Join(notes, ".solo-revs")
	if err := os.MkdirAll(soloRevs, 0700); err != nil {
		t.Fatal(err)
	}
	solo := filepath.Join(base, "solo.md")
	if err := os.WriteFile(solo, []byte("v1"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := sup.StartWatching(store.Target{Path: notes, RevisionDir: filepath.Join(base, "notes-revs")}); err != nil {
		t.Fatal(err)
	}
	if err := sup.StartWatching(store.Target{Path: solo, RevisionDir: soloRevs}); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(soloRevs, "solo_20260301T100000000.md"), []byte("rev"), 0600); err != nil {
		t.Fatal(err)
	}
	expectNoSignal(t, deb, 300*time.Millisecond)
}

func TestStopWatching(t *testing.T) {
	sup, deb := newTestSupervisor(t)
	base := t.TempDir()

	doc := filepath.Join(base, "draft.md")
	if err := os.WriteFile(doc, []byte("v1"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := sup.StartWatching(store.Target{Path: doc, RevisionDir: filepath.Join(base, "revs")}); err != nil {
		t.Fatal(err)
	}
	if sup.WatchCount() != 1 {
		t.Fatalf("WatchCount = %d, want 1", sup.WatchCount())
	}

	sup.StopWatching(doc)
	if sup.WatchCount() != 0 {
		t.Fatalf("WatchCount = %d, want 0", sup.WatchCount())
	}

	if err := os.WriteFile(doc, []byte("v2"), 0600); err != nil {
		t.Fatal(err)
	}
	expectNoSignal(t, deb, 300*time.Millisecond)
}

func TestReconcile(t *testing.T) {
	sup, deb := newTestSupervisor(t)
	base := t.TempDir()

	a := filepath.Join(base, "a.md")
	b := filepath.Join(base, "b.md")
	for _, p := range []string{a, b} {
		if err := os.WriteFile(p, []byte("v1"), 0600); err != nil {
			t.Fatal(err)
		}
	}
	revs := filepath.Join(base, "revs")

	sup.Reconcile([]store.Target{
		{Path: a, RevisionDir: revs},
		{Path: b, RevisionDir: revs},
	})
	if sup.WatchCount() != 2 {
		t.Fatalf("WatchCount = %d, want 2", sup.WatchCount())
	}

	// Dropping a target from the desired set stops its subscription.
	sup.Reconcile([]store.Target{{Path: a, RevisionDir: revs}})
	if sup.WatchCount() != 1 {
		t.Fatalf("WatchCount = %d, want 1", sup.WatchCount())
	}

	if err := os.WriteFile(a, []byte("v2"), 0600); err != nil {
		t.Fatal(err)
	}
	expectSignal(t, deb, a)
}

func TestReconcileSkipsUnwatchable(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	base := t.TempDir()

	missing := filepath.Join(base, "missing.md")
	present := filepath.Join(base, "present.md")
	if err := os.WriteFile(present, []byte("v1"), 0600); err != nil {
		t.Fatal(err)
	}
	revs := filepath.Join(base, "revs")

	// One unwatchable target must not prevent the rest from subscribing.
	sup.Reconcile([]store.Target{
		{Path: missing, RevisionDir: revs},
		{Path: present, RevisionDir: revs},
	})
	if sup.WatchCount() != 1 {
		t.Fatalf("WatchCount = %d, want 1", sup.WatchCount())
	}
}
