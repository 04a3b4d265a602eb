// Package revision turns settled change signals into revision files.
//
// The writer is the only consumer of change signals. For each signal it
// re-reads the file, fingerprints the content, suppresses duplicates, and
// copies the bytes atomically into the target's revision directory. A
// revision file is immutable once created; the engine never mutates or
// deletes one.
package revision

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"revisiond/internal/debounce"
	"revisiond/internal/fingerprint"
	"revisiond/internal/journal"
	"revisiond/internal/logging"
	"revisiond/internal/notify"
	"revisiond/internal/store"
)

// Options configures a Writer. Journal and Notifier are optional.
type Options struct {
	// Journal records created revisions when non-nil. Journal failures
	// are logged and never block a revision.
	Journal *journal.Journal

	// Notifier receives one call per created revision. Delivery failures
	// are logged and never roll back the revision.
	Notifier notify.Notifier

	// MaxFileSize skips files larger than this many bytes. 0 disables
	// the limit.
	MaxFileSize int64

	Logger *logging.Logger
}

// Writer materializes revisions for settled changes.
type Writer struct {
	store    *store.Store
	journal  *journal.Journal
	notifier notify.Notifier
	maxSize  int64
	log      *logging.Logger

	// locks serializes concurrent settlements for the same path.
	// Different paths proceed fully in parallel.
	locks sync.Map // path -> *sync.Mutex
}

// New creates a Writer over the given store.
func New(st *store.Store, opts Options) *Writer {
	log := opts.Logger
	if log == nil {
		log = logging.Default()
	}
	return &Writer{
		store:    st,
		journal:  opts.Journal,
		notifier: opts.Notifier,
		maxSize:  opts.MaxFileSize,
		log:      log.WithComponent("revision"),
	}
}

// OnChange handles one settled change. Signals for paths no longer in the
// store, or for files that vanished between event and processing, are
// discarded silently; the next change starts a fresh cycle. A copy failure
// is returned to the caller and leaves the stored fingerprint untouched so
// the next settlement retries.
func (w *Writer) OnChange(sig debounce.Signal) error {
	target, ok := w.store.Resolve(sig.Path)
	if !ok {
		// Raced with a removal; not an error.
		w.log.Debug("signal for unknown path discarded", "path", sig.Path)
		return nil
	}

	mu := w.pathLock(sig.Path)
	mu.Lock()
	defer mu.Unlock()

	// Re-resolve under the lock: the previous settlement for this path may
	// have updated the fingerprint while we waited.
	target, ok = w.store.Resolve(sig.Path)
	if !ok {
		return nil
	}

	src, err := os.Open(sig.Path)
	if err != nil {
		if os.IsNotExist(err) {
			w.log.Debug("file vanished before revisioning", "path", sig.Path)
			return nil
		}
		return fmt.Errorf("open %s: %w", sig.Path, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", sig.Path, err)
	}
	if w.maxSize > 0 && info.Size() > w.maxSize {
		w.log.Warn("file exceeds size limit, skipping", "path", sig.Path, "size", info.Size())
		return nil
	}

	if err := os.MkdirAll(target.RevisionDir, 0700); err != nil {
		return fmt.Errorf("create revision directory %s: %w", target.RevisionDir, err)
	}

	// Single pass: copy into a temp file in the revision directory while
	// hashing, then decide. The temp name never becomes visible as a
	// revision, so a crash mid-copy leaves no half-written revision.
	tmp, err := os.CreateTemp(target.RevisionDir, ".rev-*")
	if err != nil {
		return fmt.Errorf("create temp revision: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	h := fingerprint.New()
	size, err := io.Copy(tmp, io.TeeReader(src, h))
	if err != nil {
		tmp.Close()
		return fmt.Errorf("copy %s: %w", sig.Path, err)
	}
	fp := fingerprint.Sum(h)

	// Duplicate suppression: content-identical saves never produce new
	// revisions. A nil fingerprint is never equal, so the first
	// observation of a fresh target always revisions.
	if target.LastFingerprint != nil && *target.LastFingerprint == fp {
		tmp.Close()
		w.log.Debug("content unchanged, no revision", "path", sig.Path)
		return nil
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp revision: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp revision: %w", err)
	}

	storedName, err := storedFilename(target.RevisionDir, filepath.Base(sig.Path), sig.DetectedAt)
	if err != nil {
		return fmt.Errorf("derive revision name: %w", err)
	}

	finalPath := filepath.Join(target.RevisionDir, storedName)
	if err := os.Rename(tmpName, finalPath); err != nil {
		return fmt.Errorf("publish revision %s: %w", finalPath, err)
	}

	if err := w.store.UpdateFingerprint(target.Path, fp); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Target removed while the copy was in flight; the revision
			// itself is harmless and stays.
			w.log.Debug("target removed mid-revision", "path", target.Path)
		} else {
			w.log.Error("persist fingerprint", "path", target.Path, "error", err)
		}
	}

	w.log.Info("revision created", "path", sig.Path, "stored", storedName, "bytes", size)

	if w.journal != nil {
		err := w.journal.Append(journal.Entry{
			SourcePath:  sig.Path,
			StoredName:  storedName,
			Fingerprint: fp,
			Size:        size,
			CreatedAt:   sig.DetectedAt,
		})
		if err != nil {
			w.log.Warn("journal append failed", "path", sig.Path, "error", err)
		}
	}

	if w.notifier != nil {
		if err := w.notifier.RevisionCreated(sig.Path, storedName, sig.DetectedAt); err != nil {
			w.log.Warn("notification failed", "path", sig.Path, "error", err)
		}
	}

	return nil
}

func (w *Writer) pathLock(path string) *sync.Mutex {
	v, _ := w.locks.LoadOrStore(path, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// storedFilename derives the revision file name:
// <base>_<timestamp>[_<n>]<ext>, millisecond timestamp resolution, with a
// counter suffix when two revisions of the same file land on the same
// millisecond.
func storedFilename(dir, base string, ts time.Time) (string, error) {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	stamp := ts.Format("20060102T150405") + fmt.Sprintf("%03d", ts.Nanosecond()/int(time.Millisecond))

	name := fmt.Sprintf("%s_%s%s", stem, stamp, ext)
	for n := 1; ; n++ {
		_, err := os.Stat(filepath.Join(dir, name))
		if os.IsNotExist(err) {
			return name, nil
		}
		if err != nil {
			return "", err
		}
		name = fmt.Sprintf("%s_%s_%d%s", stem, stamp, n, ext)
	}
}
