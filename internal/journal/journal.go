// Package journal keeps an append-only SQLite index of created revisions.
//
// The journal is advisory. The revision files on disk are the authoritative
// history; the journal only makes it cheap to answer "what revisions exist
// for this target" without listing directories. An append failure is logged
// by the caller and never rolls back or blocks a revision write.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"revisiond/internal/fingerprint"
)

const schema = `
CREATE TABLE IF NOT EXISTS revisions (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    source_path  TEXT NOT NULL,
    stored_name  TEXT NOT NULL,
    fingerprint  TEXT NOT NULL,
    size_bytes   INTEGER NOT NULL,
    created_ns   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_revisions_source ON revisions(source_path, created_ns);
`

// Entry is one recorded revision.
type Entry struct {
	SourcePath  string
	StoredName  string
	Fingerprint fingerprint.Fingerprint
	Size        int64
	CreatedAt   time.Time
}

// Journal is the SQLite-backed revision index.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal database at the given path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Append records a created revision.
func (j *Journal) Append(e Entry) error {
	_, err := j.db.Exec(`
		INSERT INTO revisions (source_path, stored_name, fingerprint, size_bytes, created_ns)
		VALUES (?, ?, ?, ?, ?)`,
		e.SourcePath, e.StoredName, e.Fingerprint.String(), e.Size, e.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("append revision: %w", err)
	}
	return nil
}

// History returns the recorded revisions for a source path, newest first.
// limit <= 0 returns all entries.
func (j *Journal) History(sourcePath string, limit int) ([]Entry, error) {
	q := `
		SELECT source_path, stored_name, fingerprint, size_bytes, created_ns
		FROM revisions WHERE source_path = ?
		ORDER BY created_ns DESC`
	args := []any{sourcePath}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var fp string
		var createdNs int64
		if err := rows.Scan(&e.SourcePath, &e.StoredName, &fp, &e.Size, &createdNs); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		parsed, err := fingerprint.Parse(fp)
		if err != nil {
			return nil, fmt.Errorf("parse stored fingerprint: %w", err)
		}
		e.Fingerprint = parsed
		e.CreatedAt = time.Unix(0, createdNs)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the total number of recorded revisions.
func (j *Journal) Count() (int64, error) {
	var n int64
	if err := j.db.QueryRow(`SELECT COUNT(*) FROM revisions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count revisions: %w", err)
	}
	return n, nil
}
