// Package store persists issue history across runs in a local SQLite
// database so reports can say how often a finding has recurred.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Archive is the on-disk record of every issue the harness has surfaced,
// keyed by fingerprint. Occurrence counts survive restarts, which lets the
// reporting gateway annotate new reports with cross-run frequency.
type Archive struct {
	db   *sql.DB
	path string
}

// OpenArchive opens (or creates) the archive database at path.
func OpenArchive(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	a := &Archive{db: db, path: path}
	if err := a.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize archive: %w", err)
	}
	return a, nil
}

func (a *Archive) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS issues (
		fingerprint TEXT PRIMARY KEY,
		area        TEXT NOT NULL,
		title       TEXT NOT NULL,
		severity    TEXT NOT NULL,
		ref         TEXT NOT NULL,
		first_seen  TIMESTAMP NOT NULL,
		last_seen   TIMESTAMP NOT NULL,
		occurrences INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_issues_area ON issues(area);
	CREATE INDEX IF NOT EXISTS idx_issues_last_seen ON issues(last_seen);
	`
	if _, err := a.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// RecordIssue upserts a newly created tracker issue. A fingerprint that was
// already archived (from an earlier run, after the tracker issue was closed)
// keeps its first_seen and has its occurrence count bumped.
func (a *Archive) RecordIssue(fingerprint, area, title, severity, ref string, at time.Time) error {
	_, err := a.db.Exec(`
		INSERT INTO issues (fingerprint, area, title, severity, ref, first_seen, last_seen, occurrences)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(fingerprint) DO UPDATE SET
			title = excluded.title,
			ref = excluded.ref,
			last_seen = excluded.last_seen,
			occurrences = occurrences + 1
	`, fingerprint, area, title, severity, ref, at, at)
	if err != nil {
		return fmt.Errorf("failed to record issue: %w", err)
	}
	return nil
}

// RecordDuplicate bumps the occurrence count for a fingerprint that matched
// an already-open tracker issue. Unknown fingerprints are ignored: the
// matching open issue predates this database.
func (a *Archive) RecordDuplicate(fingerprint string, at time.Time) error {
	_, err := a.db.Exec(`
		UPDATE issues SET last_seen = ?, occurrences = occurrences + 1
		WHERE fingerprint = ?
	`, at, fingerprint)
	if err != nil {
		return fmt.Errorf("failed to record duplicate: %w", err)
	}
	return nil
}

// Occurrences returns how many times the fingerprint has been seen across
// all runs, zero if never.
func (a *Archive) Occurrences(fingerprint string) (int, error) {
	var n int
	err := a.db.QueryRow(`SELECT occurrences FROM issues WHERE fingerprint = ?`, fingerprint).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count occurrences: %w", err)
	}
	return n, nil
}

// ArchivedIssue is one row of the archive, for inspection tooling.
type ArchivedIssue struct {
	Fingerprint string
	Area        string
	Title       string
	Severity    string
	Ref         string
	FirstSeen   time.Time
	LastSeen    time.Time
	Occurrences int
}

// Recent returns up to limit archived issues ordered by most recent sighting.
func (a *Archive) Recent(limit int) ([]ArchivedIssue, error) {
	rows, err := a.db.Query(`
		SELECT fingerprint, area, title, severity, ref, first_seen, last_seen, occurrences
		FROM issues ORDER BY last_seen DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer rows.Close()

	var out []ArchivedIssue
	for rows.Next() {
		var it ArchivedIssue
		if err := rows.Scan(&it.Fingerprint, &it.Area, &it.Title, &it.Severity,
			&it.Ref, &it.FirstSeen, &it.LastSeen, &it.Occurrences); err != nil {
			return nil, fmt.Errorf("failed to scan issue row: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}
