// Package archive realizes pud's job-document store as a concrete SQLite
// database: one table ("collection") per worker name, append-only writes,
// and a raw-query read path for the manager's Query admin command.
package archive

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rustyhorde/pud-go/internal/domain"
)

// Archive is a single SQLite-backed store shared by all worker sessions.
// Append is safe to call concurrently from multiple goroutines; Query is
// expected to be serialized per caller (one manager session at a time),
// per spec §5.
type Archive struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, err
	}
	return &Archive{db: db}, nil
}

// Close closes the underlying database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

var unsafeIdent = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// collectionTable maps a worker name to a safe SQLite table name.
// Collisions after sanitization are accepted: per spec, worker names are
// advisory and may already collide at the registry level.
func collectionTable(workerName string) string {
	safe := unsafeIdent.ReplaceAllString(workerName, "_")
	if safe == "" {
		safe = "unknown"
	}
	return "jobs_" + safe
}

// EnsureCollection creates the per-worker table if it does not already
// exist. Failure is logged by the caller, not fatal, per spec §4.4/§7.
func (a *Archive) EnsureCollection(workerName string) error {
	table := collectionTable(workerName)
	_, err := a.db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			job_id      TEXT PRIMARY KEY,
			worker_id   TEXT NOT NULL,
			worker_name TEXT NOT NULL,
			job_name    TEXT NOT NULL,
			start_time  TEXT NOT NULL,
			end_time    TEXT NOT NULL,
			stdout      TEXT NOT NULL,
			stderr      TEXT NOT NULL,
			status      INTEGER NOT NULL
		)`, table))
	if err != nil {
		return fmt.Errorf("ensuring collection %q: %w", workerName, err)
	}
	return nil
}

const lineSep = "\n"

// Append inserts one job document into its worker's collection. The
// collection must already have been created via EnsureCollection.
func (a *Archive) Append(doc domain.JobDocument) error {
	table := collectionTable(doc.WorkerName)
	_, err := a.db.Exec(fmt.Sprintf(`
		INSERT INTO %s (job_id, worker_id, worker_name, job_name, start_time, end_time, stdout, stderr, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, table),
		doc.JobID.String(),
		doc.WorkerID.String(),
		doc.WorkerName,
		doc.JobName,
		doc.StartTime.UTC().Format(time.RFC3339Nano),
		doc.EndTime.UTC().Format(time.RFC3339Nano),
		strings.Join(doc.Stdout, lineSep),
		strings.Join(doc.Stderr, lineSep),
		doc.Status,
	)
	if err != nil {
		return fmt.Errorf("appending to collection %q: %w", doc.WorkerName, err)
	}
	return nil
}

// Query runs text verbatim as SQL against the archive database, returning
// job documents in cursor order. text is supplied by the manager's Query
// admin command, per spec §4.5; it is not restricted to workerName's
// collection (workerName only labels errors) nor to read-only statements.
// Callers are expected to scope access to the archive to managers only.
func (a *Archive) Query(workerName, text string) ([]domain.JobDocument, error) {
	rows, err := a.db.Query(text)
	if err != nil {
		return nil, fmt.Errorf("querying collection %q: %w", workerName, err)
	}
	defer rows.Close()

	var docs []domain.JobDocument
	for rows.Next() {
		var (
			jobID, workerID                   string
			workerName, jobName               string
			startTime, endTime, stdout, stderr string
			status                             int32
		)
		if err := rows.Scan(&jobID, &workerID, &workerName, &jobName, &startTime, &endTime, &stdout, &stderr, &status); err != nil {
			return nil, err
		}
		doc := domain.JobDocument{
			WorkerName: workerName,
			JobName:    jobName,
			Status:     status,
		}
		if id, err := uuid.Parse(jobID); err == nil {
			doc.JobID = id
		}
		if id, err := uuid.Parse(workerID); err == nil {
			doc.WorkerID = id
		}
		if t, err := time.Parse(time.RFC3339Nano, startTime); err == nil {
			doc.StartTime = t
		}
		if t, err := time.Parse(time.RFC3339Nano, endTime); err == nil {
			doc.EndTime = t
		}
		if stdout != "" {
			doc.Stdout = strings.Split(stdout, lineSep)
		}
		if stderr != "" {
			doc.Stderr = strings.Split(stderr, lineSep)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
