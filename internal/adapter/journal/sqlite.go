package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/semmidev/rotabak/internal/domain"
)

const schema = `CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	reference_date TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	status TEXT NOT NULL,
	exit_code INTEGER NOT NULL,
	selected INTEGER NOT NULL,
	artifact TEXT,
	artifact_size INTEGER,
	remote_keys TEXT,
	pruned INTEGER NOT NULL,
	error TEXT
)`

// Entry is one journaled run.
type Entry struct {
	ID            string
	ReferenceDate string
	StartedAt     time.Time
	FinishedAt    time.Time
	Status        string
	ExitCode      int
	Selected      int
	Artifact      string
	ArtifactSize  int64
	RemoteKeys    []string
	Pruned        int
	Error         string
}

// SQLite records run outcomes in a local database.
type SQLite struct {
	db *sql.DB
}

func Open(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// sqlite serialises writers anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create runs table: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Record(ctx context.Context, report *domain.RunReport) error {
	var errText sql.NullString
	if err := report.Err(); err != nil {
		errText = sql.NullString{String: err.Error(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO runs (id, reference_date, started_at, finished_at, status, exit_code, selected, artifact, artifact_size, remote_keys, pruned, error) "+
			"VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		report.Run.ID,
		report.Run.DateName(),
		report.StartedAt.UnixMilli(),
		report.FinishedAt.UnixMilli(),
		report.Status(),
		report.ExitCode(),
		len(report.Selected),
		report.Artifact,
		report.ArtifactSize,
		strings.Join(report.RemoteKeys, "\n"),
		len(report.Pruned.Deleted),
		errText,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", report.Run.ID, err)
	}
	return nil
}

// Last returns up to n runs, newest first.
func (s *SQLite) Last(ctx context.Context, n int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, reference_date, started_at, finished_at, status, exit_code, selected, artifact, artifact_size, remote_keys, pruned, error "+
			"FROM runs ORDER BY started_at DESC LIMIT ?", n)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                 Entry
			started, finished int64
			keys              string
			errText           sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.ReferenceDate, &started, &finished, &e.Status, &e.ExitCode,
			&e.Selected, &e.Artifact, &e.ArtifactSize, &keys, &e.Pruned, &errText); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		e.StartedAt = time.UnixMilli(started)
		e.FinishedAt = time.UnixMilli(finished)
		if keys != "" {
			e.RemoteKeys = strings.Split(keys, "\n")
		}
		e.Error = errText.String
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// LastSuccess returns the newest run that finished without errors.
func (s *SQLite) LastSuccess(ctx context.Context) (Entry, bool, error) {
	var (
		e                 Entry
		started, finished int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, reference_date, started_at, finished_at, artifact FROM runs WHERE status = 'success' ORDER BY started_at DESC LIMIT 1").
		Scan(&e.ID, &e.ReferenceDate, &started, &finished, &e.Artifact)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("query last success: %w", err)
	}

	e.Status = "success"
	e.StartedAt = time.UnixMilli(started)
	e.FinishedAt = time.UnixMilli(finished)
	return e, true, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
