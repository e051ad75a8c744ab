// Package database stores run history in SQLite.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"twcc/internal/database/migrations"
	"twcc/internal/twcc"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteHistory implements twcc.RunHistory using SQLite.
type SQLiteHistory struct {
	db   *sql.DB
	path string
}

var _ twcc.RunHistory = (*SQLiteHistory)(nil)

// NewSQLiteHistory opens the database at path and brings its schema up to date.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteHistory(path string) (*SQLiteHistory, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}
	return &SQLiteHistory{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// In-memory databases are pinned to a single connection so every query sees
// the same database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Wait for the lock instead of failing when two runs for different users
	// finish at the same time.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

func (s *SQLiteHistory) StartRun(ctx context.Context, runID, userID string, startedAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, username, started_at, status) VALUES (?, ?, ?, ?)`,
		runID, userID, startedAt.UTC(), twcc.RunRunning)
	if err != nil {
		return 0, fmt.Errorf("recording run start: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading run id: %w", err)
	}
	return id, nil
}

func (s *SQLiteHistory) FinishRun(ctx context.Context, id int64, summary *twcc.RunSummary, runErr error, finishedAt time.Time) error {
	status, stage, msg := twcc.RunSuccess, "", ""
	if runErr != nil {
		status, stage, msg = twcc.RunError, string(twcc.StageOf(runErr)), runErr.Error()
	}
	var c twcc.Summary
	var userID, snapshotKey, reportPath string
	if summary != nil {
		c = summary.Counts
		userID, snapshotKey, reportPath = summary.UserID, summary.SnapshotKey, summary.ReportPath
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			finished_at = ?, status = ?, stage = ?, error = ?,
			username = CASE WHEN ? = '' THEN username ELSE ? END,
			deleted = ?, modified = ?, new = ?, present = ?, carried = ?, unrecognized = ?,
			snapshot_key = ?, report_path = ?
		WHERE id = ?`,
		finishedAt.UTC(), status, stage, msg,
		userID, userID,
		c.Deleted, c.Modified, c.New, c.Present, c.Carried, c.Unrecognized,
		snapshotKey, reportPath,
		id)
	if err != nil {
		return fmt.Errorf("recording run finish: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %d not found", id)
	}
	return nil
}

func (s *SQLiteHistory) ListRuns(ctx context.Context, limit int) ([]twcc.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, username, started_at, finished_at, status, stage, error,
		       deleted, modified, new, present, carried, unrecognized,
		       snapshot_key, report_path
		FROM runs
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []twcc.RunRecord
	for rows.Next() {
		var r twcc.RunRecord
		var finished sql.NullTime
		err := rows.Scan(&r.ID, &r.RunID, &r.UserID, &r.StartedAt, &finished, &r.Status, &r.Stage, &r.Error,
			&r.Counts.Deleted, &r.Counts.Modified, &r.Counts.New, &r.Counts.Present, &r.Counts.Carried, &r.Counts.Unrecognized,
			&r.SnapshotKey, &r.ReportPath)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return out, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteHistory) Path() string {
	return s.path
}

func (s *SQLiteHistory) Close() error {
	return s.db.Close()
}
