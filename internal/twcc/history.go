package twcc

import (
	"context"
	"time"
)

// Run statuses recorded in RunHistory.
const (
	RunRunning = "running"
	RunSuccess = "success"
	RunError   = "error"
)

// RunRecord is one row of run history.
type RunRecord struct {
	ID          int64
	RunID       string
	UserID      string
	StartedAt   time.Time
	FinishedAt  time.Time // zero while running
	Status      string
	Stage       string
	Error       string
	Counts      Summary
	SnapshotKey string
	ReportPath  string
}

// RunHistory is the audit trail of report runs.
type RunHistory interface {
	// StartRun records a run as running and returns its row id.
	StartRun(ctx context.Context, runID, userID string, startedAt time.Time) (int64, error)

	// FinishRun stores the outcome of a started run. runErr is nil on success.
	FinishRun(ctx context.Context, id int64, summary *RunSummary, runErr error, finishedAt time.Time) error

	// ListRuns returns the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	Close() error
}
