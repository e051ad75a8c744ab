package app

import (
	"context"
	"fmt"
	"time"

	"twcc/internal/twcc"
)

// RunOperation tracks one deleted-tweets run in the run history. It is
// created in memory with ID=0 and gets its row id once started.
type RunOperation struct {
	ID        int64
	RunID     string
	Username  string
	StartedAt time.Time
	Status    string // "running", "success" or "error"
}

// NewRunOperation creates a new in-memory run operation.
func NewRunOperation(runID, username string, startedAt time.Time) *RunOperation {
	return &RunOperation{
		RunID:     runID,
		Username:  username,
		StartedAt: startedAt,
		Status:    twcc.RunRunning,
	}
}

// Persisted returns true if this operation has been saved to the history.
func (op *RunOperation) Persisted() bool {
	return op.ID != 0
}

// Start records the operation as running.
func (op *RunOperation) Start(ctx context.Context, h twcc.RunHistory) error {
	if op.Persisted() {
		return nil
	}
	id, err := h.StartRun(ctx, op.RunID, op.Username, op.StartedAt)
	if err != nil {
		return fmt.Errorf("persisting run operation: %w", err)
	}
	op.ID = id
	return nil
}

// Finish stores the run's outcome. It is a no-op for operations that were
// never started.
func (op *RunOperation) Finish(ctx context.Context, h twcc.RunHistory, summary *twcc.RunSummary, runErr error, finishedAt time.Time) error {
	if !op.Persisted() {
		return nil
	}
	op.Status = twcc.RunSuccess
	if runErr != nil {
		op.Status = twcc.RunError
	}
	if err := h.FinishRun(ctx, op.ID, summary, runErr, finishedAt); err != nil {
		return fmt.Errorf("finishing run operation: %w", err)
	}
	return nil
}
