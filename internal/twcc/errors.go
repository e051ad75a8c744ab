package twcc

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConfig marks invalid or missing user input and configuration.
	ErrConfig = errors.New("invalid configuration")

	// ErrNotFound is returned by SnapshotStore.LoadLatest when a user has
	// no stored snapshot yet.
	ErrNotFound = errors.New("snapshot not found")

	// ErrCorruptSnapshot is matched by every *CorruptSnapshotError.
	ErrCorruptSnapshot = errors.New("corrupt snapshot")

	// ErrKeyUnlock is returned when the snapshot private key cannot be
	// unlocked. The stored snapshot itself may be intact.
	ErrKeyUnlock = errors.New("unlocking private key")

	// ErrFetchFailed is matched by every *FetchFailedError.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrRateLimitExceeded is returned when the backoff budget for a page is
	// exhausted while the platform keeps signalling rate limiting.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrRender is matched by every *RenderError.
	ErrRender = errors.New("report render failed")

	// ErrRunInProgress is returned by SnapshotStore.Claim when another run
	// already holds the user's snapshot path.
	ErrRunInProgress = errors.New("another run is in progress for this user")
)

// CorruptSnapshotError reports a stored snapshot that cannot be parsed.
type CorruptSnapshotError struct {
	UserID string
	Key    string
	Err    error
}

func (e *CorruptSnapshotError) Error() string {
	return fmt.Sprintf("corrupt snapshot %s for user %s: %v", e.Key, e.UserID, e.Err)
}

func (e *CorruptSnapshotError) Unwrap() error { return e.Err }

func (e *CorruptSnapshotError) Is(target error) bool { return target == ErrCorruptSnapshot }

// FetchFailedError reports a page fetch that could not be completed.
type FetchFailedError struct {
	Cursor   string
	Attempts int
	Cause    error
}

func (e *FetchFailedError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("fetch failed after %d attempts: %v", e.Attempts, e.Cause)
	}
	return fmt.Sprintf("fetch failed: %v", e.Cause)
}

func (e *FetchFailedError) Unwrap() error { return e.Cause }

func (e *FetchFailedError) Is(target error) bool { return target == ErrFetchFailed }

// RenderError reports a failure to produce or write the report.
type RenderError struct {
	Path string
	Err  error
}

func (e *RenderError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("rendering report: %v", e.Err)
	}
	return fmt.Sprintf("writing report %s: %v", e.Path, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

func (e *RenderError) Is(target error) bool { return target == ErrRender }

// RateLimitedError is the platform's rate-limit signal for one request.
// RetryAfter is zero when the platform gave no hint.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s)", e.RetryAfter)
	}
	return "rate limited"
}

// TransientError wraps a failure worth retrying (network errors, 5xx).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is marked as retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Stage names the part of a run that failed.
type Stage string

const (
	StageConfig  Stage = "config"
	StageClaim   Stage = "claim"
	StageStorage Stage = "storage"
	StageFetch   Stage = "fetch"
	StageRender  Stage = "render"
)

// StageError wraps a fatal run error with the stage it came from.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// StageOf returns the stage recorded in err, or "" if there is none.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
