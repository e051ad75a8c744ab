package twcc

import (
	"time"

	"github.com/google/uuid"
)

// Logger provides structured logging for the run service and its
// collaborators. The args follow slog conventions: alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger is a Logger that discards all output. Use in tests.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (*NopLogger) Debug(string, ...any) {}
func (*NopLogger) Info(string, ...any)  {}
func (*NopLogger) Warn(string, ...any)  {}
func (*NopLogger) Error(string, ...any) {}

// Clock abstracts time retrieval so capture times are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts unique ID generation for runs and snapshot keys.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }

// Observer receives run telemetry. Implementations must be safe for
// concurrent use: page and retry events arrive from fetch goroutines.
type Observer interface {
	PageFetched(userID string, seq int, entries int)
	FetchRetried(userID string, reason string, attempt int, delay time.Duration)
	EntryUnrecognized(userID string, reason string)
	RunFinished(summary RunSummary, err error, elapsed time.Duration)
}

// NopObserver discards all telemetry.
type NopObserver struct{}

func (NopObserver) PageFetched(string, int, int)                    {}
func (NopObserver) FetchRetried(string, string, int, time.Duration) {}
func (NopObserver) EntryUnrecognized(string, string)                {}
func (NopObserver) RunFinished(RunSummary, error, time.Duration)    {}
