package testutil

import (
	"testing"

	"twcc/internal/database"
	"twcc/internal/twcc"
)

// NewTestHistory creates an in-memory SQLite run history with migrations
// applied. It is closed when the test completes.
func NewTestHistory(t *testing.T) twcc.RunHistory {
	t.Helper()

	h, err := database.NewSQLiteHistory(":memory:")
	if err != nil {
		t.Fatalf("failed to open run history: %v", err)
	}

	t.Cleanup(func() {
		h.Close()
	})

	return h
}
