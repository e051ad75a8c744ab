package testutil

import (
	"context"
	"testing"
	"time"

	"twcc/internal/snapshot"
	"twcc/internal/twcc"
)

// NewTestSnapshotStore returns an in-memory plaintext snapshot store.
func NewTestSnapshotStore() *snapshot.MemoryStore {
	return snapshot.NewMemoryStore(twcc.PlainCipher{}, NewStubIDGenerator())
}

// SeedSnapshot saves a snapshot of records captured at capturedAt.
func SeedSnapshot(t *testing.T, store twcc.SnapshotStore, userID string, capturedAt time.Time, records ...twcc.TweetRecord) string {
	t.Helper()

	s, err := twcc.NewSnapshot(userID, capturedAt, records)
	if err != nil {
		t.Fatalf("building snapshot: %v", err)
	}
	key, err := store.Save(context.Background(), s)
	if err != nil {
		t.Fatalf("saving snapshot: %v", err)
	}
	return key
}

// Tweet builds a record with a fixed creation time offset by minutes from
// 2024-01-01 00:00 UTC.
func Tweet(id, text string, minutes int) twcc.TweetRecord {
	return twcc.TweetRecord{
		ID:        id,
		Text:      text,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(minutes) * time.Minute),
	}
}
