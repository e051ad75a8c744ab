package twcc

import "context"

// SnapshotStore is the durable, append-only archive of per-user snapshots.
type SnapshotStore interface {
	// LoadLatest returns the most recently saved snapshot for userID.
	// It returns ErrNotFound on a user's first run and a
	// *CorruptSnapshotError if the latest snapshot cannot be parsed.
	LoadLatest(ctx context.Context, userID string) (*Snapshot, error)

	// Save persists a new snapshot atomically and returns its key. It never
	// overwrites an existing snapshot; the saved one becomes the latest.
	Save(ctx context.Context, snapshot *Snapshot) (string, error)

	// List returns the stored snapshots for userID, oldest first.
	List(ctx context.Context, userID string) ([]SnapshotInfo, error)

	// Claim takes the exclusive per-user run claim. It fails fast with
	// ErrRunInProgress if another run holds it.
	Claim(ctx context.Context, userID string) (Claim, error)
}

// Claim is a held per-user run claim.
type Claim interface {
	Release() error
}
