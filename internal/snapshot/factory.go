package snapshot

import (
	"context"
	"fmt"

	"twcc/internal/config"
	"twcc/internal/twcc"
)

// NewSnapshotStoreFromConfig creates a SnapshotStore based on the snapshot config type.
// cipher is used for every snapshot written; pass twcc.PlainCipher when
// encryption is disabled.
func NewSnapshotStoreFromConfig(ctx context.Context, cfg config.SnapshotConfig, cipher twcc.Cipher, idgen twcc.IDGenerator) (twcc.SnapshotStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(cipher, idgen), nil
	case "s3":
		return NewS3StoreFromConfig(ctx, cfg, cipher, idgen)
	case "filesystem":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("filesystem snapshot store requires dir to be set")
		}
		return NewFileSystemStore(cfg.Dir, cipher, idgen)
	default:
		return nil, fmt.Errorf("unknown snapshot store type: %s", cfg.Type)
	}
}
