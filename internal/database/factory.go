package database

import (
	"fmt"
	"path/filepath"

	"twcc/internal/config"
	"twcc/internal/twcc"
)

// FileName is the run history database inside data_dir.
const FileName = "twcc.db"

// NewHistoryFromConfig creates a RunHistory based on the database config type.
func NewHistoryFromConfig(cfg config.DatabaseConfig) (twcc.RunHistory, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		return NewSQLiteHistory(filepath.Join(cfg.DataDir, FileName))
	case "memory":
		return NewSQLiteHistory(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
