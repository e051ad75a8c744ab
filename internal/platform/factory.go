package platform

import (
	"fmt"

	"twcc/internal/config"
	"twcc/internal/twcc"
)

// NewSourceFromConfig creates a TimelineSource based on the platform config type.
func NewSourceFromConfig(cfg config.PlatformConfig) (twcc.TimelineSource, error) {
	switch cfg.Type {
	case "http":
		return NewHTTPSource(cfg.BaseURL, cfg.PageSize, cfg.Timeout(), nil)
	case "file":
		if cfg.FixturePath == "" {
			return nil, fmt.Errorf("file platform requires fixture_path to be set")
		}
		return NewFileSource(cfg.FixturePath)
	default:
		return nil, fmt.Errorf("unknown platform type: %s", cfg.Type)
	}
}
