package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for twcc.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Credential CredentialConfig `toml:"credential"`
	Platform   PlatformConfig   `toml:"platform"`
	Fetch      FetchConfig      `toml:"fetch"`
	Snapshots  SnapshotConfig   `toml:"snapshots"`
	Encryption EncryptionConfig `toml:"encryption"`
	Database   DatabaseConfig   `toml:"database"`
	Report     ReportConfig     `toml:"report"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

// CredentialConfig says where the platform token comes from. The
// environment variable wins over the file.
type CredentialConfig struct {
	TokenEnv  string `toml:"token_env"`
	TokenPath string `toml:"token_path,omitempty"`
}

// PlatformConfig selects the timeline source.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type PlatformConfig struct {
	Type      string `toml:"type"` // "http" or "file"
	BaseURL   string `toml:"base_url,omitempty"`
	PageSize  int    `toml:"page_size,omitempty"`
	TimeoutMS int    `toml:"timeout_ms,omitempty"`

	// File-specific fields (only used when Type == "file")
	FixturePath string `toml:"fixture_path,omitempty"`
}

// Timeout returns the per-request timeout.
func (p PlatformConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

// FetchConfig holds the retry and concurrency limits of the fetch layer.
type FetchConfig struct {
	MaxAttempts int `toml:"max_attempts"`
	BaseDelayMS int `toml:"base_delay_ms"`
	MaxDelayMS  int `toml:"max_delay_ms"`
	Concurrency int `toml:"concurrency"`
	MaxPages    int `toml:"max_pages"` // 0 means unbounded
}

// SnapshotConfig represents configuration for the snapshot store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type SnapshotConfig struct {
	Type    string `toml:"type"` // "filesystem", "s3", or "memory"
	Dir     string `toml:"dir,omitempty"`
	Encrypt bool   `toml:"encrypt"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket       string `toml:"s3_bucket,omitempty"`
	S3Prefix       string `toml:"s3_prefix,omitempty"`
	S3Region       string `toml:"s3_region,omitempty"`
	S3Endpoint     string `toml:"s3_endpoint,omitempty"`
	S3PathStyle    bool   `toml:"s3_path_style,omitempty"`
	S3AccessKeyEnv string `toml:"s3_access_key_env,omitempty"`
	S3SecretKeyEnv string `toml:"s3_secret_key_env,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used for snapshot encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
	PassphraseEnv  string `toml:"passphrase_env"`
}

// DatabaseConfig represents configuration for the run history database.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// ReportConfig controls where reports go and what they contain.
type ReportConfig struct {
	OutputDir       string `toml:"output_dir"`
	IncludeModified bool   `toml:"include_modified"`
	MaxTextLength   int    `toml:"max_text_length"`
}

// MetricsConfig enables writing run metrics as a Prometheus textfile.
type MetricsConfig struct {
	TextfilePath string `toml:"textfile_path,omitempty"`
}

// NewConfig creates a new Config rooted at baseDir with every default filled in.
func NewConfig(baseDir string) *Config {
	cfg := &Config{BaseDir: baseDir}
	cfg.Report.IncludeModified = true
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields. Paths default to locations under BaseDir.
func (c *Config) ApplyDefaults() {
	if c.LogDir == "" {
		c.LogDir = filepath.Join(c.BaseDir, "log")
	}
	if c.Credential.TokenEnv == "" {
		c.Credential.TokenEnv = "TWCC_TOKEN"
	}
	if c.Platform.Type == "" {
		c.Platform.Type = "http"
	}
	if c.Platform.BaseURL == "" && c.Platform.Type == "http" {
		c.Platform.BaseURL = "https://api.x.com/2"
	}
	if c.Platform.PageSize == 0 {
		c.Platform.PageSize = 100
	}
	if c.Platform.TimeoutMS == 0 {
		c.Platform.TimeoutMS = 30000
	}
	if c.Fetch.MaxAttempts == 0 {
		c.Fetch.MaxAttempts = 5
	}
	if c.Fetch.BaseDelayMS == 0 {
		c.Fetch.BaseDelayMS = 500
	}
	if c.Fetch.MaxDelayMS == 0 {
		c.Fetch.MaxDelayMS = 60000
	}
	if c.Fetch.Concurrency == 0 {
		c.Fetch.Concurrency = 6
	}
	if c.Snapshots.Type == "" {
		c.Snapshots.Type = "filesystem"
	}
	if c.Snapshots.Dir == "" && c.Snapshots.Type == "filesystem" {
		c.Snapshots.Dir = filepath.Join(c.BaseDir, "snapshots")
	}
	if c.Encryption.PublicKeyPath == "" {
		c.Encryption.PublicKeyPath = filepath.Join(c.BaseDir, "keys", "twcc.pub")
	}
	if c.Encryption.PrivateKeyPath == "" {
		c.Encryption.PrivateKeyPath = filepath.Join(c.BaseDir, "keys", "twcc.key")
	}
	if c.Encryption.PassphraseEnv == "" {
		c.Encryption.PassphraseEnv = "TWCC_PASSPHRASE"
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.DataDir == "" && c.Database.Type == "sqlite" {
		c.Database.DataDir = filepath.Join(c.BaseDir, "db")
	}
	if c.Report.OutputDir == "" {
		c.Report.OutputDir = filepath.Join(c.BaseDir, "reports")
	}
}

// Validate checks limits and backend types.
func (c *Config) Validate() error {
	var errs []error
	switch c.Platform.Type {
	case "http":
		if c.Platform.BaseURL == "" {
			errs = append(errs, errors.New("platform.base_url is required for type http"))
		}
	case "file":
		if c.Platform.FixturePath == "" {
			errs = append(errs, errors.New("platform.fixture_path is required for type file"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown platform type: %q", c.Platform.Type))
	}
	switch c.Snapshots.Type {
	case "filesystem", "memory":
	case "s3":
		if c.Snapshots.S3Bucket == "" {
			errs = append(errs, errors.New("snapshots.s3_bucket is required for type s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown snapshot store type: %q", c.Snapshots.Type))
	}
	if c.Fetch.MaxAttempts < 1 {
		errs = append(errs, errors.New("fetch.max_attempts must be positive"))
	}
	if c.Fetch.Concurrency < 1 {
		errs = append(errs, errors.New("fetch.concurrency must be positive"))
	}
	if c.Fetch.BaseDelayMS < 0 || c.Fetch.MaxDelayMS < 0 {
		errs = append(errs, errors.New("fetch delays must not be negative"))
	}
	if c.Fetch.MaxPages < 0 {
		errs = append(errs, errors.New("fetch.max_pages must not be negative"))
	}
	if c.Platform.PageSize < 0 {
		errs = append(errs, errors.New("platform.page_size must not be negative"))
	}
	if c.Report.MaxTextLength < 0 {
		errs = append(errs, errors.New("report.max_text_length must not be negative"))
	}
	return errors.Join(errs...)
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader and applies defaults.
// include_modified defaults to true when the key is absent.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if !md.IsDefined("report", "include_modified") {
		cfg.Report.IncludeModified = true
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads and validates a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
