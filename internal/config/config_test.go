package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := NewConfig("/home/user/.local/share/twcc")
	original.Platform.BaseURL = "https://api.example.test/2"
	original.Fetch.MaxPages = 40
	original.Snapshots = SnapshotConfig{
		Type:        "s3",
		Encrypt:     true,
		S3Bucket:    "tweets",
		S3Prefix:    "snapshots",
		S3Region:    "eu-west-1",
		S3PathStyle: true,
	}
	original.Report.IncludeModified = false
	original.Report.MaxTextLength = 120
	original.Metrics.TextfilePath = "/var/lib/node_exporter/twcc.prom"

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if got.Platform.BaseURL != original.Platform.BaseURL {
		t.Errorf("Platform.BaseURL = %q, want %q", got.Platform.BaseURL, original.Platform.BaseURL)
	}
	if got.Fetch.MaxPages != 40 {
		t.Errorf("Fetch.MaxPages = %d, want 40", got.Fetch.MaxPages)
	}
	if got.Snapshots.Type != "s3" || got.Snapshots.S3Bucket != "tweets" || !got.Snapshots.S3PathStyle {
		t.Errorf("Snapshots = %+v", got.Snapshots)
	}
	if !got.Snapshots.Encrypt {
		t.Error("Snapshots.Encrypt = false, want true")
	}
	if got.Report.IncludeModified {
		t.Error("Report.IncludeModified = true, want false after explicit false")
	}
	if got.Report.MaxTextLength != 120 {
		t.Errorf("Report.MaxTextLength = %d, want 120", got.Report.MaxTextLength)
	}
	if got.Metrics.TextfilePath != original.Metrics.TextfilePath {
		t.Errorf("Metrics.TextfilePath = %q, want %q", got.Metrics.TextfilePath, original.Metrics.TextfilePath)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/twcc")

	if cfg.BaseDir != "/data/twcc" {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, "/data/twcc")
	}
	if want := filepath.Join("/data/twcc", "log"); cfg.LogDir != want {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, want)
	}
	if want := filepath.Join("/data/twcc", "snapshots"); cfg.Snapshots.Dir != want {
		t.Errorf("Snapshots.Dir = %q, want %q", cfg.Snapshots.Dir, want)
	}
	if want := filepath.Join("/data/twcc", "db"); cfg.Database.DataDir != want {
		t.Errorf("Database.DataDir = %q, want %q", cfg.Database.DataDir, want)
	}
	if want := filepath.Join("/data/twcc", "reports"); cfg.Report.OutputDir != want {
		t.Errorf("Report.OutputDir = %q, want %q", cfg.Report.OutputDir, want)
	}
	if want := filepath.Join("/data/twcc", "keys", "twcc.pub"); cfg.Encryption.PublicKeyPath != want {
		t.Errorf("Encryption.PublicKeyPath = %q, want %q", cfg.Encryption.PublicKeyPath, want)
	}
	if cfg.Credential.TokenEnv != "TWCC_TOKEN" {
		t.Errorf("Credential.TokenEnv = %q, want TWCC_TOKEN", cfg.Credential.TokenEnv)
	}
	if cfg.Fetch.MaxAttempts != 5 || cfg.Fetch.Concurrency != 6 {
		t.Errorf("Fetch = %+v", cfg.Fetch)
	}
	if !cfg.Report.IncludeModified {
		t.Error("Report.IncludeModified = false, want true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestManager_Read_Defaults(t *testing.T) {
	m := &Manager{}
	cfg, err := m.Read(strings.NewReader(`base_dir = "/srv/twcc"`))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !cfg.Report.IncludeModified {
		t.Error("Report.IncludeModified should default to true")
	}
	if cfg.Platform.Type != "http" {
		t.Errorf("Platform.Type = %q, want http", cfg.Platform.Type)
	}
	if cfg.Snapshots.Type != "filesystem" {
		t.Errorf("Snapshots.Type = %q, want filesystem", cfg.Snapshots.Type)
	}
	if cfg.Fetch.MaxDelayMS != 60000 {
		t.Errorf("Fetch.MaxDelayMS = %d, want 60000", cfg.Fetch.MaxDelayMS)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown platform", func(c *Config) { c.Platform.Type = "ftp" }, "unknown platform type"},
		{"file without fixture", func(c *Config) { c.Platform.Type = "file" }, "fixture_path"},
		{"unknown store", func(c *Config) { c.Snapshots.Type = "tape" }, "unknown snapshot store type"},
		{"s3 without bucket", func(c *Config) { c.Snapshots.Type = "s3" }, "s3_bucket"},
		{"zero attempts", func(c *Config) { c.Fetch.MaxAttempts = 0 }, "max_attempts"},
		{"negative concurrency", func(c *Config) { c.Fetch.Concurrency = -1 }, "concurrency"},
		{"negative delay", func(c *Config) { c.Fetch.BaseDelayMS = -5 }, "delays"},
		{"negative max pages", func(c *Config) { c.Fetch.MaxPages = -1 }, "max_pages"},
		{"negative text length", func(c *Config) { c.Report.MaxTextLength = -1 }, "max_text_length"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("/data/twcc")
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestInit_CreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "twcc.toml")
	cfg := NewConfig("/data/twcc")

	if err := Init(path, cfg); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	got, err := ReadFromFile(path)
	if err != nil {
		t.Fatalf("ReadFromFile() error = %v", err)
	}
	if got.BaseDir != "/data/twcc" {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, "/data/twcc")
	}
}

func TestInit_FailsIfExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "twcc.toml")

	if err := os.WriteFile(path, []byte("existing"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Init(path, NewConfig("/data/twcc")); err == nil {
		t.Fatal("Init() should fail when file already exists")
	}
}

func TestReadFromFile_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "twcc.toml")
	if err := os.WriteFile(path, []byte("[snapshots]\ntype = \"tape\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadFromFile(path); err == nil {
		t.Fatal("ReadFromFile() should reject an unknown store type")
	}
}

func TestReadFromFile_NotFound(t *testing.T) {
	if _, err := ReadFromFile(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("ReadFromFile() should fail for a missing file")
	}
}
