package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"twcc/internal/config"
	"twcc/internal/testutil"
	"twcc/internal/twcc"
)

const firstTimeline = `[
  {"data": [
    {"id": "3", "text": "third", "created_at": "2024-01-03T00:00:00Z"},
    {"id": "2", "text": "second", "created_at": "2024-01-02T00:00:00Z"}
  ]},
  {"data": [{"id": "1", "text": "first", "created_at": "2024-01-01T00:00:00Z"}]}
]`

const secondTimeline = `[
  {"data": [
    {"id": "4", "text": "fourth", "created_at": "2024-01-04T00:00:00Z"},
    {"id": "3", "text": "third, edited", "created_at": "2024-01-03T00:00:00Z"}
  ]},
  {"data": [{"id": "1", "text": "first", "created_at": "2024-01-01T00:00:00Z"}]}
]`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.NewConfig(base)
	cfg.Platform.Type = "file"
	cfg.Platform.FixturePath = filepath.Join(base, "timeline.json")
	cfg.Encryption.Type = "test"
	cfg.Snapshots.Encrypt = true
	cfg.Metrics.TextfilePath = filepath.Join(base, "twcc.prom")
	t.Setenv("TWCC_TOKEN", "test-token")
	t.Setenv("TWCC_PASSPHRASE", "test-passphrase")
	return cfg
}

func writeTimeline(t *testing.T, cfg *config.Config, body string) {
	t.Helper()
	if err := os.WriteFile(cfg.Platform.FixturePath, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
}

func runOnce(t *testing.T, cfg *config.Config) (*twcc.RunSummary, error) {
	t.Helper()
	a, err := NewTWApp(context.Background(), cfg, Options{Stderr: &bytes.Buffer{}, Clock: testutil.FixedClock()})
	if err != nil {
		t.Fatalf("NewTWApp() error = %v", err)
	}
	defer a.Close()
	return a.DeletedTweets(context.Background(), "@alice")
}

func TestTWApp_DeletedTweets(t *testing.T) {
	cfg := testConfig(t)

	writeTimeline(t, cfg, firstTimeline)
	first, err := runOnce(t, cfg)
	if err != nil {
		t.Fatalf("first run error = %v", err)
	}
	if !first.FirstRun || first.Counts.New != 3 {
		t.Errorf("first run = %+v", first)
	}
	if !strings.HasSuffix(first.SnapshotKey, ".jsonl.age") {
		t.Errorf("snapshot key %q should be encrypted", first.SnapshotKey)
	}

	writeTimeline(t, cfg, secondTimeline)
	second, err := runOnce(t, cfg)
	if err != nil {
		t.Fatalf("second run error = %v", err)
	}
	want := twcc.Summary{Present: 1, Deleted: 1, Modified: 1, New: 1}
	if second.Counts != want {
		t.Errorf("second run counts = %+v, want %+v", second.Counts, want)
	}

	data, err := os.ReadFile(second.ReportPath)
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	if !strings.Contains(string(data), "second") {
		t.Errorf("report should list the deleted tweet:\n%s", data)
	}

	if _, err := os.Stat(cfg.Metrics.TextfilePath); err != nil {
		t.Errorf("metrics textfile not written: %v", err)
	}

	a, err := NewTWApp(context.Background(), cfg, Options{Stderr: &bytes.Buffer{}})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	runs, err := a.History(context.Background(), 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("History() = %d runs, want 2", len(runs))
	}
	if runs[0].Status != twcc.RunSuccess || runs[0].Counts.Deleted != 1 || runs[0].UserID != "alice" {
		t.Errorf("latest run = %+v", runs[0])
	}

	infos, err := a.Snapshots(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Snapshots() error = %v", err)
	}
	if len(infos) != 2 {
		t.Errorf("Snapshots() = %d, want 2", len(infos))
	}
}

func TestTWApp_MissingCredential(t *testing.T) {
	cfg := testConfig(t)
	t.Setenv("TWCC_TOKEN", "")
	writeTimeline(t, cfg, firstTimeline)

	summary, err := runOnce(t, cfg)
	if twcc.StageOf(err) != twcc.StageConfig || !errors.Is(err, twcc.ErrConfig) {
		t.Fatalf("error = %v, want config-stage ErrConfig", err)
	}
	if summary == nil || summary.UserID != "alice" {
		t.Errorf("summary = %+v", summary)
	}

	a, err := NewTWApp(context.Background(), cfg, Options{Stderr: &bytes.Buffer{}})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	runs, err := a.History(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Status != twcc.RunError || runs[0].Stage != "config" {
		t.Errorf("runs = %+v", runs)
	}
}

func TestTWApp_EncryptionWithoutKeys(t *testing.T) {
	cfg := testConfig(t)
	cfg.Encryption.Type = "age"

	_, err := NewTWApp(context.Background(), cfg, Options{Stderr: &bytes.Buffer{}})
	if !errors.Is(err, twcc.ErrConfig) {
		t.Fatalf("NewTWApp() error = %v, want ErrConfig", err)
	}
}

func TestTWApp_HistoryLimit(t *testing.T) {
	cfg := testConfig(t)
	writeTimeline(t, cfg, firstTimeline)
	a, err := NewTWApp(context.Background(), cfg, Options{Stderr: &bytes.Buffer{}})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if _, err := a.History(context.Background(), 0); !errors.Is(err, twcc.ErrConfig) {
		t.Errorf("History(0) error = %v, want ErrConfig", err)
	}
}

func TestInitKeys(t *testing.T) {
	cfg := testConfig(t)
	cfg.Encryption.Type = "age"
	pass := func() (string, error) { return "correct horse", nil }

	if err := InitKeys(cfg, pass); err != nil {
		t.Fatalf("InitKeys() error = %v", err)
	}
	if _, err := os.Stat(cfg.Encryption.PublicKeyPath); err != nil {
		t.Errorf("public key missing: %v", err)
	}
	if err := InitKeys(cfg, pass); err == nil {
		t.Error("InitKeys() should refuse to overwrite existing keys")
	}
}
