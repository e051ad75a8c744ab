package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"twcc/internal/config"
	"twcc/internal/database"
	"twcc/internal/encryption"
	"twcc/internal/fetch"
	"twcc/internal/metrics"
	"twcc/internal/platform"
	"twcc/internal/report"
	"twcc/internal/snapshot"
	"twcc/internal/twcc"
)

// Options are the per-invocation settings that do not live in the config file.
type Options struct {
	// Verbosity is the number of -v flags.
	Verbosity int
	// Stderr receives filtered log output. Defaults to os.Stderr.
	Stderr io.Writer
	// Passphrase supplies the private key passphrase when an encrypted
	// snapshot must be read.
	Passphrase func() (string, error)
	// Source overrides the configured timeline source.
	Source twcc.TimelineSource
	Clock  twcc.Clock
}

// TWApp is the application layer between the CLI and TWService.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw usernames, and closes the run history and log on Close.
type TWApp struct {
	cfg      *config.Config
	history  twcc.RunHistory
	store    twcc.SnapshotStore
	service  *twcc.TWService
	recorder *metrics.Recorder
	logger   twcc.Logger
	clock    twcc.Clock
	runID    string
	logFile  *os.File
}

// NewTWApp creates a fully wired TWApp from the given config.
// The caller must call Close when done.
func NewTWApp(ctx context.Context, cfg *config.Config, opts Options) (*TWApp, error) {
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Clock == nil {
		opts.Clock = twcc.RealClock{}
	}
	if opts.Passphrase == nil {
		opts.Passphrase = NewPassphrasePrompt(cfg.Encryption.PassphraseEnv).Passphrase
	}
	idgen := twcc.UUIDGenerator{}
	runID := idgen.New()

	slogger, logFile, err := newLogger(cfg.LogDir, runID, opts.Verbosity, opts.Stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	a := &TWApp{cfg: cfg, logger: logger, clock: opts.Clock, runID: runID, logFile: logFile}
	if err := a.wire(ctx, opts, idgen); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *TWApp) wire(ctx context.Context, opts Options, idgen twcc.IDGenerator) error {
	cfg := a.cfg

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	cipher, err := encryption.NewSnapshotCipher(cfg.Snapshots.Encrypt, enc, opts.Passphrase)
	if err != nil {
		return fmt.Errorf("creating snapshot cipher: %w", err)
	}

	store, err := snapshot.NewSnapshotStoreFromConfig(ctx, cfg.Snapshots, cipher, idgen)
	if err != nil {
		return fmt.Errorf("creating snapshot store: %w", err)
	}
	a.store = store

	source := opts.Source
	if source == nil {
		source, err = platform.NewSourceFromConfig(cfg.Platform)
		if err != nil {
			return fmt.Errorf("creating timeline source: %w", err)
		}
	}

	history, err := database.NewHistoryFromConfig(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening run history: %w", err)
	}
	a.history = history

	a.recorder = metrics.NewRecorder()
	fetcher := fetch.NewCoordinator(source, fetch.Options{
		Policy: fetch.Policy{
			MaxAttempts: cfg.Fetch.MaxAttempts,
			BaseDelay:   time.Duration(cfg.Fetch.BaseDelayMS) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.Fetch.MaxDelayMS) * time.Millisecond,
		},
		Concurrency: cfg.Fetch.Concurrency,
		MaxPages:    cfg.Fetch.MaxPages,
	}, a.logger, a.recorder)

	reports := report.NewWriter(cfg.Report.OutputDir, report.Options{MaxTextLength: cfg.Report.MaxTextLength})
	a.service = twcc.NewTWService(store, fetcher, reports, a.logger, a.clock, idgen, a.recorder)
	return nil
}

// RunID identifies this invocation in logs and history.
func (a *TWApp) RunID() string { return a.runID }

// DeletedTweets runs a full report for username and records it in the run
// history. The summary is returned even when the run fails; it is nil only
// if the run could not be recorded.
func (a *TWApp) DeletedTweets(ctx context.Context, username string) (*twcc.RunSummary, error) {
	op := NewRunOperation(a.runID, historyName(username), a.clock.Now())
	if err := op.Start(ctx, a.history); err != nil {
		return nil, err
	}

	summary, err := a.deletedTweets(ctx, username, op)

	// ctx may already be canceled; the outcome is still recorded.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if ferr := op.Finish(finishCtx, a.history, summary, err, a.clock.Now()); ferr != nil {
		a.logger.Error("recording run outcome", "error", ferr)
	}
	a.writeMetrics()
	return summary, err
}

func (a *TWApp) deletedTweets(ctx context.Context, username string, op *RunOperation) (*twcc.RunSummary, error) {
	cred, err := LoadCredential(a.cfg.Credential)
	if err != nil {
		summary := &twcc.RunSummary{RunID: op.RunID, UserID: op.Username, StartedAt: op.StartedAt}
		return summary, &twcc.StageError{Stage: twcc.StageConfig, Err: err}
	}
	return a.service.Run(ctx, username, cred, twcc.RunOptions{
		RunID:           op.RunID,
		IncludeModified: a.cfg.Report.IncludeModified,
	})
}

func (a *TWApp) writeMetrics() {
	path := a.cfg.Metrics.TextfilePath
	if path == "" {
		return
	}
	if err := a.recorder.WriteTextfile(path); err != nil {
		a.logger.Warn("writing metrics", "path", path, "error", err)
	}
}

// historyName is the username recorded before the run validates it.
func historyName(raw string) string {
	if name, err := twcc.NormalizeUsername(raw); err == nil {
		return name
	}
	return raw
}

// Snapshots lists the stored snapshots for username, oldest first.
func (a *TWApp) Snapshots(ctx context.Context, username string) ([]twcc.SnapshotInfo, error) {
	return a.service.Snapshots(ctx, username)
}

// History returns the most recent runs, newest first.
func (a *TWApp) History(ctx context.Context, limit int) ([]twcc.RunRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: history limit must be positive", twcc.ErrConfig)
	}
	return a.history.ListRuns(ctx, limit)
}

// Close closes the run history and the log file.
func (a *TWApp) Close() error {
	var errs []error
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing run history: %w", err))
		}
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing log file: %w", err))
		}
	}
	return errors.Join(errs...)
}

// InitKeys generates the snapshot encryption key pair.
func InitKeys(cfg *config.Config, passphrase func() (string, error)) error {
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	if enc.IsConfigured() {
		return fmt.Errorf("keys already exist at %s", cfg.Encryption.PublicKeyPath)
	}
	pass, err := passphrase()
	if err != nil {
		return err
	}
	if err := enc.Setup(pass); err != nil {
		return fmt.Errorf("generating keys: %w", err)
	}
	return nil
}
