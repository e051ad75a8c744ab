package twcc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,15}$`)

// NormalizeUsername strips a leading "@" and lowercases the handle so each
// account maps to exactly one snapshot path. Invalid handles are ErrConfig.
func NormalizeUsername(raw string) (string, error) {
	name := strings.TrimPrefix(strings.TrimSpace(raw), "@")
	if name == "" {
		return "", fmt.Errorf("%w: username is required", ErrConfig)
	}
	if !usernamePattern.MatchString(name) {
		return "", fmt.Errorf("%w: invalid username %q", ErrConfig, raw)
	}
	return strings.ToLower(name), nil
}

// RunOptions tunes a single report run.
type RunOptions struct {
	// RunID identifies the run in logs and history. Generated when empty.
	RunID           string
	IncludeModified bool
}

// RunSummary describes the outcome of one run. It is returned even when the
// run fails, with as much filled in as was reached.
type RunSummary struct {
	RunID       string
	UserID      string
	FirstRun    bool
	StartedAt   time.Time
	Counts      Summary
	LivePages   int
	LiveTweets  int
	SnapshotKey string
	ReportPath  string
}

// TWService orchestrates one deleted-tweets run: claim, load the prior
// baseline, fetch the live set, diff, render, and persist the new baseline.
type TWService struct {
	store    SnapshotStore
	fetcher  LiveFetcher
	reports  ReportWriter
	logger   Logger
	clock    Clock
	idgen    IDGenerator
	observer Observer
}

// NewTWService creates a TWService with the provided dependencies.
// A nil observer is replaced by NopObserver.
func NewTWService(store SnapshotStore, fetcher LiveFetcher, reports ReportWriter, logger Logger, clock Clock, idgen IDGenerator, observer Observer) *TWService {
	if observer == nil {
		observer = NopObserver{}
	}
	return &TWService{
		store:    store,
		fetcher:  fetcher,
		reports:  reports,
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
		observer: observer,
	}
}

// Run executes a full report run for username. Fatal errors are
// *StageError values naming the failing stage; durable state (the prior
// snapshot and any prior report) is left untouched on failure.
func (s *TWService) Run(ctx context.Context, username string, cred Credential, opts RunOptions) (*RunSummary, error) {
	runID := opts.RunID
	if runID == "" {
		runID = s.idgen.New()
	}
	summary := &RunSummary{RunID: runID, StartedAt: s.clock.Now()}
	err := s.run(ctx, username, cred, opts, summary)
	elapsed := s.clock.Now().Sub(summary.StartedAt)
	s.observer.RunFinished(*summary, err, elapsed)
	if err != nil {
		s.logger.Error("run failed", "user", summary.UserID, "stage", string(StageOf(err)), "error", err)
		return summary, err
	}
	s.logger.Info("run complete",
		"user", summary.UserID,
		"deleted", summary.Counts.Deleted,
		"modified", summary.Counts.Modified,
		"new", summary.Counts.New,
		"present", summary.Counts.Present,
		"report", summary.ReportPath,
		"snapshot", summary.SnapshotKey,
	)
	return summary, nil
}

func (s *TWService) run(ctx context.Context, username string, cred Credential, opts RunOptions, summary *RunSummary) error {
	userID, err := NormalizeUsername(username)
	if err != nil {
		return &StageError{Stage: StageConfig, Err: err}
	}
	summary.UserID = userID

	claim, err := s.store.Claim(ctx, userID)
	if err != nil {
		return &StageError{Stage: StageClaim, Err: err}
	}
	defer func() {
		if err := claim.Release(); err != nil {
			s.logger.Warn("releasing run claim", "user", userID, "error", err)
		}
	}()

	prior, err := s.loadBaseline(ctx, userID, summary)
	if err != nil {
		return &StageError{Stage: StageStorage, Err: err}
	}

	s.logger.Info("fetching live timeline", "user", userID)
	stream := s.fetcher.FetchLive(ctx, userID, cred)
	if c, ok := stream.(io.Closer); ok {
		defer c.Close()
	}
	live, err := Materialize(stream)
	if err != nil {
		return &StageError{Stage: StageFetch, Err: err}
	}
	summary.LivePages = live.Pages
	summary.LiveTweets = len(live.Records)
	if live.Duplicates > 0 || live.Unidentified > 0 || len(live.Unrecognized) > 0 {
		s.logger.Warn("live set had irregular entries",
			"user", userID,
			"duplicates", live.Duplicates,
			"unrecognized", len(live.Unrecognized),
			"unidentified", live.Unidentified,
		)
	}

	results := Classify(prior, live)
	summary.Counts = Summarize(results)
	summary.Counts.Unrecognized = len(live.Unrecognized) + live.Unidentified

	if err := ctx.Err(); err != nil {
		return &StageError{Stage: StageFetch, Err: err}
	}

	report := &Report{
		UserID:             userID,
		GeneratedAt:        s.clock.Now().UTC(),
		BaselineCapturedAt: prior.CapturedAt,
		Results:            results,
		Summary:            summary.Counts,
		LiveTweets:         len(live.Records),
		IncludeModified:    opts.IncludeModified,
	}
	path, err := s.reports.WriteReport(report)
	if err != nil {
		return &StageError{Stage: StageRender, Err: err}
	}
	summary.ReportPath = path

	if err := ctx.Err(); err != nil {
		return &StageError{Stage: StageStorage, Err: fmt.Errorf("not saving snapshot: %w", err)}
	}

	baseline, err := NextBaseline(userID, s.clock.Now(), results)
	if err != nil {
		return &StageError{Stage: StageStorage, Err: fmt.Errorf("building baseline: %w", err)}
	}
	key, err := s.store.Save(ctx, baseline)
	if err != nil {
		return &StageError{Stage: StageStorage, Err: fmt.Errorf("saving snapshot: %w", err)}
	}
	summary.SnapshotKey = key
	return nil
}

// loadBaseline returns the latest snapshot, or an empty one on a first run.
func (s *TWService) loadBaseline(ctx context.Context, userID string, summary *RunSummary) (*Snapshot, error) {
	prior, err := s.store.LoadLatest(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		s.logger.Info("no prior snapshot, treating all live tweets as new", "user", userID)
		summary.FirstRun = true
		return EmptySnapshot(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading latest snapshot: %w", err)
	}
	s.logger.Debug("loaded baseline", "user", userID, "captured_at", prior.CapturedAt, "tweets", prior.Len())
	return prior, nil
}

// Snapshots lists the stored snapshots for username, oldest first.
func (s *TWService) Snapshots(ctx context.Context, username string) ([]SnapshotInfo, error) {
	userID, err := NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	infos, err := s.store.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	return infos, nil
}
