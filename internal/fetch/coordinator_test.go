package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"twcc/internal/testutil"
	"twcc/internal/twcc"
)

// sleepRecorder replaces real sleeps and records requested delays.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

type countingObserver struct {
	twcc.NopObserver
	mu           sync.Mutex
	pages        int
	retries      map[string]int
	unrecognized int
}

func (o *countingObserver) PageFetched(string, int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pages++
}

func (o *countingObserver) FetchRetried(_ string, reason string, _ int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.retries == nil {
		o.retries = make(map[string]int)
	}
	o.retries[reason]++
}

func (o *countingObserver) EntryUnrecognized(string, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unrecognized++
}

func newTestCoordinator(src twcc.TimelineSource, opts Options) (*Coordinator, *sleepRecorder, *countingObserver) {
	obs := &countingObserver{}
	c := NewCoordinator(src, opts, twcc.NewNopLogger(), obs)
	rec := &sleepRecorder{}
	c.sleep = rec.sleep
	c.jitter = func(d time.Duration) time.Duration { return d }
	return c, rec, obs
}

func tweets(ids ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(ids))
	for i, id := range ids {
		out[i] = testutil.TweetJSON(id, "text "+id, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	}
	return out
}

func drain(t *testing.T, it twcc.PageIterator) ([]*twcc.Page, error) {
	t.Helper()
	var pages []*twcc.Page
	for {
		p, err := it.Next()
		if errors.Is(err, io.EOF) {
			return pages, nil
		}
		if err != nil {
			return pages, err
		}
		pages = append(pages, p)
	}
}

func TestCoordinator_PagesInOrder(t *testing.T) {
	const n = 20
	src := testutil.NewFakeSource()
	var pages [][]json.RawMessage
	for i := range n {
		pages = append(pages, tweets(fmt.Sprintf("%d-a", i), fmt.Sprintf("%d-b", i)))
	}
	src.Pages(pages...)

	c, _, obs := newTestCoordinator(src, Options{Concurrency: 4})
	got, err := drain(t, c.FetchLive(context.Background(), "alice", twcc.Credential{Token: "t"}))
	if err != nil {
		t.Fatalf("drain() error = %v", err)
	}
	if len(got) != n {
		t.Fatalf("got %d pages, want %d", len(got), n)
	}
	for i, p := range got {
		if p.Seq != i {
			t.Fatalf("page %d has Seq %d", i, p.Seq)
		}
		if want := fmt.Sprintf("%d-a", i); p.Entries[0].ID != want {
			t.Errorf("page %d first entry = %q, want %q", i, p.Entries[0].ID, want)
		}
	}

	calls := src.Calls()
	if calls[0] != "" || calls[1] != "c1" || len(calls) != n {
		t.Errorf("calls = %v", calls)
	}
	if obs.pages != n {
		t.Errorf("observer pages = %d, want %d", obs.pages, n)
	}
}

func TestCoordinator_Lazy(t *testing.T) {
	src := testutil.NewFakeSource().Pages(tweets("1"))
	c, _, _ := newTestCoordinator(src, Options{})

	it := c.FetchLive(context.Background(), "alice", twcc.Credential{})
	if calls := src.Calls(); len(calls) != 0 {
		t.Fatalf("requests before Next: %v", calls)
	}
	if _, err := drain(t, it); err != nil {
		t.Fatal(err)
	}
}

func TestCoordinator_RetriesTransient(t *testing.T) {
	src := testutil.NewFakeSource()
	src.On("",
		testutil.PageScript{Err: &twcc.TransientError{Err: errors.New("503")}},
		testutil.PageScript{Err: &twcc.TransientError{Err: errors.New("reset")}},
		testutil.PageScript{Entries: tweets("1")},
	)

	c, rec, obs := newTestCoordinator(src, Options{Policy: Policy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Minute}})
	got, err := drain(t, c.FetchLive(context.Background(), "alice", twcc.Credential{}))
	if err != nil {
		t.Fatalf("drain() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d pages, want 1", len(got))
	}
	if want := []time.Duration{time.Second, 2 * time.Second}; fmt.Sprint(rec.delays) != fmt.Sprint(want) {
		t.Errorf("delays = %v, want %v", rec.delays, want)
	}
	if obs.retries["transient"] != 2 {
		t.Errorf("transient retries = %d, want 2", obs.retries["transient"])
	}
}

func TestCoordinator_RateLimitHonorsRetryAfter(t *testing.T) {
	src := testutil.NewFakeSource()
	src.On("",
		testutil.PageScript{Err: &twcc.RateLimitedError{RetryAfter: 15 * time.Second}},
		testutil.PageScript{Entries: tweets("1")},
	)

	c, rec, _ := newTestCoordinator(src, Options{Policy: Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute}})
	if _, err := drain(t, c.FetchLive(context.Background(), "alice", twcc.Credential{})); err != nil {
		t.Fatalf("drain() error = %v", err)
	}
	if len(rec.delays) != 1 || rec.delays[0] != 15*time.Second {
		t.Errorf("delays = %v, want [15s]", rec.delays)
	}
}

func TestCoordinator_RateLimitExhausted(t *testing.T) {
	src := testutil.NewFakeSource()
	src.On("", testutil.PageScript{Err: &twcc.RateLimitedError{}})

	c, rec, _ := newTestCoordinator(src, Options{Policy: Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute}})
	_, err := drain(t, c.FetchLive(context.Background(), "alice", twcc.Credential{}))
	if !errors.Is(err, twcc.ErrRateLimitExceeded) {
		t.Fatalf("error = %v, want ErrRateLimitExceeded", err)
	}
	if len(src.Calls()) != 3 {
		t.Errorf("calls = %d, want 3", len(src.Calls()))
	}
	if len(rec.delays) != 2 {
		t.Errorf("sleeps = %d, want 2", len(rec.delays))
	}
}

func TestCoordinator_TransientExhausted(t *testing.T) {
	src := testutil.NewFakeSource()
	src.On("", testutil.PageScript{Entries: tweets("1"), NextCursor: "c1"})
	src.On("c1", testutil.PageScript{Err: &twcc.TransientError{Err: errors.New("502")}})

	c, _, _ := newTestCoordinator(src, Options{Policy: Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}})
	pages, err := drain(t, c.FetchLive(context.Background(), "alice", twcc.Credential{}))

	var ffe *twcc.FetchFailedError
	if !errors.As(err, &ffe) {
		t.Fatalf("error = %v, want *FetchFailedError", err)
	}
	if ffe.Cursor != "c1" || ffe.Attempts != 2 {
		t.Errorf("FetchFailedError = %+v", ffe)
	}
	if len(pages) > 1 {
		t.Errorf("got %d pages before failure", len(pages))
	}
}

func TestCoordinator_PermanentNotRetried(t *testing.T) {
	src := testutil.NewFakeSource()
	src.On("", testutil.PageScript{Err: errors.New("401 unauthorized")})

	c, rec, _ := newTestCoordinator(src, Options{})
	_, err := drain(t, c.FetchLive(context.Background(), "alice", twcc.Credential{}))
	if !errors.Is(err, twcc.ErrFetchFailed) {
		t.Fatalf("error = %v, want ErrFetchFailed", err)
	}
	if len(src.Calls()) != 1 || len(rec.delays) != 0 {
		t.Errorf("calls = %v, delays = %v", src.Calls(), rec.delays)
	}
}

func TestCoordinator_RepeatedCursor(t *testing.T) {
	src := testutil.NewFakeSource()
	src.On("", testutil.PageScript{Entries: tweets("1"), NextCursor: "c1"})
	src.On("c1", testutil.PageScript{Entries: tweets("2"), NextCursor: "c1"})

	c, _, _ := newTestCoordinator(src, Options{})
	_, err := drain(t, c.FetchLive(context.Background(), "alice", twcc.Credential{}))
	if !errors.Is(err, twcc.ErrFetchFailed) {
		t.Fatalf("error = %v, want ErrFetchFailed", err)
	}
}

func TestCoordinator_MaxPages(t *testing.T) {
	src := testutil.NewFakeSource().Pages(tweets("1"), tweets("2"), tweets("3"))

	c, _, _ := newTestCoordinator(src, Options{MaxPages: 2})
	_, err := drain(t, c.FetchLive(context.Background(), "alice", twcc.Credential{}))
	if !errors.Is(err, twcc.ErrFetchFailed) {
		t.Fatalf("error = %v, want ErrFetchFailed", err)
	}
	if len(src.Calls()) != 2 {
		t.Errorf("calls = %v, want 2", src.Calls())
	}
}

func TestCoordinator_EmptyTimeline(t *testing.T) {
	src := testutil.NewFakeSource().On("", testutil.PageScript{})

	c, _, _ := newTestCoordinator(src, Options{})
	pages, err := drain(t, c.FetchLive(context.Background(), "alice", twcc.Credential{}))
	if err != nil {
		t.Fatalf("drain() error = %v", err)
	}
	if len(pages) != 1 || len(pages[0].Entries) != 0 {
		t.Errorf("pages = %+v, want one empty page", pages)
	}
}

func TestCoordinator_UnrecognizedEntries(t *testing.T) {
	src := testutil.NewFakeSource().On("", testutil.PageScript{Entries: []json.RawMessage{
		json.RawMessage(`{"id":"1","text":"ok"}`),
		json.RawMessage(`{"id":"2"}`),
	}})

	c, _, obs := newTestCoordinator(src, Options{})
	pages, err := drain(t, c.FetchLive(context.Background(), "alice", twcc.Credential{}))
	if err != nil {
		t.Fatal(err)
	}
	if pages[0].Entries[1].Kind != twcc.EntryUnrecognized {
		t.Errorf("entry 2 kind = %v", pages[0].Entries[1].Kind)
	}
	if obs.unrecognized != 1 {
		t.Errorf("observer unrecognized = %d, want 1", obs.unrecognized)
	}
}

func TestCoordinator_Canceled(t *testing.T) {
	src := testutil.NewFakeSource().Pages(tweets("1"))
	src.Block = func(ctx context.Context, cursor string) error {
		<-ctx.Done()
		return ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c, _, _ := newTestCoordinator(src, Options{})
	it := c.FetchLive(ctx, "alice", twcc.Credential{})

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := it.Next()
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Next() error = %v, want context.Canceled", err)
	}
	if _, err := it.Next(); !errors.Is(err, context.Canceled) {
		t.Errorf("second Next() error = %v, want the same terminal error", err)
	}
}

func TestStream_Close(t *testing.T) {
	src := testutil.NewFakeSource().Pages(tweets("1"), tweets("2"))
	c, _, _ := newTestCoordinator(src, Options{})

	it := c.FetchLive(context.Background(), "alice", twcc.Credential{})
	if _, err := it.Next(); err != nil {
		t.Fatal(err)
	}
	s := it.(*Stream)
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := s.Next(); !errors.Is(err, context.Canceled) {
		t.Errorf("Next() after Close = %v, want context.Canceled", err)
	}
}
