// Package fetch retrieves a user's live timeline from a TimelineSource,
// walking cursors in order with bounded retries and decoding pages
// concurrently.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"twcc/internal/twcc"
)

// DefaultConcurrency is the number of page decoders when none is configured.
const DefaultConcurrency = 6

// Options configures a Coordinator.
type Options struct {
	Policy Policy
	// Concurrency bounds the pages decoded at once and the pages buffered
	// ahead of the consumer.
	Concurrency int
	// MaxPages fails the fetch if the timeline has more pages. 0 means
	// unbounded.
	MaxPages int
}

// Coordinator implements twcc.LiveFetcher.
type Coordinator struct {
	source   twcc.TimelineSource
	opts     Options
	logger   twcc.Logger
	observer twcc.Observer

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(d time.Duration) time.Duration
}

var _ twcc.LiveFetcher = (*Coordinator)(nil)

// NewCoordinator creates a Coordinator reading from source.
func NewCoordinator(source twcc.TimelineSource, opts Options, logger twcc.Logger, observer twcc.Observer) *Coordinator {
	opts.Policy = opts.Policy.withDefaults()
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if observer == nil {
		observer = twcc.NopObserver{}
	}
	return &Coordinator{
		source:   source,
		opts:     opts,
		logger:   logger,
		observer: observer,
		sleep:    sleepCtx,
		jitter:   fullJitter,
	}
}

// FetchLive returns a lazy stream of the user's live timeline. Nothing is
// requested until the first call to Next. The returned iterator is also an
// io.Closer; closing it aborts outstanding requests.
func (c *Coordinator) FetchLive(ctx context.Context, userID string, cred twcc.Credential) twcc.PageIterator {
	ctx, cancel := context.WithCancel(ctx)
	return &Stream{
		c:       c,
		ctx:     ctx,
		cancel:  cancel,
		userID:  userID,
		cred:    cred,
		pending: make(map[int]*twcc.Page),
	}
}

// rawPage is a fetched page awaiting decoding.
type rawPage struct {
	seq     int
	cursor  string
	entries []json.RawMessage
}

// walk requests pages in cursor order and hands them to the decoders.
// Cursor dependencies make this loop inherently sequential.
func (c *Coordinator) walk(ctx context.Context, userID string, cred twcc.Credential, out chan<- rawPage) error {
	seen := make(map[string]struct{})
	cursor := ""

	for seq := 0; ; seq++ {
		if c.opts.MaxPages > 0 && seq >= c.opts.MaxPages {
			return &twcc.FetchFailedError{
				Cursor: cursor,
				Cause:  fmt.Errorf("timeline has more than %d pages", c.opts.MaxPages),
			}
		}

		rp, err := c.fetchPage(ctx, userID, cred, cursor)
		if err != nil {
			return err
		}
		c.logger.Debug("page fetched", "user", userID, "seq", seq, "entries", len(rp.Entries))
		c.observer.PageFetched(userID, seq, len(rp.Entries))

		select {
		case out <- rawPage{seq: seq, cursor: cursor, entries: rp.Entries}:
		case <-ctx.Done():
			return ctx.Err()
		}

		if rp.NextCursor == "" {
			return nil
		}
		if _, dup := seen[rp.NextCursor]; dup || rp.NextCursor == cursor {
			return &twcc.FetchFailedError{
				Cursor: cursor,
				Cause:  fmt.Errorf("platform repeated cursor %q", rp.NextCursor),
			}
		}
		seen[rp.NextCursor] = struct{}{}
		cursor = rp.NextCursor
	}
}

// fetchPage requests one page, retrying rate-limit and transient failures
// with jittered exponential backoff.
func (c *Coordinator) fetchPage(ctx context.Context, userID string, cred twcc.Credential, cursor string) (*twcc.RawPage, error) {
	policy := c.opts.Policy
	var lastErr error
	rateLimited := false

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		page, err := c.source.FetchPage(ctx, userID, cred, cursor)
		if err == nil {
			if page == nil {
				page = &twcc.RawPage{}
			}
			return page, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		var hint time.Duration
		var reason string
		var rl *twcc.RateLimitedError
		switch {
		case errors.As(err, &rl):
			reason, hint, rateLimited = "rate_limit", rl.RetryAfter, true
		case twcc.IsTransient(err):
			reason, rateLimited = "transient", false
		default:
			return nil, &twcc.FetchFailedError{Cursor: cursor, Attempts: attempt, Cause: err}
		}
		lastErr = err

		if attempt == policy.MaxAttempts {
			break
		}
		delay := policy.Delay(attempt, hint, c.jitter)
		c.logger.Warn("page request failed, backing off",
			"user", userID, "cursor", cursor, "reason", reason,
			"attempt", attempt, "delay", delay, "error", err)
		c.observer.FetchRetried(userID, reason, attempt, delay)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	if rateLimited {
		return nil, fmt.Errorf("%w: cursor %q after %d attempts: %v",
			twcc.ErrRateLimitExceeded, cursor, policy.MaxAttempts, lastErr)
	}
	return nil, &twcc.FetchFailedError{Cursor: cursor, Attempts: policy.MaxAttempts, Cause: lastErr}
}

// decode runs the tagged parse over every entry of a page.
func (c *Coordinator) decode(userID string, rp rawPage) *twcc.Page {
	page := &twcc.Page{Seq: rp.seq, Cursor: rp.cursor, Entries: make([]twcc.Entry, len(rp.entries))}
	for i, raw := range rp.entries {
		e := twcc.ParseEntry(raw)
		if e.Kind == twcc.EntryUnrecognized {
			c.logger.Debug("unrecognized entry", "user", userID, "seq", rp.seq, "id", e.ID, "reason", e.Reason)
			c.observer.EntryUnrecognized(userID, e.Reason)
		}
		page.Entries[i] = e
	}
	return page
}

// Stream is the live page iterator returned by FetchLive. It is not safe
// for concurrent use and cannot be restarted.
type Stream struct {
	c      *Coordinator
	ctx    context.Context
	cancel context.CancelFunc
	userID string
	cred   twcc.Credential

	started bool
	results chan *twcc.Page
	err     error // written before results is closed

	pending map[int]*twcc.Page
	next    int
	final   error
}

var _ twcc.PageIterator = (*Stream)(nil)

func (s *Stream) start() {
	s.started = true
	n := s.c.opts.Concurrency
	s.results = make(chan *twcc.Page, n)
	raw := make(chan rawPage, n)

	g, ctx := errgroup.WithContext(s.ctx)
	g.Go(func() error {
		defer close(raw)
		return s.c.walk(ctx, s.userID, s.cred, raw)
	})
	for range n {
		g.Go(func() error {
			for rp := range raw {
				page := s.c.decode(s.userID, rp)
				select {
				case s.results <- page:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}

	go func() {
		s.err = g.Wait()
		close(s.results)
	}()
}

// Next returns the next page in cursor order, io.EOF after the last page,
// or the error that ended the stream. The page that failed is never
// returned.
func (s *Stream) Next() (*twcc.Page, error) {
	if s.final != nil {
		return nil, s.final
	}
	if !s.started {
		s.start()
	}

	for {
		if p, ok := s.pending[s.next]; ok {
			delete(s.pending, s.next)
			s.next++
			return p, nil
		}

		p, ok := <-s.results
		if !ok {
			switch {
			case s.err != nil:
				s.final = s.err
			case len(s.pending) > 0:
				s.final = &twcc.FetchFailedError{Cause: fmt.Errorf("page %d missing from stream", s.next)}
			default:
				s.final = io.EOF
			}
			s.cancel()
			return nil, s.final
		}
		s.pending[p.Seq] = p
	}
}

// Close aborts outstanding requests. Subsequent Next calls return
// context.Canceled unless the stream had already ended.
func (s *Stream) Close() error {
	s.cancel()
	if s.final == nil {
		s.final = context.Canceled
	}
	if s.started {
		for range s.results {
		}
	}
	return nil
}
