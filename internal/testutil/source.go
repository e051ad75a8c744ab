package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"twcc/internal/twcc"
)

// PageScript is one scripted response. Either Err is returned, or a page
// with Entries and NextCursor.
type PageScript struct {
	Entries    []json.RawMessage
	NextCursor string
	Err        error
}

// FakeSource is a scripted twcc.TimelineSource. Responses are keyed by the
// requested cursor and consumed in order, so a cursor can fail a few times
// before succeeding. Safe for concurrent use.
type FakeSource struct {
	mu      sync.Mutex
	scripts map[string][]PageScript
	calls   []string
	tokens  []string

	// Block, if set, is called before each response.
	Block func(ctx context.Context, cursor string) error
}

var _ twcc.TimelineSource = (*FakeSource)(nil)

// NewFakeSource creates an empty FakeSource.
func NewFakeSource() *FakeSource {
	return &FakeSource{scripts: make(map[string][]PageScript)}
}

// On queues responses for cursor.
func (f *FakeSource) On(cursor string, responses ...PageScript) *FakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[cursor] = append(f.scripts[cursor], responses...)
	return f
}

// Pages scripts a clean walk: page i is requested with cursor "" for i=0
// and "c<i>" otherwise.
func (f *FakeSource) Pages(pages ...[]json.RawMessage) *FakeSource {
	for i, entries := range pages {
		cursor := ""
		if i > 0 {
			cursor = "c" + strconv.Itoa(i)
		}
		next := ""
		if i < len(pages)-1 {
			next = "c" + strconv.Itoa(i+1)
		}
		f.On(cursor, PageScript{Entries: entries, NextCursor: next})
	}
	return f
}

func (f *FakeSource) FetchPage(ctx context.Context, userID string, cred twcc.Credential, cursor string) (*twcc.RawPage, error) {
	if f.Block != nil {
		if err := f.Block(ctx, cursor); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cursor)
	f.tokens = append(f.tokens, cred.Token)

	queue := f.scripts[cursor]
	if len(queue) == 0 {
		return nil, fmt.Errorf("no scripted response for cursor %q", cursor)
	}
	resp := queue[0]
	if len(queue) > 1 {
		f.scripts[cursor] = queue[1:]
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	return &twcc.RawPage{Entries: resp.Entries, NextCursor: resp.NextCursor}, nil
}

// Calls returns the cursors requested so far, in order.
func (f *FakeSource) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// Tokens returns the credential tokens seen, in call order.
func (f *FakeSource) Tokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.tokens))
	copy(out, f.tokens)
	return out
}

// TweetJSON renders a v2-style tweet payload.
func TweetJSON(id, text string, createdAt time.Time) json.RawMessage {
	b, err := json.Marshal(map[string]any{
		"id":         id,
		"text":       text,
		"created_at": createdAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		panic(err)
	}
	return b
}

// RecordJSON renders r as a v2-style payload.
func RecordJSON(r twcc.TweetRecord) json.RawMessage {
	m := map[string]any{
		"id":         r.ID,
		"text":       r.Text,
		"created_at": r.CreatedAt.UTC().Format(time.RFC3339Nano),
		"public_metrics": map[string]int64{
			"like_count":    r.Metrics.Likes,
			"retweet_count": r.Metrics.Reposts,
		},
	}
	if len(r.MediaRefs) > 0 {
		m["attachments"] = map[string]any{"media_keys": r.MediaRefs}
	}
	b, err := json.Marshal(m)
	if err != nil {
		panic(err)
	}
	return b
}

// SlicePages is a twcc.PageIterator over fixed pages, ending with Err or io.EOF.
type SlicePages struct {
	Pages []*twcc.Page
	Err   error
	i     int
}

var _ twcc.PageIterator = (*SlicePages)(nil)

func (s *SlicePages) Next() (*twcc.Page, error) {
	if s.i < len(s.Pages) {
		p := s.Pages[s.i]
		s.i++
		return p, nil
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return nil, io.EOF
}
