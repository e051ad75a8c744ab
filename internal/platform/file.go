package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"twcc/internal/twcc"
)

// FileSource replays a fixture file holding a JSON array of response
// envelopes, one per page. Cursors are page indexes; the envelopes' own
// next_cursor values are ignored.
type FileSource struct {
	pages []wirePage
}

var _ twcc.TimelineSource = (*FileSource)(nil)

// NewFileSource loads the fixture at path.
func NewFileSource(path string) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture: %w", err)
	}
	var pages []wirePage
	if err := json.Unmarshal(data, &pages); err != nil {
		return nil, fmt.Errorf("decoding fixture %s: %w", path, err)
	}
	return &FileSource{pages: pages}, nil
}

// FetchPage returns the page at the cursor's index. The fixture holds a
// single timeline, so userID is not consulted.
func (s *FileSource) FetchPage(ctx context.Context, userID string, cred twcc.Credential, cursor string) (*twcc.RawPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 || n >= len(s.pages) {
			return nil, fmt.Errorf("fixture has no page for cursor %q", cursor)
		}
		idx = n
	}
	if len(s.pages) == 0 {
		return &twcc.RawPage{}, nil
	}

	page := &twcc.RawPage{Entries: s.pages[idx].Data}
	if idx+1 < len(s.pages) {
		page.NextCursor = strconv.Itoa(idx + 1)
	}
	return page, nil
}
