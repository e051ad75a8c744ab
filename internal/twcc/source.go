package twcc

import (
	"context"
	"encoding/json"
)

// Credential is the opaque platform credential handed to the fetch layer.
// It is always passed explicitly; nothing in twcc holds one globally.
type Credential struct {
	Token string
}

// String redacts the token so credentials never end up in logs.
func (c Credential) String() string {
	if c.Token == "" {
		return "Credential(empty)"
	}
	return "Credential(redacted)"
}

// RawPage is one response of the paginated tweet-listing endpoint.
// An empty NextCursor marks the end of the stream.
type RawPage struct {
	Entries    []json.RawMessage
	NextCursor string
}

// TimelineSource is the upstream paginated endpoint. An empty cursor
// requests the first page.
//
// Implementations signal rate limiting with *RateLimitedError and retryable
// failures with *TransientError; any other error is treated as permanent.
type TimelineSource interface {
	FetchPage(ctx context.Context, userID string, cred Credential, cursor string) (*RawPage, error)
}

// Page is one decoded page of the live stream. Seq is the page's position
// in cursor order, starting at 0.
type Page struct {
	Seq     int
	Cursor  string
	Entries []Entry
}

// PageIterator yields pages in cursor order. Next returns io.EOF once the
// stream is exhausted; after any terminal outcome it keeps returning it.
type PageIterator interface {
	Next() (*Page, error)
}

// LiveFetcher produces the live page stream for a user.
type LiveFetcher interface {
	FetchLive(ctx context.Context, userID string, cred Credential) PageIterator
}
