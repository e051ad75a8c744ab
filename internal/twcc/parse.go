package twcc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EntryKind tags the outcome of parsing one platform payload.
type EntryKind int

const (
	EntryTweet EntryKind = iota
	EntryUnrecognized
)

// Entry is the tagged parse result for one payload of a page.
// For EntryTweet, Record is set. For EntryUnrecognized, Raw holds the
// original payload, Reason says what was missing, and ID is set when an id
// could still be extracted.
type Entry struct {
	Kind   EntryKind
	Record TweetRecord
	ID     string
	Raw    json.RawMessage
	Reason string
}

// classicTimeLayout is the v1.1 API's created_at format.
const classicTimeLayout = "Mon Jan 02 15:04:05 -0700 2006"

// wireTweet covers the payload shapes seen across API versions. Every field
// is optional; unknown fields are ignored.
type wireTweet struct {
	ID       json.RawMessage `json:"id"`
	IDStr    string          `json:"id_str"`
	Text     *string         `json:"text"`
	FullText *string         `json:"full_text"`

	CreatedAt string `json:"created_at"`

	PublicMetrics *struct {
		LikeCount    int64 `json:"like_count"`
		RetweetCount int64 `json:"retweet_count"`
	} `json:"public_metrics"`
	FavoriteCount *int64        `json:"favorite_count"`
	RetweetCount  *int64        `json:"retweet_count"`
	Metrics       *TweetMetrics `json:"metrics"`

	MediaRefs   []string `json:"media_refs"`
	Attachments *struct {
		MediaKeys []string `json:"media_keys"`
	} `json:"attachments"`
	Entities *struct {
		Media []struct {
			MediaURLHTTPS string `json:"media_url_https"`
		} `json:"media"`
	} `json:"entities"`
}

// ParseEntry decodes one platform payload. It never fails: anything that
// cannot be turned into a TweetRecord comes back as EntryUnrecognized.
func ParseEntry(raw json.RawMessage) Entry {
	unrecognized := func(id, reason string) Entry {
		return Entry{Kind: EntryUnrecognized, ID: id, Raw: raw, Reason: reason}
	}

	var w wireTweet
	if err := json.Unmarshal(raw, &w); err != nil {
		return unrecognized("", fmt.Sprintf("not a tweet object: %v", err))
	}

	id, err := w.id()
	if err != nil {
		return unrecognized("", err.Error())
	}
	if id == "" {
		return unrecognized("", "missing id")
	}

	var text string
	switch {
	case w.FullText != nil:
		text = *w.FullText
	case w.Text != nil:
		text = *w.Text
	default:
		return unrecognized(id, "missing text")
	}

	createdAt, err := parseCreatedAt(w.CreatedAt)
	if err != nil {
		return unrecognized(id, err.Error())
	}

	return Entry{
		Kind: EntryTweet,
		ID:   id,
		Record: TweetRecord{
			ID:        id,
			Text:      text,
			CreatedAt: createdAt,
			Metrics:   w.metrics(),
			MediaRefs: w.mediaRefs(),
		},
	}
}

// id extracts the tweet id as a string. Numeric ids are taken from the raw
// JSON text so large ids keep full precision.
func (w *wireTweet) id() (string, error) {
	if w.IDStr != "" {
		return w.IDStr, nil
	}
	raw := bytes.TrimSpace(w.ID)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("invalid id: %w", err)
		}
		return s, nil
	}
	if _, err := strconv.ParseUint(string(raw), 10, 64); err != nil {
		return "", fmt.Errorf("invalid numeric id %s", raw)
	}
	return string(raw), nil
}

func (w *wireTweet) metrics() TweetMetrics {
	switch {
	case w.PublicMetrics != nil:
		return TweetMetrics{Likes: w.PublicMetrics.LikeCount, Reposts: w.PublicMetrics.RetweetCount}
	case w.Metrics != nil:
		return *w.Metrics
	}
	var m TweetMetrics
	if w.FavoriteCount != nil {
		m.Likes = *w.FavoriteCount
	}
	if w.RetweetCount != nil {
		m.Reposts = *w.RetweetCount
	}
	return m
}

func (w *wireTweet) mediaRefs() []string {
	switch {
	case len(w.MediaRefs) > 0:
		return w.MediaRefs
	case w.Attachments != nil && len(w.Attachments.MediaKeys) > 0:
		return w.Attachments.MediaKeys
	case w.Entities != nil && len(w.Entities.Media) > 0:
		refs := make([]string, 0, len(w.Entities.Media))
		for _, m := range w.Entities.Media {
			if m.MediaURLHTTPS != "" {
				refs = append(refs, m.MediaURLHTTPS)
			}
		}
		return refs
	}
	return nil
}

func parseCreatedAt(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339Nano, classicTimeLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized created_at %q", s)
}
