package twcc

import (
	"fmt"
	"slices"
	"sort"
	"time"
)

// TweetMetrics holds the engagement counters captured with a tweet.
// They are informational only and never affect classification.
type TweetMetrics struct {
	Likes   int64 `json:"likes"`
	Reposts int64 `json:"reposts"`
}

// TweetRecord is a single tweet as captured in a snapshot or fetched live.
// Identity is ID; a record is never mutated after capture.
type TweetRecord struct {
	ID        string       `json:"id"`
	Text      string       `json:"text"`
	CreatedAt time.Time    `json:"created_at"`
	Metrics   TweetMetrics `json:"metrics"`
	MediaRefs []string     `json:"media_refs,omitempty"`
}

// SameContent reports whether two records carry the same text and the same
// ordered media references.
func (r TweetRecord) SameContent(other TweetRecord) bool {
	return r.Text == other.Text && slices.Equal(r.MediaRefs, other.MediaRefs)
}

// Snapshot is an immutable point-in-time capture of a user's tweets.
type Snapshot struct {
	UserID     string
	CapturedAt time.Time
	tweets     []TweetRecord // sorted by ID, unique
}

// NewSnapshot builds a snapshot from records. It fails if any record has an
// empty ID or if two records share an ID.
func NewSnapshot(userID string, capturedAt time.Time, records []TweetRecord) (*Snapshot, error) {
	tweets := make([]TweetRecord, len(records))
	copy(tweets, records)
	sort.Slice(tweets, func(i, j int) bool { return tweets[i].ID < tweets[j].ID })

	for i, t := range tweets {
		if t.ID == "" {
			return nil, fmt.Errorf("tweet record with empty id")
		}
		if i > 0 && tweets[i-1].ID == t.ID {
			return nil, fmt.Errorf("duplicate tweet id %s", t.ID)
		}
	}

	return &Snapshot{
		UserID:     userID,
		CapturedAt: capturedAt.UTC(),
		tweets:     tweets,
	}, nil
}

// EmptySnapshot returns the baseline used on a user's first run.
func EmptySnapshot(userID string) *Snapshot {
	return &Snapshot{UserID: userID}
}

// IsEmptyBaseline reports whether this snapshot stands in for a missing one.
func (s *Snapshot) IsEmptyBaseline() bool {
	return s.CapturedAt.IsZero() && len(s.tweets) == 0
}

// Tweets returns a copy of the snapshot's records, sorted by ID.
func (s *Snapshot) Tweets() []TweetRecord {
	out := make([]TweetRecord, len(s.tweets))
	copy(out, s.tweets)
	return out
}

// Len returns the number of tweets in the snapshot.
func (s *Snapshot) Len() int { return len(s.tweets) }

// Index returns the snapshot's records keyed by ID.
func (s *Snapshot) Index() map[string]TweetRecord {
	idx := make(map[string]TweetRecord, len(s.tweets))
	for _, t := range s.tweets {
		idx[t.ID] = t
	}
	return idx
}

// SnapshotInfo describes a stored snapshot without loading its content.
type SnapshotInfo struct {
	Key        string
	UserID     string
	CapturedAt time.Time
	Size       int64
}

// Status classifies one tweet id between the prior snapshot and the live set.
type Status int

const (
	StatusPresent Status = iota
	StatusDeleted
	StatusModified
	StatusNew
)

func (s Status) String() string {
	switch s {
	case StatusPresent:
		return "Present"
	case StatusDeleted:
		return "Deleted"
	case StatusModified:
		return "Modified"
	case StatusNew:
		return "New"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// DiffResult is the classification of a single tweet id.
// Prior is nil for New results; Live is nil for Deleted results and for
// carried-forward results whose live payload could not be parsed.
type DiffResult struct {
	TweetID        string
	Status         Status
	Prior          *TweetRecord
	Live           *TweetRecord
	CarriedForward bool
}
