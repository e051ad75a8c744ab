package twcc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"
)

// LiveSet is the fully materialized live stream.
type LiveSet struct {
	Records map[string]TweetRecord
	// Unrecognized holds payloads that could not be parsed but whose id
	// was extractable.
	Unrecognized map[string]json.RawMessage
	Pages        int
	Duplicates   int
	// Unidentified counts payloads with no extractable id at all.
	Unidentified int
}

// NewLiveSet returns an empty LiveSet.
func NewLiveSet() *LiveSet {
	return &LiveSet{
		Records:      make(map[string]TweetRecord),
		Unrecognized: make(map[string]json.RawMessage),
	}
}

// LiveSetFromRecords builds a LiveSet directly from records. Later
// duplicates are dropped.
func LiveSetFromRecords(records []TweetRecord) *LiveSet {
	ls := NewLiveSet()
	for _, r := range records {
		ls.add(Entry{Kind: EntryTweet, ID: r.ID, Record: r})
	}
	return ls
}

func (ls *LiveSet) add(e Entry) {
	if e.Kind != EntryTweet {
		if e.ID == "" {
			ls.Unidentified++
			return
		}
		if _, ok := ls.Records[e.ID]; ok {
			ls.Duplicates++
			return
		}
		if _, ok := ls.Unrecognized[e.ID]; !ok {
			ls.Unrecognized[e.ID] = e.Raw
		}
		return
	}

	if _, ok := ls.Records[e.ID]; ok {
		ls.Duplicates++
		return
	}
	// A parseable payload for an id supersedes an earlier unparseable one.
	delete(ls.Unrecognized, e.ID)
	ls.Records[e.ID] = e.Record
}

// Materialize consumes it completely. On any error the partial set is
// discarded so nothing downstream sees an incomplete live state.
func Materialize(it PageIterator) (*LiveSet, error) {
	ls := NewLiveSet()
	for {
		page, err := it.Next()
		if errors.Is(err, io.EOF) {
			return ls, nil
		}
		if err != nil {
			return nil, err
		}
		ls.Pages++
		for _, e := range page.Entries {
			ls.add(e)
		}
	}
}

// Diff materializes the live stream and classifies it against prior.
func Diff(prior *Snapshot, live PageIterator) ([]DiffResult, *LiveSet, error) {
	ls, err := Materialize(live)
	if err != nil {
		return nil, nil, fmt.Errorf("materializing live set: %w", err)
	}
	return Classify(prior, ls), ls, nil
}

// Classify compares prior against the live set. It returns exactly one
// result per id in prior ∪ live.Records, ordered for rendering: prior
// createdAt descending, then New results by live createdAt descending.
// Unrecognized live ids not in prior have no record and get no result.
func Classify(prior *Snapshot, live *LiveSet) []DiffResult {
	results := make([]DiffResult, 0, prior.Len()+len(live.Records))
	seen := make(map[string]struct{}, prior.Len())

	for _, p := range prior.tweets {
		seen[p.ID] = struct{}{}

		l, ok := live.Records[p.ID]
		switch {
		case ok && p.SameContent(l):
			results = append(results, DiffResult{TweetID: p.ID, Status: StatusPresent, Prior: &p, Live: &l})
		case ok:
			results = append(results, DiffResult{TweetID: p.ID, Status: StatusModified, Prior: &p, Live: &l})
		default:
			if _, drifted := live.Unrecognized[p.ID]; drifted {
				results = append(results, DiffResult{TweetID: p.ID, Status: StatusPresent, Prior: &p, CarriedForward: true})
				continue
			}
			results = append(results, DiffResult{TweetID: p.ID, Status: StatusDeleted, Prior: &p})
		}
	}

	for id, l := range live.Records {
		if _, ok := seen[id]; ok {
			continue
		}
		results = append(results, DiffResult{TweetID: id, Status: StatusNew, Live: &l})
	}

	sortResults(results)
	return results
}

func sortResults(results []DiffResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		aNew, bNew := a.Prior == nil, b.Prior == nil
		if aNew != bNew {
			return !aNew
		}
		var at, bt time.Time
		if aNew {
			at, bt = a.Live.CreatedAt, b.Live.CreatedAt
		} else {
			at, bt = a.Prior.CreatedAt, b.Prior.CreatedAt
		}
		if !at.Equal(bt) {
			return at.After(bt)
		}
		return idGreater(a.TweetID, b.TweetID)
	})
}

// idGreater orders ids descending, treating all-digit ids numerically.
func idGreater(a, b string) bool {
	if isDigits(a) && isDigits(b) && len(a) != len(b) {
		return len(a) > len(b)
	}
	return a > b
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// NextBaseline builds the snapshot to persist after a run: every live
// record plus carried-forward prior records.
func NextBaseline(userID string, capturedAt time.Time, results []DiffResult) (*Snapshot, error) {
	records := make([]TweetRecord, 0, len(results))
	for _, r := range results {
		switch {
		case r.Status == StatusDeleted:
		case r.CarriedForward:
			records = append(records, *r.Prior)
		case r.Live != nil:
			records = append(records, *r.Live)
		}
	}
	return NewSnapshot(userID, capturedAt, records)
}

// Summary counts results by status.
type Summary struct {
	Present      int
	Deleted      int
	Modified     int
	New          int
	Carried      int
	Unrecognized int
}

// Summarize counts results by status.
func Summarize(results []DiffResult) Summary {
	var s Summary
	for _, r := range results {
		switch r.Status {
		case StatusPresent:
			s.Present++
		case StatusDeleted:
			s.Deleted++
		case StatusModified:
			s.Modified++
		case StatusNew:
			s.New++
		}
		if r.CarriedForward {
			s.Carried++
		}
	}
	return s
}
