// Package snapshot implements twcc.SnapshotStore on the local filesystem,
// on S3, and in memory.
//
// A snapshot is stored as JSON lines: a header object followed by one
// tweet record per line, sorted by id.
//
//	{"format":"twcc-snapshot","version":1,"user_id":"alice","captured_at":"...","count":2}
//	{"id":"1","text":"...","created_at":"...","metrics":{"likes":0,"reposts":0}}
//	{"id":"2","text":"...","created_at":"...","metrics":{"likes":3,"reposts":1}}
//
// Unknown fields are ignored on read. A missing header, a newer version,
// a count mismatch or a record without an id makes the snapshot corrupt.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"twcc/internal/twcc"
)

const (
	formatName    = "twcc-snapshot"
	formatVersion = 1
)

type header struct {
	Format     string    `json:"format"`
	Version    int       `json:"version"`
	UserID     string    `json:"user_id"`
	CapturedAt time.Time `json:"captured_at"`
	Count      int       `json:"count"`
}

// Encode writes s to w in the JSON lines format.
func Encode(w io.Writer, s *twcc.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	h := header{
		Format:     formatName,
		Version:    formatVersion,
		UserID:     s.UserID,
		CapturedAt: s.CapturedAt.UTC(),
		Count:      s.Len(),
	}
	if err := enc.Encode(h); err != nil {
		return fmt.Errorf("encoding snapshot header: %w", err)
	}
	for _, t := range s.Tweets() {
		if err := enc.Encode(t); err != nil {
			return fmt.Errorf("encoding tweet %s: %w", t.ID, err)
		}
	}
	return nil
}

// Decode reads a snapshot written by Encode. Any structural problem is
// returned as a plain error; callers wrap it in *twcc.CorruptSnapshotError.
func Decode(r io.Reader) (*twcc.Snapshot, error) {
	dec := json.NewDecoder(r)

	var h header
	if err := dec.Decode(&h); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty snapshot")
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if h.Format != formatName {
		return nil, fmt.Errorf("unexpected format %q", h.Format)
	}
	if h.Version < 1 || h.Version > formatVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", h.Version)
	}
	if h.UserID == "" {
		return nil, errors.New("header has no user_id")
	}

	records := make([]twcc.TweetRecord, 0, max(h.Count, 0))
	for i := 1; ; i++ {
		var rec twcc.TweetRecord
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if rec.ID == "" {
			return nil, fmt.Errorf("record %d has no id", i)
		}
		records = append(records, rec)
	}
	if len(records) != h.Count {
		return nil, fmt.Errorf("header declares %d tweets, found %d", h.Count, len(records))
	}

	s, err := twcc.NewSnapshot(h.UserID, h.CapturedAt, records)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// seal encodes s and passes it through c.
func seal(s *twcc.Snapshot, c twcc.Cipher) ([]byte, error) {
	var plain bytes.Buffer
	if err := Encode(&plain, s); err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := c.Seal(&plain, &out); err != nil {
		return nil, fmt.Errorf("sealing snapshot: %w", err)
	}
	return out.Bytes(), nil
}

// open decodes a stored snapshot. Every failure, including a user id that
// does not match the path it was stored under, is a corrupt snapshot, except
// a private key that could not be unlocked.
func open(userID, key string, r io.Reader, c twcc.Cipher) (*twcc.Snapshot, error) {
	corrupt := func(err error) error {
		return &twcc.CorruptSnapshotError{UserID: userID, Key: key, Err: err}
	}
	var plain bytes.Buffer
	if err := c.Open(r, &plain); err != nil {
		if errors.Is(err, twcc.ErrKeyUnlock) {
			return nil, fmt.Errorf("opening snapshot %s: %w", key, err)
		}
		return nil, corrupt(fmt.Errorf("opening: %w", err))
	}
	s, err := Decode(&plain)
	if err != nil {
		return nil, corrupt(err)
	}
	if s.UserID != userID {
		return nil, corrupt(fmt.Errorf("snapshot belongs to user %q", s.UserID))
	}
	return s, nil
}
