package snapshot

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"twcc/internal/twcc"
)

// stampLayout is fixed width so names sort lexically in capture order.
const stampLayout = "20060102T150405.000000000Z"

const snapshotExt = ".jsonl"

// entry is a stored snapshot located by name.
type entry struct {
	name       string
	capturedAt time.Time
	encrypted  bool
	size       int64
}

// snapshotName returns the object name for a snapshot captured at t.
// suffix is the cipher's suffix.
func snapshotName(t time.Time, id, suffix string) string {
	if len(id) > 8 {
		id = id[:8]
	}
	return t.UTC().Format(stampLayout) + "-" + id + snapshotExt + suffix
}

// parseSnapshotName recognizes names produced by snapshotName. Temp files,
// locks and anything else in the directory are rejected.
func parseSnapshotName(name string) (entry, bool) {
	e := entry{name: name}
	base := name
	if b, ok := strings.CutSuffix(base, ".age"); ok {
		base, e.encrypted = b, true
	}
	base, ok := strings.CutSuffix(base, snapshotExt)
	if !ok || len(base) <= len(stampLayout)+1 || base[len(stampLayout)] != '-' {
		return entry{}, false
	}
	t, err := time.Parse(stampLayout, base[:len(stampLayout)])
	if err != nil {
		return entry{}, false
	}
	e.capturedAt = t
	return e, true
}

// sortEntries orders entries oldest first.
func sortEntries(entries []entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
}

// nextStamp returns t, moved just past the newest existing entry if needed,
// so the snapshot being saved always sorts last.
func nextStamp(entries []entry, t time.Time) time.Time {
	t = t.UTC()
	if len(entries) == 0 {
		return t
	}
	newest := entries[len(entries)-1].capturedAt
	if !t.After(newest) {
		return newest.Add(time.Nanosecond)
	}
	return t
}

func infos(userID string, entries []entry, key func(name string) string) []twcc.SnapshotInfo {
	out := make([]twcc.SnapshotInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, twcc.SnapshotInfo{
			Key:        key(e.name),
			UserID:     userID,
			CapturedAt: e.capturedAt,
			Size:       e.size,
		})
	}
	return out
}

// openerFor picks the cipher that can open e. Plaintext snapshots are
// always readable; encrypted ones need the age cipher.
func openerFor(e entry, c twcc.Cipher) (twcc.Cipher, error) {
	if !e.encrypted {
		return twcc.PlainCipher{}, nil
	}
	if c.Suffix() != ".age" {
		return nil, fmt.Errorf("snapshot %s is encrypted but encryption is not enabled", e.name)
	}
	return c, nil
}
