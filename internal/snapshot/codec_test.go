package snapshot

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"twcc/internal/twcc"
)

var captured = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func mustSnapshot(t *testing.T, userID string, at time.Time, records ...twcc.TweetRecord) *twcc.Snapshot {
	t.Helper()
	s, err := twcc.NewSnapshot(userID, at, records)
	if err != nil {
		t.Fatalf("NewSnapshot() error = %v", err)
	}
	return s
}

func tweet(id, text string) twcc.TweetRecord {
	return twcc.TweetRecord{
		ID:        id,
		Text:      text,
		CreatedAt: time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC),
		Metrics:   twcc.TweetMetrics{Likes: 3, Reposts: 1},
	}
}

func TestEncodeDecode(t *testing.T) {
	withMedia := tweet("20", "photo <b>")
	withMedia.MediaRefs = []string{"3_111", "3_222"}
	orig := mustSnapshot(t, "alice", captured, tweet("10", "hello | world\nline two"), withMedia)

	var buf bytes.Buffer
	if err := Encode(&buf, orig); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if n := strings.Count(buf.String(), "\n"); n != 3 {
		t.Errorf("encoded %d lines, want 3", n)
	}
	if !strings.Contains(buf.String(), "<b>") {
		t.Error("HTML in text should not be escaped")
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.UserID != "alice" || !got.CapturedAt.Equal(captured) {
		t.Errorf("header = %s @ %v", got.UserID, got.CapturedAt)
	}
	want := orig.Tweets()
	tweets := got.Tweets()
	if len(tweets) != len(want) {
		t.Fatalf("len(tweets) = %d, want %d", len(tweets), len(want))
	}
	for i := range want {
		if !tweets[i].SameContent(want[i]) || !tweets[i].CreatedAt.Equal(want[i].CreatedAt) || tweets[i].Metrics != want[i].Metrics {
			t.Errorf("tweet %d = %+v, want %+v", i, tweets[i], want[i])
		}
	}
}

func TestDecode_IgnoresUnknownFields(t *testing.T) {
	in := `{"format":"twcc-snapshot","version":1,"user_id":"alice","captured_at":"2024-01-15T10:30:00Z","count":1,"writer":"future"}
{"id":"1","text":"a","created_at":"2023-06-01T12:00:00Z","metrics":{"likes":1,"reposts":0,"quotes":9},"lang":"en"}
`
	got, err := Decode(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Len() != 1 {
		t.Errorf("Len() = %d, want 1", got.Len())
	}
}

func TestDecode_Corrupt(t *testing.T) {
	const hdr = `{"format":"twcc-snapshot","version":1,"user_id":"alice","captured_at":"2024-01-15T10:30:00Z","count":%d}` + "\n"
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"not json", "hello\n"},
		{"wrong format", `{"format":"other","version":1,"user_id":"alice","count":0}` + "\n"},
		{"newer version", `{"format":"twcc-snapshot","version":2,"user_id":"alice","count":0}` + "\n"},
		{"missing user", `{"format":"twcc-snapshot","version":1,"count":0}` + "\n"},
		{"truncated", strings.Replace(hdr, "%d", "2", 1) + `{"id":"1","text":"a"}` + "\n"},
		{"partial line", strings.Replace(hdr, "%d", "1", 1) + `{"id":"1","te`},
		{"record without id", strings.Replace(hdr, "%d", "1", 1) + `{"text":"a"}` + "\n"},
		{"duplicate id", strings.Replace(hdr, "%d", "2", 1) + `{"id":"1","text":"a"}` + "\n" + `{"id":"1","text":"b"}` + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(strings.NewReader(tt.in)); err == nil {
				t.Fatal("Decode() should fail")
			}
		})
	}
}

func TestParseSnapshotName(t *testing.T) {
	name := snapshotName(captured, "0b7f5a3e-1111-2222-3333-444444444444", ".age")
	if name != "20240115T103000.000000000Z-0b7f5a3e.jsonl.age" {
		t.Fatalf("snapshotName() = %q", name)
	}
	e, ok := parseSnapshotName(name)
	if !ok {
		t.Fatal("parseSnapshotName() rejected its own name")
	}
	if !e.encrypted || !e.capturedAt.Equal(captured) {
		t.Errorf("entry = %+v", e)
	}

	for _, bad := range []string{".lock", ".tmp-123", "notes.txt", "20240115T103000.000000000Z.jsonl", "garbage-x.jsonl"} {
		if _, ok := parseSnapshotName(bad); ok {
			t.Errorf("parseSnapshotName(%q) accepted", bad)
		}
	}
}

func TestNextStamp(t *testing.T) {
	entries := []entry{{capturedAt: captured}}
	if got := nextStamp(entries, captured); !got.After(captured) {
		t.Errorf("nextStamp(same) = %v, want after %v", got, captured)
	}
	if got := nextStamp(entries, captured.Add(-time.Hour)); !got.After(captured) {
		t.Errorf("nextStamp(earlier) = %v, want after %v", got, captured)
	}
	later := captured.Add(time.Hour)
	if got := nextStamp(entries, later); !got.Equal(later) {
		t.Errorf("nextStamp(later) = %v, want %v", got, later)
	}
}
