// Package report renders deleted-tweets reports as markdown.
package report

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"twcc/internal/twcc"
)

// NoChangesMarker replaces the table when a report has no rows.
const NoChangesMarker = "No changes detected."

const (
	stampLayout   = "2006-01-02 15:04:05 UTC"
	createdLayout = "2006-01-02 15:04"
)

// Options tunes rendering.
type Options struct {
	// MaxTextLength truncates table cells to this many runes. 0 means no limit.
	MaxTextLength int
}

// Render writes r as markdown to w.
func Render(w io.Writer, r *twcc.Report, opts Options) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# Deleted tweets: @%s\n\n", r.UserID)

	fmt.Fprintf(&b, "- Generated: %s\n", r.GeneratedAt.UTC().Format(stampLayout))
	if r.BaselineCapturedAt.IsZero() {
		b.WriteString("- Baseline: none (first run)\n")
	} else {
		fmt.Fprintf(&b, "- Baseline: %s\n", r.BaselineCapturedAt.UTC().Format(stampLayout))
	}
	fmt.Fprintf(&b, "- Live tweets: %d\n", r.LiveTweets)
	fmt.Fprintf(&b, "- Deleted: %d\n", r.Summary.Deleted)
	fmt.Fprintf(&b, "- Modified: %d\n", r.Summary.Modified)
	fmt.Fprintf(&b, "- New: %d\n", r.Summary.New)
	fmt.Fprintf(&b, "- Unchanged: %d\n", r.Summary.Present)
	if r.Summary.Carried > 0 || r.Summary.Unrecognized > 0 {
		fmt.Fprintf(&b, "- Unrecognized live entries: %d (%d kept from baseline)\n", r.Summary.Unrecognized, r.Summary.Carried)
	}
	if !r.IncludeModified {
		b.WriteString("- Modified tweets are not listed\n")
	}
	b.WriteString("\n")

	rows := r.Rows()
	if len(rows) == 0 {
		b.WriteString(NoChangesMarker + "\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	b.WriteString("| ID | Original text | Created | Status |\n")
	b.WriteString("|----|---------------|---------|--------|\n")
	for _, row := range rows {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
			cell(row.TweetID, 0),
			cell(row.Prior.Text, opts.MaxTextLength),
			created(row.Prior.CreatedAt),
			row.Status,
		)
	}

	var modified []twcc.DiffResult
	for _, row := range rows {
		if row.Status == twcc.StatusModified {
			modified = append(modified, row)
		}
	}
	if len(modified) > 0 {
		b.WriteString("\n## Modified tweets\n")
		for _, row := range modified {
			fmt.Fprintf(&b, "\n### %s\n\n", cell(row.TweetID, 0))
			fmt.Fprintf(&b, "- Original: %s\n", cell(row.Prior.Text, opts.MaxTextLength))
			fmt.Fprintf(&b, "- Current: %s\n", cell(row.Live.Text, opts.MaxTextLength))
			if !slices.Equal(row.Prior.MediaRefs, row.Live.MediaRefs) {
				fmt.Fprintf(&b, "- Media: %s -> %s\n", refs(row.Prior.MediaRefs), refs(row.Live.MediaRefs))
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// cell makes s safe for a single markdown table cell.
func cell(s string, maxRunes int) string {
	s = strings.Join(strings.Fields(s), " ")
	s = truncate(s, maxRunes)
	return cellEscaper.Replace(s)
}

// cellEscaper escapes backslashes so a literal `\|` cannot unescape a pipe.
var cellEscaper = strings.NewReplacer(`\`, `\\`, "|", `\|`)

// truncate shortens s to at most maxRunes runes, ending in an ellipsis.
func truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes-1]) + "…"
}

func created(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format(createdLayout)
}

func refs(r []string) string {
	if len(r) == 0 {
		return "none"
	}
	return strings.Join(r, ", ")
}
