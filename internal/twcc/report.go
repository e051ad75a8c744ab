package twcc

import "time"

// Report is everything the renderer needs to produce one audit report.
type Report struct {
	UserID      string
	GeneratedAt time.Time
	// BaselineCapturedAt is zero on a user's first run.
	BaselineCapturedAt time.Time
	Results            []DiffResult
	Summary            Summary
	LiveTweets         int
	IncludeModified    bool
}

// Rows returns the results that belong in the report table: never New,
// and Modified only when IncludeModified is set. Order is preserved.
func (r *Report) Rows() []DiffResult {
	rows := make([]DiffResult, 0, r.Summary.Deleted+r.Summary.Modified)
	for _, res := range r.Results {
		switch res.Status {
		case StatusDeleted:
			rows = append(rows, res)
		case StatusModified:
			if r.IncludeModified {
				rows = append(rows, res)
			}
		}
	}
	return rows
}

// ReportWriter renders a report and writes it atomically, returning the
// path of the written report. Failures are *RenderError.
type ReportWriter interface {
	WriteReport(report *Report) (string, error)
}
