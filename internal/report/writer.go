package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"twcc/internal/twcc"
)

// FileName is the report's name inside the per-user output directory.
const FileName = "deleted-tweets.md"

// Writer implements twcc.ReportWriter on the local filesystem.
type Writer struct {
	outputDir string
	opts      Options
}

var _ twcc.ReportWriter = (*Writer)(nil)

// NewWriter creates a Writer placing reports under outputDir.
func NewWriter(outputDir string, opts Options) *Writer {
	return &Writer{outputDir: outputDir, opts: opts}
}

// Path returns where the report for userID is written.
func (w *Writer) Path(userID string) string {
	return filepath.Join(w.outputDir, userID, FileName)
}

// WriteReport renders r and replaces the user's report atomically. The
// previous report stays intact if anything fails.
func (w *Writer) WriteReport(r *twcc.Report) (string, error) {
	var buf bytes.Buffer
	if err := Render(&buf, r, w.opts); err != nil {
		return "", &twcc.RenderError{Err: err}
	}

	path := w.Path(r.UserID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", &twcc.RenderError{Path: path, Err: fmt.Errorf("creating report directory: %w", err)}
	}
	if err := replaceFile(path, buf.Bytes()); err != nil {
		return "", &twcc.RenderError{Path: path, Err: err}
	}
	return path, nil
}

// replaceFile writes data next to destPath and renames it into place.
func replaceFile(destPath string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing report: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("setting report permissions: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("renaming report into place: %w", err)
	}
	success = true
	return nil
}
