package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"sprinthealth/internal/domain"

	"github.com/moby/sys/atomicwriter"
)

const maxSummaryRunes = 60

var Header = []string{
	"Query_Type", "Issue_Key", "Summary", "Status", "Assignee",
	"Priority", "Story_Points", "Last_Updated", "Alert_Level",
}

// WriteError means the report file could not be created. The run cannot
// succeed without it.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing report %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

type Result struct {
	Path   string
	Issues []domain.Issue
}

func FileName(mode string, now time.Time) string {
	return fmt.Sprintf("%s_sprint_health_%s.csv", strings.ToUpper(mode), now.Format("20060102_150405"))
}

// WriteCSV drains issues into a CSV report under dir. The file appears only
// once the whole sequence has been consumed; an error from the sequence is
// returned as-is and leaves nothing on disk.
func WriteCSV(dir string, now time.Time, mode string, issues iter.Seq2[domain.Issue, error]) (Result, error) {
	path := filepath.Join(dir, FileName(mode, now))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, &WriteError{Path: path, Err: err}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header); err != nil {
		return Result{}, &WriteError{Path: path, Err: err}
	}

	var written []domain.Issue
	for issue, err := range issues {
		if err != nil {
			return Result{}, err
		}
		if !issue.Tagged() {
			return Result{}, fmt.Errorf("issue %s has no alert level", issue.Key)
		}
		if err := w.Write(row(issue)); err != nil {
			return Result{}, &WriteError{Path: path, Err: err}
		}
		written = append(written, issue)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return Result{}, &WriteError{Path: path, Err: err}
	}

	if err := atomicwriter.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return Result{}, &WriteError{Path: path, Err: err}
	}
	return Result{Path: path, Issues: written}, nil
}

func row(issue domain.Issue) []string {
	updated := ""
	if !issue.Updated.IsZero() {
		updated = issue.Updated.Format("2006-01-02")
	}
	return []string{
		string(issue.QueryType),
		issue.Key,
		truncate(issue.Summary, maxSummaryRunes),
		issue.Status,
		issue.Assignee,
		issue.Priority,
		formatPoints(issue.StoryPoints),
		updated,
		string(issue.AlertLevel),
	}
}

func formatPoints(points *float64) string {
	if points == nil {
		return ""
	}
	return strconv.FormatFloat(*points, 'f', -1, 64)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
