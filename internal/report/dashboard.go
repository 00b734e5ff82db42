package report

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"sprinthealth/internal/domain"

	"github.com/moby/sys/atomicwriter"
)

func DashboardFileName(mode string, now time.Time) string {
	return fmt.Sprintf("%s_sprint_dashboard_%s.html", strings.ToUpper(mode), now.Format("20060102_150405"))
}

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Sprint Health {{.Date}}</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #1b1b1b; }
.score { font-size: 3em; font-weight: bold; }
.risk-HIGH { color: #b00020; } .risk-MODERATE { color: #c77700; } .risk-LOW { color: #2e7d32; }
table { border-collapse: collapse; margin-bottom: 1.5em; }
td, th { border: 1px solid #ddd; padding: 4px 8px; text-align: left; }
.bar { background: #0a2342; color: #fff; padding: 2px 6px; white-space: nowrap; }
</style>
</head>
<body>
<h1>Sprint Health ({{.Mode}}) {{.Date}}</h1>
<p class="score risk-{{.Risk}}" id="health-score">{{.Score}}</p>
<p>{{.Risk}} risk</p>
{{range .Sections}}
<h2>{{.Title}} ({{len .Issues}})</h2>
{{if .Issues}}<table>
<tr><th>Key</th><th>Summary</th><th>Status</th><th>Assignee</th><th>Priority</th><th>Story points</th><th>Last updated</th></tr>
{{range .Issues}}<tr><td>{{.Key}}</td><td>{{.Summary}}</td><td>{{.Status}}</td><td>{{.Assignee}}</td><td>{{.Priority}}</td><td>{{.Points}}</td><td>{{.Updated}}</td></tr>
{{end}}</table>{{else}}<p>None.</p>{{end}}
{{end}}
<h2>Story points by assignee</h2>
{{if .Bars}}<table>
{{range .Bars}}<tr><td>{{.Assignee}}</td><td><div class="bar" style="width: {{.Width}}%">{{.Points}}</div></td></tr>
{{end}}</table>{{else}}<p>No estimated work.</p>{{end}}
</body>
</html>
`))

type dashboardView struct {
	Mode     string
	Date     string
	Score    int
	Risk     string
	Sections []dashboardSection
	Bars     []dashboardBar
}

type dashboardSection struct {
	Title  string
	Issues []dashboardRow
}

type dashboardRow struct {
	Key, Summary, Status, Assignee, Priority, Points, Updated string
}

type dashboardBar struct {
	Assignee string
	Points   string
	Width    int // percent of the heaviest assignee
	value    float64
}

// WriteDashboard renders the summary as a standalone HTML page under dir and
// returns its path. Completed issues count toward the story point chart.
func WriteDashboard(dir string, now time.Time, mode string, s Summary) (string, error) {
	path := filepath.Join(dir, DashboardFileName(mode, now))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &WriteError{Path: path, Err: err}
	}

	view := dashboardView{
		Mode:  strings.ToUpper(mode),
		Date:  now.Format("2006-01-02"),
		Score: s.Score,
		Risk:  s.Risk(),
		Sections: []dashboardSection{
			{Title: "Blockers", Issues: dashboardRows(s.Blockers)},
			{Title: "Stalled", Issues: dashboardRows(s.Stalled)},
			{Title: "Unassigned", Issues: dashboardRows(s.Unassigned)},
			{Title: "Completed", Issues: dashboardRows(s.Completed)},
		},
		Bars: dashboardBars(s),
	}

	var buf bytes.Buffer
	if err := dashboardTmpl.Execute(&buf, view); err != nil {
		return "", &WriteError{Path: path, Err: err}
	}
	if err := atomicwriter.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", &WriteError{Path: path, Err: err}
	}
	return path, nil
}

func dashboardRows(issues []domain.Issue) []dashboardRow {
	rows := make([]dashboardRow, 0, len(issues))
	for _, issue := range issues {
		updated := ""
		if !issue.Updated.IsZero() {
			updated = issue.Updated.Format("2006-01-02")
		}
		rows = append(rows, dashboardRow{
			Key:      issue.Key,
			Summary:  issue.Summary,
			Status:   issue.Status,
			Assignee: issue.Assignee,
			Priority: issue.Priority,
			Points:   formatPoints(issue.StoryPoints),
			Updated:  updated,
		})
	}
	return rows
}

func dashboardBars(s Summary) []dashboardBar {
	load := map[string]float64{}
	var order []string
	add := func(assignee string, points float64) {
		if _, ok := load[assignee]; !ok {
			order = append(order, assignee)
		}
		load[assignee] += points
	}
	for _, w := range s.Workload {
		add(w.Assignee, w.Points)
	}
	for _, issue := range s.Completed {
		if !issue.IsUnassigned() {
			add(issue.Assignee, issue.Points())
		}
	}

	var top float64
	for _, p := range load {
		if p > top {
			top = p
		}
	}
	if top == 0 {
		return nil
	}

	bars := make([]dashboardBar, 0, len(order))
	for _, assignee := range order {
		p := load[assignee]
		width := int(p / top * 100)
		if width < 1 {
			width = 1
		}
		bars = append(bars, dashboardBar{
			Assignee: assignee,
			Points:   strconv.FormatFloat(p, 'f', -1, 64),
			Width:    width,
			value:    p,
		})
	}
	sort.SliceStable(bars, func(i, j int) bool {
		if bars[i].value != bars[j].value {
			return bars[i].value > bars[j].value
		}
		return bars[i].Assignee < bars[j].Assignee
	})
	return bars
}
