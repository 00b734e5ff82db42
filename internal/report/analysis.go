package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"sprinthealth/internal/domain"
)

const (
	overloadPoints = 13
	minHealthScore = 5
)

type Workload struct {
	Assignee string
	Points   float64
}

type Summary struct {
	Blockers   []domain.Issue
	Stalled    []domain.Issue
	Unassigned []domain.Issue
	Overloaded []Workload
	Score      int

	// Workload holds every assignee's open flagged points, heaviest first.
	Workload []Workload
	// Completed is filled in by the caller after the done query runs.
	Completed []domain.Issue
}

// Summarize groups written issues by alert level and derives the sprint
// health score and the overloaded assignees.
func Summarize(issues []domain.Issue) Summary {
	var s Summary
	load := map[string]float64{}
	counted := map[string]bool{} // an issue can appear in several groups
	for _, issue := range issues {
		switch issue.AlertLevel {
		case domain.AlertCritical:
			s.Blockers = append(s.Blockers, issue)
		case domain.AlertWarning:
			s.Stalled = append(s.Stalled, issue)
		case domain.AlertHigh:
			s.Unassigned = append(s.Unassigned, issue)
		}
		if !issue.IsUnassigned() && !counted[issue.Key] {
			counted[issue.Key] = true
			load[issue.Assignee] += issue.Points()
		}
	}

	for assignee, points := range load {
		s.Workload = append(s.Workload, Workload{Assignee: assignee, Points: points})
		if points >= overloadPoints {
			s.Overloaded = append(s.Overloaded, Workload{Assignee: assignee, Points: points})
		}
	}
	sort.Slice(s.Overloaded, func(i, j int) bool {
		return s.Overloaded[i].Assignee < s.Overloaded[j].Assignee
	})
	sort.Slice(s.Workload, func(i, j int) bool {
		if s.Workload[i].Points != s.Workload[j].Points {
			return s.Workload[i].Points > s.Workload[j].Points
		}
		return s.Workload[i].Assignee < s.Workload[j].Assignee
	})

	s.Score = 100 - 25*len(s.Blockers) - 10*len(s.Stalled) - 5*len(s.Unassigned)
	if s.Score < minHealthScore {
		s.Score = minHealthScore
	}
	return s
}

func (s Summary) Risk() string {
	switch {
	case len(s.Blockers) > 0:
		return "HIGH"
	case len(s.Stalled) > 0:
		return "MODERATE"
	default:
		return "LOW"
	}
}

func (s Summary) Text() string {
	var b strings.Builder

	if len(s.Blockers) > 0 {
		fmt.Fprintf(&b, "%d BLOCKERS:\n", len(s.Blockers))
		for _, i := range s.Blockers {
			fmt.Fprintf(&b, " • %s - %s (%s)\n", i.Key, i.Summary, i.Assignee)
		}
	} else {
		b.WriteString("No blockers.\n")
	}

	if len(s.Stalled) > 0 {
		fmt.Fprintf(&b, "\n%d stalled items:\n", len(s.Stalled))
		for _, i := range s.Stalled {
			fmt.Fprintf(&b, " • %s - %s (last updated %s)\n", i.Key, i.Assignee, i.Updated.Format("2006-01-02"))
		}
	}

	if len(s.Unassigned) > 0 {
		fmt.Fprintf(&b, "\n%d unassigned open items:\n", len(s.Unassigned))
		for _, i := range s.Unassigned {
			fmt.Fprintf(&b, " • %s - %s\n", i.Key, i.Summary)
		}
	}

	if len(s.Overloaded) > 0 {
		b.WriteString("\nPotential overload:\n")
		for _, w := range s.Overloaded {
			fmt.Fprintf(&b, " • %s: %s story points\n", w.Assignee, strconv.FormatFloat(w.Points, 'f', -1, 64))
		}
	}

	if len(s.Completed) > 0 {
		fmt.Fprintf(&b, "\n%d items completed this sprint\n", len(s.Completed))
	}

	fmt.Fprintf(&b, "\nSprint health score: %d (%s risk)\n", s.Score, s.Risk())
	return b.String()
}
