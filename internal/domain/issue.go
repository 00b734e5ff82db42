package domain

import (
	"strings"
	"time"
)

// Unassigned is the assignee recorded for issues nobody owns.
const Unassigned = "Unassigned"

type AlertLevel string

const (
	AlertCritical AlertLevel = "CRITICAL"
	AlertWarning  AlertLevel = "WARNING"
	AlertHigh     AlertLevel = "HIGH"
)

type QueryKind string

const (
	QueryBlockers   QueryKind = "blockers"
	QueryStalled    QueryKind = "stalled"
	QueryUnassigned QueryKind = "unassigned"

	// QueryDone feeds the completed-work section of the dashboard only.
	QueryDone QueryKind = "done"
)

// Query is one classification filter. Live sources send JQL to the tracker;
// offline sources only look at Kind.
type Query struct {
	Kind QueryKind
	JQL  string
}

type Issue struct {
	Key         string
	Summary     string
	Status      string
	Assignee    string
	Priority    string
	StoryPoints *float64 // nil when not estimated
	Updated     time.Time

	// Set by the classifier.
	QueryType  QueryKind
	AlertLevel AlertLevel
}

func (i Issue) IsUnassigned() bool {
	a := strings.TrimSpace(i.Assignee)
	return a == "" || strings.EqualFold(a, Unassigned)
}

func (i Issue) HasStatus(status string) bool {
	return strings.EqualFold(strings.TrimSpace(i.Status), status)
}

func (i Issue) Tagged() bool {
	return i.AlertLevel != ""
}

// Points returns the story points, treating unestimated issues as zero.
func (i Issue) Points() float64 {
	if i.StoryPoints == nil {
		return 0
	}
	return *i.StoryPoints
}

func Points(v float64) *float64 {
	return &v
}
