package mock

import (
	"context"
	"time"

	"sprinthealth/internal/domain"
)

// Generator is the offline issue source. It never touches the network and
// returns the same issues for the same clock.
type Generator struct {
	Now func() time.Time
}

func NewGenerator(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{Now: now}
}

type fixture struct {
	key      string
	summary  string
	status   string
	assignee string
	priority string
	daysAgo  int
	points   float64
}

var (
	doneFixtures = []fixture{
		{"GK-101", "Migrate legacy reports to new BI platform", "Done", "Alice Smith", "Medium", 1, 5},
		{"GK-109", "Fix table ordering crash on Android", "Done", "Bob Jones", "High", 2, 3},
		{"GK-113", "Improve menu recommendation algorithm", "Done", "Diana Prince", "Medium", 3, 8},
	}

	blockerFixtures = []fixture{
		{"GK-124", "POS integration blocked by payment gateway timeout", "Blocked", "Alice Smith", "Highest", 2, 5},
		{"GK-131", "Hotel booking API rate limited by external provider", "Blocked", "Bob Jones", "High", 1, 2},
	}

	// Mixed ages: only items past the stale threshold survive classification.
	stalledFixtures = []fixture{
		{"GK-115", "Update menu pricing across pub chain", "In Progress", "Charlie Brown", "Medium", 10, 3},
		{"GK-119", "Refactor loyalty points calculation", "In Progress", "Diana Prince", "Medium", 12, 3},
		{"GK-127", "Add allergen labels to digital menus", "In Progress", "Charlie Brown", "Low", 3, 2},
	}

	unassignedFixtures = []fixture{
		{"GK-130", "URGENT: Fix production bug in table ordering app", "To Do", "", "Highest", 0, 3},
	}
)

func (g *Generator) Fetch(_ context.Context, q domain.Query) ([]domain.Issue, error) {
	var set []fixture
	switch q.Kind {
	case domain.QueryBlockers:
		set = blockerFixtures
	case domain.QueryStalled:
		set = stalledFixtures
	case domain.QueryUnassigned:
		set = unassignedFixtures
	case domain.QueryDone:
		set = doneFixtures
	}

	now := g.Now()
	issues := make([]domain.Issue, 0, len(set))
	for _, f := range set {
		assignee := f.assignee
		if assignee == "" {
			assignee = domain.Unassigned
		}
		issues = append(issues, domain.Issue{
			Key:         f.key,
			Summary:     f.summary,
			Status:      f.status,
			Assignee:    assignee,
			Priority:    f.priority,
			StoryPoints: domain.Points(f.points),
			Updated:     now.AddDate(0, 0, -f.daysAgo),
		})
	}
	return issues, nil
}
