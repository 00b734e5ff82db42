package classify

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"sprinthealth/internal/domain"

	"github.com/rs/zerolog"
)

// IssueSource is implemented by the offline mock generator and the live
// tracker client.
type IssueSource interface {
	Fetch(ctx context.Context, q domain.Query) ([]domain.Issue, error)
}

type Rule struct {
	Query domain.Query
	Level domain.AlertLevel
	Match func(issue domain.Issue, now time.Time) bool
}

// Rules returns the three classification queries in report order.
func Rules(projectKey string, staleDays int) []Rule {
	staleAfter := time.Duration(staleDays) * 24 * time.Hour
	return []Rule{
		{
			Query: domain.Query{
				Kind: domain.QueryBlockers,
				JQL:  fmt.Sprintf(`project = %s AND status = "Blocked" AND priority in (High, Highest)`, projectKey),
			},
			Level: domain.AlertCritical,
			Match: func(issue domain.Issue, _ time.Time) bool {
				return issue.HasStatus("Blocked") && isHighPriority(issue.Priority)
			},
		},
		{
			Query: domain.Query{
				Kind: domain.QueryStalled,
				JQL:  fmt.Sprintf(`project = %s AND status != Done AND updated <= -%dd`, projectKey, staleDays),
			},
			Level: domain.AlertWarning,
			Match: func(issue domain.Issue, now time.Time) bool {
				if issue.HasStatus("Done") || issue.Updated.IsZero() {
					return false
				}
				return now.Sub(issue.Updated) >= staleAfter
			},
		},
		{
			Query: domain.Query{
				Kind: domain.QueryUnassigned,
				JQL:  fmt.Sprintf(`project = %s AND assignee is EMPTY AND status != Done`, projectKey),
			},
			Level: domain.AlertHigh,
			Match: func(issue domain.Issue, _ time.Time) bool {
				return issue.IsUnassigned() && !issue.HasStatus("Done")
			},
		},
	}
}

func isHighPriority(priority string) bool {
	switch strings.ToLower(strings.TrimSpace(priority)) {
	case "high", "highest":
		return true
	}
	return false
}

// CompletedQuery selects the issues already closed out, for the dashboard.
func CompletedQuery(projectKey string) domain.Query {
	return domain.Query{
		Kind: domain.QueryDone,
		JQL:  fmt.Sprintf(`project = %s AND status = Done`, projectKey),
	}
}

type Classifier struct {
	src        IssueSource
	rules      []Rule
	projectKey string
	now        func() time.Time
	log        zerolog.Logger
}

func New(src IssueSource, projectKey string, staleDays int, now func() time.Time, log zerolog.Logger) *Classifier {
	if now == nil {
		now = time.Now
	}
	return &Classifier{
		src:        src,
		rules:      Rules(projectKey, staleDays),
		projectKey: projectKey,
		now:        now,
		log:        log,
	}
}

// Classify runs each rule against the source in order and yields the matching
// issues tagged with the rule's alert level. Queries run only as the sequence
// is consumed. The first fetch error is yielded once and ends the sequence.
func (c *Classifier) Classify(ctx context.Context) iter.Seq2[domain.Issue, error] {
	return func(yield func(domain.Issue, error) bool) {
		now := c.now()
		for _, rule := range c.rules {
			issues, err := c.src.Fetch(ctx, rule.Query)
			if err != nil {
				yield(domain.Issue{}, err)
				return
			}

			matched := 0
			for _, issue := range issues {
				if strings.TrimSpace(issue.Key) == "" {
					c.log.Warn().Str("query", string(rule.Query.Kind)).Msg("skipping issue without key")
					continue
				}
				if !rule.Match(issue, now) {
					continue
				}
				issue.QueryType = rule.Query.Kind
				issue.AlertLevel = rule.Level
				matched++
				if !yield(issue, nil) {
					return
				}
			}
			c.log.Info().
				Str("query", string(rule.Query.Kind)).
				Int("fetched", len(issues)).
				Int("matched", matched).
				Msg("query classified")
		}
	}
}

// Completed fetches the finished issues. They are never tagged and never go
// into the report rows.
func (c *Classifier) Completed(ctx context.Context) ([]domain.Issue, error) {
	q := CompletedQuery(c.projectKey)
	issues, err := c.src.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	done := make([]domain.Issue, 0, len(issues))
	for _, issue := range issues {
		if strings.TrimSpace(issue.Key) == "" || !issue.HasStatus("Done") {
			continue
		}
		done = append(done, issue)
	}
	c.log.Info().Int("fetched", len(issues)).Int("done", len(done)).Msg("completed issues fetched")
	return done, nil
}
