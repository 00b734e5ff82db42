package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"sprinthealth/internal/config"
	"sprinthealth/internal/domain"

	"github.com/rs/zerolog"
)

const jiraTimeLayout = "2006-01-02T15:04:05.000-0700"

// FetchError reports a failed tracker query. StatusCode is zero when the
// request never got a response.
type FetchError struct {
	Query      domain.QueryKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("jira %s query failed (status %d): %v", e.Query, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("jira %s query failed: %v", e.Query, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

var ErrNoActiveSprint = errors.New("no active sprint found for board")

type Client struct {
	baseURL          string
	email            string
	token            string
	storyPointsField string
	boardID          int
	maxResults       int
	http             *http.Client
	log              zerolog.Logger

	sprintID int // resolved lazily when boardID is set
}

func NewClient(cfg config.Config, httpClient *http.Client, log zerolog.Logger) *Client {
	return &Client{
		baseURL:          strings.TrimRight(cfg.JiraURL, "/"),
		email:            cfg.JiraEmail,
		token:            cfg.JiraToken,
		storyPointsField: cfg.StoryPointsField,
		boardID:          cfg.BoardID,
		maxResults:       cfg.MaxResults,
		http:             httpClient,
		log:              log,
	}
}

type searchResponse struct {
	StartAt    int           `json:"startAt"`
	MaxResults int           `json:"maxResults"`
	Total      int           `json:"total"`
	Issues     []issueRecord `json:"issues"`
}

type issueRecord struct {
	Key    string          `json:"key"`
	Fields json.RawMessage `json:"fields"`
}

// issueFields holds the standard fields; the story points custom field is
// read separately because its name is configurable.
type issueFields struct {
	Summary string `json:"summary"`
	Status  *struct {
		Name string `json:"name"`
	} `json:"status"`
	Assignee *struct {
		DisplayName string `json:"displayName"`
	} `json:"assignee"`
	Priority *struct {
		Name string `json:"name"`
	} `json:"priority"`
	Updated string `json:"updated"`
}

type sprintListResponse struct {
	Values []struct {
		ID    int    `json:"id"`
		Name  string `json:"name"`
		State string `json:"state"`
	} `json:"values"`
}

// Fetch runs q.JQL against the search endpoint and returns every page.
func (c *Client) Fetch(ctx context.Context, q domain.Query) ([]domain.Issue, error) {
	jql := q.JQL
	if c.boardID > 0 {
		if c.sprintID == 0 {
			id, err := c.activeSprintID(ctx)
			if err != nil {
				return nil, &FetchError{Query: q.Kind, Err: err}
			}
			c.sprintID = id
		}
		jql = fmt.Sprintf("sprint = %d AND %s", c.sprintID, jql)
	}

	fields := strings.Join([]string{"summary", "status", "assignee", "priority", "updated", c.storyPointsField}, ",")

	var issues []domain.Issue
	startAt := 0
	for {
		params := url.Values{}
		params.Set("jql", jql)
		params.Set("fields", fields)
		params.Set("startAt", strconv.Itoa(startAt))
		params.Set("maxResults", strconv.Itoa(c.maxResults))

		var page searchResponse
		if status, err := c.getJSON(ctx, "/rest/api/3/search", params, &page); err != nil {
			return nil, &FetchError{Query: q.Kind, StatusCode: status, Err: err}
		}

		for _, rec := range page.Issues {
			issue, err := c.toIssue(rec)
			if err != nil {
				return nil, &FetchError{Query: q.Kind, Err: err}
			}
			issues = append(issues, issue)
		}

		startAt += len(page.Issues)
		if len(page.Issues) == 0 || startAt >= page.Total {
			break
		}
	}

	c.log.Debug().Str("query", string(q.Kind)).Str("jql", jql).Int("issues", len(issues)).Msg("jira search done")
	return issues, nil
}

func (c *Client) activeSprintID(ctx context.Context) (int, error) {
	params := url.Values{}
	params.Set("state", "active")

	var sprints sprintListResponse
	path := fmt.Sprintf("/rest/agile/1.0/board/%d/sprint", c.boardID)
	if _, err := c.getJSON(ctx, path, params, &sprints); err != nil {
		return 0, fmt.Errorf("resolving active sprint: %w", err)
	}
	if len(sprints.Values) == 0 {
		return 0, fmt.Errorf("board %d: %w", c.boardID, ErrNoActiveSprint)
	}
	sprint := sprints.Values[0]
	c.log.Info().Int("board", c.boardID).Int("sprint", sprint.ID).Str("name", sprint.Name).Msg("active sprint resolved")
	return sprint.ID, nil
}

// getJSON performs an authenticated GET and decodes the body into out. The
// returned status is zero when no response was received.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) (int, error) {
	apiURL := c.baseURL + path
	if len(params) > 0 {
		apiURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth(c.email, c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("sending request: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("Jira API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return resp.StatusCode, fmt.Errorf("parsing response: %w", err)
	}
	return resp.StatusCode, nil
}

func (c *Client) toIssue(rec issueRecord) (domain.Issue, error) {
	if strings.TrimSpace(rec.Key) == "" {
		return domain.Issue{}, errors.New("parsing response: issue without key")
	}

	var f issueFields
	if len(rec.Fields) > 0 {
		if err := json.Unmarshal(rec.Fields, &f); err != nil {
			return domain.Issue{}, fmt.Errorf("parsing fields of %s: %w", rec.Key, err)
		}
	}

	issue := domain.Issue{
		Key:      rec.Key,
		Summary:  f.Summary,
		Assignee: domain.Unassigned,
		Priority: "None",
	}
	if f.Status != nil {
		issue.Status = f.Status.Name
	}
	if f.Assignee != nil && strings.TrimSpace(f.Assignee.DisplayName) != "" {
		issue.Assignee = f.Assignee.DisplayName
	}
	if f.Priority != nil && f.Priority.Name != "" {
		issue.Priority = f.Priority.Name
	}
	if f.Updated != "" {
		updated, err := parseJiraTime(f.Updated)
		if err != nil {
			return domain.Issue{}, fmt.Errorf("parsing updated of %s: %w", rec.Key, err)
		}
		issue.Updated = updated
	}

	points, err := storyPoints(rec.Fields, c.storyPointsField)
	if err != nil {
		return domain.Issue{}, fmt.Errorf("parsing story points of %s: %w", rec.Key, err)
	}
	issue.StoryPoints = points
	return issue, nil
}

func storyPoints(raw json.RawMessage, field string) (*float64, error) {
	if len(raw) == 0 || field == "" {
		return nil, nil
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, err
	}
	val, ok := all[field]
	if !ok || string(val) == "null" {
		return nil, nil
	}
	var points float64
	if err := json.Unmarshal(val, &points); err != nil {
		return nil, err
	}
	if points < 0 {
		return nil, fmt.Errorf("negative value %v", points)
	}
	return &points, nil
}

func parseJiraTime(s string) (time.Time, error) {
	if t, err := time.Parse(jiraTimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
