package slackalert

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"sprinthealth/internal/domain"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

// DeliveryError is returned when the webhook post fails. The report is
// already on disk by then, so callers log it and carry on.
type DeliveryError struct {
	Count int
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivering alert for %d critical issues: %v", e.Count, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

type Dispatcher struct {
	WebhookURL string
	Client     *http.Client
	Log        zerolog.Logger
}

func NewDispatcher(webhookURL string, client *http.Client, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{WebhookURL: webhookURL, Client: client, Log: log}
}

// Critical returns the CRITICAL-tagged issues in their original order.
func Critical(issues []domain.Issue) []domain.Issue {
	var out []domain.Issue
	for _, issue := range issues {
		if issue.AlertLevel == domain.AlertCritical {
			out = append(out, issue)
		}
	}
	return out
}

func FormatAlert(critical []domain.Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d Sprint Blockers Detected\n", len(critical))
	for _, issue := range critical {
		fmt.Fprintf(&b, "• %s - %s (%s)\n", issue.Key, issue.Summary, issue.Assignee)
	}
	return b.String()
}

// Dispatch posts one summary message when any issue is CRITICAL. It reports
// whether a post was attempted.
func (d *Dispatcher) Dispatch(ctx context.Context, issues []domain.Issue) (bool, error) {
	critical := Critical(issues)
	if len(critical) == 0 {
		d.Log.Info().Msg("no critical alerts to send")
		return false, nil
	}

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	msg := &slack.WebhookMessage{Text: FormatAlert(critical)}
	if err := slack.PostWebhookCustomHTTPContext(ctx, d.WebhookURL, client, msg); err != nil {
		return true, &DeliveryError{Count: len(critical), Err: err}
	}
	d.Log.Info().Int("critical", len(critical)).Msg("slack alert sent")
	return true, nil
}
