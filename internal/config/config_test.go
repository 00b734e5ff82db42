package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const validJSON = `{
  "jira_url": "https://example.atlassian.net/",
  "jira_email": "bot@example.com",
  "jira_token": "token-from-file",
  "jira_project_key": "GK",
  "slack_webhook_url": "https://hooks.slack.com/services/T000/B000/XXX"
}`

func writeSettings(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	return path
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"JIRA_URL", "JIRA_EMAIL", "JIRA_TOKEN", "JIRA_PROJECT_KEY", "JIRA_STORY_POINTS_FIELD",
		"JIRA_BOARD_ID", "JIRA_MAX_RESULTS", "SLACK_WEBHOOK_URL", "STALE_DAYS", "REPORT_OUTPUT_DIR",
		"DASHBOARD_OUTPUT_DIR", "EXTERNAL_HTTP_TIMEOUT_SECONDS", "TIMEZONE", "LOG_LEVEL", "LOG_FORMAT", "SETTINGS_PATH",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadJSONWithDefaults(t *testing.T) {
	clearConfigEnv(t)
	path := writeSettings(t, "settings.json", validJSON)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.JiraURL != "https://example.atlassian.net" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.JiraURL)
	}
	if cfg.ProjectKey != "GK" {
		t.Fatalf("unexpected project key: %q", cfg.ProjectKey)
	}
	if cfg.StaleDays != 7 {
		t.Fatalf("unexpected stale_days default: %d", cfg.StaleDays)
	}
	if cfg.ReportOutputDir != "./reports" {
		t.Fatalf("unexpected report output dir default: %q", cfg.ReportOutputDir)
	}
	if cfg.DashboardOutputDir != "./dashboards" {
		t.Fatalf("unexpected dashboard output dir default: %q", cfg.DashboardOutputDir)
	}
	if cfg.StoryPointsField != "customfield_10016" {
		t.Fatalf("unexpected story points field default: %q", cfg.StoryPointsField)
	}
	if cfg.MaxResults != 100 {
		t.Fatalf("unexpected max results default: %d", cfg.MaxResults)
	}
	if cfg.ExternalHTTPTimeoutSeconds != int(defaultExternalHTTPTimeout/time.Second) {
		t.Fatalf("unexpected external HTTP timeout default: %d", cfg.ExternalHTTPTimeoutSeconds)
	}
	if cfg.Location == nil {
		t.Fatal("expected location to be set")
	}
	if cfg.SprintScoped() {
		t.Fatal("expected no sprint scoping without board id")
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearConfigEnv(t)
	path := writeSettings(t, "settings.json", validJSON)
	t.Setenv("JIRA_TOKEN", "token-from-env")
	t.Setenv("STALE_DAYS", "3")
	t.Setenv("JIRA_BOARD_ID", "12")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("EXTERNAL_HTTP_TIMEOUT_SECONDS", "15")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.JiraToken != "token-from-env" {
		t.Fatalf("expected token from env override, got %q", cfg.JiraToken)
	}
	if cfg.StaleDays != 3 {
		t.Fatalf("expected stale_days from env override, got %d", cfg.StaleDays)
	}
	if !cfg.SprintScoped() || cfg.BoardID != 12 {
		t.Fatalf("expected board 12 from env override, got %d", cfg.BoardID)
	}
	if cfg.Location.String() != "UTC" {
		t.Fatalf("unexpected location: %v", cfg.Location)
	}
	if cfg.ExternalHTTPTimeoutSeconds != 15 {
		t.Fatalf("expected timeout from env override, got %d", cfg.ExternalHTTPTimeoutSeconds)
	}
}

func TestLoadYAMLAndTOMLMatchJSON(t *testing.T) {
	clearConfigEnv(t)
	yamlPath := writeSettings(t, "settings.yaml", `
jira_url: "https://example.atlassian.net"
jira_email: "bot@example.com"
jira_token: "token-from-file"
jira_project_key: "GK"
slack_webhook_url: "https://hooks.slack.com/services/T000/B000/XXX"
stale_days: 10
`)
	tomlPath := writeSettings(t, "settings.toml", `
jira_url = "https://example.atlassian.net"
jira_email = "bot@example.com"
jira_token = "token-from-file"
jira_project_key = "GK"
slack_webhook_url = "https://hooks.slack.com/services/T000/B000/XXX"
stale_days = 10
`)

	fromYAML, err := Load(yamlPath)
	if err != nil {
		t.Fatalf("Load yaml: %v", err)
	}
	fromTOML, err := Load(tomlPath)
	if err != nil {
		t.Fatalf("Load toml: %v", err)
	}
	fromYAML.Location, fromTOML.Location = nil, nil
	if fromYAML != fromTOML {
		t.Fatalf("yaml and toml decode differently:\n%+v\n%+v", fromYAML, fromTOML)
	}
	if fromTOML.StaleDays != 10 {
		t.Fatalf("unexpected stale_days: %d", fromTOML.StaleDays)
	}
}

func TestLoadJSONEscapes(t *testing.T) {
	clearConfigEnv(t)
	path := writeSettings(t, "settings.json", `{
  "jira_url": "https://example.atlassian.net",
  "jira_email": "bot@example.com",
  "jira_token": "tok\ud83d\ude00",
  "jira_project_key": "GK",
  "slack_webhook_url": "https:\/\/hooks.slack.com\/services\/T\/B\/X"
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.JiraToken != "tok\U0001F600" {
		t.Fatalf("JiraToken = %q, want %q", cfg.JiraToken, "tok\U0001F600")
	}
	if cfg.SlackWebhookURL != "https://hooks.slack.com/services/T/B/X" {
		t.Fatalf("SlackWebhookURL = %q, want unescaped URL", cfg.SlackWebhookURL)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name      string
		file      string
		content   string
		env       map[string]string
		wantField string
	}{
		{
			name:      "missing webhook",
			file:      "settings.json",
			content:   `{"jira_url": "https://x", "jira_email": "a@b", "jira_token": "t", "jira_project_key": "GK"}`,
			wantField: "slack_webhook_url",
		},
		{
			name:      "missing project key",
			file:      "settings.json",
			content:   `{"jira_url": "https://x", "jira_email": "a@b", "jira_token": "t", "slack_webhook_url": "https://h"}`,
			wantField: "jira_project_key",
		},
		{
			name:      "negative stale days",
			file:      "settings.json",
			content:   validJSON,
			env:       map[string]string{"STALE_DAYS": "-2"},
			wantField: "stale_days",
		},
		{
			name:      "timeout out of range",
			file:      "settings.json",
			content:   validJSON,
			env:       map[string]string{"EXTERNAL_HTTP_TIMEOUT_SECONDS": "600"},
			wantField: "external_http_timeout_seconds",
		},
		{
			name:      "bad timezone",
			file:      "settings.json",
			content:   validJSON,
			env:       map[string]string{"TIMEZONE": "Mars/Colony"},
			wantField: "timezone",
		},
		{
			name:    "malformed json",
			file:    "settings.json",
			content: `{"jira_url": [`,
		},
		{
			name:    "unsupported extension",
			file:    "settings.ini",
			content: "jira_url=x",
		},
		{
			name:    "non-numeric env int",
			file:    "settings.json",
			content: validJSON,
			env:     map[string]string{"STALE_DAYS": "seven"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := writeSettings(t, tt.file, tt.content)

			_, err := Load(path)
			var cfgErr *Error
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *config.Error, got %v", err)
			}
			if cfgErr.Field != tt.wantField {
				t.Fatalf("Field = %q, want %q (err: %v)", cfgErr.Field, tt.wantField, err)
			}
			if cfgErr.Path != path {
				t.Fatalf("Path = %q, want %q", cfgErr.Path, path)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "missing.json")

	_, err := Load(path)
	var cfgErr *Error
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *config.Error, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected wrapped not-exist error, got %v", err)
	}
}

func TestSettingsPath(t *testing.T) {
	t.Setenv("SETTINGS_PATH", "")
	if got := SettingsPath(); got != DefaultSettingsPath {
		t.Fatalf("SettingsPath() = %q, want %q", got, DefaultSettingsPath)
	}
	t.Setenv("SETTINGS_PATH", "/etc/sprinthealth/settings.toml")
	if got := SettingsPath(); got != "/etc/sprinthealth/settings.toml" {
		t.Fatalf("SettingsPath() = %q", got)
	}
}

func TestEnvOverrideHelpers(t *testing.T) {
	s := "initial"
	t.Setenv("SH_TEST_STR", "value")
	envOverride(&s, "SH_TEST_STR")
	if s != "value" {
		t.Fatalf("envOverride failed, got %q", s)
	}

	i := 1
	t.Setenv("SH_TEST_INT", "42")
	if err := envOverrideInt(&i, "SH_TEST_INT"); err != nil {
		t.Fatalf("envOverrideInt returned error: %v", err)
	}
	if i != 42 {
		t.Fatalf("envOverrideInt failed, got %d", i)
	}

	t.Setenv("SH_TEST_INT", "x")
	if err := envOverrideInt(&i, "SH_TEST_INT"); err == nil {
		t.Fatal("expected envOverrideInt to fail for malformed input")
	}
}
