package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSettingsPath = "settings.json"

	defaultExternalHTTPTimeout        = 30 * time.Second
	defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)
	minExternalHTTPTimeoutSeconds     = 5
	maxExternalHTTPTimeoutSeconds     = 120

	defaultStoryPointsField = "customfield_10016"
	defaultMaxResults       = 100
	defaultStaleDays        = 7
)

type Config struct {
	JiraURL          string `json:"jira_url" yaml:"jira_url" toml:"jira_url"`
	JiraEmail        string `json:"jira_email" yaml:"jira_email" toml:"jira_email"`
	JiraToken        string `json:"jira_token" yaml:"jira_token" toml:"jira_token"`
	ProjectKey       string `json:"jira_project_key" yaml:"jira_project_key" toml:"jira_project_key"`
	StoryPointsField string `json:"jira_story_points_field" yaml:"jira_story_points_field" toml:"jira_story_points_field"`
	BoardID          int    `json:"jira_board_id" yaml:"jira_board_id" toml:"jira_board_id"`
	MaxResults       int    `json:"jira_max_results" yaml:"jira_max_results" toml:"jira_max_results"`

	SlackWebhookURL string `json:"slack_webhook_url" yaml:"slack_webhook_url" toml:"slack_webhook_url"`

	StaleDays                  int    `json:"stale_days" yaml:"stale_days" toml:"stale_days"`
	ReportOutputDir            string `json:"report_output_dir" yaml:"report_output_dir" toml:"report_output_dir"`
	DashboardOutputDir         string `json:"dashboard_output_dir" yaml:"dashboard_output_dir" toml:"dashboard_output_dir"`
	ExternalHTTPTimeoutSeconds int    `json:"external_http_timeout_seconds" yaml:"external_http_timeout_seconds" toml:"external_http_timeout_seconds"`
	Timezone                   string `json:"timezone" yaml:"timezone" toml:"timezone"`
	LogLevel                   string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat                  string `json:"log_format" yaml:"log_format" toml:"log_format"`

	Location *time.Location `json:"-" yaml:"-" toml:"-"` // computed from Timezone
}

// Error is returned for any settings problem. Field is the offending key when
// one can be named.
type Error struct {
	Path  string
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config %s: %s: %v", e.Path, e.Field, e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var errRequired = errors.New("is required (via settings file or env var)")

// SettingsPath resolves the settings document location: SETTINGS_PATH wins
// over the default.
func SettingsPath() string {
	if envPath := os.Getenv("SETTINGS_PATH"); envPath != "" {
		return envPath
	}
	return DefaultSettingsPath
}

// Load reads the settings document at path, applies env overrides and
// defaults, and validates the result.
func Load(path string) (Config, error) {
	var cfg Config

	// .env is optional; its values surface through the env overrides below.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &Error{Path: path, Err: fmt.Errorf("read settings: %w", err)}
	}
	if err := decode(path, data, &cfg); err != nil {
		return Config{}, &Error{Path: path, Err: err}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, &Error{Path: path, Err: err}
	}
	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		err.Path = path
		return Config{}, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse settings: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse settings: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse settings: %w", err)
		}
	default:
		return fmt.Errorf("unsupported settings format %q (want .json, .yaml, .yml or .toml)", filepath.Ext(path))
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	envOverride(&cfg.JiraURL, "JIRA_URL")
	envOverride(&cfg.JiraEmail, "JIRA_EMAIL")
	envOverride(&cfg.JiraToken, "JIRA_TOKEN")
	envOverride(&cfg.ProjectKey, "JIRA_PROJECT_KEY")
	envOverride(&cfg.StoryPointsField, "JIRA_STORY_POINTS_FIELD")
	envOverride(&cfg.SlackWebhookURL, "SLACK_WEBHOOK_URL")
	envOverride(&cfg.ReportOutputDir, "REPORT_OUTPUT_DIR")
	envOverride(&cfg.DashboardOutputDir, "DASHBOARD_OUTPUT_DIR")
	envOverride(&cfg.Timezone, "TIMEZONE")
	envOverride(&cfg.LogLevel, "LOG_LEVEL")
	envOverride(&cfg.LogFormat, "LOG_FORMAT")

	ints := []struct {
		field *int
		key   string
	}{
		{&cfg.BoardID, "JIRA_BOARD_ID"},
		{&cfg.MaxResults, "JIRA_MAX_RESULTS"},
		{&cfg.StaleDays, "STALE_DAYS"},
		{&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"},
	}
	for _, o := range ints {
		if err := envOverrideInt(o.field, o.key); err != nil {
			return err
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	cfg.JiraURL = strings.TrimRight(strings.TrimSpace(cfg.JiraURL), "/")
	cfg.ProjectKey = strings.TrimSpace(cfg.ProjectKey)

	if cfg.StoryPointsField == "" {
		cfg.StoryPointsField = defaultStoryPointsField
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = defaultMaxResults
	}
	if cfg.StaleDays == 0 {
		cfg.StaleDays = defaultStaleDays
	}
	if cfg.ReportOutputDir == "" {
		cfg.ReportOutputDir = "./reports"
	}
	if cfg.DashboardOutputDir == "" {
		cfg.DashboardOutputDir = "./dashboards"
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
	}
}

func (cfg *Config) validate() *Error {
	required := map[string]string{
		"jira_url":          cfg.JiraURL,
		"jira_email":        cfg.JiraEmail,
		"jira_token":        cfg.JiraToken,
		"jira_project_key":  cfg.ProjectKey,
		"slack_webhook_url": cfg.SlackWebhookURL,
	}
	// Report the first missing key in a stable order.
	names := make([]string, 0, len(required))
	for name := range required {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.TrimSpace(required[name]) == "" {
			return &Error{Field: name, Err: errRequired}
		}
	}

	if cfg.StaleDays < 1 {
		return &Error{Field: "stale_days", Err: fmt.Errorf("invalid value %d: must be >= 1", cfg.StaleDays)}
	}
	if cfg.MaxResults < 1 {
		return &Error{Field: "jira_max_results", Err: fmt.Errorf("invalid value %d: must be >= 1", cfg.MaxResults)}
	}
	if cfg.BoardID < 0 {
		return &Error{Field: "jira_board_id", Err: fmt.Errorf("invalid value %d: must be >= 0", cfg.BoardID)}
	}
	if cfg.ExternalHTTPTimeoutSeconds < minExternalHTTPTimeoutSeconds || cfg.ExternalHTTPTimeoutSeconds > maxExternalHTTPTimeoutSeconds {
		return &Error{Field: "external_http_timeout_seconds", Err: fmt.Errorf("invalid value %d: must be between %d and %d",
			cfg.ExternalHTTPTimeoutSeconds, minExternalHTTPTimeoutSeconds, maxExternalHTTPTimeoutSeconds)}
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return &Error{Field: "timezone", Err: fmt.Errorf("invalid timezone '%s': %w", cfg.Timezone, err)}
		}
		cfg.Location = loc
	}
	return nil
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

// SprintScoped reports whether live queries are limited to the board's
// active sprint.
func (c Config) SprintScoped() bool {
	return c.BoardID > 0
}
