package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sprinthealth/internal/classify"
	"sprinthealth/internal/config"
	"sprinthealth/internal/httpx"
	"sprinthealth/internal/integrations/jira"
	slackalert "sprinthealth/internal/integrations/slack"
	"sprinthealth/internal/logger"
	"sprinthealth/internal/mock"
	"sprinthealth/internal/report"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	ModeMock = "mock"
	ModeLive = "live"

	ExitOK    = 0
	ExitFatal = 1
	ExitUsage = 2
)

const usage = "usage: sprinthealth [live]"

// Env carries everything a run reads from the process, so tests can swap it.
type Env struct {
	Args         []string
	SettingsPath string
	Stdout       io.Writer
	Stderr       io.Writer
	Now          func() time.Time
}

func Main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := Run(ctx, Env{
		Args:         os.Args[1:],
		SettingsPath: config.SettingsPath(),
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
		Now:          time.Now,
	})
	stop()
	os.Exit(code)
}

func newRootCommand(run func(ctx context.Context, mode string)) *cobra.Command {
	return &cobra.Command{
		Use:   "sprinthealth [live]",
		Short: "Check sprint health and write a CSV report",
		Long: `Runs the blocker, stalled and unassigned queries, writes a timestamped CSV
report and an HTML dashboard, and posts a chat alert when blockers exist.

Without arguments the built-in mock data is used. Pass "live" to query the
issue tracker configured in the settings file.`,
		ValidArgs:     []string{ModeLive},
		Args:          cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			mode := ModeMock
			if len(args) == 1 {
				mode = ModeLive
			}
			run(cmd.Context(), mode)
		},
	}
}

// Run parses the arguments and executes one pass. It returns the process
// exit code.
func Run(ctx context.Context, env Env) int {
	if env.Now == nil {
		env.Now = time.Now
	}

	code := ExitOK
	cmd := newRootCommand(func(ctx context.Context, mode string) {
		code = execute(ctx, env, mode)
	})
	// cobra falls back to os.Args when handed nil.
	cmd.SetArgs(append([]string{}, env.Args...))
	cmd.SetOut(env.Stdout)
	cmd.SetErr(env.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(env.Stderr, "%v\n%s\n", err, usage)
		return ExitUsage
	}
	return code
}

// execute loads settings, classifies, writes the report and dashboard, and
// alerts.
func execute(ctx context.Context, env Env, mode string) int {
	cfg, err := config.Load(env.SettingsPath)
	if err != nil {
		boot := logger.NewWithWriter(env.Stderr, "info", "console")
		boot.Error().Err(err).Msg("failed to load settings")
		return ExitFatal
	}

	log := logger.NewWithWriter(env.Stderr, cfg.LogLevel, cfg.LogFormat).With().Str("mode", mode).Logger()
	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.Info().
		Str("settings", env.SettingsPath).
		Str("project", cfg.ProjectKey).
		Int("stale_days", cfg.StaleDays).
		Int("board", cfg.BoardID).
		Str("report_dir", cfg.ReportOutputDir).
		Str("dashboard_dir", cfg.DashboardOutputDir).
		Dur("http_timeout", appliedHTTPTimeout).
		Msg("config loaded")

	src := newSource(mode, cfg, env.Now, log)
	classifier := classify.New(src, cfg.ProjectKey, cfg.StaleDays, env.Now, log)
	stamp := env.Now().In(cfg.Location)

	res, err := report.WriteCSV(cfg.ReportOutputDir, stamp, mode, classifier.Classify(ctx))
	if err != nil {
		logFatal(log, err)
		return ExitFatal
	}

	summary := report.Summarize(res.Issues)
	if done, err := classifier.Completed(ctx); err != nil {
		log.Warn().Err(err).Msg("completed issues unavailable; dashboard lists none")
	} else {
		summary.Completed = done
	}
	log.Info().
		Str("path", res.Path).
		Int("rows", len(res.Issues)).
		Int("blockers", len(summary.Blockers)).
		Int("stalled", len(summary.Stalled)).
		Int("unassigned", len(summary.Unassigned)).
		Int("completed", len(summary.Completed)).
		Int("health_score", summary.Score).
		Msg("report written")
	fmt.Fprint(env.Stdout, summary.Text())

	if path, err := report.WriteDashboard(cfg.DashboardOutputDir, stamp, mode, summary); err != nil {
		log.Error().Err(err).Msg("dashboard could not be written; report is still available")
	} else {
		log.Info().Str("path", path).Msg("dashboard written")
	}

	dispatcher := slackalert.NewDispatcher(cfg.SlackWebhookURL, httpx.ExternalHTTPClient(), log)
	if _, err := dispatcher.Dispatch(ctx, res.Issues); err != nil {
		log.Error().Err(err).Msg("alert not delivered; report is still available")
	}
	return ExitOK
}

func newSource(mode string, cfg config.Config, now func() time.Time, log zerolog.Logger) classify.IssueSource {
	if mode == ModeLive {
		return jira.NewClient(cfg, httpx.ExternalHTTPClient(), log)
	}
	return mock.NewGenerator(now)
}

func logFatal(log zerolog.Logger, err error) {
	var fetchErr *jira.FetchError
	var writeErr *report.WriteError
	switch {
	case errors.As(err, &fetchErr):
		log.Error().Err(err).Str("query", string(fetchErr.Query)).Int("status", fetchErr.StatusCode).Msg("tracker query failed; no report written")
	case errors.As(err, &writeErr):
		log.Error().Err(err).Str("path", writeErr.Path).Msg("report could not be written")
	default:
		log.Error().Err(err).Msg("run failed")
	}
}
