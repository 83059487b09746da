package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"abide2nidm/internal/batch"
	"abide2nidm/internal/config"
	"abide2nidm/internal/history"
	"abide2nidm/internal/logging"
	"abide2nidm/internal/pipeline"
	"abide2nidm/internal/preflight"
	"abide2nidm/internal/services"
)

func newInvokeCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "invoke <site>",
		Short: "Convert a single site to NIDM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, closer, err := ctx.newLogger()
			if err != nil {
				return err
			}
			defer closer.Close()

			site := strings.TrimSpace(args[0])
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			runCtx = services.WithRunID(runCtx, os.Getenv(services.RunIDEnv))

			result := pipeline.Execute(runCtx, cfg, logger, site, pipeline.Options{Force: force})
			if result.Outcome == pipeline.Failure {
				return fmt.Errorf("site %s failed: %s", site, result.Reason)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Remove existing outputs and convert again")
	return cmd
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var workers int
	var force bool
	var isolation string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Convert every site in the sites file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, closer, err := ctx.newLogger()
			if err != nil {
				return err
			}
			defer closer.Close()

			mode := cfg.Batch.Isolation
			if cmd.Flags().Changed("isolation") {
				mode = strings.ToLower(strings.TrimSpace(isolation))
			}
			if mode != config.IsolationProcess && mode != config.IsolationInProcess {
				return fmt.Errorf("--isolation must be %q or %q, got %q", config.IsolationProcess, config.IsolationInProcess, isolation)
			}
			if cmd.Flags().Changed("workers") && workers <= 0 {
				return fmt.Errorf("--workers must be positive, got %d", workers)
			}

			logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
				logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "*_processing.log"},
			)
			warnPreflight(cmd, cfg, logger)

			runner, err := newSiteRunner(ctx, cfg, logger, mode, force, cmd)
			if err != nil {
				return err
			}

			opts := []batch.Option{batch.WithWorkers(workers), batch.WithRunMetadata(mode, force)}
			store, err := history.Open(cfg)
			if err != nil {
				logging.WarnWithContext(logger, "run history unavailable", "history_open_failed",
					logging.String("path", cfg.HistoryPath()),
					logging.Error(err),
					logging.String(logging.FieldImpact, "this run will not be recorded in history"),
				)
			} else {
				defer store.Close()
				opts = append(opts, batch.WithRecorder(store))
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			summary, err := batch.New(cfg, runner, logger, opts...).Run(runCtx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader(fmt.Sprintf("Run %s", summary.RunID), colorize) {
				fmt.Fprintln(out, line)
			}
			for _, line := range batchLines(len(summary.Verifications), len(summary.Complete()), len(summary.Partial()), len(summary.Missing()), colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintf(out, "Summary written to %s\n", summary.SummaryPath)
			return nil
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Number of sites processed concurrently (default from config)")
	cmd.Flags().BoolVar(&force, "force", false, "Remove existing outputs and convert again")
	cmd.Flags().StringVar(&isolation, "isolation", "", "Site isolation: process or inprocess (default from config)")
	return cmd
}

func newSiteRunner(ctx *commandContext, cfg *config.Config, logger *slog.Logger, mode string, force bool, cmd *cobra.Command) (batch.SiteRunner, error) {
	if mode == config.IsolationInProcess {
		return &batch.InProcessRunner{Config: cfg, Logger: logger, Force: force}, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable for child processes: %w", err)
	}
	return &batch.ProcessRunner{
		Executable: exe,
		ConfigPath: ctx.childConfigPath(),
		Force:      force,
		Timeout:    cfg.SiteTimeout(),
		Stdout:     cmd.OutOrStdout(),
		Logger:     logger,
	}, nil
}

// warnPreflight logs failed checks. The sites file is left to the
// orchestrator, which fails the run when it is missing.
func warnPreflight(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) {
	for _, r := range preflight.Failed(preflight.RunAll(cmd.Context(), cfg)) {
		if r.Name == "Sites file" {
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "run abide2nidm preflight for the full report"),
			logging.String(logging.FieldImpact, "affected sites will likely fail"),
		)
	}
}
