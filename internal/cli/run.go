package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/app"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/config"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/logging"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/metrics"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/usecase"
)

type runOpts struct {
	watch       bool
	interval    time.Duration
	dryRun      bool
	maxEdits    int
	noDeletion  bool
	metricsAddr string
}

func newRunCmd() *cobra.Command {
	var opts runOpts

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one moderation pass, or keep running with --watch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("dry-run") {
				cfg.Run.DryRun = opts.dryRun
			}
			if flags.Changed("max-edits") {
				cfg.Run.MaxEdits = opts.maxEdits
			}
			if flags.Changed("no-deletion") {
				cfg.Run.AutoDeletion = !opts.noDeletion
			}
			if flags.Changed("interval") {
				cfg.Run.Interval = opts.interval
			}
			if flags.Changed("metrics-addr") {
				cfg.Run.MetricsAddr = opts.metricsAddr
			}
			return runModeration(cmd, cfg, opts.watch)
		},
	}

	cmd.Flags().BoolVar(&opts.watch, "watch", false, "run a pass every interval until interrupted")
	cmd.Flags().DurationVar(&opts.interval, "interval", 0, "time between passes in watch mode")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "decide and notify without saving pages")
	cmd.Flags().IntVar(&opts.maxEdits, "max-edits", 0, "maximum number of saved edits per pass")
	cmd.Flags().BoolVar(&opts.noDeletion, "no-deletion", false, "downgrade deletion requests to warnings")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

func runModeration(cmd *cobra.Command, cfg config.Config, watch bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.New(cfg.Logging.Level)

	if cfg.Run.MetricsAddr != "" {
		server := metrics.StartServer(cfg.Run.MetricsAddr, logging.Component(logger, "metrics"))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown failed", "error", err)
			}
		}()
	}

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}()

	if watch {
		logger.Info("watch mode started", "interval", cfg.Run.Interval, "dry_run", cfg.Run.DryRun)
		return stopped(cmd, application.Watch(ctx, cfg.Run.Interval))
	}

	report, err := application.Run(ctx)
	fmt.Fprintf(cmd.OutOrStdout(), "passe %s : %d candidates, %d décidées, %d ignorées, %d en erreur, %d modifications, %d SI\n",
		report.RunID, report.Candidates, report.Decided, report.Skipped, report.Failed, report.Edits, report.Deletions)
	return stopped(cmd, err)
}

// stopped turns an emergency stop into a clean exit.
func stopped(cmd *cobra.Command, err error) error {
	if !errors.Is(err, usecase.ErrStopped) {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "arrêt d'urgence : %v\n", err)
	return nil
}
