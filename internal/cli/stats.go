package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/app"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/logging"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/usecase"
)

type statsOpts struct {
	month string
	top   int
	json  bool
}

func newStatsCmd() *cobra.Command {
	var opts statsOpts

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the event log of one month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if opts.month == "" {
				opts.month = time.Now().UTC().Format("2006-01")
			}

			ctx := cmd.Context()
			store, err := app.OpenStorage(ctx, cfg, logging.New(cfg.Logging.Level))
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer store.Close()

			report, err := usecase.NewStats(store.Events).Report(ctx, opts.month, opts.top)
			if err != nil {
				return err
			}
			if opts.json {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return usecase.Render(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVar(&opts.month, "month", "", "month to summarize (YYYY-MM, default: current month)")
	cmd.Flags().IntVar(&opts.top, "top", 10, "number of busiest pages to list")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the report as JSON")

	return cmd
}
