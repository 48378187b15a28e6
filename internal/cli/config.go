package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/app"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/config"
)

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(newConfigCheckCmd())
	return cmd
}

func newConfigCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and list the enabled components",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			application, err := app.New(cmd.Context(), cfg, slog.New(slog.DiscardHandler))
			if err != nil {
				return fmt.Errorf("initialize: %w", err)
			}
			defer application.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "configuration valide")
			printFeatures(out, application.Features())
			if cfg.Run.DryRun {
				fmt.Fprintln(out, "mode simulation : aucune page ne sera modifiée")
			}
			return nil
		},
	}
}

func printFeatures(w io.Writer, features []app.Feature) {
	for _, f := range features {
		state := "off"
		if f.Enabled {
			state = "on"
		}
		if f.Detail != "" && f.Enabled {
			fmt.Fprintf(w, "  %-10s %s (%s)\n", f.Name, state, f.Detail)
			continue
		}
		fmt.Fprintf(w, "  %-10s %s\n", f.Name, state)
	}
}
