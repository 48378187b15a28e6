// Package cli provides the Cobra command tree for the bot.
package cli

import (
	"io"

	"github.com/spf13/cobra"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "botcelian",
		Short: "Bot de modération des nouvelles pages de Vikidia",
		Long: `botcelian - moderation bot for newly created Vikidia pages

Each pass lists recent page creations, runs the sensitive-term, copy and
language-model detectors, then flags pages for immediate deletion or
improves them (typography, maintenance banner, stub template). Decisions
are appended to a monthly event log and sent to the alert channels.

Configuration comes from the YAML file named by BOTCELIAN_CONFIG, then
from environment variables (a .env file is loaded when present).`,
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(
		newRunCmd(),
		newStatsCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

// Execute runs the root command with the given output writers.
func Execute(stdout, stderr io.Writer) error {
	rootCmd := NewRootCmd()
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	return rootCmd.Execute()
}
