// Package cli wires the schemachange commands: deploy, render, version.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	ConfigFolder string
	Verbose      bool
}

// NewRootCommand creates the root command for the schemachange CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "schemachange",
		Short: "Database change management",
		Long: `schemachange reconciles a folder of SQL change scripts against a
durable change-history table and applies the pending ones in order:
versioned scripts once each, repeatable scripts on content change,
always scripts every run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogging(opts.Verbose)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFolder, "config-folder", ".", "folder containing schemachange-config.yml")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewDeployCommand(opts))
	cmd.AddCommand(NewRenderCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// configureLogging sets the process-wide logger. Logs go to stderr so
// stdout stays clean for command output (the render command in particular
// writes effective script content there).
func configureLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
