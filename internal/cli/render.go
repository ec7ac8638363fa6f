package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/schemachange/internal/config"
	"github.com/roach88/schemachange/internal/render"
	"github.com/roach88/schemachange/internal/script"
)

// RenderOptions holds flags for the render command.
type RenderOptions struct {
	*RootOptions
	Vars string
}

// NewRenderCommand creates the render command: classify and render one
// script and write its effective content to stdout.
//
// This is the one documented path that shows fully resolved values,
// secrets included — it exists so script authors can see exactly what
// the backend would receive. Nothing is executed and nothing is recorded.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RenderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "render <script>",
		Short: "Print the effective content of one script",
		Long: `Render a single change script with the configured variables and write
the effective content to stdout. Secret redaction is deliberately
bypassed here: the command's whole purpose is to show the script author
the exact text a deployment would execute.

Example:
  schemachange render ./migrations/V1.0.0__init.sql.jinja --vars '{database_name: analytics}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Vars, "vars", "", "inline YAML mapping of template variables, merged over the config file's vars")

	return cmd
}

func runRender(cmd *cobra.Command, opts *RenderOptions, path string) error {
	cfg, err := config.Load(opts.ConfigFolder)
	if err != nil {
		return WrapExitError(ExitCommandError, "configuration", err)
	}
	if cmd.Flags().Changed("vars") {
		override, err := config.ParseVars(opts.Vars)
		if err != nil {
			return WrapExitError(ExitCommandError, "configuration", err)
		}
		cfg.Vars = config.MergeVars(cfg.Vars, override)
	}

	name := filepath.Base(path)
	if !script.IsScriptFile(name) {
		return NewExitError(ExitCommandError, fmt.Sprintf("%s is not a change script (expected a .sql or .sql.jinja file)", name))
	}

	d, err := script.Parse(path, name)
	if err != nil {
		return WrapExitError(ExitCommandError, "classify script", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "read script", err)
	}
	d.RawContent = string(raw)
	d.RenderOptOut = strings.Contains(d.RawContent, script.RenderOptOutMarker)

	renderer := render.NewRenderer(cfg.Vars)
	if cfg.ModulesFolder != "" {
		if err := renderer.LoadModules(cfg.ModulesFolder); err != nil {
			return WrapExitError(ExitCommandError, "load modules", err)
		}
	}
	rendered, err := renderer.Render(d)
	if err != nil {
		return WrapExitError(ExitFailure, "render script", err)
	}

	fmt.Fprint(cmd.OutOrStdout(), rendered)
	return nil
}
