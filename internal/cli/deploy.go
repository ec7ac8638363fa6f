package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/user"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/schemachange/internal/config"
	"github.com/roach88/schemachange/internal/engine"
	"github.com/roach88/schemachange/internal/ledger"
	"github.com/roach88/schemachange/internal/plan"
	"github.com/roach88/schemachange/internal/render"
	"github.com/roach88/schemachange/internal/script"
	"github.com/roach88/schemachange/internal/secrets"
)

// DeployOptions holds flags for the deploy command.
type DeployOptions struct {
	*RootOptions
	RootFolder               string
	ChangeHistoryTable       string
	CreateChangeHistoryTable bool
	InitialDeployment        bool
	DryRun                   bool
	QueryTag                 string
	Driver                   string
	DSN                      string
	Vars                     string
	ContinueAll              bool
	ContinueVersioned        bool
	ContinueRepeatable       bool
	ContinueAlways           bool
}

// NewDeployCommand creates the deploy command: the full scan, classify,
// render, plan and execute cycle.
func NewDeployCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeployOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Apply pending change scripts to the target database",
		Long: `Scan the root folder for change scripts, diff them against the
change-history table and execute the pending ones in order: versioned
ascending by version, then repeatable, then always scripts.

Exit codes: 0 full success, 1 validation or script failure, 2 command error.

Example:
  schemachange deploy --root-folder ./migrations --dsn ./target.db --create-change-history-table
  schemachange deploy --dry-run --vars '{database_name: analytics}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.RootFolder, "root-folder", "", "folder containing change scripts")
	cmd.Flags().StringVar(&opts.ChangeHistoryTable, "change-history-table", "", "change-history table name")
	cmd.Flags().BoolVar(&opts.CreateChangeHistoryTable, "create-change-history-table", false, "create the change-history table if missing")
	cmd.Flags().BoolVar(&opts.InitialDeployment, "initial-deployment", false, "declare this the first deployment against an empty target")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "compute and print the plan without executing or recording anything")
	cmd.Flags().StringVar(&opts.QueryTag, "query-tag", "", "prefix for the query tag attached to executed statements")
	cmd.Flags().StringVar(&opts.Driver, "driver", "", "database/sql driver name")
	cmd.Flags().StringVar(&opts.DSN, "dsn", "", "database connection string")
	cmd.Flags().StringVar(&opts.Vars, "vars", "", "inline YAML mapping of template variables, merged over the config file's vars")
	cmd.Flags().BoolVar(&opts.ContinueAll, "continue-on-error", false, "record failures of any script type and keep going")
	cmd.Flags().BoolVar(&opts.ContinueVersioned, "continue-on-error-versioned", false, "keep going past failed versioned scripts")
	cmd.Flags().BoolVar(&opts.ContinueRepeatable, "continue-on-error-repeatable", false, "keep going past failed repeatable scripts")
	cmd.Flags().BoolVar(&opts.ContinueAlways, "continue-on-error-always", false, "keep going past failed always scripts")

	return cmd
}

func runDeploy(cmd *cobra.Command, opts *DeployOptions) error {
	ctx := cmd.Context()

	cfg, err := resolveConfig(cmd, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "configuration", err)
	}
	if cfg.Verbose {
		configureLogging(true)
	}
	log := slog.Default()

	// Variables appear in logs only through the redacting view; the
	// renderer and session always see real values.
	log.Debug("resolved configuration",
		"root_folder", cfg.RootFolder,
		"change_history_table", cfg.ChangeHistoryTable,
		"dry_run", cfg.DryRun,
		"vars", fmt.Sprintf("%v", secrets.Redacted(cfg.Vars)),
	)

	catalog, skipped, err := script.Scan(cfg.RootFolder)
	if err != nil {
		return WrapExitError(ExitCommandError, "scan scripts", err)
	}
	for _, de := range skipped {
		log.Warn("discovery", "warning", de.Error())
	}
	log.Info("scripts discovered", "count", len(catalog), "skipped", len(skipped))

	if err := script.Validate(catalog); err != nil {
		return WrapExitError(ExitFailure, "catalog validation", err)
	}

	renderer := render.NewRenderer(cfg.Vars)
	if cfg.ModulesFolder != "" {
		if err := renderer.LoadModules(cfg.ModulesFolder); err != nil {
			return WrapExitError(ExitCommandError, "load modules", err)
		}
	}
	effective := renderer.RenderAll(catalog)

	store, err := ledger.Open(cfg.Connection.Driver, cfg.Connection.DSN, cfg.ChangeHistoryTable)
	if err != nil {
		return WrapExitError(ExitCommandError, "open target database", err)
	}
	defer store.Close()

	var history ledger.History
	if cfg.DryRun {
		// No side effects in dry-run: the table is never created. A
		// missing table reads as empty history so the printed plan
		// matches what a real first run would execute.
		history, err = store.ReadLatest(ctx)
		if err != nil {
			log.Debug("change history unreadable in dry-run, assuming empty", "error", err)
			history = ledger.History{}
		}
	} else {
		if err := store.Ensure(ctx, cfg.CreateChangeHistoryTable, cfg.InitialDeployment); err != nil {
			return WrapExitError(ExitCommandError, "change-history table", err)
		}
		history, err = store.ReadLatest(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "read change history", err)
		}
	}

	p := plan.Build(effective, history)
	fmt.Fprint(cmd.OutOrStdout(), p.String())
	if p.Empty() {
		return nil
	}

	runID := uuid.NewString()
	session := engine.NewSQLSession(store.DB(), engine.SessionContext{
		Role:      cfg.Connection.Role,
		Warehouse: cfg.Connection.Warehouse,
		Database:  cfg.Connection.Database,
		Schema:    cfg.Connection.Schema,
	}, queryTag(cfg.QueryTagPrefix, runID))
	defer session.Close()

	orch := engine.New(session, store, engine.Options{
		RunID:  runID,
		DryRun: cfg.DryRun,
		Policy: engine.Policy{
			All:        cfg.ContinueOnError.All,
			Versioned:  cfg.ContinueOnError.Versioned,
			Repeatable: cfg.ContinueOnError.Repeatable,
			Always:     cfg.ContinueOnError.Always,
		},
		InstalledBy: installedBy(),
	})

	report, err := orch.Run(ctx, p)
	if err != nil {
		return WrapExitError(ExitCommandError, "deployment aborted", err)
	}

	if failures := report.Failures(); len(failures) > 0 {
		for _, f := range failures {
			fmt.Fprintf(cmd.OutOrStdout(), "failed: %s: %v\n", f.Script, f.Err)
		}
		if cfg.DryRun {
			return NewExitError(ExitFailure, fmt.Sprintf("dry-run failed: %d script(s) would fail", len(failures)))
		}
		return NewExitError(ExitFailure, fmt.Sprintf("deployment failed: %d of %d script(s) failed", len(failures), len(report.Results)))
	}

	if cfg.DryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "dry-run complete: nothing executed, nothing recorded")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deployment complete: %d script(s) applied\n", len(report.Results))
	return nil
}

// resolveConfig loads the config file and overlays any flags the user
// actually set. Flag wins over file wins over default.
func resolveConfig(cmd *cobra.Command, opts *DeployOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigFolder)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("root-folder") {
		cfg.RootFolder = opts.RootFolder
	}
	if flags.Changed("change-history-table") {
		cfg.ChangeHistoryTable = opts.ChangeHistoryTable
	}
	if flags.Changed("create-change-history-table") {
		cfg.CreateChangeHistoryTable = opts.CreateChangeHistoryTable
	}
	if flags.Changed("initial-deployment") {
		cfg.InitialDeployment = opts.InitialDeployment
	}
	if flags.Changed("dry-run") {
		cfg.DryRun = opts.DryRun
	}
	if flags.Changed("query-tag") {
		cfg.QueryTagPrefix = opts.QueryTag
	}
	if flags.Changed("driver") {
		cfg.Connection.Driver = opts.Driver
	}
	if flags.Changed("dsn") {
		cfg.Connection.DSN = opts.DSN
	}
	if flags.Changed("continue-on-error") {
		cfg.ContinueOnError.All = opts.ContinueAll
	}
	if flags.Changed("continue-on-error-versioned") {
		cfg.ContinueOnError.Versioned = opts.ContinueVersioned
	}
	if flags.Changed("continue-on-error-repeatable") {
		cfg.ContinueOnError.Repeatable = opts.ContinueRepeatable
	}
	if flags.Changed("continue-on-error-always") {
		cfg.ContinueOnError.Always = opts.ContinueAlways
	}
	if opts.Verbose {
		cfg.Verbose = true
	}

	if flags.Changed("vars") {
		override, err := config.ParseVars(opts.Vars)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Vars = config.MergeVars(cfg.Vars, override)
	}

	if cfg.Connection.DSN == "" {
		return config.Config{}, fmt.Errorf("no target database: set connection.dsn in %s or pass --dsn", config.DefaultFilename)
	}
	return cfg, nil
}

// queryTag builds the tag attached to every executed statement so backend
// query logs can be correlated with this run.
func queryTag(prefix, runID string) string {
	tag := "schemachange=" + runID
	if prefix != "" {
		tag = prefix + ";" + tag
	}
	return tag
}

// installedBy is recorded in every ledger row.
func installedBy() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}
