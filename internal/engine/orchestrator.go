// Package engine executes a deployment plan: strictly sequential,
// one ledger row per attempted script, halt or continue per policy.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/schemachange/internal/ledger"
	"github.com/roach88/schemachange/internal/plan"
	"github.com/roach88/schemachange/internal/script"
)

// Policy is the continue-on-error configuration. All implies the three
// per-type flags.
type Policy struct {
	All        bool
	Versioned  bool
	Repeatable bool
	Always     bool
}

// Allows reports whether a failure of the given script type lets the run
// proceed to the next plan item instead of halting.
func (p Policy) Allows(t script.Type) bool {
	if p.All {
		return true
	}
	switch t {
	case script.TypeVersioned:
		return p.Versioned
	case script.TypeRepeatable:
		return p.Repeatable
	case script.TypeAlways:
		return p.Always
	}
	return false
}

// Recorder is the ledger surface the orchestrator writes through.
// Satisfied by *ledger.Store.
type Recorder interface {
	Append(ctx context.Context, e ledger.Entry) error
}

// Result is the outcome of one attempted plan item.
type Result struct {
	Script   string
	Type     script.Type
	Status   ledger.Status
	Duration time.Duration
	Err      error
}

// Report summarizes a run. A run fails when any item failed, whether or
// not execution continued past it.
type Report struct {
	RunID   string
	DryRun  bool
	Halted  bool
	Results []Result
}

// Failures lists every failed item, in plan order.
func (r *Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Status == ledger.StatusFailed {
			out = append(out, res)
		}
	}
	return out
}

// OK reports whether every attempted item succeeded and nothing halted
// the run.
func (r *Report) OK() bool {
	return !r.Halted && len(r.Failures()) == 0
}

// Options configures an Orchestrator.
type Options struct {
	Policy      Policy
	DryRun      bool
	InstalledBy string

	// RunID correlates log lines and query tags. Generated when empty,
	// supplied by the CLI when the session's query tag must carry the
	// same identifier.
	RunID string

	// Now overrides the ledger timestamp source. Tests only.
	Now func() time.Time
}

// Orchestrator walks a plan in order against a single session.
type Orchestrator struct {
	session Session
	history Recorder
	opts    Options
	runID   string
	now     func() time.Time
	log     *slog.Logger
}

// New builds an Orchestrator. Each run gets a fresh UUID used to
// correlate log lines and query tags.
func New(session Session, history Recorder, opts Options) *Orchestrator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Orchestrator{
		session: session,
		history: history,
		opts:    opts,
		runID:   runID,
		now:     now,
		log:     slog.Default().With("run_id", runID),
	}
}

// RunID returns the identifier assigned to this run.
func (o *Orchestrator) RunID() string { return o.runID }

// Run executes the plan. Per item: reset the session context, execute,
// append a ledger row immediately, then halt or continue per policy.
// In dry-run mode the session and ledger are never touched.
//
// The returned error reports infrastructure failure only (a ledger write
// or context reset that failed); script failures live in the Report.
func (o *Orchestrator) Run(ctx context.Context, p *plan.Plan) (*Report, error) {
	log := o.log
	report := &Report{RunID: o.runID, DryRun: o.opts.DryRun}

	for _, w := range p.Warnings {
		log.Warn("ledger integrity", "drift", w.String())
	}

	for i, item := range p.Items {
		log.Info("plan item",
			"position", i+1,
			"of", len(p.Items),
			"script", item.Name,
			"type", string(item.Type),
		)

		if o.opts.DryRun {
			// Rendering already happened; a script that cannot render is a
			// failure the real run is guaranteed to hit, so the dry-run
			// report carries it even though nothing executes or records.
			if item.Err != nil {
				log.Warn("dry-run: script would fail", "script", item.Name, "error", item.Err)
				report.Results = append(report.Results, Result{
					Script: item.Name,
					Type:   item.Type,
					Status: ledger.StatusFailed,
					Err:    item.Err,
				})
				continue
			}
			log.Info("dry-run: skipping execution and ledger write", "script", item.Name)
			continue
		}

		// A fresh context per script: the previous script's USE
		// statements must not leak forward.
		if err := o.session.ResetContext(ctx); err != nil {
			return report, fmt.Errorf("reset session context before %s: %w", item.Name, err)
		}

		var (
			duration time.Duration
			execErr  error
		)
		if item.Err != nil {
			// Render failure, carried into the plan; recorded like any
			// other failed attempt, never sent to the backend.
			execErr = item.Err
		} else {
			duration, execErr = o.session.Execute(ctx, item.Rendered)
			if execErr != nil {
				execErr = &ExecutionError{Script: item.Name, Err: execErr}
			}
		}

		entry := ledger.Entry{
			Version:       versionOf(item),
			Description:   item.Description,
			Script:        item.Name,
			Type:          item.Type,
			Checksum:      item.Checksum,
			ExecutionTime: duration,
			Status:        ledger.StatusSuccess,
			InstalledBy:   o.opts.InstalledBy,
			InstalledOn:   o.now(),
		}
		if execErr != nil {
			entry.Status = ledger.StatusFailed
			entry.ErrorMessage = execErr.Error()
		}

		// The row lands before the next item starts; a crash after this
		// point leaves history consistent with what actually ran.
		if err := o.history.Append(ctx, entry); err != nil {
			return report, fmt.Errorf("record %s: %w", item.Name, err)
		}

		report.Results = append(report.Results, Result{
			Script:   item.Name,
			Type:     item.Type,
			Status:   entry.Status,
			Duration: duration,
			Err:      execErr,
		})

		if execErr == nil {
			log.Info("script applied", "script", item.Name, "duration_ms", duration.Milliseconds())
			continue
		}

		if !o.opts.Policy.Allows(item.Type) {
			log.Error("script failed, halting run", "script", item.Name, "error", execErr)
			report.Halted = true
			break
		}
		log.Warn("script failed, continuing per policy", "script", item.Name, "error", execErr)
	}

	return report, nil
}

func versionOf(item plan.Item) string {
	if item.Type == script.TypeVersioned {
		return item.Version.Raw
	}
	return ""
}
