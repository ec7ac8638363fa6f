// Package plan diffs the scanned script catalog against change-history
// state and produces the ordered execution plan for a run.
package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/schemachange/internal/ledger"
	"github.com/roach88/schemachange/internal/render"
	"github.com/roach88/schemachange/internal/script"
)

// Item is one script selected for execution.
type Item struct {
	render.Effective
}

// Warning reports checksum drift on an already-applied versioned script.
// Drift never blocks the run and never re-executes the script; it is
// surfaced so the operator knows the source tree no longer matches what
// was deployed.
type Warning struct {
	Identity string
	Script   string
	Recorded string // checksum in the last Success row
	Current  string // checksum of today's effective content
}

func (w Warning) String() string {
	return fmt.Sprintf("checksum drift on applied versioned script %s (%s): ledger has %s, current content is %s",
		w.Identity, w.Script, short(w.Recorded), short(w.Current))
}

func short(checksum string) string {
	if len(checksum) > 12 {
		return checksum[:12]
	}
	return checksum
}

// Plan is the ordered list of scripts to execute plus any drift warnings.
// Order is a hard invariant: every pending versioned script precedes every
// repeatable script, which precedes every always script.
type Plan struct {
	Items    []Item
	Warnings []Warning
}

// Build partitions the catalog by type and keeps:
//
//   - versioned scripts with no prior Success row, ascending by numeric
//     version (ties broken by the raw version string, so numerically
//     equal but textually distinct versions stay deterministic)
//   - repeatable scripts whose checksum differs from their last Success
//     row (or that never succeeded), ascending by description
//   - every always script, ascending by description
//
// Scripts whose render failed are kept in the plan; the orchestrator
// records the failure under the continue-on-error policy.
func Build(catalog []render.Effective, history ledger.History) *Plan {
	var versioned, repeatable, always []Item
	p := &Plan{}

	for _, eff := range catalog {
		switch eff.Type {
		case script.TypeVersioned:
			state, ok := history[eff.Identity()]
			if ok && state.LastSuccess != nil {
				// Applied once, never again. Only drift is reported.
				if eff.Err == nil && state.LastSuccess.Checksum != eff.Checksum {
					p.Warnings = append(p.Warnings, Warning{
						Identity: eff.Identity(),
						Script:   eff.Name,
						Recorded: state.LastSuccess.Checksum,
						Current:  eff.Checksum,
					})
				}
				continue
			}
			versioned = append(versioned, Item{eff})

		case script.TypeRepeatable:
			state, ok := history[eff.Identity()]
			if ok && state.LastSuccess != nil && eff.Err == nil && state.LastSuccess.Checksum == eff.Checksum {
				continue
			}
			repeatable = append(repeatable, Item{eff})

		case script.TypeAlways:
			always = append(always, Item{eff})
		}
	}

	sort.Slice(versioned, func(i, j int) bool {
		if c := versioned[i].Version.Compare(versioned[j].Version); c != 0 {
			return c < 0
		}
		return versioned[i].Version.Raw < versioned[j].Version.Raw
	})
	byDescription := func(items []Item) func(i, j int) bool {
		return func(i, j int) bool {
			if items[i].Description != items[j].Description {
				return items[i].Description < items[j].Description
			}
			return items[i].Name < items[j].Name
		}
	}
	sort.Slice(repeatable, byDescription(repeatable))
	sort.Slice(always, byDescription(always))

	p.Items = append(p.Items, versioned...)
	p.Items = append(p.Items, repeatable...)
	p.Items = append(p.Items, always...)
	return p
}

// Empty reports whether the plan selected nothing to execute.
func (p *Plan) Empty() bool { return len(p.Items) == 0 }

// String renders the plan for human eyes. Script content and variables
// never appear here, so there is nothing to redact.
func (p *Plan) String() string {
	var b strings.Builder
	if p.Empty() {
		b.WriteString("nothing to deploy: catalog matches change history\n")
	} else {
		fmt.Fprintf(&b, "%d script(s) to deploy:\n", len(p.Items))
		for i, item := range p.Items {
			label := item.Name
			if item.Type == script.TypeVersioned {
				label = fmt.Sprintf("%s (version %s)", item.Name, item.Version.Raw)
			}
			fmt.Fprintf(&b, "  %2d. [%s] %s\n", i+1, item.Type, label)
		}
	}
	for _, w := range p.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", w)
	}
	return b.String()
}
