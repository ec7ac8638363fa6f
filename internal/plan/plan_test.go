package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schemachange/internal/ledger"
	"github.com/roach88/schemachange/internal/render"
	"github.com/roach88/schemachange/internal/script"
)

func eff(t *testing.T, name, content string) render.Effective {
	t.Helper()
	d, err := script.Parse(name, name)
	require.NoError(t, err)
	d.RawContent = content
	return render.Effective{
		Descriptor: d,
		Rendered:   content,
		Checksum:   render.Checksum(content),
	}
}

func success(e render.Effective) ledger.State {
	entry := ledger.Entry{
		Version:  e.Version.Raw,
		Script:   e.Name,
		Type:     e.Type,
		Checksum: e.Checksum,
		Status:   ledger.StatusSuccess,
	}
	return ledger.State{Latest: entry, LastSuccess: &entry}
}

func names(items []Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Name
	}
	return out
}

func TestBuild_EmptyLedgerRunsEverything(t *testing.T) {
	catalog := []render.Effective{
		eff(t, "R__view1.sql", "CREATE VIEW v1 AS SELECT 1;"),
		eff(t, "V1.0.1__addcol.sql", "ALTER TABLE t ADD c INTEGER;"),
		eff(t, "V1.0.0__init.sql", "CREATE TABLE t (id INTEGER);"),
	}

	p := Build(catalog, ledger.History{})

	assert.Equal(t, []string{"V1.0.0__init.sql", "V1.0.1__addcol.sql", "R__view1.sql"}, names(p.Items))
	assert.Empty(t, p.Warnings)
}

func TestBuild_SecondUnchangedRunIsEmpty(t *testing.T) {
	catalog := []render.Effective{
		eff(t, "V1.0.0__init.sql", "CREATE TABLE t (id INTEGER);"),
		eff(t, "R__view1.sql", "CREATE VIEW v1 AS SELECT 1;"),
	}
	history := ledger.History{
		"1.0.0":        success(catalog[0]),
		"R__view1.sql": success(catalog[1]),
	}

	p := Build(catalog, history)

	assert.True(t, p.Empty())
	assert.Empty(t, p.Warnings)
}

func TestBuild_VersionedNeverRerunsDriftWarns(t *testing.T) {
	applied := eff(t, "V1.0.0__init.sql", "CREATE TABLE t (id INTEGER);")
	history := ledger.History{"1.0.0": success(applied)}

	// Content edited after it was applied.
	edited := eff(t, "V1.0.0__init.sql", "CREATE TABLE t (id INTEGER, extra TEXT);")

	p := Build([]render.Effective{edited}, history)

	assert.True(t, p.Empty(), "applied versioned scripts never re-run")
	require.Len(t, p.Warnings, 1)
	assert.Equal(t, "1.0.0", p.Warnings[0].Identity)
	assert.Equal(t, applied.Checksum, p.Warnings[0].Recorded)
	assert.Equal(t, edited.Checksum, p.Warnings[0].Current)
}

func TestBuild_VersionedFailedRowRetries(t *testing.T) {
	failed := eff(t, "V2__later.sql", "SELECT broken;")
	entry := ledger.Entry{Version: "2", Script: failed.Name, Type: script.TypeVersioned, Status: ledger.StatusFailed}
	history := ledger.History{"2": {Latest: entry}}

	p := Build([]render.Effective{failed}, history)

	// A Failed row is not a Success row; the script is still pending.
	assert.Equal(t, []string{"V2__later.sql"}, names(p.Items))
}

func TestBuild_RepeatableRerunsOnChecksumChange(t *testing.T) {
	old := eff(t, "R__view1.sql", "CREATE VIEW v1 AS SELECT 1;")
	history := ledger.History{"R__view1.sql": success(old)}

	unchanged := Build([]render.Effective{old}, history)
	assert.True(t, unchanged.Empty())

	edited := eff(t, "R__view1.sql", "CREATE VIEW v1 AS SELECT 2;")
	changed := Build([]render.Effective{edited}, history)
	assert.Equal(t, []string{"R__view1.sql"}, names(changed.Items))
}

func TestBuild_RepeatableLastSuccessWins(t *testing.T) {
	// Latest row is a failure with a different checksum; the comparison
	// baseline is the most recent Success row.
	current := eff(t, "R__view1.sql", "CREATE VIEW v1 AS SELECT 1;")
	state := success(current)
	state.Latest = ledger.Entry{
		Script: current.Name, Type: script.TypeRepeatable,
		Checksum: "deadbeef", Status: ledger.StatusFailed,
	}

	p := Build([]render.Effective{current}, ledger.History{"R__view1.sql": state})
	assert.True(t, p.Empty(), "unchanged since last success; failed retry of other content is irrelevant")
}

func TestBuild_AlwaysRunsEveryTime(t *testing.T) {
	a := eff(t, "A__grants.sql", "GRANT SELECT ON t TO reader;")
	history := ledger.History{"A__grants.sql": success(a)}

	p := Build([]render.Effective{a}, history)
	assert.Equal(t, []string{"A__grants.sql"}, names(p.Items))
}

func TestBuild_OrderingLaw(t *testing.T) {
	catalog := []render.Effective{
		eff(t, "A__zeta.sql", "Z"),
		eff(t, "A__alpha.sql", "A"),
		eff(t, "R__beta.sql", "B"),
		eff(t, "R__apple.sql", "AP"),
		eff(t, "V1.10__ten.sql", "T"),
		eff(t, "V1.2__two.sql", "W"),
		eff(t, "V1.9__nine.sql", "N"),
	}

	p := Build(catalog, ledger.History{})

	assert.Equal(t, []string{
		"V1.2__two.sql",  // numeric order: 1.2 < 1.9 < 1.10
		"V1.9__nine.sql",
		"V1.10__ten.sql",
		"R__apple.sql", // repeatable after all versioned, alphabetical
		"R__beta.sql",
		"A__alpha.sql", // always last, alphabetical
		"A__zeta.sql",
	}, names(p.Items))
}

func TestBuild_NumericallyEqualVersionsOrderedByRawString(t *testing.T) {
	catalog := []render.Effective{
		eff(t, "V1.2.0__b.sql", "B"),
		eff(t, "V1.2__a.sql", "A"),
	}

	p := Build(catalog, ledger.History{})
	assert.Equal(t, []string{"V1.2__a.sql", "V1.2.0__b.sql"}, names(p.Items))
}

func TestBuild_RenderFailureStaysInPlan(t *testing.T) {
	broken := eff(t, "R__view1.sql", "irrelevant")
	broken.Rendered = ""
	broken.Checksum = ""
	broken.Err = &render.RenderError{Script: broken.Path}

	// Even with a prior success the failed render cannot be compared, so
	// the script is planned and the failure surfaces under policy.
	prior := eff(t, "R__view1.sql", "CREATE VIEW v1 AS SELECT 1;")
	p := Build([]render.Effective{broken}, ledger.History{"R__view1.sql": success(prior)})

	assert.Equal(t, []string{"R__view1.sql"}, names(p.Items))
}
