package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schemachange/internal/script"
)

func desc(name, content string) script.Descriptor {
	d, err := script.Parse(name, name)
	if err != nil {
		panic(err)
	}
	d.RawContent = content
	d.RenderOptOut = strings.Contains(content, script.RenderOptOutMarker)
	return d
}

func TestRender_SubstitutesVariables(t *testing.T) {
	r := NewRenderer(map[string]any{
		"database_name": "analytics",
		"secrets": map[string]any{
			"password": "hunter2",
		},
	})

	out, err := r.Render(desc("V1__use_db.sql", "USE DATABASE {{ .database_name }};"))
	require.NoError(t, err)
	assert.Equal(t, "USE DATABASE analytics;", out)

	out, err = r.Render(desc("V2__nested.sql", "SET pw = '{{ .secrets.password }}';"))
	require.NoError(t, err)
	assert.Equal(t, "SET pw = 'hunter2';", out)
}

func TestRender_UnresolvedPlaceholderFails(t *testing.T) {
	r := NewRenderer(map[string]any{"known": "x"})

	_, err := r.Render(desc("V1__bad.sql", "SELECT {{ .unknown }};"))
	var re *RenderError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "V1__bad.sql", re.Script)
}

func TestRender_ParseErrorFails(t *testing.T) {
	r := NewRenderer(nil)

	_, err := r.Render(desc("V1__bad.sql", "SELECT {{ .a"))
	var re *RenderError
	assert.ErrorAs(t, err, &re)
}

func TestRender_OptOutBypassesRenderer(t *testing.T) {
	r := NewRenderer(map[string]any{})

	// The marker disables rendering, so unresolved placeholders survive
	// verbatim instead of failing.
	raw := "-- schemachange-no-jinja\nSELECT {{ .unknown }};"
	out, err := r.Render(desc("V1__raw.sql", raw))
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestChecksum_Deterministic(t *testing.T) {
	a := Checksum("CREATE TABLE t (id INTEGER);")
	b := Checksum("CREATE TABLE t (id INTEGER);")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, Checksum("CREATE TABLE t (id INTEGER); "))
}

func TestChecksum_UnicodeNormalized(t *testing.T) {
	// Composed é (U+00E9) vs decomposed e + combining acute (U+0065 U+0301).
	assert.Equal(t, Checksum("caf\u00e9"), Checksum("cafe\u0301"))
}

func TestChecksum_AfterRendering(t *testing.T) {
	// Identical effective SQL from different raw templates hashes the same.
	r1 := NewRenderer(map[string]any{"tbl": "users"})
	r2 := NewRenderer(map[string]any{"name": "users"})

	out1, err := r1.Render(desc("R__a.sql", "SELECT * FROM {{ .tbl }};"))
	require.NoError(t, err)
	out2, err := r2.Render(desc("R__b.sql", "SELECT * FROM {{ .name }};"))
	require.NoError(t, err)

	assert.Equal(t, Checksum(out1), Checksum(out2))
}

func TestRender_ModulesProvideSharedDefinitions(t *testing.T) {
	dir := t.TempDir()
	mod := `{{ define "audit_columns" }}created_at TIMESTAMP, created_by TEXT{{ end }}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "audit.sql.jinja"), []byte(mod), 0o644))

	r := NewRenderer(map[string]any{"tbl": "users"})
	require.NoError(t, r.LoadModules(dir))

	out, err := r.Render(desc("V1__users.sql",
		`CREATE TABLE {{ .tbl }} (id INTEGER, {{ template "audit_columns" . }});`))
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE users (id INTEGER, created_at TIMESTAMP, created_by TEXT);", out)
}

func TestRenderAll_CarriesPerScriptFailures(t *testing.T) {
	r := NewRenderer(map[string]any{"ok": "1"})

	catalog := []script.Descriptor{
		desc("V1__good.sql", "SELECT {{ .ok }};"),
		desc("V2__bad.sql", "SELECT {{ .missing }};"),
	}
	effs := r.RenderAll(catalog)
	require.Len(t, effs, 2)

	assert.NoError(t, effs[0].Err)
	assert.Equal(t, "SELECT 1;", effs[0].Rendered)
	assert.NotEmpty(t, effs[0].Checksum)

	assert.Error(t, effs[1].Err)
	assert.Empty(t, effs[1].Checksum)
}
