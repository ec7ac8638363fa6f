// Package render expands template placeholders in change scripts and
// computes the content checksum of the effective script text.
package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/roach88/schemachange/internal/script"
)

// Effective is a scanned script plus its rendered content and checksum.
// Rebuilt from scratch every run; never persisted.
type Effective struct {
	script.Descriptor

	// Rendered is the effective script text: the template output, or the
	// raw content verbatim when the script opted out of rendering.
	Rendered string

	// Checksum is the content hash of Rendered. Empty when Err is set.
	Checksum string

	// Err records a render failure. The script still enters the plan so
	// the failure is subject to the same continue-on-error policy as an
	// execution failure.
	Err error
}

// RenderError reports a script whose template could not be fully
// expanded: a parse failure or a placeholder with no matching variable.
type RenderError struct {
	Script string
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Script, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Renderer expands placeholders against a fixed variable set. Variables
// may be flat values or one-level-nested maps; lookups use the standard
// {{ .key }} / {{ .outer.inner }} forms. A missing key fails the render
// rather than passing through silently.
type Renderer struct {
	vars    map[string]any
	modules []module
}

// module is a shared template definition loaded from the modules folder.
type module struct {
	name   string
	source string
}

// NewRenderer builds a Renderer over the configured variables. The map is
// used as-is: redaction for display is the caller's concern, never the
// renderer's, so execution always sees real values.
func NewRenderer(vars map[string]any) *Renderer {
	if vars == nil {
		vars = map[string]any{}
	}
	return &Renderer{vars: vars}
}

// funcs are the template helpers available to scripts.
var funcs = template.FuncMap{
	"env": os.Getenv,
}

// LoadModules reads every file in dir (non-recursive) and makes its
// {{ define }} blocks available to scripts as {{ template "name" . }}.
// The modules folder is shared scaffolding; its files are not change
// scripts and never execute on their own.
func (r *Renderer) LoadModules(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read modules folder: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read module %s: %w", entry.Name(), err)
		}
		r.modules = append(r.modules, module{name: entry.Name(), source: string(data)})
	}
	return nil
}

// Render produces the effective content for one script. Scripts carrying
// the opt-out marker pass through untouched.
func (r *Renderer) Render(d script.Descriptor) (string, error) {
	if d.RenderOptOut {
		return d.RawContent, nil
	}

	tmpl := template.New(d.Name).Funcs(funcs).Option("missingkey=error")
	for _, m := range r.modules {
		if _, err := tmpl.New(m.name).Parse(m.source); err != nil {
			return "", &RenderError{Script: d.Path, Err: fmt.Errorf("module %s: %w", m.name, err)}
		}
	}
	tmpl, err := tmpl.Parse(d.RawContent)
	if err != nil {
		return "", &RenderError{Script: d.Path, Err: err}
	}

	var out strings.Builder
	if err := tmpl.Execute(&out, r.vars); err != nil {
		return "", &RenderError{Script: d.Path, Err: err}
	}

	rendered := out.String()
	// missingkey=error doesn't cover every nil dereference; a literal
	// "<no value>" in the output means a placeholder went unresolved.
	if strings.Contains(rendered, "<no value>") {
		return "", &RenderError{Script: d.Path, Err: fmt.Errorf("unresolved placeholder in output")}
	}
	return rendered, nil
}

// RenderAll renders a whole catalog. Render failures do not stop the
// batch: the failing script's Effective carries Err and an empty checksum
// so the planner and orchestrator can apply failure policy per item.
func (r *Renderer) RenderAll(catalog []script.Descriptor) []Effective {
	out := make([]Effective, 0, len(catalog))
	for _, d := range catalog {
		eff := Effective{Descriptor: d}
		rendered, err := r.Render(d)
		if err != nil {
			eff.Err = err
		} else {
			eff.Rendered = rendered
			eff.Checksum = Checksum(rendered)
		}
		out = append(out, eff)
	}
	return out
}
