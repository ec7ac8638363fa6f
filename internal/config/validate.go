package config

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaCUE string

// validateDocument unifies the raw YAML document with the embedded CUE
// schema. The schema's structs are closed, so unknown keys fail here with
// a CUE error naming the offending field.
func validateDocument(raw map[string]any) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	if !def.Exists() {
		return fmt.Errorf("config schema is missing #Config")
	}

	doc := ctx.Encode(raw)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("encode config document: %w", err)
	}

	unified := def.Unify(doc)
	if err := unified.Err(); err != nil {
		return err
	}
	return unified.Validate()
}
