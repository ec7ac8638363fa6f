package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseVars decodes an inline --vars value: a YAML/JSON mapping such as
// '{database_name: analytics, secrets: {password: hunter2}}'.
func ParseVars(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	var vars map[string]any
	if err := yaml.Unmarshal([]byte(s), &vars); err != nil {
		return nil, fmt.Errorf("parse --vars: %w", err)
	}
	return vars, nil
}

// MergeVars overlays override onto base, descending into nested maps so a
// command-line secret can replace one leaf without clobbering its
// siblings. Neither input is modified.
func MergeVars(base, override map[string]any) map[string]any {
	if base == nil && override == nil {
		return nil
	}
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		if sub, ok := v.(map[string]any); ok {
			if baseSub, ok := out[k].(map[string]any); ok {
				out[k] = MergeVars(baseSub, sub)
				continue
			}
		}
		out[k] = v
	}
	return out
}
