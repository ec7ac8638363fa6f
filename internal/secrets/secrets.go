// Package secrets decides which configured variables are sensitive and
// produces redacted views of them for human-facing output.
//
// Redaction is a decorator over the output path, never a mutation: the
// renderer and execution session always see real values.
package secrets

import "strings"

// Mask replaces every secret value in redacted output.
const Mask = "******"

// IsSecret reports whether the variable at the given key path is
// sensitive: its own key contains "secret" in any case, or any ancestor
// key on the path is exactly "secrets".
func IsSecret(path []string) bool {
	if len(path) == 0 {
		return false
	}
	last := path[len(path)-1]
	if strings.Contains(strings.ToLower(last), "secret") {
		return true
	}
	for _, ancestor := range path[:len(path)-1] {
		if ancestor == "secrets" {
			return true
		}
	}
	return false
}

// Redacted returns a deep copy of vars with every secret leaf replaced by
// Mask. The input is never modified. Non-map, non-leaf values (slices)
// are copied by reference: the variable contract is flat or one-level
// nested key/value maps.
func Redacted(vars map[string]any) map[string]any {
	return redact(vars, nil)
}

func redact(vars map[string]any, path []string) map[string]any {
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		p := append(append([]string(nil), path...), k)
		switch val := v.(type) {
		case map[string]any:
			out[k] = redact(val, p)
		default:
			if IsSecret(p) {
				out[k] = Mask
			} else {
				out[k] = v
			}
		}
	}
	return out
}
