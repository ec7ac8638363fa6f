package script

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a script version identifier: an ordered tuple of non-negative
// integers parsed from the filename, split on '.' or '_'.
//
// Identity is the exact Raw string. Two versions may compare numerically
// equal while remaining distinct identities (for example "1.2" and
// "1.2.0"); the planner orders such pairs by Raw so plans stay
// deterministic, and validation only rejects exact string duplicates.
type Version struct {
	Raw   string
	Parts []int
}

// ParseVersion splits s on '.' and '_' and parses each part as a
// non-negative integer.
func ParseVersion(s string) (Version, error) {
	if s == "" {
		return Version{}, fmt.Errorf("empty version")
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '.' || r == '_' })
	nums := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("version %q: component %q is not a non-negative integer", s, p)
		}
		nums = append(nums, n)
	}
	return Version{Raw: s, Parts: nums}, nil
}

// Compare orders versions by component-wise numeric comparison. The
// shorter tuple is treated as zero-padded, so 1.2 and 1.2.0 compare
// equal. Returns -1, 0 or +1.
func (v Version) Compare(o Version) int {
	n := len(v.Parts)
	if len(o.Parts) > n {
		n = len(o.Parts)
	}
	for i := 0; i < n; i++ {
		a, b := 0, 0
		if i < len(v.Parts) {
			a = v.Parts[i]
		}
		if i < len(o.Parts) {
			b = o.Parts[i]
		}
		if a != b {
			if a < b {
				return -1
			}
			return 1
		}
	}
	return 0
}

func (v Version) String() string { return v.Raw }
