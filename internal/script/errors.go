package script

import (
	"fmt"
	"sort"
	"strings"
)

// DiscoveryError reports a script-suffixed file whose name does not match
// the filename grammar. Discovery errors are warnings: the file is skipped
// and the run continues.
type DiscoveryError struct {
	Path   string
	Reason string
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("skipping %s: %s", e.Path, e.Reason)
}

// Duplicate is one identity claimed by more than one script file.
type Duplicate struct {
	Identity string
	Paths    []string
}

// ValidationError reports duplicate script identities found in a scan.
// It is fatal and raised before any script is rendered or executed.
type ValidationError struct {
	Duplicates []Duplicate
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("duplicate script identities found:")
	for _, d := range e.Duplicates {
		fmt.Fprintf(&b, "\n  %s: %s", d.Identity, strings.Join(d.Paths, ", "))
	}
	return b.String()
}

// sort gives the error a deterministic shape for reporting and tests.
func (e *ValidationError) sort() {
	for i := range e.Duplicates {
		sort.Strings(e.Duplicates[i].Paths)
	}
	sort.Slice(e.Duplicates, func(i, j int) bool {
		return e.Duplicates[i].Identity < e.Duplicates[j].Identity
	})
}
