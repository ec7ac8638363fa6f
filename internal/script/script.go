// Package script discovers change scripts on disk and classifies them
// by filename into versioned, repeatable and always-run scripts.
package script

import (
	"fmt"
	"regexp"
	"strings"
)

// Type identifies the execution class of a change script.
// The single-letter values match the SCRIPT_TYPE column of the
// change-history table.
type Type string

const (
	// TypeVersioned scripts run exactly once, in version order.
	TypeVersioned Type = "V"

	// TypeRepeatable scripts re-run whenever their effective content changes.
	TypeRepeatable Type = "R"

	// TypeAlways scripts run on every deployment.
	TypeAlways Type = "A"
)

// RenderOptOutMarker disables template rendering for a script when the
// literal text appears anywhere in the file. Case-sensitive.
const RenderOptOutMarker = "schemachange-no-jinja"

// Descriptor is the parsed form of a single change script.
// Built once per scan and never mutated afterwards.
type Descriptor struct {
	// Path is where the script was found, relative to the scan root.
	Path string

	// Name is the base filename including extension. It is the ledger
	// identity for repeatable and always scripts, so it must be unique
	// across the whole scanned tree regardless of folder.
	Name string

	// Type is the script's execution class.
	Type Type

	// Version is set only for versioned scripts.
	Version Version

	// Description is the filename segment after the double-underscore
	// separator, with underscores flattened to spaces.
	Description string

	// RawContent is the unrendered source text.
	RawContent string

	// RenderOptOut is true when RawContent contains RenderOptOutMarker.
	// Opted-out scripts skip rendering and execute their raw text.
	RenderOptOut bool
}

// Identity is the key used to match this script against ledger history:
// the exact version string for versioned scripts, the filename otherwise.
func (d Descriptor) Identity() string {
	if d.Type == TypeVersioned {
		return d.Version.Raw
	}
	return d.Name
}

// Filename grammar. Prefix is case-sensitive, suffix is not.
// The version group is lazy so only the first double-underscore run
// splits version from description.
var (
	versionedPattern  = regexp.MustCompile(`^V(\d+(?:[._]\d+)*?)__(.+?)\.(?i:sql(?:\.jinja)?)$`)
	repeatablePattern = regexp.MustCompile(`^([RA])__(.+?)\.(?i:sql(?:\.jinja)?)$`)
	suffixPattern     = regexp.MustCompile(`(?i)\.sql(\.jinja)?$`)
)

// IsScriptFile reports whether the filename carries one of the two
// recognized script suffixes. Files that don't are ignored silently;
// files that do but fail Parse are discovery errors.
func IsScriptFile(name string) bool {
	return suffixPattern.MatchString(name)
}

// Parse classifies a filename into a Descriptor. Content fields are left
// empty; the scanner fills them in. A name that carries a script suffix
// but doesn't match the grammar yields a *DiscoveryError.
func Parse(path, name string) (Descriptor, error) {
	if m := versionedPattern.FindStringSubmatch(name); m != nil {
		desc := m[2]
		if strings.Contains(desc, "__") {
			return Descriptor{}, &DiscoveryError{
				Path:   path,
				Reason: fmt.Sprintf("description %q contains a double underscore, which is ambiguous with the version separator", desc),
			}
		}
		v, err := ParseVersion(m[1])
		if err != nil {
			return Descriptor{}, &DiscoveryError{Path: path, Reason: err.Error()}
		}
		return Descriptor{
			Path:        path,
			Name:        name,
			Type:        TypeVersioned,
			Version:     v,
			Description: describeName(desc),
		}, nil
	}

	if m := repeatablePattern.FindStringSubmatch(name); m != nil {
		desc := m[2]
		if strings.Contains(desc, "__") {
			return Descriptor{}, &DiscoveryError{
				Path:   path,
				Reason: fmt.Sprintf("description %q contains a double underscore, which is ambiguous with the type separator", desc),
			}
		}
		t := TypeRepeatable
		if m[1] == "A" {
			t = TypeAlways
		}
		return Descriptor{
			Path:        path,
			Name:        name,
			Type:        t,
			Description: describeName(desc),
		}, nil
	}

	return Descriptor{}, &DiscoveryError{
		Path:   path,
		Reason: fmt.Sprintf("filename %q does not match V<version>__<description>, R__<description> or A__<description>", name),
	}
}

// describeName flattens filename underscores to spaces for display and
// for the alphabetical ordering of repeatable/always scripts.
func describeName(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}

// Validate builds the identity index for a scanned catalog and rejects
// duplicates: two versioned scripts sharing the same version string, or
// two repeatable/always scripts sharing the same filename. Runs before
// anything is rendered or executed.
func Validate(catalog []Descriptor) error {
	byIdentity := make(map[string][]string, len(catalog))
	for _, d := range catalog {
		// Versioned and name-keyed identities live in separate namespaces.
		key := string(d.Type) + "\x00" + d.Identity()
		if d.Type == TypeRepeatable || d.Type == TypeAlways {
			key = "name\x00" + d.Name
		}
		byIdentity[key] = append(byIdentity[key], d.Path)
	}

	var verr *ValidationError
	for key, paths := range byIdentity {
		if len(paths) < 2 {
			continue
		}
		if verr == nil {
			verr = &ValidationError{}
		}
		_, identity, _ := strings.Cut(key, "\x00")
		verr.Duplicates = append(verr.Duplicates, Duplicate{Identity: identity, Paths: paths})
	}
	if verr != nil {
		verr.sort()
		return verr
	}
	return nil
}
