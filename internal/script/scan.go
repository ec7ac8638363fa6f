package script

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Scan walks root to any depth and returns a Descriptor for every file
// carrying a recognized script suffix. Only filenames carry meaning; the
// directory structure does not. Files without a script suffix are ignored
// silently. Script-suffixed files whose name fails the grammar are
// returned as DiscoveryErrors so the caller can warn and continue.
//
// The returned catalog is sorted by path for deterministic downstream
// processing.
func Scan(root string) ([]Descriptor, []*DiscoveryError, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, fmt.Errorf("scan root: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("scan root %s: not a directory", root)
	}

	var (
		catalog []Descriptor
		skipped []*DiscoveryError
	)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		name := d.Name()
		if !IsScriptFile(name) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		desc, perr := Parse(rel, name)
		if perr != nil {
			var de *DiscoveryError
			if errors.As(perr, &de) {
				skipped = append(skipped, de)
				return nil
			}
			return perr
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		desc.RawContent = string(raw)
		desc.RenderOptOut = strings.Contains(desc.RawContent, RenderOptOutMarker)

		catalog = append(catalog, desc)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("scan %s: %w", root, err)
	}

	sort.Slice(catalog, func(i, j int) bool { return catalog[i].Path < catalog[j].Path })
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].Path < skipped[j].Path })
	return catalog, skipped, nil
}
