// Package modules is the module and error surface: script/module loading
// with TypeScript transpilation and ESM bundling, import-map resolution,
// embedded-binary section decoding, and diagnostic rendering.
package modules

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/andromeda-rt/andromeda/internal/core"
)

// ImportMap is a user-provided specifier remapping, in the standard
// imports/scopes/integrity shape.
type ImportMap struct {
	Imports   map[string]string            `json:"imports"`
	Scopes    map[string]map[string]string `json:"scopes"`
	Integrity map[string]string            `json:"integrity"`
}

// LoadImportMap reads and parses an import map file.
func LoadImportMap(path string) (*ImportMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.WrapError(core.KindModuleIO, "import-map", err)
	}
	var im ImportMap
	if err := json.Unmarshal(data, &im); err != nil {
		return nil, core.OpError(core.KindConfig, "import-map", "parsing %s: %v", path, err)
	}
	return &im, nil
}

// Resolve maps specifier through the import map for the given referrer.
// Scoped entries win over top-level imports, longest scope prefix first.
// Prefix entries (trailing '/') remap whole subtrees. When no entry
// applies the specifier comes back unchanged with ok false, so callers
// can tell a mapping from fallthrough.
func (im *ImportMap) Resolve(specifier, referrer string) (string, bool) {
	if im == nil {
		return specifier, false
	}
	if mapped, ok := resolveIn(scopeFor(im.Scopes, referrer), specifier); ok {
		return mapped, true
	}
	if mapped, ok := resolveIn(im.Imports, specifier); ok {
		return mapped, true
	}
	return specifier, false
}

func scopeFor(scopes map[string]map[string]string, referrer string) map[string]string {
	var keys []string
	for k := range scopes {
		if strings.HasPrefix(referrer, k) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	return scopes[keys[0]]
}

func resolveIn(entries map[string]string, specifier string) (string, bool) {
	if entries == nil {
		return "", false
	}
	if mapped, ok := entries[specifier]; ok {
		return mapped, true
	}
	best := ""
	for prefix := range entries {
		if strings.HasSuffix(prefix, "/") && strings.HasPrefix(specifier, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return "", false
	}
	return entries[best] + specifier[len(best):], true
}

// CheckIntegrity verifies a loaded source against the map's integrity
// entry for the resolved URL, when one exists.
func (im *ImportMap) CheckIntegrity(resolved string, digestOK func(expected string) bool) error {
	if im == nil || im.Integrity == nil {
		return nil
	}
	expected, ok := im.Integrity[resolved]
	if !ok {
		return nil
	}
	if !digestOK(expected) {
		return fmt.Errorf("integrity mismatch for %s", resolved)
	}
	return nil
}
