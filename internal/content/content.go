// Package content bulk-loads raw entity and archetype definitions from YAML
// catalog files at process start. The loader is read-only and deliberately
// lenient about prerequisite payloads: structural problems (unknown owners,
// duplicate ids) are the registry's to reject, while a malformed
// prerequisite only downgrades that entity to always-legal.
package content

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/louisbranch/advancement-engine/internal/platform/errors"
)

// RawEntity is one acquirable capability as declared in a catalog file.
type RawEntity struct {
	ID          string     `yaml:"id"`
	DisplayName string     `yaml:"name"`
	Kind        string     `yaml:"kind"`
	OwnerID     string     `yaml:"owner"`
	Requires    string     `yaml:"requires"`     // compact text form
	Prereq      *yaml.Node `yaml:"prerequisite"` // structured form
	SourceFile  string     `yaml:"-"`
}

// RawArchetype is one class-like grouping as declared in a catalog file.
type RawArchetype struct {
	ID          string             `yaml:"id"`
	DisplayName string             `yaml:"name"`
	Collections []string           `yaml:"collections"`
	Signals     map[string]float64 `yaml:"signals"`
	SourceFile  string             `yaml:"-"`
}

// Catalog is the combined output of loading one or more catalog files.
type Catalog struct {
	Entities   []RawEntity
	Archetypes []RawArchetype
}

type catalogFile struct {
	Entities   []RawEntity    `yaml:"entities"`
	Archetypes []RawArchetype `yaml:"archetypes"`
}

// LoadFile decodes a single catalog file.
func LoadFile(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, apperrors.Wrap(apperrors.CodeMalformedContent,
			fmt.Sprintf("read catalog file %s", path), err)
	}
	return parse(data, path)
}

// LoadDir decodes every .yaml/.yml file directly under dir, in lexical
// order so repeated loads see the same declaration order.
func LoadDir(dir string) (Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Catalog{}, apperrors.Wrap(apperrors.CodeMalformedContent,
			fmt.Sprintf("read catalog dir %s", dir), err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var catalog Catalog
	for _, name := range names {
		part, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return Catalog{}, err
		}
		catalog.Entities = append(catalog.Entities, part.Entities...)
		catalog.Archetypes = append(catalog.Archetypes, part.Archetypes...)
	}
	return catalog, nil
}

// Parse decodes catalog bytes. Exposed for embedded test fixtures.
func Parse(data []byte) (Catalog, error) {
	return parse(data, "")
}

func parse(data []byte, source string) (Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Catalog{}, apperrors.Wrap(apperrors.CodeMalformedContent,
			fmt.Sprintf("decode catalog %s", source), err)
	}

	for i := range file.Entities {
		entity := &file.Entities[i]
		entity.SourceFile = source
		entity.ID = strings.TrimSpace(entity.ID)
		if entity.ID == "" {
			return Catalog{}, apperrors.New(apperrors.CodeMalformedContent,
				fmt.Sprintf("catalog %s: entity %d has no id", source, i))
		}
	}
	for i := range file.Archetypes {
		archetype := &file.Archetypes[i]
		archetype.SourceFile = source
		archetype.ID = strings.TrimSpace(archetype.ID)
		if archetype.ID == "" {
			return Catalog{}, apperrors.New(apperrors.CodeMalformedContent,
				fmt.Sprintf("catalog %s: archetype %d has no id", source, i))
		}
		// Zero or negative weights fall back to the default weight.
		for signal, weight := range archetype.Signals {
			if weight <= 0 {
				archetype.Signals[signal] = 1.0
			}
		}
	}

	return Catalog{Entities: file.Entities, Archetypes: file.Archetypes}, nil
}
