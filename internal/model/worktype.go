package model

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog is the fixed list of work types an assignment or report may
// reference. Matching is exact, including case.
type Catalog struct {
	names []string
	index map[string]struct{}
}

// NewCatalog builds a catalog from the given names, dropping blanks and duplicates.
func NewCatalog(names []string) *Catalog {
	c := &Catalog{index: make(map[string]struct{}, len(names))}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := c.index[name]; ok {
			continue
		}
		c.index[name] = struct{}{}
		c.names = append(c.names, name)
	}
	return c
}

// DefaultCatalog returns the built-in set of manufacturing operations.
func DefaultCatalog() *Catalog {
	return NewCatalog([]string{
		"Cutting",
		"Edging",
		"Drilling",
		"Milling",
		"Turning",
		"Sanding",
		"Priming",
		"Painting",
		"Varnishing",
		"Veneering",
		"Gluing",
		"Assembly",
		"Upholstery",
		"Sewing",
		"Polishing",
		"Welding",
		"Marking",
		"Quality check",
		"Packing",
		"Loading",
	})
}

type catalogFile struct {
	WorkTypes []string `yaml:"work_types"`
}

// LoadCatalog reads a catalog override from a YAML file of the form:
//
//	work_types:
//	  - Cutting
//	  - Sanding
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %q: %w", path, err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse catalog %q: %w", path, err)
	}
	c := NewCatalog(file.WorkTypes)
	if len(c.names) == 0 {
		return nil, fmt.Errorf("catalog %q lists no work types", path)
	}
	return c, nil
}

// Contains reports whether name is a catalog entry (exact match).
func (c *Catalog) Contains(name string) bool {
	_, ok := c.index[name]
	return ok
}

// Names returns the catalog entries in their declared order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}
