// Package catalog loads item definitions from YAML.
package catalog

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/gravitas-games/gridstash/pkg/inventory"
)

// File is the on-disk layout:
//
//	items:
//	  - id: 6f1c2d7e-3a41-4c1e-9a55-0b6f8d2c1a01
//	    name: Field Medkit
//	    type: medical
//	    width: 2
//	    height: 2
type File struct {
	Items []inventory.ItemDefinition `yaml:"items"`
}

// Load reads a catalog file.
func Load(path string) (*inventory.ItemRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read catalog file")
	}
	reg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "catalog %s", path)
	}
	return reg, nil
}

// Parse decodes catalog YAML. Every definition must carry a UUID id and a
// footprint of at least 1x1; ids must be unique.
func Parse(data []byte) (*inventory.ItemRegistry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "failed to parse catalog")
	}
	reg := inventory.MustItemRegistry()
	seen := make(map[inventory.DefinitionID]bool, len(f.Items))
	for i, def := range f.Items {
		if _, err := uuid.Parse(string(def.ID)); err != nil {
			return nil, errors.Wrapf(inventory.ErrInvalidDefinition, "item %d: id %q is not a GUID", i, def.ID)
		}
		if seen[def.ID] {
			return nil, errors.Wrapf(inventory.ErrInvalidDefinition, "item %d: duplicate id %s", i, def.ID)
		}
		seen[def.ID] = true
		if err := reg.Register(def); err != nil {
			return nil, errors.Wrapf(err, "item %d", i)
		}
	}
	return reg, nil
}
