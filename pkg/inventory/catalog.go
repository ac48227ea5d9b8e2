package inventory

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
)

// ItemRegistry is an in-memory Catalog. It is safe for concurrent use, so a
// single registry can back every owner's containers.
type ItemRegistry struct {
	mu   sync.RWMutex
	defs map[DefinitionID]*ItemDefinition
}

// NewItemRegistry constructs a registry seeded with defs. It fails on the
// first invalid definition.
func NewItemRegistry(defs ...ItemDefinition) (*ItemRegistry, error) {
	r := &ItemRegistry{defs: make(map[DefinitionID]*ItemDefinition, len(defs))}
	for i, d := range defs {
		if err := r.Register(d); err != nil {
			return nil, errors.Wrapf(err, "seed %d", i)
		}
	}
	return r, nil
}

// MustItemRegistry is like NewItemRegistry but panics on an invalid
// definition. It is meant for catalogs written as literals.
func MustItemRegistry(defs ...ItemDefinition) *ItemRegistry {
	r, err := NewItemRegistry(defs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Register inserts or replaces a definition. Instances created from the
// previous definition keep pointing at it.
func (r *ItemRegistry) Register(def ItemDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.defs == nil {
		r.defs = make(map[DefinitionID]*ItemDefinition)
	}
	d := def
	r.defs[d.ID] = &d
	return nil
}

// LookupDefinition implements Catalog.
func (r *ItemRegistry) LookupDefinition(id DefinitionID) (*ItemDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[id]
	return d, ok
}

// NewInstance resolves id and creates a fresh instance of it.
func (r *ItemRegistry) NewInstance(id DefinitionID) (*ItemInstance, error) {
	def, ok := r.LookupDefinition(id)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownItemDefinition, "%s", id)
	}
	return NewInstance(def), nil
}

// Len returns the number of definitions.
func (r *ItemRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// Export copies registry contents into a slice sorted by ID, suitable for
// sending to clients.
func (r *ItemRegistry) Export() []ItemDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.defs) == 0 {
		return nil
	}
	out := make([]ItemDefinition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
