package inventory

import (
	"maps"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// DefinitionID is the stable catalog identifier (a GUID) of an item
// definition. The engine does not interpret this value.
type DefinitionID string

// ItemDefinition is read-only catalog data. Width and Height are the native
// footprint before rotation.
type ItemDefinition struct {
	ID     DefinitionID `json:"id" yaml:"id"`
	Name   string       `json:"name,omitempty" yaml:"name,omitempty"`
	Type   string       `json:"type,omitempty" yaml:"type,omitempty"`
	Width  int          `json:"width" yaml:"width"`
	Height int          `json:"height" yaml:"height"`
}

// Validate checks the definition can be placed in a grid.
func (d *ItemDefinition) Validate() error {
	if d == nil {
		return errors.Wrap(ErrInvalidDefinition, "nil definition")
	}
	if d.ID == "" {
		return errors.Wrap(ErrInvalidDefinition, "missing id")
	}
	if d.Width < 1 || d.Height < 1 {
		return errors.Wrapf(ErrInvalidDefinition, "%s: footprint %dx%d", d.ID, d.Width, d.Height)
	}
	return nil
}

// Footprint returns the effective (width, height) under rotation r.
func (d *ItemDefinition) Footprint(r Rotation) (int, int) {
	return Footprint(d.Width, d.Height, r)
}

// BoundsAt returns the rectangle the definition covers when anchored at p
// with rotation r.
func (d *ItemDefinition) BoundsAt(p Point, r Rotation) Bounds {
	w, h := d.Footprint(r)
	return NewBounds(p, w, h)
}

// Catalog resolves item definitions by identifier.
type Catalog interface {
	LookupDefinition(id DefinitionID) (*ItemDefinition, bool)
}

// CatalogFunc adapts a plain function to Catalog.
type CatalogFunc func(id DefinitionID) (*ItemDefinition, bool)

// LookupDefinition calls f(id).
func (f CatalogFunc) LookupDefinition(id DefinitionID) (*ItemDefinition, bool) {
	return f(id)
}

// ItemInstance is one physical item. The same pointer follows the item
// through every move, including moves between containers.
type ItemInstance struct {
	ID         uuid.UUID
	Definition *ItemDefinition
	// Metadata holds per-instance scalar values (durability, charges, ...).
	Metadata map[string]any
}

// NewInstance creates an instance of def with a fresh identifier.
func NewInstance(def *ItemDefinition) *ItemInstance {
	return &ItemInstance{
		ID:         uuid.New(),
		Definition: def,
		Metadata:   make(map[string]any),
	}
}

// Get returns a metadata value.
func (i *ItemInstance) Get(key string) (any, bool) {
	v, ok := i.Metadata[key]
	return v, ok
}

// Set stores a metadata value.
func (i *ItemInstance) Set(key string, value any) {
	if i.Metadata == nil {
		i.Metadata = make(map[string]any)
	}
	i.Metadata[key] = value
}

func (i *ItemInstance) validate() error {
	if i == nil {
		return ErrNilInstance
	}
	return i.Definition.Validate()
}

// PlacedItem binds an instance to a position and rotation inside exactly one
// container. Its fields change only through container operations.
type PlacedItem struct {
	instance  *ItemInstance
	bounds    Bounds
	rotation  Rotation
	container *Container
}

// Instance returns the placed instance.
func (p *PlacedItem) Instance() *ItemInstance { return p.instance }

// Definition is shorthand for Instance().Definition.
func (p *PlacedItem) Definition() *ItemDefinition { return p.instance.Definition }

// Bounds returns the covered rectangle.
func (p *PlacedItem) Bounds() Bounds { return p.bounds }

// Anchor returns the top-left covered cell.
func (p *PlacedItem) Anchor() Point { return p.bounds.Anchor() }

// Rotation returns the current rotation.
func (p *PlacedItem) Rotation() Rotation { return p.rotation }

// Container returns the owning container, or nil once the item was removed.
func (p *PlacedItem) Container() *Container { return p.container }

func cloneMetadata(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	return maps.Clone(m)
}
