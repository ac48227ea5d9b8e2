package inventory

import (
	"iter"

	"github.com/cockroachdb/errors"
)

// Container is a fixed-size grid of cells. Every cell covered by a placed
// item's footprint references that item, so any cell resolves to its item in
// O(1).
//
// A Container is not safe for concurrent use. Callers serialize access per
// container (and lock both containers of a cross-container move).
type Container struct {
	name    string
	purpose string
	bounds  Bounds
	cells   []*PlacedItem // index y*width + x
	count   int

	subs        []subscription
	nextSubID   int
	dispatching int
}

// Option configures container construction.
type Option func(*Container)

// WithPurpose tags the container with caller-owned metadata such as
// "pockets", "clothing" or "crate". The engine does not interpret it.
func WithPurpose(purpose string) Option {
	return func(c *Container) {
		c.purpose = purpose
	}
}

// WithHandler subscribes h at construction time.
func WithHandler(h Handler) Option {
	return func(c *Container) {
		c.Subscribe(h)
	}
}

// NewContainer creates an empty width x height container.
func NewContainer(name string, width, height int, opts ...Option) (*Container, error) {
	if width < 1 || height < 1 {
		return nil, errors.Wrapf(ErrInvalidSize, "container %q: %dx%d", name, width, height)
	}
	c := &Container{
		name:   name,
		bounds: Bounds{Width: width, Height: height},
		cells:  make([]*PlacedItem, width*height),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Name returns the container name.
func (c *Container) Name() string { return c.name }

// Purpose returns the caller-supplied purpose tag.
func (c *Container) Purpose() string { return c.purpose }

// Bounds returns the container rectangle, always anchored at the origin.
func (c *Container) Bounds() Bounds { return c.bounds }

// Width returns the number of columns.
func (c *Container) Width() int { return c.bounds.Width }

// Height returns the number of rows.
func (c *Container) Height() int { return c.bounds.Height }

// Len returns the number of distinct placed items.
func (c *Container) Len() int { return c.count }

// FreeCells returns the number of unoccupied cells.
func (c *Container) FreeCells() int {
	free := 0
	for _, it := range c.cells {
		if it == nil {
			free++
		}
	}
	return free
}

// ItemAt resolves the item covering p, whether p is its anchor or any other
// cell of its footprint.
func (c *Container) ItemAt(p Point) (*PlacedItem, bool) {
	if !c.bounds.ContainsPoint(p) {
		return nil, false
	}
	it := c.cells[c.index(p)]
	return it, it != nil
}

// Items yields each placed item exactly once, ordered row-major by anchor.
// Do not mutate the container while ranging over it.
func (c *Container) Items() iter.Seq[*PlacedItem] {
	return func(yield func(*PlacedItem) bool) {
		w := c.bounds.Width
		for i, it := range c.cells {
			if it == nil || it.bounds.X != i%w || it.bounds.Y != i/w {
				continue
			}
			if !yield(it) {
				return
			}
		}
	}
}

// ItemList collects Items into a slice.
func (c *Container) ItemList() []*PlacedItem {
	out := make([]*PlacedItem, 0, c.count)
	for it := range c.Items() {
		out = append(out, it)
	}
	return out
}

// Find returns the placed item holding inst, if any.
func (c *Container) Find(inst *ItemInstance) (*PlacedItem, bool) {
	for it := range c.Items() {
		if it.instance == inst {
			return it, true
		}
	}
	return nil, false
}

// IsValidPlacement reports whether candidate lies inside the container and
// overlaps no item other than ignore. ignore lets a move validate against
// the mover's own prior footprint.
func (c *Container) IsValidPlacement(candidate Bounds, ignore *PlacedItem) bool {
	return c.checkPlacement(candidate, ignore) == nil
}

// checkPlacement is IsValidPlacement with the reason attached.
func (c *Container) checkPlacement(candidate Bounds, ignore *PlacedItem) error {
	if !c.bounds.Contains(candidate) {
		return errors.Wrapf(ErrOutOfBounds, "container %q (%dx%d): %s",
			c.name, c.bounds.Width, c.bounds.Height, candidate)
	}
	for p := range candidate.Cells() {
		if other := c.cells[c.index(p)]; other != nil && other != ignore {
			return errors.Wrapf(ErrDestinationOccupied, "container %q: %s overlaps %s at %s",
				c.name, candidate, other.instance.Definition.ID, other.bounds)
		}
	}
	return nil
}

// TryAutoPlace puts inst at the first free spot. Anchors are scanned in
// row-major order and, at each anchor, Rotation0 is tried before
// Rotation90. Returns ErrInsufficientSpace when nothing fits.
func (c *Container) TryAutoPlace(inst *ItemInstance) (*PlacedItem, error) {
	c.assertIdle()
	if err := inst.validate(); err != nil {
		return nil, err
	}
	def := inst.Definition
	rotations := []Rotation{Rotation0, Rotation90}
	if def.Width == def.Height {
		rotations = rotations[:1]
	}
	for p := range c.bounds.Cells() {
		for _, rot := range rotations {
			b := def.BoundsAt(p, rot)
			if !c.IsValidPlacement(b, nil) {
				continue
			}
			return c.add(inst, b, rot), nil
		}
	}
	return nil, errors.Wrapf(ErrInsufficientSpace, "container %q: no room for %s (%dx%d)",
		c.name, def.ID, def.Width, def.Height)
}

// PlaceAt puts inst with its anchor at p. Fails with ErrOutOfBounds or
// ErrDestinationOccupied.
func (c *Container) PlaceAt(inst *ItemInstance, p Point, rot Rotation) (*PlacedItem, error) {
	c.assertIdle()
	if err := inst.validate(); err != nil {
		return nil, err
	}
	if !rot.Valid() {
		return nil, errors.Wrapf(ErrInvalidRotation, "%d", int(rot))
	}
	b := inst.Definition.BoundsAt(p, rot)
	if err := c.checkPlacement(b, nil); err != nil {
		return nil, err
	}
	return c.add(inst, b, rot), nil
}

// RemoveAt takes out the item covering p and returns it detached. Returns
// false when the cell is empty.
func (c *Container) RemoveAt(p Point) (*PlacedItem, bool) {
	c.assertIdle()
	it, ok := c.ItemAt(p)
	if !ok {
		return nil, false
	}
	c.clear(it)
	it.container = nil
	c.count--
	dispatch(Event{Type: EventRemoved, Item: it, From: c, OldPos: it.Anchor()}, c)
	return it, true
}

// MoveItem moves the item covering fromPos to anchor toPos in container to
// (which may be c itself). See the package-level MoveItem.
func (c *Container) MoveItem(fromPos Point, to *Container, toPos Point, rot Rotation) error {
	return MoveItem(c, fromPos, to, toPos, rot)
}

func (c *Container) add(inst *ItemInstance, b Bounds, rot Rotation) *PlacedItem {
	it := &PlacedItem{instance: inst, bounds: b, rotation: rot, container: c}
	c.fill(it)
	c.count++
	dispatch(Event{Type: EventAdded, Item: it, To: c, NewPos: b.Anchor()}, c)
	return it
}

// fill marks every cell of the item's footprint. The footprint must have been
// validated.
func (c *Container) fill(it *PlacedItem) {
	for p := range it.bounds.Cells() {
		c.cells[c.index(p)] = it
	}
}

func (c *Container) clear(it *PlacedItem) {
	for p := range it.bounds.Cells() {
		if i := c.index(p); c.cells[i] == it {
			c.cells[i] = nil
		}
	}
}

func (c *Container) index(p Point) int {
	return p.Y*c.bounds.Width + p.X
}

func (c *Container) assertIdle() {
	if c.dispatching > 0 {
		panic(errors.Wrapf(ErrReentrantMutation, "container %q", c.name))
	}
}
