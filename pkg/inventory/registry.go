package inventory

import "github.com/cockroachdb/errors"

// OwnerID represents an application-defined owner identifier: a player
// session, an equipped clothing piece, a loot crate.
type OwnerID string

// ContainerRegistry is the set of named containers belonging to one owner.
// Like Container it is not safe for concurrent use.
type ContainerRegistry struct {
	owner  OwnerID
	order  []string
	byName map[string]*Container
}

// NewContainerRegistry constructs an empty registry for owner.
func NewContainerRegistry(owner OwnerID) *ContainerRegistry {
	return &ContainerRegistry{
		owner:  owner,
		byName: make(map[string]*Container),
	}
}

// Owner returns the owning entity.
func (r *ContainerRegistry) Owner() OwnerID { return r.owner }

// Add creates and registers a new container.
func (r *ContainerRegistry) Add(name string, width, height int, opts ...Option) (*Container, error) {
	if _, exists := r.byName[name]; exists {
		return nil, errors.Wrapf(ErrDuplicateName, "owner %s: %q", r.owner, name)
	}
	c, err := NewContainer(name, width, height, opts...)
	if err != nil {
		return nil, err
	}
	r.insert(c)
	return c, nil
}

// Attach registers an existing container, typically one restored from a
// snapshot.
func (r *ContainerRegistry) Attach(c *Container) error {
	if c == nil {
		return errors.Wrap(ErrNotFound, "attach: nil container")
	}
	if _, exists := r.byName[c.name]; exists {
		return errors.Wrapf(ErrDuplicateName, "owner %s: %q", r.owner, c.name)
	}
	r.insert(c)
	return nil
}

// Remove detaches the named container and returns its items, each removed
// with an EventRemoved. What happens to them next (drop in the world, merge
// into another container, reject) is the caller's decision.
func (r *ContainerRegistry) Remove(name string) ([]*PlacedItem, error) {
	c, ok := r.byName[name]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "owner %s: %q", r.owner, name)
	}
	c.assertIdle()
	items := c.ItemList()
	for _, it := range items {
		c.RemoveAt(it.Anchor())
	}
	delete(r.byName, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return items, nil
}

// Get returns the named container.
func (r *ContainerRegistry) Get(name string) (*Container, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// Names returns container names in registration order.
func (r *ContainerRegistry) Names() []string {
	return append([]string(nil), r.order...)
}

// Containers returns containers in registration order.
func (r *ContainerRegistry) Containers() []*Container {
	out := make([]*Container, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.byName[n])
	}
	return out
}

// Len returns the number of registered containers.
func (r *ContainerRegistry) Len() int { return len(r.order) }

func (r *ContainerRegistry) insert(c *Container) {
	r.byName[c.name] = c
	r.order = append(r.order, c.name)
}
