package inventory

// EventType represents the kind of container change.
type EventType int

const (
	// EventAdded is emitted when an item is placed into a container.
	EventAdded EventType = iota
	// EventRemoved is emitted when an item leaves a container without a destination.
	EventRemoved
	// EventMoved is emitted when an item changes position, rotation or container.
	EventMoved
)

// String returns a human-readable representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventAdded:
		return "Added"
	case EventRemoved:
		return "Removed"
	case EventMoved:
		return "Moved"
	default:
		return "Unknown"
	}
}

// Event describes a committed change. From is nil for EventAdded and To is
// nil for EventRemoved. OldPos and NewPos are anchors.
type Event struct {
	Type   EventType
	Item   *PlacedItem
	From   *Container
	To     *Container
	OldPos Point
	NewPos Point
}

// Handler receives events synchronously, after the mutation and before the
// mutating call returns. Handlers must not mutate the emitting containers.
type Handler func(Event)

type subscription struct {
	id      int
	handler Handler
}

// Subscribe registers h and returns a function that removes it.
func (c *Container) Subscribe(h Handler) (unsubscribe func()) {
	if h == nil {
		return func() {}
	}
	c.nextSubID++
	id := c.nextSubID
	c.subs = append(c.subs, subscription{id: id, handler: h})
	return func() {
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

// dispatch delivers ev to the subscribers of every listed container while
// all of them refuse mutation.
func dispatch(ev Event, containers ...*Container) {
	for _, c := range containers {
		c.dispatching++
	}
	defer func() {
		for _, c := range containers {
			c.dispatching--
		}
	}()
	for _, c := range containers {
		// copy so a handler may unsubscribe while we iterate
		subs := append([]subscription(nil), c.subs...)
		for _, s := range subs {
			s.handler(ev)
		}
	}
}
