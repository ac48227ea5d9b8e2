package inventory

import "github.com/cockroachdb/errors"

// MoveItem moves the item covering fromPos in from so that its anchor lands
// on toPos in to, with rotation rot. from and to may be the same container.
//
// Every check runs before any mutation: a failed move leaves both
// containers untouched. On success the PlacedItem and its ItemInstance keep
// their identity; only bounds, rotation and owning container change.
//
// Failures: ErrNothingToMove (fromPos is empty), ErrNoOp (same container,
// anchor and rotation), ErrInvalidRotation, ErrOutOfBounds and
// ErrDestinationOccupied. Swapping with the occupant is not supported.
func MoveItem(from *Container, fromPos Point, to *Container, toPos Point, rot Rotation) error {
	if from == nil || to == nil {
		return errors.Wrap(ErrNotFound, "move: nil container")
	}
	from.assertIdle()
	to.assertIdle()

	it, ok := from.ItemAt(fromPos)
	if !ok {
		return errors.Wrapf(ErrNothingToMove, "container %q: cell %s is empty", from.name, fromPos)
	}
	oldPos := it.Anchor()
	if from == to && toPos == oldPos && rot == it.rotation {
		return errors.Wrapf(ErrNoOp, "container %q: %s already at %s %s", from.name, it.instance.Definition.ID, toPos, rot)
	}
	if !rot.Valid() {
		return errors.Wrapf(ErrInvalidRotation, "%d", int(rot))
	}
	newBounds := it.instance.Definition.BoundsAt(toPos, rot)
	if err := to.checkPlacement(newBounds, it); err != nil {
		return err
	}

	// commit
	from.clear(it)
	it.bounds = newBounds
	it.rotation = rot
	it.container = to
	to.fill(it)
	if from != to {
		from.count--
		to.count++
	}

	ev := Event{Type: EventMoved, Item: it, From: from, To: to, OldPos: oldPos, NewPos: toPos}
	if from == to {
		dispatch(ev, from)
	} else {
		dispatch(ev, from, to)
	}
	return nil
}
