package inventory

import "github.com/cockroachdb/errors"

// Expected outcomes of caller input. Operations wrap these with context, so
// match them with errors.Is. A failed operation never changes container state.
var (
	ErrInsufficientSpace     = errors.New("inventory: insufficient space")
	ErrNothingToMove         = errors.New("inventory: nothing to move")
	ErrNoOp                  = errors.New("inventory: move changes nothing")
	ErrDestinationOccupied   = errors.New("inventory: destination occupied")
	ErrOutOfBounds           = errors.New("inventory: out of bounds")
	ErrDuplicateName         = errors.New("inventory: duplicate container name")
	ErrNotFound              = errors.New("inventory: container not found")
	ErrUnknownItemDefinition = errors.New("inventory: unknown item definition")
	ErrCorruptPlacement      = errors.New("inventory: corrupt placement")

	ErrInvalidSize       = errors.New("inventory: invalid size")
	ErrInvalidRotation   = errors.New("inventory: invalid rotation")
	ErrInvalidDefinition = errors.New("inventory: invalid item definition")
	ErrNilInstance       = errors.New("inventory: nil item instance")

	// ErrReentrantMutation is the panic value raised when an event handler
	// mutates a container whose events are being dispatched.
	ErrReentrantMutation = errors.New("inventory: container mutated from its own event handler")
)
