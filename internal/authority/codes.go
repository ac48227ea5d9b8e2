package authority

import (
	"github.com/cockroachdb/errors"

	"github.com/gravitas-games/gridstash/pkg/inventory"
)

var (
	// ErrNotAuthority is returned by mutating calls on a node that only
	// mirrors inventories.
	ErrNotAuthority = errors.New("authority: node is not authoritative")
	// ErrOwnerNotOpen is returned when the owner's containers are not loaded.
	ErrOwnerNotOpen = errors.New("authority: owner not open")
)

// Code is the stable wire form of an operation result.
type Code string

const (
	CodeOK                    Code = "ok"
	CodeInsufficientSpace     Code = "insufficient_space"
	CodeNothingToMove         Code = "nothing_to_move"
	CodeNoOp                  Code = "no_op"
	CodeDestinationOccupied   Code = "destination_occupied"
	CodeOutOfBounds           Code = "out_of_bounds"
	CodeInvalidRotation       Code = "invalid_rotation"
	CodeDuplicateName         Code = "duplicate_name"
	CodeNotFound              Code = "not_found"
	CodeUnknownItemDefinition Code = "unknown_item_definition"
	CodeInvalidSize           Code = "invalid_size"
	CodeNotAuthority          Code = "not_authority"
	CodeOwnerNotOpen          Code = "owner_not_open"
	CodeInternal              Code = "internal"
)

var codeTable = []struct {
	target error
	code   Code
}{
	{inventory.ErrInsufficientSpace, CodeInsufficientSpace},
	{inventory.ErrNothingToMove, CodeNothingToMove},
	{inventory.ErrNoOp, CodeNoOp},
	{inventory.ErrDestinationOccupied, CodeDestinationOccupied},
	{inventory.ErrOutOfBounds, CodeOutOfBounds},
	{inventory.ErrInvalidRotation, CodeInvalidRotation},
	{inventory.ErrDuplicateName, CodeDuplicateName},
	{inventory.ErrNotFound, CodeNotFound},
	{inventory.ErrUnknownItemDefinition, CodeUnknownItemDefinition},
	{inventory.ErrInvalidSize, CodeInvalidSize},
	{ErrNotAuthority, CodeNotAuthority},
	{ErrOwnerNotOpen, CodeOwnerNotOpen},
}

// CodeOf maps an operation error to its wire code.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	for _, e := range codeTable {
		if errors.Is(err, e.target) {
			return e.code
		}
	}
	return CodeInternal
}
