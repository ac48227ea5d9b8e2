package authority

import "github.com/gravitas-games/gridstash/pkg/inventory"

// MoveRequest asks the authority to move the item covering (FromX, FromY).
// An empty ToOwner means the same owner.
type MoveRequest struct {
	RequestID     string             `json:"requestId,omitempty"`
	FromOwner     inventory.OwnerID  `json:"fromOwner"`
	FromContainer string             `json:"fromContainer"`
	FromX         int                `json:"fromX"`
	FromY         int                `json:"fromY"`
	ToOwner       inventory.OwnerID  `json:"toOwner,omitempty"`
	ToContainer   string             `json:"toContainer"`
	ToX           int                `json:"toX"`
	ToY           int                `json:"toY"`
	Rotation      inventory.Rotation `json:"rotation"`
}

// PlaceRequest creates a new item instance in an owner's containers. With
// Auto set the position is ignored and the first free spot is used; an empty
// Container then searches every container in registration order.
type PlaceRequest struct {
	RequestID    string                 `json:"requestId,omitempty"`
	Owner        inventory.OwnerID      `json:"owner"`
	Container    string                 `json:"container,omitempty"`
	DefinitionID inventory.DefinitionID `json:"definitionId"`
	Auto         bool                   `json:"auto,omitempty"`
	X            int                    `json:"x"`
	Y            int                    `json:"y"`
	Rotation     inventory.Rotation     `json:"rotation"`
	Metadata     map[string]any         `json:"metadata,omitempty"`
}

// RemoveRequest takes out the item covering (X, Y).
type RemoveRequest struct {
	RequestID string            `json:"requestId,omitempty"`
	Owner     inventory.OwnerID `json:"owner"`
	Container string            `json:"container"`
	X         int               `json:"x"`
	Y         int               `json:"y"`
}

// Placement describes where an item ended up (or, for a removal, where it
// was).
type Placement struct {
	Owner        inventory.OwnerID      `json:"owner"`
	Container    string                 `json:"container"`
	InstanceID   string                 `json:"instanceId"`
	DefinitionID inventory.DefinitionID `json:"definitionId"`
	X            int                    `json:"x"`
	Y            int                    `json:"y"`
	Width        int                    `json:"width"`
	Height       int                    `json:"height"`
	Rotation     inventory.Rotation     `json:"rotation"`
}

// Response answers every request. Code is CodeOK exactly when OK is true.
type Response struct {
	RequestID string     `json:"requestId"`
	OK        bool       `json:"ok"`
	Code      Code       `json:"code"`
	Message   string     `json:"message,omitempty"`
	Placement *Placement `json:"placement,omitempty"`
	// From is set on a successful move: the item's previous placement.
	From *Placement `json:"from,omitempty"`
}

func placementOf(owner inventory.OwnerID, container string, it *inventory.PlacedItem) *Placement {
	b := it.Bounds()
	return &Placement{
		Owner:        owner,
		Container:    container,
		InstanceID:   it.Instance().ID.String(),
		DefinitionID: it.Definition().ID,
		X:            b.X,
		Y:            b.Y,
		Width:        b.Width,
		Height:       b.Height,
		Rotation:     it.Rotation(),
	}
}
