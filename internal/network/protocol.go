package network

import (
	"encoding/json"

	"github.com/gravitas-games/gridstash/internal/authority"
	"github.com/gravitas-games/gridstash/pkg/inventory"
)

// Message types - Client → Server
const (
	MsgTypeJoin         = "join"
	MsgTypeLeave        = "leave"
	MsgTypePing         = "ping"
	MsgTypeInventoryGet = "inventory_get"
	MsgTypeItemMove     = "item_move"
	MsgTypeItemPlace    = "item_place"
	MsgTypeItemRemove   = "item_remove"
)

// Message types - Server → Client
const (
	MsgTypeWelcome        = "welcome"
	MsgTypeInventoryState = "inventory_state"
	MsgTypeItemMoved      = "item_moved"
	MsgTypeItemPlaced     = "item_placed"
	MsgTypeItemRemoved    = "item_removed"
	MsgTypeMoveResult     = "move_result"
	MsgTypePlaceResult    = "place_result"
	MsgTypeRemoveResult   = "remove_result"
	MsgTypeError          = "error"
	MsgTypePong           = "pong"
)

// ClientMessage represents any message from client to server
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ServerMessage represents any message from server to client
type ServerMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// --- Client Message Payloads ---

// InventoryGetPayload asks for the containers of an owner. An empty owner
// means the caller's own inventory.
type InventoryGetPayload struct {
	Owner inventory.OwnerID `json:"owner,omitempty"`
}

// ItemMovePayload is authority.MoveRequest on the wire.
type ItemMovePayload = authority.MoveRequest

// ItemPlacePayload is authority.PlaceRequest on the wire.
type ItemPlacePayload = authority.PlaceRequest

// ItemRemovePayload is authority.RemoveRequest on the wire.
type ItemRemovePayload = authority.RemoveRequest

// --- Server Message Payloads ---

// WelcomePayload is sent to client after a successful join
type WelcomePayload struct {
	PlayerID      string            `json:"player_id"`
	Username      string            `json:"username"`
	SessionID     string            `json:"session_id"`
	Owner         inventory.OwnerID `json:"owner"`
	Authoritative bool              `json:"authoritative"`
	SessionStatus SessionStatus     `json:"session_status"`
}

// InventoryStatePayload carries full container snapshots of one owner
type InventoryStatePayload struct {
	Owner      inventory.OwnerID    `json:"owner"`
	Containers []inventory.Snapshot `json:"containers"`
}

// ItemChangedPayload notifies watchers of an owner that an item was moved,
// placed or removed by someone. From is set for moves only.
type ItemChangedPayload struct {
	RequestID string               `json:"request_id"`
	Item      *authority.Placement `json:"item"`
	From      *authority.Placement `json:"from,omitempty"`
}

// SessionStatus represents the current session state
type SessionStatus struct {
	State       string `json:"state"`
	PlayerCount int    `json:"player_count"`
	MaxPlayers  int    `json:"max_players"`
	OpenOwners  int    `json:"open_owners"`
	Uptime      int64  `json:"uptime"`
}

// ErrorPayload contains error information
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
