package models

import (
	"strings"
	"time"

	"github.com/gravitas-games/gridstash/pkg/inventory"
)

// Permission flags carried in the JWT permissions claim.
const (
	// PermItemAdmin allows creating items from nothing (item_place).
	PermItemAdmin int64 = 1 << 4
	// PermCrateAccess allows opening world crates.
	PermCrateAccess int64 = 1 << 5
)

// Owner id prefixes.
const (
	PlayerOwnerPrefix = "player:"
	CrateOwnerPrefix  = "crate:"
)

// Player represents a connected player
type Player struct {
	// From JWT claims
	ID          string `json:"id"`          // Converted from int64 user_id
	Username    string `json:"username"`    // JWT claim
	Email       string `json:"email"`       // JWT claim
	UserType    string `json:"user_type"`   // JWT claim (deprecated, use permissions)
	Permissions int64  `json:"permissions"` // JWT claim: bitwise permission flags
	Activated   int64  `json:"activated"`   // JWT claim: activation timestamp or ban status
	AuthMethod  string `json:"auth_method"` // JWT claim: "password" or "oauth"

	// Connection state
	Connected   bool      `json:"connected"`
	ConnectedAt time.Time `json:"connected_at"`
	LastSeen    time.Time `json:"last_seen"`

	// Session state
	SessionID string `json:"session_id"`
}

// IsActive checks if the player account is activated and not banned
func (p *Player) IsActive() bool {
	// activated > 0 means activated
	// activated == 0 means not activated
	// activated == -1 means banned
	return p.Activated > 0
}

// IsBanned checks if the player is banned
func (p *Player) IsBanned() bool {
	return p.Activated == -1
}

// IsConnected checks if the player is currently connected
func (p *Player) IsConnected() bool {
	return p.Connected
}

// HasPermission reports whether every bit of flag is granted.
func (p *Player) HasPermission(flag int64) bool {
	return p.Permissions&flag == flag
}

// Owner is the inventory owner id of the player's own containers.
func (p *Player) Owner() inventory.OwnerID {
	return inventory.OwnerID(PlayerOwnerPrefix + p.ID)
}

// CanAccess reports whether the player may read or move items of owner:
// its own inventory, or any crate when it holds PermCrateAccess.
func (p *Player) CanAccess(owner inventory.OwnerID) bool {
	if owner == p.Owner() {
		return true
	}
	return IsCrate(owner) && p.HasPermission(PermCrateAccess)
}

// IsCrate reports whether owner names a world crate.
func IsCrate(owner inventory.OwnerID) bool {
	return strings.HasPrefix(string(owner), CrateOwnerPrefix) && len(owner) > len(CrateOwnerPrefix)
}
