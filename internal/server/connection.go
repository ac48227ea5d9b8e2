package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gravitas-games/gridstash/internal/authority"
	"github.com/gravitas-games/gridstash/internal/network"
	"github.com/gravitas-games/gridstash/pkg/inventory"
	"github.com/gravitas-games/gridstash/pkg/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// Time allowed to save an inventory when its player leaves
	saveTimeout = 10 * time.Second
)

// Connection represents a WebSocket connection to a client
type Connection struct {
	ws     *websocket.Conn
	server *Server
	logger *zap.Logger

	// Player information (set after authentication)
	player *models.Player
	joined bool

	// Buffered channel for outbound messages
	send      chan []byte
	sendMu    sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewConnection creates a new connection for an authenticated player
func NewConnection(ws *websocket.Conn, server *Server, player *models.Player) *Connection {
	return &Connection{
		ws:     ws,
		server: server,
		player: player,
		logger: server.logger.With(zap.String("player_id", player.ID)),
		send:   make(chan []byte, 256),
	}
}

// Handle manages the connection lifecycle
func (c *Connection) Handle() {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.writePump()
	c.readPump() // Blocking
}

// readPump pumps messages from the WebSocket connection to the server
func (c *Connection) readPump() {
	defer c.Close()

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", zap.Error(err))
			}
			break
		}

		var clientMsg network.ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			c.SendError("invalid_message", "Failed to parse message")
			continue
		}

		c.handleMessage(&clientMsg)
	}
}

// writePump pumps messages from the send channel to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn("websocket write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.server.ctx.Done():
			return
		}
	}
}

// handleMessage routes messages to appropriate handlers
func (c *Connection) handleMessage(msg *network.ClientMessage) {
	c.logger.Debug("message received", zap.String("type", msg.Type))

	switch msg.Type {
	case network.MsgTypeJoin:
		c.handleJoin()
	case network.MsgTypeLeave:
		c.handleLeave()
	case network.MsgTypePing:
		c.handlePing()
	case network.MsgTypeInventoryGet:
		c.handleInventoryGet(msg.Payload)
	case network.MsgTypeItemMove:
		c.handleItemMove(msg.Payload)
	case network.MsgTypeItemPlace:
		c.handleItemPlace(msg.Payload)
	case network.MsgTypeItemRemove:
		c.handleItemRemove(msg.Payload)
	default:
		c.SendError("unknown_message_type", "Unknown message type")
	}
}

// handleJoin joins the session and loads the player's inventory
func (c *Connection) handleJoin() {
	if c.joined {
		c.SendError("already_joined", "Already joined")
		return
	}
	if !c.server.session.AddPlayer(c.player, c) {
		c.SendError("join_failed", "Session full or player already connected")
		return
	}

	owner := c.player.Owner()
	if err := c.server.inventory.OpenOwner(c.server.ctx, owner, c.server.config.Inventory.Player); err != nil {
		c.logger.Error("failed to open inventory", zap.Error(err))
		c.server.session.RemovePlayer(c.player.ID)
		c.SendError("join_failed", "Failed to load inventory")
		return
	}
	c.joined = true
	c.player.Connected = true
	c.player.ConnectedAt = time.Now()
	c.player.SessionID = c.server.session.ID
	c.server.session.Watch(owner, c)

	c.SendMessage(&network.ServerMessage{
		Type: network.MsgTypeWelcome,
		Payload: network.WelcomePayload{
			PlayerID:      c.player.ID,
			Username:      c.player.Username,
			SessionID:     c.server.session.ID,
			Owner:         owner,
			Authoritative: c.server.inventory.IsAuthority(),
			SessionStatus: c.server.session.Status(len(c.server.inventory.Owners())),
		},
	})
	c.sendState(owner)
}

// handleLeave leaves the session and unloads the player's inventory
func (c *Connection) handleLeave() {
	if !c.joined {
		return
	}
	c.joined = false
	c.player.Connected = false
	c.player.LastSeen = time.Now()
	c.server.session.RemovePlayer(c.player.ID)

	// the server context may already be cancelled during shutdown
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := c.server.inventory.CloseOwner(ctx, c.player.Owner()); err != nil {
		c.logger.Error("failed to save inventory on leave", zap.Error(err))
	}
}

// handlePing handles ping requests
func (c *Connection) handlePing() {
	c.SendMessage(&network.ServerMessage{
		Type:    network.MsgTypePong,
		Payload: map[string]interface{}{"timestamp": time.Now().Unix()},
	})
}

func (c *Connection) handleInventoryGet(payload json.RawMessage) {
	var req network.InventoryGetPayload
	if !c.decode(payload, &req) {
		return
	}
	owner := c.ownerOrSelf(req.Owner)
	if !c.authorize(owner) {
		return
	}
	if models.IsCrate(owner) {
		if err := c.server.inventory.OpenOwner(c.server.ctx, owner, c.server.config.Inventory.Crate); err != nil {
			c.logger.Error("failed to open crate", zap.String("owner", string(owner)), zap.Error(err))
			c.SendError(string(authority.CodeInternal), "Failed to open crate")
			return
		}
	}
	c.server.session.Watch(owner, c)
	c.sendState(owner)
}

func (c *Connection) handleItemMove(payload json.RawMessage) {
	var req network.ItemMovePayload
	if !c.decode(payload, &req) {
		return
	}
	req.FromOwner = c.ownerOrSelf(req.FromOwner)
	if req.ToOwner == "" {
		req.ToOwner = req.FromOwner
	}
	if !c.authorize(req.FromOwner) || !c.authorize(req.ToOwner) {
		return
	}

	resp := c.server.inventory.HandleMove(c.server.ctx, req)
	c.SendMessage(&network.ServerMessage{Type: network.MsgTypeMoveResult, Payload: resp})
	if resp.OK {
		c.server.session.Notify(&network.ServerMessage{
			Type:    network.MsgTypeItemMoved,
			Payload: network.ItemChangedPayload{RequestID: resp.RequestID, Item: resp.Placement, From: resp.From},
		}, req.FromOwner, req.ToOwner)
	}
}

func (c *Connection) handleItemPlace(payload json.RawMessage) {
	var req network.ItemPlacePayload
	if !c.decode(payload, &req) {
		return
	}
	if !c.player.HasPermission(models.PermItemAdmin) {
		c.SendError("forbidden", "Placing new items requires item admin permission")
		return
	}
	req.Owner = c.ownerOrSelf(req.Owner)
	if !c.authorize(req.Owner) {
		return
	}

	resp := c.server.inventory.HandlePlace(c.server.ctx, req)
	c.SendMessage(&network.ServerMessage{Type: network.MsgTypePlaceResult, Payload: resp})
	if resp.OK {
		c.server.session.Notify(&network.ServerMessage{
			Type:    network.MsgTypeItemPlaced,
			Payload: network.ItemChangedPayload{RequestID: resp.RequestID, Item: resp.Placement},
		}, req.Owner)
	}
}

func (c *Connection) handleItemRemove(payload json.RawMessage) {
	var req network.ItemRemovePayload
	if !c.decode(payload, &req) {
		return
	}
	req.Owner = c.ownerOrSelf(req.Owner)
	if !c.authorize(req.Owner) {
		return
	}

	resp := c.server.inventory.HandleRemove(c.server.ctx, req)
	c.SendMessage(&network.ServerMessage{Type: network.MsgTypeRemoveResult, Payload: resp})
	if resp.OK {
		c.server.session.Notify(&network.ServerMessage{
			Type:    network.MsgTypeItemRemoved,
			Payload: network.ItemChangedPayload{RequestID: resp.RequestID, Item: resp.Placement},
		}, req.Owner)
	}
}

func (c *Connection) sendState(owner inventory.OwnerID) {
	containers, err := c.server.inventory.State(owner)
	if err != nil {
		c.SendError(string(authority.CodeOf(err)), err.Error())
		return
	}
	c.SendMessage(&network.ServerMessage{
		Type:    network.MsgTypeInventoryState,
		Payload: network.InventoryStatePayload{Owner: owner, Containers: containers},
	})
}

// decode parses payload into v; it reports false (after answering the
// client) when the connection has not joined or the payload is malformed.
func (c *Connection) decode(payload json.RawMessage, v any) bool {
	if !c.joined {
		c.SendError("not_joined", "Join the session first")
		return false
	}
	if len(payload) == 0 {
		return true
	}
	if err := json.Unmarshal(payload, v); err != nil {
		c.SendError("invalid_payload", "Invalid payload")
		return false
	}
	return true
}

func (c *Connection) ownerOrSelf(owner inventory.OwnerID) inventory.OwnerID {
	if owner == "" {
		return c.player.Owner()
	}
	return owner
}

func (c *Connection) authorize(owner inventory.OwnerID) bool {
	if c.player.CanAccess(owner) {
		return true
	}
	c.logger.Warn("inventory access denied", zap.String("owner", string(owner)))
	c.SendError("forbidden", "No access to "+string(owner))
	return false
}

// SendMessage queues a message for the client; it is dropped when the
// connection is closed or its buffer is full.
func (c *Connection) SendMessage(msg *network.ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal message", zap.String("type", msg.Type), zap.Error(err))
		return
	}

	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("send buffer full, dropping message", zap.String("type", msg.Type))
	}
}

// SendError sends an error message to the client
func (c *Connection) SendError(code, message string) {
	c.SendMessage(&network.ServerMessage{
		Type: network.MsgTypeError,
		Payload: network.ErrorPayload{
			Code:    code,
			Message: message,
		},
	})
}

// Close leaves the session and closes the connection. Safe to call more
// than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.handleLeave()

		c.sendMu.Lock()
		c.closed = true
		close(c.send)
		c.sendMu.Unlock()

		c.ws.Close()
	})
}
