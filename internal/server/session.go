package server

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gravitas-games/gridstash/internal/network"
	"github.com/gravitas-games/gridstash/pkg/inventory"
	"github.com/gravitas-games/gridstash/pkg/models"
)

// Session tracks joined players and which connections watch which
// inventory owners.
type Session struct {
	ID        string
	CreatedAt time.Time

	players     map[string]*models.Player // playerID -> Player
	connections map[string]*Connection    // playerID -> Connection
	watchers    map[inventory.OwnerID]map[*Connection]struct{}
	mu          sync.RWMutex

	maxPlayers int
	logger     *zap.Logger
}

// NewSession creates a new session
func NewSession(id string, maxPlayers int, logger *zap.Logger) *Session {
	return &Session{
		ID:          id,
		CreatedAt:   time.Now(),
		players:     make(map[string]*models.Player),
		connections: make(map[string]*Connection),
		watchers:    make(map[inventory.OwnerID]map[*Connection]struct{}),
		maxPlayers:  maxPlayers,
		logger:      logger.Named("session"),
	}
}

// AddPlayer adds a player to the session. It reports false when the
// session is full or the player is already joined on another connection.
func (s *Session) AddPlayer(player *models.Player, conn *Connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.players[player.ID]; exists {
		return false
	}
	if s.maxPlayers > 0 && len(s.players) >= s.maxPlayers {
		return false
	}
	s.players[player.ID] = player
	s.connections[player.ID] = conn

	s.logger.Info("player joined",
		zap.String("player_id", player.ID),
		zap.String("username", player.Username),
		zap.Int("players", len(s.players)))
	return true
}

// RemovePlayer removes a player and every watch held by its connection
func (s *Session) RemovePlayer(playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, exists := s.connections[playerID]
	if !exists {
		return
	}
	delete(s.players, playerID)
	delete(s.connections, playerID)
	for owner, set := range s.watchers {
		delete(set, conn)
		if len(set) == 0 {
			delete(s.watchers, owner)
		}
	}
	s.logger.Info("player left", zap.String("player_id", playerID), zap.Int("players", len(s.players)))
}

// GetPlayer retrieves a player by ID
func (s *Session) GetPlayer(playerID string) (*models.Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	player, exists := s.players[playerID]
	return player, exists
}

// PlayerCount returns the number of joined players
func (s *Session) PlayerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players)
}

// Watch subscribes conn to change notifications of owner
func (s *Session) Watch(owner inventory.OwnerID, conn *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.watchers[owner]
	if !ok {
		set = make(map[*Connection]struct{})
		s.watchers[owner] = set
	}
	set[conn] = struct{}{}
}

// Watchers returns the number of connections watching owner
func (s *Session) Watchers(owner inventory.OwnerID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.watchers[owner])
}

// Notify sends msg to every connection watching any of owners, once per
// connection.
func (s *Session) Notify(msg *network.ServerMessage, owners ...inventory.OwnerID) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sent := make(map[*Connection]bool)
	for _, owner := range owners {
		for conn := range s.watchers[owner] {
			if !sent[conn] {
				sent[conn] = true
				conn.SendMessage(msg)
			}
		}
	}
}

// Status returns the current session status
func (s *Session) Status(openOwners int) network.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return network.SessionStatus{
		State:       "running",
		PlayerCount: len(s.players),
		MaxPlayers:  s.maxPlayers,
		OpenOwners:  openOwners,
		Uptime:      int64(time.Since(s.CreatedAt).Seconds()),
	}
}
