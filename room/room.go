package room

import (
	"errors"
	"sync"
	"time"

	"github.com/wfunc/tictacserver/game"
	"github.com/wfunc/tictacserver/logger"
	"github.com/wfunc/tictacserver/session"
)

var (
	ErrInvalidJoin = errors.New("room id and player name are required")
)

// Role is the outcome of a join.
type Role int

const (
	Rejected Role = iota
	Creator
	Joiner
)

func (r Role) String() string {
	switch r {
	case Creator:
		return "creator"
	case Joiner:
		return "joiner"
	default:
		return "rejected"
	}
}

// Room 一个房间：一局对局加上订阅该房间广播的连接
type Room struct {
	ID        string
	Game      *game.Session
	CreatedAt time.Time

	subscribers map[string]*session.Session // sessionID -> session
	detached    bool
	lastActive  time.Time
	mutex       sync.RWMutex
}

// NewRoom creates a room whose session has firstName as the X player.
func NewRoom(id, firstName, firstToken string, opts ...game.Option) *Room {
	now := time.Now()
	return &Room{
		ID:          id,
		Game:        game.NewSession(id, firstName, firstToken, opts...),
		CreatedAt:   now,
		subscribers: make(map[string]*session.Session),
		lastActive:  now,
	}
}

// Subscribe adds s to the room's broadcast group. It reports false once the
// room has been detached.
func (r *Room) Subscribe(s *session.Session) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.detached {
		return false
	}
	r.subscribers[s.ID] = s
	return true
}

// Unsubscribe 从广播组移除
func (r *Room) Unsubscribe(sessionID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.subscribers, sessionID)
}

// IsSubscribed reports whether sessionID receives room broadcasts.
func (r *Room) IsSubscribed(sessionID string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	_, ok := r.subscribers[sessionID]
	return ok
}

// GetSessions returns a slice of all subscribed sessions (thread-safe).
func (r *Room) GetSessions() []*session.Session {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	sessions := make([]*session.Session, 0, len(r.subscribers))
	for _, s := range r.subscribers {
		sessions = append(sessions, s)
	}
	return sessions
}

// Detach empties the broadcast group and returns the former subscribers.
// Only the first call returns them.
func (r *Room) Detach() []*session.Session {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.detached {
		return nil
	}
	r.detached = true
	sessions := make([]*session.Session, 0, len(r.subscribers))
	for _, s := range r.subscribers {
		sessions = append(sessions, s)
	}
	r.subscribers = make(map[string]*session.Session)
	return sessions
}

// Touch 记录房间活动时间
func (r *Room) Touch() {
	r.mutex.Lock()
	r.lastActive = time.Now()
	r.mutex.Unlock()
}

// IdleFor returns how long the room has been inactive at now.
func (r *Room) IdleFor(now time.Time) time.Duration {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return now.Sub(r.lastActive)
}

// JoinResult describes what a join did.
type JoinResult struct {
	Role Role
	Room *Room
	// Slot is the slot assigned to the joining player; zero when rejected.
	Slot game.PlayerSlot
	// Reason is set when Role is Rejected.
	Reason error
}

// Manager is the room registry: at most one room per id, created on first
// join and removed only on termination.
type Manager struct {
	rooms       map[string]*Room
	mutex       sync.RWMutex
	sessionOpts []game.Option
}

// NewRoomManager 创建房间注册表，opts 应用到每个新对局
func NewRoomManager(opts ...game.Option) *Manager {
	return &Manager{
		rooms:       make(map[string]*Room),
		sessionOpts: opts,
	}
}

// Join resolves or creates the room and assigns a player slot. A room that
// already has two players rejects the join whatever the name.
func (m *Manager) Join(roomID, playerName, token string) (JoinResult, error) {
	if roomID == "" || playerName == "" {
		return JoinResult{}, ErrInvalidJoin
	}

	// A room terminated between lookup and assignment is gone from the map,
	// so the retry creates a fresh one.
	for attempt := 0; attempt < 3; attempt++ {
		room, created := m.getOrCreate(roomID, playerName, token)
		if created {
			logger.Log.Infow("room created", "room_id", roomID, "player", playerName)
			first, _ := room.Game.Players()
			return JoinResult{Role: Creator, Room: room, Slot: first}, nil
		}

		slot, err := room.Game.AssignSecondPlayer(playerName, token)
		switch {
		case err == nil:
			logger.Log.Infow("player joined room", "room_id", roomID, "player", playerName)
			return JoinResult{Role: Joiner, Room: room, Slot: slot}, nil
		case errors.Is(err, game.ErrSessionClosed):
			m.Remove(roomID, room)
			continue
		default:
			return JoinResult{Role: Rejected, Room: room, Reason: err}, nil
		}
	}
	return JoinResult{}, game.ErrSessionClosed
}

// getOrCreate is the compare-and-create step.
func (m *Manager) getOrCreate(roomID, playerName, token string) (*Room, bool) {
	m.mutex.RLock()
	room, exists := m.rooms[roomID]
	m.mutex.RUnlock()
	if exists {
		return room, false
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if room, exists := m.rooms[roomID]; exists {
		return room, false
	}
	room = NewRoom(roomID, playerName, token, m.sessionOpts...)
	m.rooms[roomID] = room
	return room, true
}

// GetRoom 从管理器中获取一个房间
func (m *Manager) GetRoom(id string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, exists := m.rooms[id]
	return room, exists
}

// Remove deletes the room if the registry still maps id to room, then closes
// its session. It reports whether this call removed the entry.
func (m *Manager) Remove(id string, room *Room) bool {
	m.mutex.Lock()
	current, exists := m.rooms[id]
	if !exists || current != room {
		m.mutex.Unlock()
		return false
	}
	delete(m.rooms, id)
	m.mutex.Unlock()

	room.Game.Close()
	logger.Log.Infow("room removed", "room_id", id)
	return true
}

// Count returns the number of live rooms.
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// Idle returns rooms inactive for at least timeout.
func (m *Manager) Idle(timeout time.Duration) []*Room {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	now := time.Now()
	var idle []*Room
	for _, room := range m.rooms {
		if room.IdleFor(now) >= timeout {
			idle = append(idle, room)
		}
	}
	return idle
}
