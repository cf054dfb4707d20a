package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/tictacserver/network"
)

// Session is one client connection. Its ID is the opaque token a player slot
// is bound to on join; the connection never has to repeat its identity.
type Session struct {
	ID         string
	Conn       network.Connection
	CreatedAt  time.Time
	lastActive time.Time
	roomID     string
	playerName string
	watching   map[string]struct{}
	mutex      sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		lastActive: now,
	}
}

// NewToken 生成新的会话令牌
func NewToken() string {
	return uuid.NewString()
}

// Bind records that the connection plays as playerName in roomID.
func (s *Session) Bind(roomID, playerName string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.roomID = roomID
	s.playerName = playerName
}

// Watch records that the connection subscribed to roomID's broadcasts.
func (s *Session) Watch(roomID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.watching == nil {
		s.watching = make(map[string]struct{})
	}
	s.watching[roomID] = struct{}{}
}

// Unwatch 取消订阅记录；如果绑定的是该房间也一并解除
func (s *Session) Unwatch(roomID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.watching, roomID)
	if s.roomID == roomID {
		s.roomID = ""
		s.playerName = ""
	}
}

// Watching returns the rooms the connection is subscribed to.
func (s *Session) Watching() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	rooms := make([]string, 0, len(s.watching))
	for id := range s.watching {
		rooms = append(rooms, id)
	}
	return rooms
}

// Binding returns the room and player name bound to the connection.
func (s *Session) Binding() (roomID, playerName string) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.roomID, s.playerName
}

// Send 发送事件到客户端
func (s *Session) Send(event string, payload any) error {
	msg, err := network.NewMessage(event, payload)
	if err != nil {
		return err
	}
	return s.SendMessage(msg)
}

// SendMessage sends an already encoded envelope.
func (s *Session) SendMessage(msg *network.Message) error {
	s.Touch()
	return s.Conn.Send(msg)
}

// Touch records activity on the connection.
func (s *Session) Touch() {
	s.mutex.Lock()
	s.lastActive = time.Now()
	s.mutex.Unlock()
}

// LastActive returns the time of the last send or received event.
func (s *Session) LastActive() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastActive
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

// Count 在线连接数
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// CloseAll closes every connection, used on shutdown.
func (m *Manager) CloseAll() {
	m.mutex.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mutex.RUnlock()

	for _, s := range sessions {
		_ = s.Close()
	}
}
