// broadcast/broadcast.go
package broadcast

import (
	"errors"

	"github.com/wfunc/tictacserver/logger"
	"github.com/wfunc/tictacserver/network"
	"github.com/wfunc/tictacserver/room"
	"github.com/wfunc/tictacserver/session"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrSessionNotFound = errors.New("session not found")
)

// 基于房间的广播器
type RoomBroadcaster struct {
	roomManager    *room.Manager
	sessionManager *session.Manager
}

func NewRoomBroadcaster(roomManager *room.Manager, sessionManager *session.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{
		roomManager:    roomManager,
		sessionManager: sessionManager,
	}
}

// BroadcastToRoom encodes payload once and sends it to every connection
// subscribed to roomID. A failed send does not stop the others.
func (b *RoomBroadcaster) BroadcastToRoom(roomID, event string, payload any) error {
	room, exists := b.roomManager.GetRoom(roomID)
	if !exists {
		return ErrRoomNotFound
	}

	msg, err := network.NewMessage(event, payload)
	if err != nil {
		return err
	}

	// Get a thread-safe copy of the sessions
	sessions := room.GetSessions()

	for _, s := range sessions {
		if err := s.SendMessage(msg); err != nil {
			// 发送失败由连接读循环负责清理
			logger.Log.Warnw("broadcast send failed", "room_id", roomID, "event", event, "session", s.ID, "error", err)
			continue
		}
	}

	return nil
}

// SendTo 定向发送给单个连接
func (b *RoomBroadcaster) SendTo(sessionID, event string, payload any) error {
	s, exists := b.sessionManager.Get(sessionID)
	if !exists {
		return ErrSessionNotFound
	}
	return s.Send(event, payload)
}
