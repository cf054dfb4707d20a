package network

import "encoding/json"

// Inbound events.
const (
	EventJoin           = "join"
	EventMakeMove       = "make_move"
	EventRequestRematch = "request_rematch"
	EventDeclineRematch = "decline_rematch"
	EventAcceptRematch  = "accept_rematch"
	EventEndGame        = "end_game"
)

// Outbound events.
const (
	EventWaitingForOpponent = "waiting_for_opponent"
	EventGameStart          = "game_start"
	EventRoomFull           = "room_full"
	EventMoveMade           = "move_made"
	EventMoveRejected       = "move_rejected"
	EventRematchRequested   = "rematch_requested"
	EventRematchDeclined    = "rematch_declined"
	EventGameReset          = "game_reset"
	EventGameEnded          = "game_ended"
	EventPlayerLeft         = "player_left"
	EventError              = "error"
)

// Message 是所有消息的外层信封: {"event": "...", "data": {...}}
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the payload into v. An absent payload decodes as {}.
func (m *Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// NewMessage builds an envelope around payload. A nil payload is omitted.
func NewMessage(event string, payload any) (*Message, error) {
	msg := &Message{Event: event}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	msg.Data = data
	return msg, nil
}

type JoinRequest struct {
	Username string `json:"username"`
	GameID   string `json:"game_id"`
}

// MoveRequest carries the move position; Position is a pointer so a missing
// field is distinguishable from cell 0.
type MoveRequest struct {
	GameID   string `json:"game_id"`
	Position *int   `json:"position"`
	Player   string `json:"player"`
}

type RematchRequest struct {
	GameID string `json:"game_id"`
	Player string `json:"player"`
}

// GameRequest is the payload of events that only name the room.
type GameRequest struct {
	GameID string `json:"game_id"`
}
