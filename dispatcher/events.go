package dispatcher

import (
	"errors"

	"github.com/wfunc/tictacserver/board"
	"github.com/wfunc/tictacserver/game"
)

// Error codes carried by the error event.
const (
	CodeInvalidPayload   = "invalid_payload"
	CodeUnknownEvent     = "unknown_event"
	CodeAlreadyJoined    = "already_joined"
	CodeNameTaken        = "name_taken"
	CodeNotAPlayer       = "not_a_player"
	CodeIdentityMismatch = "identity_mismatch"
	CodeNoOpponent       = "no_opponent"
	CodeRoomClosed       = "room_closed"
)

type WaitingPayload struct {
	PlayerCount  string       `json:"player_count"`
	PlayerName   string       `json:"player_name"`
	PlayerSymbol board.Symbol `json:"player_symbol"`
}

type GameStartPayload struct {
	Player1     game.PlayerSlot `json:"player1"`
	Player2     game.PlayerSlot `json:"player2"`
	CurrentTurn string          `json:"current_turn"`
}

// MoveMadePayload winner 为 null 表示对局继续
type MoveMadePayload struct {
	Position int           `json:"position"`
	Symbol   board.Symbol  `json:"symbol"`
	NextTurn string        `json:"next_turn"`
	Winner   *string       `json:"winner"`
	Stats    game.Counters `json:"stats"`
}

type MoveRejectedPayload struct {
	Position int    `json:"position"`
	Reason   string `json:"reason"`
}

type RematchRequestedPayload struct {
	RequestedBy string `json:"requestedBy"`
}

type GameResetPayload struct {
	CurrentTurn string          `json:"current_turn"`
	P1Wins      int             `json:"p1_wins"`
	P2Wins      int             `json:"p2_wins"`
	Draws       int             `json:"draws"`
	LastResult  game.LastResult `json:"last_result"`
}

type GameEndedPayload struct {
	Player1      game.PlayerSlot  `json:"player1"`
	Player2      *game.PlayerSlot `json:"player2"`
	P1Wins       int              `json:"p1_wins"`
	P2Wins       int              `json:"p2_wins"`
	Draws        int              `json:"draws"`
	TotalMatches int              `json:"total_matches"`
	MatchHistory []string         `json:"match_history"`
	LastWinner   *string          `json:"last_winner"`
}

type PlayerLeftPayload struct {
	Player string `json:"player"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newGameEnded(s game.EndSummary) GameEndedPayload {
	return GameEndedPayload{
		Player1:      s.Player1,
		Player2:      s.Player2,
		P1Wins:       s.Counters.P1Wins,
		P2Wins:       s.Counters.P2Wins,
		Draws:        s.Counters.Draws,
		TotalMatches: s.TotalMatches,
		MatchHistory: s.MatchHistory,
		LastWinner:   optional(s.LastWinner),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// rejectReason maps an illegal move to its wire reason.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, game.ErrNotInProgress):
		return "not_in_progress"
	case errors.Is(err, game.ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, game.ErrUnknownPlayer):
		return "unknown_player"
	case errors.Is(err, game.ErrOutOfRange):
		return "out_of_range"
	case errors.Is(err, game.ErrCellOccupied):
		return "cell_occupied"
	default:
		return "illegal_move"
	}
}
