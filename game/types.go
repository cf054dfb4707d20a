package game

import (
	"errors"

	"github.com/wfunc/tictacserver/board"
)

var (
	ErrRoomFull      = errors.New("room full")
	ErrNameTaken     = errors.New("player name taken")
	ErrSessionClosed = errors.New("session closed")
	ErrNoOpponent    = errors.New("waiting for opponent")
	ErrUnknownPlayer = errors.New("unknown player")
	ErrIllegalMove   = errors.New("illegal move")
	ErrNotInProgress = errors.New("game not in progress")
	ErrNotYourTurn   = errors.New("not your turn")
	ErrOutOfRange    = errors.New("position out of range")
	ErrCellOccupied  = errors.New("cell occupied")
)

// Result labels used in LastResult.
const (
	ResultWon   = "Won"
	ResultLost  = "Lost"
	ResultDraw  = "Draw"
	ResultUnset = "-"
)

// DrawWinner is the winner value reported for a drawn round.
const DrawWinner = "draw"

// PlayerSlot 玩家席位，分配后不再改变
type PlayerSlot struct {
	Name   string       `json:"name"`
	Symbol board.Symbol `json:"symbol"`
	Avatar string       `json:"avatar"`
	token  string
}

// LastResult is the outcome label of the most recent round per slot.
type LastResult struct {
	P1 string `json:"p1"`
	P2 string `json:"p2"`
}

// Counters 累计战绩
type Counters struct {
	P1Wins     int        `json:"p1_wins"`
	P2Wins     int        `json:"p2_wins"`
	Draws      int        `json:"draws"`
	LastResult LastResult `json:"last_result"`
}

// MoveResult describes an applied move.
type MoveResult struct {
	Position int
	Symbol   board.Symbol
	Player   string
	NextTurn string
	Outcome  board.Outcome
	// Winner is the winner's name, DrawWinner, or empty while the round continues.
	Winner   string
	Counters Counters
	// Summary is the history line appended when the round finished.
	Summary string
}

// Finished reports whether the move ended the round.
func (r MoveResult) Finished() bool {
	return r.Outcome.Kind != board.None
}

// RematchResult is the state after an accepted rematch.
type RematchResult struct {
	CurrentTurn string
	Counters    Counters
}

// EndSummary 结束对局时的汇总，只读
type EndSummary struct {
	Player1      PlayerSlot
	Player2      *PlayerSlot
	Counters     Counters
	TotalMatches int
	MatchHistory []string
	LastWinner   string
}

// Stats is the read-only statistics snapshot handed to presentation layers.
type Stats struct {
	RoomID        string      `json:"game_id"`
	Phase         string      `json:"phase"`
	Player1       PlayerSlot  `json:"player1"`
	Player2       *PlayerSlot `json:"player2"`
	P1Wins        int         `json:"p1_wins"`
	P2Wins        int         `json:"p2_wins"`
	Draws         int         `json:"draws"`
	TotalMatches  int         `json:"total_matches"`
	LastResult    LastResult  `json:"last_result"`
	LastWinner    string      `json:"last_winner,omitempty"`
	RecentMatches []string    `json:"recent_matches"`
}
