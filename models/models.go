// models/models.go
package models

import (
	"time"
)

// MatchRecord 一局对局的归档记录
type MatchRecord struct {
	RoomID  string `json:"room_id"`
	Player1 string `json:"player1"`
	Player2 string `json:"player2"`
	// Winner is empty when Draw is set.
	Winner     string    `json:"winner,omitempty"`
	Draw       bool      `json:"draw"`
	Summary    string    `json:"summary"`
	FinishedAt time.Time `json:"finished_at"`
}

// RoomSummary is written when a room's series is ended.
type RoomSummary struct {
	RoomID       string    `json:"room_id"`
	Player1      string    `json:"player1"`
	Player2      string    `json:"player2"`
	P1Wins       int       `json:"p1_wins"`
	P2Wins       int       `json:"p2_wins"`
	Draws        int       `json:"draws"`
	TotalMatches int       `json:"total_matches"`
	MatchHistory []string  `json:"match_history"`
	LastWinner   string    `json:"last_winner"`
	EndedAt      time.Time `json:"ended_at"`
}

// PlayerRecord 玩家历史战绩（跨房间）
type PlayerRecord struct {
	Name       string `json:"name"`
	TotalGames int    `json:"total_games"`
	Wins       int    `json:"wins"`
	Losses     int    `json:"losses"`
	Draws      int    `json:"draws"`
}

// Tally adds the outcome of m for r.Name.
func (r *PlayerRecord) Tally(m MatchRecord) {
	if m.Player1 != r.Name && m.Player2 != r.Name {
		return
	}
	r.TotalGames++
	switch {
	case m.Draw:
		r.Draws++
	case m.Winner == r.Name:
		r.Wins++
	default:
		r.Losses++
	}
}
