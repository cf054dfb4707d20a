// models/gorm_models.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// GormMatch 对局记录表
type GormMatch struct {
	gorm.Model
	RoomID     string `gorm:"index;not null"`
	Player1    string `gorm:"index;not null"`
	Player2    string `gorm:"index;not null"`
	Winner     string
	Draw       bool `gorm:"default:false"`
	Summary    string
	FinishedAt time.Time `gorm:"index"`
}

func (GormMatch) TableName() string { return "match_records" }

func NewGormMatch(m MatchRecord) *GormMatch {
	return &GormMatch{
		RoomID:     m.RoomID,
		Player1:    m.Player1,
		Player2:    m.Player2,
		Winner:     m.Winner,
		Draw:       m.Draw,
		Summary:    m.Summary,
		FinishedAt: m.FinishedAt,
	}
}

// GormRoomSummary 房间结束汇总
type GormRoomSummary struct {
	gorm.Model
	RoomID       string `gorm:"index;not null"`
	Player1      string `gorm:"not null"`
	Player2      string
	P1Wins       int      `gorm:"default:0"`
	P2Wins       int      `gorm:"default:0"`
	Draws        int      `gorm:"default:0"`
	TotalMatches int      `gorm:"default:0"`
	MatchHistory []string `gorm:"serializer:json"`
	LastWinner   string
	EndedAt      time.Time
}

func (GormRoomSummary) TableName() string { return "room_summaries" }

func NewGormRoomSummary(s RoomSummary) *GormRoomSummary {
	return &GormRoomSummary{
		RoomID:       s.RoomID,
		Player1:      s.Player1,
		Player2:      s.Player2,
		P1Wins:       s.P1Wins,
		P2Wins:       s.P2Wins,
		Draws:        s.Draws,
		TotalMatches: s.TotalMatches,
		MatchHistory: s.MatchHistory,
		LastWinner:   s.LastWinner,
		EndedAt:      s.EndedAt,
	}
}

// RoomSummary converts the row back to the archive model.
func (g GormRoomSummary) RoomSummary() RoomSummary {
	return RoomSummary{
		RoomID:       g.RoomID,
		Player1:      g.Player1,
		Player2:      g.Player2,
		P1Wins:       g.P1Wins,
		P2Wins:       g.P2Wins,
		Draws:        g.Draws,
		TotalMatches: g.TotalMatches,
		MatchHistory: append([]string{}, g.MatchHistory...),
		LastWinner:   g.LastWinner,
		EndedAt:      g.EndedAt,
	}
}

// PlayerStats is the aggregate row scanned from match_records.
type PlayerStats struct {
	TotalGames int `json:"total_games"`
	Wins       int `json:"wins"`
	Draws      int `json:"draws"`
}

// Record converts the aggregate into a PlayerRecord for name.
func (s PlayerStats) Record(name string) PlayerRecord {
	return PlayerRecord{
		Name:       name,
		TotalGames: s.TotalGames,
		Wins:       s.Wins,
		Draws:      s.Draws,
		Losses:     s.TotalGames - s.Wins - s.Draws,
	}
}
