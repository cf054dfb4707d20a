// services/stats_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/wfunc/tictacserver/board"
	"github.com/wfunc/tictacserver/game"
	"github.com/wfunc/tictacserver/models"
	"github.com/wfunc/tictacserver/persistence"
	"github.com/wfunc/tictacserver/room"
	"github.com/wfunc/tictacserver/state"
)

var (
	ErrRoomNotFound   = errors.New("game not found")
	ErrPlayerNotFound = errors.New("player not found")
)

// DefaultStatsHistory 统计快照中保留的最近对局条数
const DefaultStatsHistory = 5

// StatsService is the read-only statistics boundary used by the HTTP and RPC
// layers.
type StatsService struct {
	rooms        *room.Manager
	archive      persistence.Archive
	statsHistory int
}

func NewStatsService(rooms *room.Manager, archive persistence.Archive, statsHistory int) *StatsService {
	if statsHistory <= 0 {
		statsHistory = DefaultStatsHistory
	}
	return &StatsService{
		rooms:        rooms,
		archive:      archive,
		statsHistory: statsHistory,
	}
}

// RoomStats returns the snapshot of a live room. A terminated room is
// answered from its last archived summary.
func (s *StatsService) RoomStats(ctx context.Context, roomID string) (game.Stats, error) {
	if r, ok := s.rooms.GetRoom(roomID); ok {
		return r.Game.Stats(s.statsHistory), nil
	}

	summary, err := s.archive.LatestRoomSummary(ctx, roomID)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return game.Stats{}, ErrRoomNotFound
		}
		return game.Stats{}, err
	}
	return archivedStats(summary, s.statsHistory), nil
}

// archivedStats 由归档汇总还原统计快照
func archivedStats(summary models.RoomSummary, recent int) game.Stats {
	history := summary.MatchHistory
	if len(history) > recent {
		history = history[len(history)-recent:]
	}

	stats := game.Stats{
		RoomID:        summary.RoomID,
		Phase:         string(state.Closed),
		Player1:       game.PlayerSlot{Name: summary.Player1, Symbol: board.X, Avatar: "x.png"},
		P1Wins:        summary.P1Wins,
		P2Wins:        summary.P2Wins,
		Draws:         summary.Draws,
		TotalMatches:  summary.TotalMatches,
		LastResult:    game.LastResult{P1: game.ResultUnset, P2: game.ResultUnset},
		LastWinner:    summary.LastWinner,
		RecentMatches: append([]string{}, history...),
	}
	if summary.Player2 != "" {
		stats.Player2 = &game.PlayerSlot{Name: summary.Player2, Symbol: board.O, Avatar: "o.png"}
	}

	switch summary.LastWinner {
	case "":
	case game.ResultDraw:
		stats.LastResult = game.LastResult{P1: game.ResultDraw, P2: game.ResultDraw}
	case summary.Player1:
		stats.LastResult = game.LastResult{P1: game.ResultWon, P2: game.ResultLost}
	default:
		stats.LastResult = game.LastResult{P1: game.ResultLost, P2: game.ResultWon}
	}
	return stats
}

// PlayerRecord 查询归档中的玩家战绩
func (s *StatsService) PlayerRecord(ctx context.Context, name string) (models.PlayerRecord, error) {
	record, err := s.archive.PlayerRecord(ctx, name)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return models.PlayerRecord{}, fmt.Errorf("%w: %s", ErrPlayerNotFound, name)
		}
		return models.PlayerRecord{}, err
	}
	return record, nil
}
