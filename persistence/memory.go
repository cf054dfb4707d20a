// persistence/memory.go
package persistence

import (
	"context"
	"sync"

	"github.com/wfunc/tictacserver/models"
)

// MemoryArchive keeps archived records in process memory. It is the default
// archive and the one tests run against.
type MemoryArchive struct {
	mutex     sync.RWMutex
	matches   []models.MatchRecord
	summaries []models.RoomSummary
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{}
}

func (a *MemoryArchive) SaveMatch(ctx context.Context, record models.MatchRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.matches = append(a.matches, record)
	return nil
}

func (a *MemoryArchive) SaveRoomSummary(ctx context.Context, summary models.RoomSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	summary.MatchHistory = append([]string{}, summary.MatchHistory...)

	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.summaries = append(a.summaries, summary)
	return nil
}

// PlayerRecord 遍历归档统计玩家战绩
func (a *MemoryArchive) PlayerRecord(ctx context.Context, name string) (models.PlayerRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.PlayerRecord{}, err
	}
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	record := models.PlayerRecord{Name: name}
	for _, m := range a.matches {
		record.Tally(m)
	}
	if record.TotalGames == 0 {
		return models.PlayerRecord{}, ErrRecordNotFound
	}
	return record, nil
}

// LatestRoomSummary 返回该房间最近一次归档的汇总
func (a *MemoryArchive) LatestRoomSummary(ctx context.Context, roomID string) (models.RoomSummary, error) {
	if err := ctx.Err(); err != nil {
		return models.RoomSummary{}, err
	}
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	for i := len(a.summaries) - 1; i >= 0; i-- {
		if a.summaries[i].RoomID == roomID {
			summary := a.summaries[i]
			summary.MatchHistory = append([]string{}, summary.MatchHistory...)
			return summary, nil
		}
	}
	return models.RoomSummary{}, ErrRecordNotFound
}

// Matches returns a copy of the archived matches.
func (a *MemoryArchive) Matches() []models.MatchRecord {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return append([]models.MatchRecord(nil), a.matches...)
}

// Summaries returns a copy of the archived room summaries.
func (a *MemoryArchive) Summaries() []models.RoomSummary {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return append([]models.RoomSummary(nil), a.summaries...)
}

func (a *MemoryArchive) Close() error {
	return nil
}
