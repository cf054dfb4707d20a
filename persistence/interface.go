// persistence/interface.go
package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wfunc/tictacserver/config"
	"github.com/wfunc/tictacserver/models"
)

// Archive 对局归档接口
type Archive interface {
	SaveMatch(ctx context.Context, record models.MatchRecord) error
	SaveRoomSummary(ctx context.Context, summary models.RoomSummary) error
	// PlayerRecord returns ErrRecordNotFound when name has no archived match.
	PlayerRecord(ctx context.Context, name string) (models.PlayerRecord, error)
	// LatestRoomSummary returns the newest summary archived for roomID, or
	// ErrRecordNotFound.
	LatestRoomSummary(ctx context.Context, roomID string) (models.RoomSummary, error)
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrUnknownDriver  = errors.New("unknown database driver")
)

const (
	DriverMemory   = "memory"
	DriverGorm     = "gorm"
	DriverPostgres = "postgres"
)

const queryTimeout = 5 * time.Second

// Open 根据配置选择归档实现
func Open(cfg config.DatabaseConfig) (Archive, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemoryArchive(), nil
	case DriverGorm:
		return NewGormArchive(DSN(cfg.Postgres))
	case DriverPostgres:
		return NewSQLArchive(DSN(cfg.Postgres))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// DSN builds a key=value PostgreSQL connection string.
func DSN(pg config.PostgresConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
}
