// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wfunc/tictacserver/models"
)

// GormArchive 使用GORM的PostgreSQL归档
type GormArchive struct {
	db *gorm.DB
}

// NewGormArchive 创建GORM PostgreSQL数据库连接
func NewGormArchive(dsn string) (*GormArchive, error) {
	return openGorm(postgres.Open(dsn))
}

func openGorm(dialector gorm.Dialector) (*GormArchive, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm: %w", err)
	}

	// 获取通用数据库对象 sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	if err := db.AutoMigrate(&models.GormMatch{}, &models.GormRoomSummary{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &GormArchive{db: db}, nil
}

// SaveMatch 保存一局记录
func (p *GormArchive) SaveMatch(ctx context.Context, record models.MatchRecord) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return p.db.WithContext(ctx).Create(models.NewGormMatch(record)).Error
}

// SaveRoomSummary 保存房间汇总
func (p *GormArchive) SaveRoomSummary(ctx context.Context, summary models.RoomSummary) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return p.db.WithContext(ctx).Create(models.NewGormRoomSummary(summary)).Error
}

// PlayerRecord aggregates every archived match name played in.
func (p *GormArchive) PlayerRecord(ctx context.Context, name string) (models.PlayerRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var stats models.PlayerStats
	err := p.db.WithContext(ctx).
		Model(&models.GormMatch{}).
		Select(
			"COUNT(*) AS total_games, "+
				"COALESCE(SUM(CASE WHEN winner = ? THEN 1 ELSE 0 END), 0) AS wins, "+
				"COALESCE(SUM(CASE WHEN draw THEN 1 ELSE 0 END), 0) AS draws", name).
		Where("player1 = ? OR player2 = ?", name, name).
		Scan(&stats).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.PlayerRecord{}, ErrRecordNotFound
		}
		return models.PlayerRecord{}, err
	}
	if stats.TotalGames == 0 {
		return models.PlayerRecord{}, ErrRecordNotFound
	}
	return stats.Record(name), nil
}

// LatestRoomSummary 查询房间最近一次归档的汇总
func (p *GormArchive) LatestRoomSummary(ctx context.Context, roomID string) (models.RoomSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var row models.GormRoomSummary
	err := p.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("id DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.RoomSummary{}, ErrRecordNotFound
		}
		return models.RoomSummary{}, err
	}
	return row.RoomSummary(), nil
}

// Close 关闭数据库连接
func (p *GormArchive) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
