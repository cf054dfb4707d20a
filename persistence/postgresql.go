// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq" // PostgreSQL 驱动

	"github.com/wfunc/tictacserver/models"
)

// SQLArchive 基于 database/sql 和 lib/pq 的归档
type SQLArchive struct {
	db *sql.DB
}

// NewSQLArchive 创建 PostgreSQL 数据库连接
func NewSQLArchive(dsn string) (*SQLArchive, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	// 设置连接池参数
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return NewSQLArchiveFromDB(db)
}

// NewSQLArchiveFromDB creates the tables on db and wraps it.
func NewSQLArchiveFromDB(db *sql.DB) (*SQLArchive, error) {
	if err := initTables(db); err != nil {
		return nil, fmt.Errorf("init tables: %w", err)
	}
	return &SQLArchive{db: db}, nil
}

// initTables 初始化数据库表结构
func initTables(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS tictac_matches (
            id BIGSERIAL PRIMARY KEY,
            room_id TEXT NOT NULL,
            player1 TEXT NOT NULL,
            player2 TEXT NOT NULL,
            winner TEXT NOT NULL DEFAULT '',
            draw BOOLEAN NOT NULL DEFAULT FALSE,
            summary TEXT NOT NULL DEFAULT '',
            finished_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
        CREATE TABLE IF NOT EXISTS tictac_room_summaries (
            id BIGSERIAL PRIMARY KEY,
            room_id TEXT NOT NULL,
            player1 TEXT NOT NULL,
            player2 TEXT NOT NULL DEFAULT '',
            p1_wins INTEGER NOT NULL DEFAULT 0,
            p2_wins INTEGER NOT NULL DEFAULT 0,
            draws INTEGER NOT NULL DEFAULT 0,
            total_matches INTEGER NOT NULL DEFAULT 0,
            match_history TEXT[] NOT NULL DEFAULT '{}',
            last_winner TEXT NOT NULL DEFAULT '',
            ended_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	// 创建索引以提高查询性能
	_, err = db.Exec(`
        CREATE INDEX IF NOT EXISTS idx_tictac_matches_player1 ON tictac_matches(player1);
        CREATE INDEX IF NOT EXISTS idx_tictac_matches_player2 ON tictac_matches(player2);
        CREATE INDEX IF NOT EXISTS idx_tictac_room_summaries_room_id ON tictac_room_summaries(room_id);
    `)
	return err
}

// SaveMatch 保存一局记录
func (p *SQLArchive) SaveMatch(ctx context.Context, record models.MatchRecord) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
        INSERT INTO tictac_matches (room_id, player1, player2, winner, draw, summary, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	_, err := p.db.ExecContext(ctx, query,
		record.RoomID, record.Player1, record.Player2,
		record.Winner, record.Draw, record.Summary, record.FinishedAt)
	return err
}

// SaveRoomSummary 保存房间汇总
func (p *SQLArchive) SaveRoomSummary(ctx context.Context, s models.RoomSummary) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	history := s.MatchHistory
	if history == nil {
		history = []string{}
	}

	query := `
        INSERT INTO tictac_room_summaries
            (room_id, player1, player2, p1_wins, p2_wins, draws, total_matches, match_history, last_winner, ended_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `
	_, err := p.db.ExecContext(ctx, query,
		s.RoomID, s.Player1, s.Player2, s.P1Wins, s.P2Wins, s.Draws,
		s.TotalMatches, pq.Array(history), s.LastWinner, s.EndedAt)
	return err
}

// PlayerRecord 统计玩家战绩
func (p *SQLArchive) PlayerRecord(ctx context.Context, name string) (models.PlayerRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var stats models.PlayerStats
	query := `
        SELECT
            COUNT(*),
            COALESCE(SUM(CASE WHEN winner = $1 THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN draw THEN 1 ELSE 0 END), 0)
        FROM tictac_matches
        WHERE player1 = $1 OR player2 = $1
    `
	err := p.db.QueryRowContext(ctx, query, name).Scan(&stats.TotalGames, &stats.Wins, &stats.Draws)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
func (p *SQLArchive) LatestRoomSummary(ctx context.Context, roomID string) (models.RoomSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var s models.RoomSummary
	query := `
        SELECT room_id, player1, player2, p1_wins, p2_wins, draws, total_matches, match_history, last_winner, ended_at
        FROM tictac_room_summaries
        WHERE room_id = $1
        ORDER BY id DESC
        LIMIT 1
    `
	err := p.db.QueryRowContext(ctx, query, roomID).Scan(
		&s.RoomID, &s.Player1, &s.Player2, &s.P1Wins, &s.P2Wins, &s.Draws,
		&s.TotalMatches, pq.Array(&s.MatchHistory), &s.LastWinner, &s.EndedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.RoomSummary{}, ErrRecordNotFound
		}
		return models.RoomSummary{}, err
	}
	return s, nil
}

// Close 关闭数据库连接
func (p *SQLArchive) Close() error {
	return p.db.Close()
}
