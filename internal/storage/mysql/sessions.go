// Package mysql 提供基于 MySQL 的会话归档实现。
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"OpenAgent-Loop/internal/orchestrator"
	"OpenAgent-Loop/internal/reasoning"
	"OpenAgent-Loop/internal/storage"
)

// Config 描述 MySQL 连接参数。
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// SessionRepository 把会话记录保存在 MySQL 中。
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository 创建仓库并初始化表结构。
func NewSessionRepository(ctx context.Context, cfg Config) (*SessionRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	repo := &SessionRepository{db: db}
	if err := repo.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *SessionRepository) initSchema(ctx context.Context) error {
	const schema = `CREATE TABLE IF NOT EXISTS agent_sessions (
        id VARCHAR(64) PRIMARY KEY,
        input TEXT NOT NULL,
        intent TEXT,
        stage VARCHAR(32) NOT NULL,
        iterations INT NOT NULL DEFAULT 0,
        created_at BIGINT NOT NULL,
        updated_at BIGINT NOT NULL,
        INDEX idx_sessions_stage (stage),
        INDEX idx_sessions_updated (updated_at)
)`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("初始化 agent_sessions 表失败: %w", err)
	}
	return nil
}

// SaveSession 实现 storage.SessionRepository 接口。
func (r *SessionRepository) SaveSession(ctx context.Context, session orchestrator.AgentSession) error {
	if session.ID == "" {
		return stdErrors.New("session id cannot be empty")
	}
	intent, err := json.Marshal(session.Intent)
	if err != nil {
		return fmt.Errorf("编码会话意图失败: %w", err)
	}

	const stmt = `REPLACE INTO agent_sessions (id, input, intent, stage, iterations, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, stmt,
		session.ID,
		session.Input,
		string(intent),
		string(session.Stage),
		session.Iterations,
		session.CreatedAt,
		session.UpdatedAt,
	); err != nil {
		return fmt.Errorf("写入会话记录失败: %w", err)
	}
	return nil
}

// GetSession 实现 storage.SessionRepository 接口。
func (r *SessionRepository) GetSession(ctx context.Context, id string) (orchestrator.AgentSession, error) {
	const stmt = `SELECT id, input, intent, stage, iterations, created_at, updated_at
        FROM agent_sessions WHERE id = ?`

	var session orchestrator.AgentSession
	var stage string
	var intentRaw sql.NullString
	err := r.db.QueryRowContext(ctx, stmt, id).Scan(
		&session.ID,
		&session.Input,
		&intentRaw,
		&stage,
		&session.Iterations,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return orchestrator.AgentSession{}, storage.ErrSessionNotFound
		}
		return orchestrator.AgentSession{}, fmt.Errorf("查询会话记录失败: %w", err)
	}
	session.Stage = orchestrator.Stage(stage)
	if intentRaw.Valid && intentRaw.String != "" {
		var intent reasoning.UserIntent
		if err := json.Unmarshal([]byte(intentRaw.String), &intent); err != nil {
			return orchestrator.AgentSession{}, fmt.Errorf("解析会话意图失败: %w", err)
		}
		session.Intent = intent
	}
	return session, nil
}

// ListSessions 实现 storage.SessionRepository 接口，按更新时间倒序。
func (r *SessionRepository) ListSessions(ctx context.Context, limit, offset int) ([]orchestrator.AgentSession, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	const stmt = `SELECT id, input, intent, stage, iterations, created_at, updated_at
        FROM agent_sessions ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, stmt, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("查询会话列表失败: %w", err)
	}
	defer rows.Close()

	sessions := make([]orchestrator.AgentSession, 0, limit)
	for rows.Next() {
		var session orchestrator.AgentSession
		var stage string
		var intentRaw sql.NullString
		if err := rows.Scan(
			&session.ID,
			&session.Input,
			&intentRaw,
			&stage,
			&session.Iterations,
			&session.CreatedAt,
			&session.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("解析会话记录失败: %w", err)
		}
		session.Stage = orchestrator.Stage(stage)
		if intentRaw.Valid && intentRaw.String != "" {
			var intent reasoning.UserIntent
			if err := json.Unmarshal([]byte(intentRaw.String), &intent); err != nil {
				return nil, fmt.Errorf("解析会话意图失败: %w", err)
			}
			session.Intent = intent
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历会话失败: %w", err)
	}
	return sessions, nil
}

// Close 关闭底层数据库连接。
func (r *SessionRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

var _ storage.SessionRepository = (*SessionRepository)(nil)
