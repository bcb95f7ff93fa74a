package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"OpenAgent-Loop/internal/history"
)

// MySQLStore 把会话历史保存在 MySQL 中，整段历史以 JSON 存储。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建 MySQL 存储并初始化表结构。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, stdErrors.New("MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("连接 MySQL 失败: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("无法连接到 MySQL: %w", err)
	}

	store := &MySQLStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS agent_session_histories (
        session_id VARCHAR(64) PRIMARY KEY,
        entries MEDIUMTEXT NOT NULL,
        entry_count INT NOT NULL DEFAULT 0,
        updated_at BIGINT NOT NULL,
        INDEX idx_session_updated (updated_at)
)`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("初始化 agent_session_histories 表失败: %w", err)
	}
	return nil
}

// LoadHistory 实现 Store 接口。会话不存在时返回空历史。
func (s *MySQLStore) LoadHistory(ctx context.Context, sessionID string) (history.History, error) {
	const stmt = `SELECT entries FROM agent_session_histories WHERE session_id = ?`

	var raw string
	if err := s.db.QueryRowContext(ctx, stmt, sessionID).Scan(&raw); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return history.History{}, nil
		}
		return nil, fmt.Errorf("查询会话历史失败: %w", err)
	}

	var h history.History
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return nil, fmt.Errorf("解析会话历史失败: %w", err)
	}
	return h, nil
}

// SaveHistory 实现 Store 接口，整段覆盖写入。
func (s *MySQLStore) SaveHistory(ctx context.Context, sessionID string, h history.History) error {
	encoded, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("序列化会话历史失败: %w", err)
	}

	const stmt = `REPLACE INTO agent_session_histories (session_id, entries, entry_count, updated_at)
        VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, stmt, sessionID, string(encoded), len(h), time.Now().Unix()); err != nil {
		return fmt.Errorf("写入会话历史失败: %w", err)
	}
	return nil
}

// Close 关闭底层数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ Store = (*MySQLStore)(nil)
