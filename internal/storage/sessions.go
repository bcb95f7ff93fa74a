package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"OpenAgent-Loop/internal/orchestrator"
)

// ErrSessionNotFound 表示会话记录不存在。
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository 归档并查询会话记录。
type SessionRepository interface {
	SaveSession(ctx context.Context, session orchestrator.AgentSession) error
	GetSession(ctx context.Context, id string) (orchestrator.AgentSession, error)
	ListSessions(ctx context.Context, limit, offset int) ([]orchestrator.AgentSession, error)
}

// MemorySessionRepository 把会话记录保存在进程内。
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]orchestrator.AgentSession
}

// NewMemorySessionRepository 创建内存会话仓库。
func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[string]orchestrator.AgentSession)}
}

// SaveSession 实现 SessionRepository 接口，同一会话覆盖写入。
func (r *MemorySessionRepository) SaveSession(_ context.Context, session orchestrator.AgentSession) error {
	if session.ID == "" {
		return errors.New("session id cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session
	return nil
}

// GetSession 实现 SessionRepository 接口。
func (r *MemorySessionRepository) GetSession(_ context.Context, id string) (orchestrator.AgentSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	if !ok {
		return orchestrator.AgentSession{}, ErrSessionNotFound
	}
	return session, nil
}

// ListSessions 实现 SessionRepository 接口，按更新时间倒序。
func (r *MemorySessionRepository) ListSessions(_ context.Context, limit, offset int) ([]orchestrator.AgentSession, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	r.mu.RLock()
	sessions := make([]orchestrator.AgentSession, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	r.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].UpdatedAt != sessions[j].UpdatedAt {
			return sessions[i].UpdatedAt > sessions[j].UpdatedAt
		}
		return sessions[i].ID > sessions[j].ID
	})

	if offset >= len(sessions) {
		return []orchestrator.AgentSession{}, nil
	}
	end := offset + limit
	if end > len(sessions) {
		end = len(sessions)
	}
	return sessions[offset:end], nil
}

var _ SessionRepository = (*MemorySessionRepository)(nil)
