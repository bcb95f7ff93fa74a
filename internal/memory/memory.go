package memory

import (
	"context"
	"sync"

	"OpenAgent-Loop/internal/history"
)

// Store 定义会话历史的持久化契约。LoadHistory 对不存在的会话
// 返回空历史而不是错误。
type Store interface {
	LoadHistory(ctx context.Context, sessionID string) (history.History, error)
	SaveHistory(ctx context.Context, sessionID string, h history.History) error
}

// MemoryStore 把会话历史保存在进程内，用于开发与测试。
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]history.History
}

// NewMemoryStore 创建内存存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]history.History)}
}

// LoadHistory 实现 Store 接口，返回历史的拷贝。
func (s *MemoryStore) LoadHistory(_ context.Context, sessionID string) (history.History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.sessions[sessionID]
	if !ok {
		return history.History{}, nil
	}
	cloned := make(history.History, len(stored))
	copy(cloned, stored)
	return cloned, nil
}

// SaveHistory 实现 Store 接口，保存历史的拷贝。
func (s *MemoryStore) SaveHistory(_ context.Context, sessionID string, h history.History) error {
	cloned := make(history.History, len(h))
	copy(cloned, h)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = cloned
	return nil
}

var _ Store = (*MemoryStore)(nil)
