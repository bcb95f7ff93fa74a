package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"OpenAgent-Loop/internal/history"
)

// RedisStoreConfig 描述 Redis 存储的连接参数。
type RedisStoreConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// RedisStore 把会话历史以 JSON 形式保存在 Redis 中。
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore 创建 Redis 存储实例并验证连接。
func NewRedisStore(cfg RedisStoreConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "openagent:history:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &RedisStore{client: client, prefix: prefix, ttl: cfg.TTL}, nil
}

// LoadHistory 实现 Store 接口。键不存在时返回空历史。
func (s *RedisStore) LoadHistory(ctx context.Context, sessionID string) (history.History, error) {
	raw, err := s.client.Get(ctx, s.prefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return history.History{}, nil
		}
		return nil, fmt.Errorf("读取会话历史失败: %w", err)
	}
	var h history.History
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("解析会话历史失败: %w", err)
	}
	return h, nil
}

// SaveHistory 实现 Store 接口。
func (s *RedisStore) SaveHistory(ctx context.Context, sessionID string, h history.History) error {
	encoded, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("序列化会话历史失败: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+sessionID, encoded, s.ttl).Err(); err != nil {
		return fmt.Errorf("写入会话历史失败: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接。
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
