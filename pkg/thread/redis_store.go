package thread

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store using Redis.
// Threads are Redis lists; RPush gives the atomic array-append the
// Store contract requires, so concurrent appenders never overwrite
// each other.
type RedisStore struct {
	client *redis.Client
	prefix string
	mu     sync.RWMutex
	closed bool
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix is the key prefix for all thread keys (default: "predictgate:thread:").
	Prefix string
	// PoolSize is the connection pool size (default: 10).
	PoolSize int
}

// NewRedisStore creates a new Redis-backed thread store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "predictgate:thread:"
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: prefix,
	}, nil
}

// NewRedisStoreFromClient creates a Redis store from an existing client.
// This is useful for testing with miniredis.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "predictgate:thread:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

// Key helpers
func (s *RedisStore) messagesKey(sessionID string) string {
	return s.prefix + "messages:" + sessionID
}

func (s *RedisStore) sessionIndexKey() string {
	return s.prefix + "sessions"
}

// Append adds a message to the session's thread. The thread is created
// implicitly by the first RPush for an unseen session id.
func (s *RedisStore) Append(ctx context.Context, sessionID string, msg *Message) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, s.messagesKey(sessionID), data)
	pipe.SAdd(ctx, s.sessionIndexKey(), sessionID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	return nil
}

// Read retrieves all messages for a session in append order.
func (s *RedisStore) Read(ctx context.Context, sessionID string) ([]*Message, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	s.mu.RUnlock()

	data, err := s.client.LRange(ctx, s.messagesKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read thread: %w", err)
	}

	messages := make([]*Message, 0, len(data))
	for _, d := range data {
		var msg Message
		if err := json.Unmarshal([]byte(d), &msg); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		messages = append(messages, &msg)
	}

	return messages, nil
}

// Sessions returns the ids of all sessions with at least one message,
// sorted for deterministic iteration (Redis sets are unordered).
func (s *RedisStore) Sessions(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	s.mu.RUnlock()

	ids, err := s.client.SMembers(ctx, s.sessionIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sort.Strings(ids)
	return ids, nil
}

// Close releases resources held by the store.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.client.Close()
}

// Ping checks if the Redis connection is alive.
func (s *RedisStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	return s.client.Ping(ctx).Err()
}
