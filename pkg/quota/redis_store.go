package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis hash fields for a quota record.
const (
	fieldAllowed    = "allowed"
	fieldUsedInput  = "used_input"
	fieldUsedOutput = "used_output"
	fieldUsedTotal  = "used_total"
	fieldCreatedAt  = "created_at"
	fieldUpdatedAt  = "updated_at"
)

// RedisStore implements Store using Redis.
// Each user's quota is a hash; HSetNX gives first-contact creation without
// races, and a single transactional pipeline of HIncrBy commands keeps the
// used-total invariant intact under concurrent commits.
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
	// Prefix is the key prefix for all quota keys (default: "predictgate:quota:").
	Prefix string
	// PoolSize is the connection pool size (default: 10).
	PoolSize int
}

// NewRedisStore creates a new Redis-backed quota store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "predictgate:quota:"
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
		prefix = "predictgate:quota:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) userKey(userID string) string {
	return s.prefix + "user:" + userID
}

// Ensure returns the user's quota, creating the record with the default
// allowance on first contact. HSetNX makes concurrent first contacts
// converge on one record.
func (s *RedisStore) Ensure(ctx context.Context, userID string) (*Quota, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	s.mu.RUnlock()

	key := s.userKey(userID)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	pipe := s.client.Pipeline()
	pipe.HSetNX(ctx, key, fieldAllowed, DefaultAllowedTokens)
	pipe.HSetNX(ctx, key, fieldUsedInput, 0)
	pipe.HSetNX(ctx, key, fieldUsedOutput, 0)
	pipe.HSetNX(ctx, key, fieldUsedTotal, 0)
	pipe.HSetNX(ctx, key, fieldCreatedAt, now)
	pipe.HSetNX(ctx, key, fieldUpdatedAt, now)
	getAll := pipe.HGetAll(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("ensure quota: %w", err)
	}

	return parseQuota(userID, getAll.Val())
}

// AddUsage atomically adds the usage to the user's counters.
// All three HIncrBy commands run in one MULTI/EXEC, so readers never observe
// a state where used_total diverges from used_input + used_output.
func (s *RedisStore) AddUsage(ctx context.Context, userID string, usage Usage) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	key := s.userKey(userID)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, key, fieldUsedInput, usage.InputTokens)
	pipe.HIncrBy(ctx, key, fieldUsedOutput, usage.OutputTokens)
	pipe.HIncrBy(ctx, key, fieldUsedTotal, usage.Total())
	pipe.HSet(ctx, key, fieldUpdatedAt, now)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add usage: %w", err)
	}

	return nil
}

// SetUsage overwrites the user's usage counters.
func (s *RedisStore) SetUsage(ctx context.Context, userID string, usage Usage) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	key := s.userKey(userID)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fieldUsedInput, usage.InputTokens)
	pipe.HSet(ctx, key, fieldUsedOutput, usage.OutputTokens)
	pipe.HSet(ctx, key, fieldUsedTotal, usage.Total())
	pipe.HSet(ctx, key, fieldUpdatedAt, now)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set usage: %w", err)
	}

	return nil
}

// SetAllowance overwrites the user's allowance. Usage fields are created
// with HSetNX so an existing record's counters are untouched.
func (s *RedisStore) SetAllowance(ctx context.Context, userID string, allowed int64) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	key := s.userKey(userID)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fieldAllowed, allowed)
	pipe.HSetNX(ctx, key, fieldUsedInput, 0)
	pipe.HSetNX(ctx, key, fieldUsedOutput, 0)
	pipe.HSetNX(ctx, key, fieldUsedTotal, 0)
	pipe.HSetNX(ctx, key, fieldCreatedAt, now)
	pipe.HSet(ctx, key, fieldUpdatedAt, now)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set allowance: %w", err)
	}

	return nil
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

func parseQuota(userID string, fields map[string]string) (*Quota, error) {
	q := &Quota{UserID: userID}

	var err error
	if q.AllowedTokens, err = parseInt(fields, fieldAllowed); err != nil {
		return nil, err
	}
	if q.UsedInputTokens, err = parseInt(fields, fieldUsedInput); err != nil {
		return nil, err
	}
	if q.UsedOutputTokens, err = parseInt(fields, fieldUsedOutput); err != nil {
		return nil, err
	}
	if q.UsedTotalTokens, err = parseInt(fields, fieldUsedTotal); err != nil {
		return nil, err
	}

	if v := fields[fieldCreatedAt]; v != "" {
		if q.CreatedAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
	}
	if v := fields[fieldUpdatedAt]; v != "" {
		if q.UpdatedAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
	}

	return q, nil
}

func parseInt(fields map[string]string, name string) (int64, error) {
	v, ok := fields[name]
	if !ok {
		return 0, fmt.Errorf("quota field %s missing", name)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return n, nil
}
