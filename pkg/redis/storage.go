package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Storage is a namespaced key-value store on top of a Redis client.
// It satisfies iap.Store, so it can back the entitlement cache.
type Storage struct {
	db            redis.UniversalClient
	prefix        string
	ttl           time.Duration
	scanBatchSize int64
}

// StorageOption configures Storage.
type StorageOption func(*Storage)

// WithKeyPrefix namespaces every key.
func WithKeyPrefix(prefix string) StorageOption {
	return func(s *Storage) {
		s.prefix = prefix
	}
}

// WithTTL expires values written by Set. Zero means no expiration.
func WithTTL(ttl time.Duration) StorageOption {
	return func(s *Storage) {
		if ttl >= 0 {
			s.ttl = ttl
		}
	}
}

// WithScanBatchSize sets the SCAN COUNT hint used by Keys.
func WithScanBatchSize(n int) StorageOption {
	return func(s *Storage) {
		if n > 0 {
			s.scanBatchSize = int64(n)
		}
	}
}

// NewStorage creates a Redis storage wrapper.
// Uses default scan batch size of 1000 for efficient key scanning.
func NewStorage(redisClient redis.UniversalClient, opts ...StorageOption) *Storage {
	if redisClient == nil {
		panic("redis: client is required")
	}
	s := &Storage{
		db:            redisClient,
		scanBatchSize: 1000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewStorageWithConfig creates a Redis storage using the prefix and batch size from cfg.
func NewStorageWithConfig(redisClient redis.UniversalClient, cfg Config, opts ...StorageOption) *Storage {
	return NewStorage(redisClient, append([]StorageOption{
		WithKeyPrefix(cfg.KeyPrefix),
		WithScanBatchSize(cfg.ScanBatchSize),
	}, opts...)...)
}

// Get returns nil for empty keys and missing values (redis.Nil becomes nil).
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	if len(key) <= 0 {
		return nil, nil
	}
	val, err := s.db.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

// Set stores a value, applying the configured TTL. Empty keys are ignored.
func (s *Storage) Set(ctx context.Context, key string, val []byte) error {
	if len(key) <= 0 {
		return nil
	}
	return s.db.Set(ctx, s.prefix+key, val, s.ttl).Err()
}

// Delete removes a key. Empty keys are ignored.
func (s *Storage) Delete(ctx context.Context, key string) error {
	if len(key) <= 0 {
		return nil
	}
	return s.db.Del(ctx, s.prefix+key).Err()
}

// Keys returns every key under the prefix, with the prefix stripped.
// Uses SCAN to avoid blocking Redis.
func (s *Storage) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.db.Scan(ctx, cursor, s.prefix+"*", s.scanBatchSize).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range batch {
			keys = append(keys, strings.TrimPrefix(key, s.prefix))
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// Close terminates the Redis connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Conn returns the underlying Redis client for advanced operations.
func (s *Storage) Conn() redis.UniversalClient {
	return s.db
}
