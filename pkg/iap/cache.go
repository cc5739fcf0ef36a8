package iap

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"

	"github.com/dmitrymomot/iapkit/pkg/logger"
)

// DefaultCacheKey is the store key holding the persisted entitlement snapshot.
const DefaultCacheKey = "iap:entitlements"

// Store is the durable key-value store backing the entitlement cache.
// Get returns nil, nil for a missing key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// EntitlementCache maps product IDs to their last known entitlement flag.
// Every Set persists the full set of entitled products; persistence errors
// are logged and otherwise ignored.
type EntitlementCache struct {
	mu    sync.RWMutex
	flags map[string]bool
	store Store
	key   string
	log   *slog.Logger
}

// CacheOption configures an EntitlementCache.
type CacheOption func(*EntitlementCache)

// WithCacheKey sets the Store key holding the snapshot. Empty keeps
// DefaultCacheKey.
func WithCacheKey(key string) CacheOption {
	return func(c *EntitlementCache) {
		if key != "" {
			c.key = key
		}
	}
}

// WithCacheLogger sets the logger for persistence failures. Nil is ignored.
func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(c *EntitlementCache) {
		if l != nil {
			c.log = l
		}
	}
}

// NewEntitlementCache restores the cache from store.
// Panics if store is nil.
func NewEntitlementCache(ctx context.Context, store Store, opts ...CacheOption) *EntitlementCache {
	if store == nil {
		panic("iap: entitlement Store is required")
	}
	c := &EntitlementCache{
		flags: make(map[string]bool),
		store: store,
		key:   DefaultCacheKey,
		log:   logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.restore(ctx)
	return c
}

// Get returns the last known entitlement, false when unknown.
func (c *EntitlementCache) Get(productID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.flags[productID]
}

// Set overwrites the flag, persists the snapshot and reports whether the flag changed.
func (c *EntitlementCache) Set(ctx context.Context, productID string, entitled bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.flags[productID]
	c.flags[productID] = entitled
	c.persist(ctx)
	return prev != entitled
}

// Snapshot returns the sorted IDs of every product flagged true.
func (c *EntitlementCache) Snapshot() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot()
}

func (c *EntitlementCache) snapshot() []string {
	ids := make([]string, 0, len(c.flags))
	for id, ok := range c.flags {
		if ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Must be called with lock held.
func (c *EntitlementCache) persist(ctx context.Context) {
	data, err := json.Marshal(c.snapshot())
	if err != nil {
		c.log.WarnContext(ctx, "failed to encode entitlement snapshot", logger.Error(err))
		return
	}
	if err := c.store.Set(ctx, c.key, data); err != nil {
		c.log.WarnContext(ctx, "failed to persist entitlement snapshot", logger.Error(err))
	}
}

func (c *EntitlementCache) restore(ctx context.Context) {
	data, err := c.store.Get(ctx, c.key)
	if err != nil {
		c.log.WarnContext(ctx, "failed to load entitlement snapshot", logger.Error(err))
		return
	}
	if len(data) == 0 {
		return
	}
	ids, err := DecodeSnapshot(data)
	if err != nil {
		c.log.WarnContext(ctx, "ignoring corrupt entitlement snapshot", logger.Error(err))
		return
	}
	for _, id := range ids {
		c.flags[id] = true
	}
}

// DecodeSnapshot parses a persisted entitlement snapshot.
func DecodeSnapshot(data []byte) ([]string, error) {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.data[key]), nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = slices.Clone(value)
	return nil
}
