package iap_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/iapkit/pkg/iap"
)

type failingStore struct {
	getErr error
	setErr error
}

func (s failingStore) Get(context.Context, string) ([]byte, error) { return nil, s.getErr }
func (s failingStore) Set(context.Context, string, []byte) error  { return s.setErr }

func TestEntitlementCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("unknown product is not entitled", func(t *testing.T) {
		t.Parallel()
		c := iap.NewEntitlementCache(ctx, iap.NewMemoryStore())
		assert.False(t, c.Get("lifetime"))
		assert.Empty(t, c.Snapshot())
	})

	t.Run("set reports changes", func(t *testing.T) {
		t.Parallel()
		c := iap.NewEntitlementCache(ctx, iap.NewMemoryStore())

		assert.True(t, c.Set(ctx, "lifetime", true))
		assert.False(t, c.Set(ctx, "lifetime", true))
		assert.True(t, c.Set(ctx, "lifetime", false))
		assert.False(t, c.Set(ctx, "gold", false), "false on an unknown product is not a change")
	})

	t.Run("repeated set leaves the same persisted snapshot", func(t *testing.T) {
		t.Parallel()
		store := iap.NewMemoryStore()
		c := iap.NewEntitlementCache(ctx, store)

		c.Set(ctx, "silver", true)
		c.Set(ctx, "lifetime", true)
		first, err := store.Get(ctx, iap.DefaultCacheKey)
		require.NoError(t, err)

		c.Set(ctx, "lifetime", true)
		second, err := store.Get(ctx, iap.DefaultCacheKey)
		require.NoError(t, err)

		assert.JSONEq(t, `["lifetime","silver"]`, string(first))
		assert.Equal(t, first, second)
	})

	t.Run("restores persisted snapshot", func(t *testing.T) {
		t.Parallel()
		store := iap.NewMemoryStore()
		first := iap.NewEntitlementCache(ctx, store, iap.WithCacheKey("user:42"))
		first.Set(ctx, "lifetime", true)
		first.Set(ctx, "gold", true)
		first.Set(ctx, "gold", false)

		restored := iap.NewEntitlementCache(ctx, store, iap.WithCacheKey("user:42"))
		assert.True(t, restored.Get("lifetime"))
		assert.False(t, restored.Get("gold"))
		assert.Equal(t, []string{"lifetime"}, restored.Snapshot())

		other := iap.NewEntitlementCache(ctx, store)
		assert.Empty(t, other.Snapshot())
	})

	t.Run("corrupt snapshot starts empty", func(t *testing.T) {
		t.Parallel()
		store := iap.NewMemoryStore()
		require.NoError(t, store.Set(ctx, iap.DefaultCacheKey, []byte("{not json")))

		c := iap.NewEntitlementCache(ctx, store)
		assert.Empty(t, c.Snapshot())
	})

	t.Run("store failures keep the in-memory flag", func(t *testing.T) {
		t.Parallel()
		c := iap.NewEntitlementCache(ctx, failingStore{
			getErr: errors.New("connection refused"),
			setErr: errors.New("connection refused"),
		})

		assert.True(t, c.Set(ctx, "lifetime", true))
		assert.True(t, c.Get("lifetime"))
	})

	t.Run("concurrent writers", func(t *testing.T) {
		t.Parallel()
		c := iap.NewEntitlementCache(ctx, iap.NewMemoryStore())

		var wg sync.WaitGroup
		for i := range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.Set(ctx, "gold", i%2 == 0)
				_ = c.Get("gold")
			}()
		}
		wg.Wait()
	})

	t.Run("nil store panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { iap.NewEntitlementCache(ctx, nil) })
	})
}

func TestDecodeSnapshot(t *testing.T) {
	t.Parallel()

	ids, err := iap.DecodeSnapshot([]byte(`["a","b"]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	_, err = iap.DecodeSnapshot([]byte(`{"a":true}`))
	assert.Error(t, err)
}
