package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// KVTable is created by the migrations shipped with the module.
const KVTable = "iap_kv"

const (
	kvGetQuery = `SELECT value FROM ` + KVTable + ` WHERE key = $1`
	kvSetQuery = `INSERT INTO ` + KVTable + ` (key, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
)

// Querier is the subset of *pgxpool.Pool used by KVStore. A pgx.Tx works too.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// KVStore persists opaque values by key in PostgreSQL. It satisfies iap.Store.
type KVStore struct {
	db Querier
}

// NewKVStore wraps db. Panics if db is nil.
func NewKVStore(db Querier) *KVStore {
	if db == nil {
		panic("pg: querier is required")
	}
	return &KVStore{db: db}
}

// Get returns nil, nil when the key does not exist.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	if err := s.db.QueryRow(ctx, kvGetQuery, key).Scan(&value); err != nil {
		if IsNotFoundError(err) {
			return nil, nil
		}
		return nil, errors.Join(ErrKVStoreFailed, err)
	}
	return value, nil
}

// Set upserts the value.
func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.Exec(ctx, kvSetQuery, key, value); err != nil {
		return errors.Join(ErrKVStoreFailed, err)
	}
	return nil
}
