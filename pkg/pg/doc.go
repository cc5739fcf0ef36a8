// Package pg persists entitlement snapshots in PostgreSQL.
//
// Connect opens a pgxpool.Pool and waits for the server to accept
// connections. Migrate applies the goose schema embedded in the package (or
// a directory named by PG_MIGRATIONS_PATH), which creates the iap_kv table.
// KVStore reads and upserts rows of that table and satisfies iap.Store, so a
// Service can keep its entitlement cache in Postgres:
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//	if err := pg.Migrate(ctx, pool, cfg, log); err != nil {
//		return err
//	}
//	store := pg.NewKVStore(pool)
//
// Healthcheck adapts the pool to a readiness probe. A missing key is reported
// by KVStore.Get as nil, nil; query failures wrap ErrKVStoreFailed.
package pg
