// Package redis stores entitlement snapshots in Redis through go-redis.
//
// Connect parses REDIS_URL and waits until the server answers PING.
// Storage namespaces keys with a prefix, optionally expires them, and
// satisfies iap.Store:
//
//	var cfg redis.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	store := redis.NewStorageWithConfig(client, cfg)
//	defer store.Close()
//
// Healthcheck adapts the client to a readiness probe. A missing key is
// returned by Storage.Get as nil, nil.
package redis
