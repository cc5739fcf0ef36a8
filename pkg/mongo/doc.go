// Package mongo keeps entitlement snapshots in a MongoDB collection.
//
// New connects with the pool settings from Config and waits for the primary
// to answer a ping. KVStore stores one document per key, with the key as _id,
// and satisfies iap.Store:
//
//	var cfg mongo.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//	client, err := mongo.New(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Disconnect(context.Background())
//	store := mongo.NewKVStore(mongo.Collection(client, cfg))
//
// Healthcheck adapts the client to a readiness probe.
package mongo
