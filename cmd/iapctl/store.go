package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/iapkit/pkg/config"
	"github.com/dmitrymomot/iapkit/pkg/file"
	"github.com/dmitrymomot/iapkit/pkg/httpserver"
	"github.com/dmitrymomot/iapkit/pkg/iap"
	"github.com/dmitrymomot/iapkit/pkg/logger"
	"github.com/dmitrymomot/iapkit/pkg/mongo"
	"github.com/dmitrymomot/iapkit/pkg/pg"
	"github.com/dmitrymomot/iapkit/pkg/redis"
)

// storeHandle is an opened entitlement store plus what serve needs to probe
// and release it.
type storeHandle struct {
	iap.Store
	driver string
	checks []httpserver.Check
	close  func() error
}

func (h *storeHandle) Close() error {
	if h.close == nil {
		return nil
	}
	return h.close()
}

func openStore(ctx context.Context, cfg appConfig, log *slog.Logger) (*storeHandle, error) {
	switch cfg.StoreDriver {
	case driverMemory:
		log.WarnContext(ctx, "using in-memory entitlement store; snapshot is lost on exit")
		return &storeHandle{Store: iap.NewMemoryStore(), driver: driverMemory}, nil

	case driverFile:
		var fc file.LocalConfig
		if err := config.Load(&fc); err != nil {
			return nil, err
		}
		s, err := file.NewLocalStoreFromConfig(fc)
		if err != nil {
			return nil, err
		}
		return &storeHandle{Store: s, driver: driverFile, close: s.Close}, nil

	case driverS3:
		var sc file.S3Config
		if err := config.Load(&sc); err != nil {
			return nil, err
		}
		s, err := file.NewS3Store(ctx, sc)
		if err != nil {
			return nil, err
		}
		return &storeHandle{
			Store:  s,
			driver: driverS3,
			checks: []httpserver.Check{{Name: "s3", Fn: s.Ping}},
		}, nil

	case driverRedis:
		var rc redis.Config
		if err := config.Load(&rc); err != nil {
			return nil, err
		}
		client, err := redis.Connect(ctx, rc)
		if err != nil {
			return nil, err
		}
		s := redis.NewStorageWithConfig(client, rc)
		return &storeHandle{
			Store:  s,
			driver: driverRedis,
			checks: []httpserver.Check{{Name: "redis", Fn: redis.Healthcheck(client)}},
			close:  s.Close,
		}, nil

	case driverPostgres:
		var pc pg.Config
		if err := config.Load(&pc); err != nil {
			return nil, err
		}
		pool, err := pg.Connect(ctx, pc)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx, pool, pc, log.With(logger.Component("migrations"))); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return &storeHandle{
			Store:  pg.NewKVStore(pool),
			driver: driverPostgres,
			checks: []httpserver.Check{{Name: "postgres", Fn: pg.Healthcheck(pool)}},
			close: func() error {
				pool.Close()
				return nil
			},
		}, nil

	case driverMongo:
		var mc mongo.Config
		if err := config.Load(&mc); err != nil {
			return nil, err
		}
		client, err := mongo.New(ctx, mc)
		if err != nil {
			return nil, err
		}
		coll := mongo.Collection(client, mc)
		return &storeHandle{
			Store:  mongo.NewKVStore(coll),
			driver: driverMongo,
			checks: []httpserver.Check{{Name: "mongo", Fn: mongo.Healthcheck(client)}},
			close: func() error {
				return client.Disconnect(context.WithoutCancel(ctx))
			},
		}, nil
	}

	return nil, errors.Join(errUnknownStoreDriver, fmt.Errorf("driver %q", cfg.StoreDriver))
}
