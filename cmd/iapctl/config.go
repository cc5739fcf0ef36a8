package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/dmitrymomot/iapkit/pkg/environment"
	"github.com/dmitrymomot/iapkit/pkg/httpserver"
	"github.com/dmitrymomot/iapkit/pkg/iap"
	"github.com/dmitrymomot/iapkit/pkg/logger"
)

const (
	driverMemory   = "memory"
	driverFile     = "file"
	driverS3       = "s3"
	driverRedis    = "redis"
	driverPostgres = "postgres"
	driverMongo    = "mongo"
)

var storeDrivers = []string{driverMemory, driverFile, driverS3, driverRedis, driverPostgres, driverMongo}

type appConfig struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	Name     string `env:"APP_NAME" envDefault:"iapkit"`
	LogLevel string `env:"LOG_LEVEL"`

	StoreDriver  string `env:"STORE_DRIVER" envDefault:"memory"`
	CacheKey     string `env:"IAP_CACHE_KEY" envDefault:"iap:entitlements"`
	ProductsPath string `env:"IAP_PRODUCTS_PATH" envDefault:"products.yaml"`
	FeedBuffer   int    `env:"IAP_FEED_BUFFER" envDefault:"64"`
	WebhookPath  string `env:"IAP_WEBHOOK_PATH" envDefault:"/webhooks/paddle"`
	AutoMigrate  bool   `env:"PG_AUTO_MIGRATE" envDefault:"true"`
}

var (
	errUnknownStoreDriver = errors.New("unknown store driver")
	errInvalidFeedBuffer  = errors.New("feed buffer must be positive")
	errInvalidWebhookPath = errors.New("webhook path must start with /")
)

func (c *appConfig) Validate() error {
	if !slices.Contains(storeDrivers, c.StoreDriver) {
		return fmt.Errorf("%w: %q (expected one of %v)", errUnknownStoreDriver, c.StoreDriver, storeDrivers)
	}
	if c.FeedBuffer <= 0 {
		return errInvalidFeedBuffer
	}
	if len(c.WebhookPath) == 0 || c.WebhookPath[0] != '/' {
		return fmt.Errorf("%w: %q", errInvalidWebhookPath, c.WebhookPath)
	}
	if c.CacheKey == "" {
		c.CacheKey = iap.DefaultCacheKey
	}
	return nil
}

func (c appConfig) environment() environment.Environment {
	return environment.Parse(c.Env)
}

func newLogger(cfg appConfig, w io.Writer) *slog.Logger {
	return logger.New(
		logger.WithEnvironment(cfg.environment(), cfg.Name),
		logger.WithLevelName(cfg.LogLevel),
		logger.WithOutput(w),
		logger.WithContextExtractors(httpserver.RequestIDExtractor()),
	)
}
