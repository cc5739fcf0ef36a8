package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/iapkit/pkg/config"
	"github.com/dmitrymomot/iapkit/pkg/environment"
	"github.com/dmitrymomot/iapkit/pkg/iap"
)

func validConfig() appConfig {
	return appConfig{
		StoreDriver: driverMemory,
		FeedBuffer:  16,
		WebhookPath: "/webhooks/paddle",
		CacheKey:    "k",
	}
}

func TestAppConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*appConfig)
		err    error
	}{
		{"valid", func(*appConfig) {}, nil},
		{"unknown driver", func(c *appConfig) { c.StoreDriver = "sqlite" }, errUnknownStoreDriver},
		{"zero feed buffer", func(c *appConfig) { c.FeedBuffer = 0 }, errInvalidFeedBuffer},
		{"relative webhook path", func(c *appConfig) { c.WebhookPath = "webhooks" }, errInvalidWebhookPath},
		{"empty webhook path", func(c *appConfig) { c.WebhookPath = "" }, errInvalidWebhookPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}

	t.Run("empty cache key falls back to default", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.CacheKey = ""
		require.NoError(t, cfg.Validate())
		assert.Equal(t, iap.DefaultCacheKey, cfg.CacheKey)
	})
}

func TestAppConfig_Parse(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("STORE_DRIVER", "redis")
	t.Setenv("IAP_FEED_BUFFER", "128")

	var cfg appConfig
	require.NoError(t, config.Parse(&cfg))
	assert.Equal(t, environment.Production, cfg.environment())
	assert.Equal(t, driverRedis, cfg.StoreDriver)
	assert.Equal(t, 128, cfg.FeedBuffer)
	assert.Equal(t, "/webhooks/paddle", cfg.WebhookPath)
	assert.True(t, cfg.AutoMigrate)

	t.Setenv("STORE_DRIVER", "etcd")
	assert.ErrorIs(t, config.Parse(&cfg), config.ErrInvalidConfig)
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := newLogger(appConfig{Env: "production", Name: "iapkit-test"}, &buf)
	log.Debug("hidden")
	log.Info("reconciler started")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "reconciler started", rec["msg"])
	assert.Equal(t, "iapkit-test", rec["service"])
	assert.Equal(t, "production", rec["env"])

	buf.Reset()
	log = newLogger(appConfig{Env: "production", LogLevel: "debug"}, &buf)
	log.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}
