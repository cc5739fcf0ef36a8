package redis

import "time"

// Config is read from REDIS_* variables. ConnectionURL uses the
// redis://[:password@]host:port/db form accepted by go-redis.
type Config struct {
	ConnectionURL  string        `env:"REDIS_URL,required"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"10s"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"2s"`

	// KeyPrefix namespaces every key written by Storage.
	KeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"iapkit:"`
	// ScanBatchSize is the COUNT hint Storage.Keys passes to SCAN.
	ScanBatchSize int `env:"REDIS_SCAN_BATCH_SIZE" envDefault:"500"`
}
