package iap

import (
	"log/slog"
	"time"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*service)

// WithLogger sets the logger used by every component of the service.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *service) {
		s.metrics = m
	}
}

// WithEntitlementCacheKey overrides the store key of the persisted snapshot.
func WithEntitlementCacheKey(key string) ServiceOption {
	return func(s *service) {
		if key != "" {
			s.cacheKey = key
		}
	}
}

// WithProductTTL sets how long fetched product definitions are reused.
func WithProductTTL(ttl time.Duration) ServiceOption {
	return func(s *service) {
		if ttl > 0 {
			s.productTTL = ttl
		}
	}
}

// WithRestartBackoff sets the initial and maximum delay before re-subscribing
// to a stream that closed unexpectedly.
func WithRestartBackoff(initial, ceiling time.Duration) ServiceOption {
	return func(s *service) {
		if initial > 0 {
			s.restartDelay = initial
		}
		if ceiling >= s.restartDelay {
			s.maxRestartDelay = ceiling
		}
	}
}

// WithNotificationBuffer sets the per-subscriber notification buffer size.
func WithNotificationBuffer(size int) ServiceOption {
	return func(s *service) {
		if size > 0 {
			s.notifyBuffer = size
		}
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}
