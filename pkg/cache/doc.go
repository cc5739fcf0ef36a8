// Package cache provides a generic, thread-safe LRU cache with optional
// per-entry expiration.
//
// The cache evicts the least recently used entry once capacity is reached and
// treats entries older than the configured TTL as absent. Expired entries are
// dropped lazily on access, so no background goroutine is required.
//
// # Usage
//
//	products := cache.NewLRUCache[string, iap.Product](256,
//		cache.WithTTL[string, iap.Product](15*time.Minute),
//	)
//
//	products.Put("com.example.pro", product)
//	if p, ok := products.Get("com.example.pro"); ok {
//		// use p
//	}
//
// Expiration is measured with the clock supplied through WithClock, which
// defaults to time.Now. Tests can inject a fake clock to control expiry.
//
// # Eviction callbacks
//
// SetEvictCallback registers a function invoked for entries removed because of
// capacity pressure, expiration, Remove or Clear.
package cache
