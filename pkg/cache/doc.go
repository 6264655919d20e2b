// Package cache provides an optional Redis-backed HTTP response cache for the
// enrichment transport.
//
// The resolution cache of an enrichment run lives in memory and dies with the
// run. This package sits one layer below it: it keeps raw GET responses in
// Redis so that repeated runs against slow public APIs (SWAPI, TripPin) can
// revalidate with ETag / Last-Modified instead of downloading every resource
// again. It is only enabled when a Redis client is configured.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient)
//
//	key := cache.KeyFromRequest(req)
//	entry, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// fetch from the API
//	}
//
// # Conditional Requests
//
//	if cache.ShouldMakeConditionalRequest(entry) {
//		cache.AddConditionalHeaders(req, entry)
//		// a 304 response is served from entry
//	}
//
// # Metrics
//
//   - enricher_http_cache_hits_total{layer="redis"}
//   - enricher_http_cache_misses_total
//   - enricher_http_cache_size_bytes{layer="redis"}
//   - enricher_http_304_responses_total
//   - enricher_http_conditional_requests_total
//   - enricher_http_cache_errors_total{operation}
//
// Only 200 responses with a JSON body and no Cache-Control no-store are
// stored. Entries
// expire after Cache-Control max-age, else at the Expires header, else after
// the fallback TTL passed to ResponseToEntry (DefaultTTL when zero). Hits
// carry X-Cache: HIT and an Age header.
package cache
