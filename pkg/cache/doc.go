// Package cache stores ad server result pages in Redis.
//
// Pages are keyed by network, service, method and the wire form of the
// statement (query plus bind values), so two statements that differ only
// in their offset are different entries:
//
//	manager := cache.NewManager(redisClient)
//
//	gen, _ := manager.Generation(ctx, "1234", "WorkflowRequestService")
//	key := cache.Key{
//		NetworkCode: "1234",
//		Service:     "WorkflowRequestService",
//		Method:      "getWorkflowRequestsByStatement",
//		Statement:   stmt,
//		Generation:  gen,
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// fetch from the ad server, then
//		_ = manager.Set(ctx, key, cache.NewEntry(body, 30*time.Second))
//	}
//
// # Invalidation
//
// A bulk action changes the collection it ran against. Invalidate bumps the
// service generation, which is part of every key, so all pages cached for
// that service before the action are no longer addressed and expire on
// their own TTL.
//
// # Metrics
//
//   - adserver_cache_hits_total - Cache hits
//   - adserver_cache_misses_total - Cache misses
//   - adserver_cache_size_bytes - Bytes written to the cache
//   - adserver_cache_invalidations_total{service} - Generation bumps
//   - adserver_cache_errors_total{operation} - Cache operation errors
package cache
