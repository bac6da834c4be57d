// Package cache stores finished chunk results in Redis.
//
// A mapping chunk is identified by its namespaces, format, fields,
// compression flag and the exact identifier list. Once a chunk job has been
// fetched and reconciled, the merged ResultSet and unmatched identifiers are
// stored so a repeated request is answered without submitting a new job.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient, 24*time.Hour)
//
//	key := cache.CacheKey{
//		From:   "UniProtKB_AC-ID",
//		To:     "Ensembl",
//		Format: format.Tabular,
//		IDs:    chunk,
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// run the job, then
//		_ = manager.Set(ctx, key, cache.NewEntry(jobID, rs, unmatched, true, manager.TTL()))
//	}
//
// Cache failures never fail a mapping; callers log them and continue.
//
// # Metrics
//
//   - idmap_cache_hits_total - Chunk results served from cache
//   - idmap_cache_misses_total - Cache misses
//   - idmap_cache_entry_bytes - Size of stored entries
//   - idmap_cache_errors_total{operation} - Cache operation errors
package cache
