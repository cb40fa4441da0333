// Package cache provides a generic, thread-safe LRU with hit, miss and
// eviction counters that can be exported to Prometheus.
//
// The mapping engine uses it to remember which entry each concrete topic
// matched, so busy topics skip the rule scan:
//
//	topics, err := cache.NewLRU[string, int](4096, nil)
//	if err != nil {
//	    return err
//	}
//	if err := cache.Register(registry, "match", topics); err != nil {
//	    return err
//	}
//	engine := mapping.NewEngine(cfg, mapping.WithMatchCache(topics))
//
// The eviction callback runs after the cache lock is released, so it may
// call back into the cache.
package cache
