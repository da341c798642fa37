// Package cache provides a generic build-once cache for device objects.
//
// A value is created at most once per key, under the cache lock, so two
// goroutines asking for the same key get the same value. Failed creations
// are not cached.
//
//	pipelines := cache.New[string, *Pipeline](0, nil)
//	p, err := pipelines.GetOrCreate(key, func() (*Pipeline, error) {
//	    return build(spec)
//	})
//
// With a positive soft limit the least recently used quarter is evicted when
// the limit is exceeded, and the eviction callback releases each value.
// Device objects that may still be referenced by recorded work should use a
// limit of 0 and release everything with Drain.
//
// # Thread Safety
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache
