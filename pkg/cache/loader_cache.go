// Package cache provides a generic loader cache combining expiring LRU storage
// with singleflight to coalesce concurrent loads for the same key.
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// LoaderCache is a generic cache that loads values on miss via a callback and
// coalesces concurrent loads for the same key using singleflight. Without
// singleflight, a burst of N concurrent misses for the same key would trigger
// N loads; with it, one load runs and the rest wait for and share that result.
// Entries expire after the configured TTL so stale subscription data is bounded.
type LoaderCache[V any] struct {
	lru   *expirable.LRU[string, V]
	group singleflight.Group
}

// NewLoaderCache creates a loader cache with the given max entries and entry TTL.
func NewLoaderCache[V any](maxEntries int, ttl time.Duration) *LoaderCache[V] {
	return &LoaderCache[V]{
		lru: expirable.NewLRU[string, V](maxEntries, nil, ttl),
	}
}

// Get returns the value for key, loading it via load on cache miss.
// On miss, Do(key, fn) ensures only one goroutine runs load() for that key;
// others block and receive the same result (cache stampede prevention).
func (c *LoaderCache[V]) Get(ctx context.Context, key string, load func(context.Context, string) (V, error)) (V, error) {
	if v, ok := c.lru.Get(key); ok {
		return v, nil
	}

	val, err, _ := c.group.Do(key, func() (any, error) {
		loaded, loadErr := load(ctx, key)
		if loadErr != nil {
			return zero[V](), loadErr
		}

		c.lru.Add(key, loaded)

		return loaded, nil
	})
	if err != nil {
		return zero[V](), err
	}

	return val.(V), nil
}

// Remove evicts a single key.
func (c *LoaderCache[V]) Remove(key string) {
	c.lru.Remove(key)
}

// InvalidateAll evicts every entry. Called on any subscription mutation so
// deactivations take effect for all fan-out decisions made afterwards.
func (c *LoaderCache[V]) InvalidateAll() {
	c.lru.Purge()
}

func zero[V any]() V {
	var v V
	return v
}
