package cache

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Memo memoizes successful loads in an LRU and collapses concurrent loads of
// the same key into one call. Failed loads are not cached.
type Memo[V any] struct {
	lru   *LRU[string, V]
	group singleflight.Group
}

func NewMemo[V any](capacity int) *Memo[V] {
	return &Memo[V]{lru: NewLRU[string, V](capacity, 0)}
}

// GetOrLoad returns the cached value for key or runs load once for all
// concurrent callers. The second return reports whether the value came from
// the cache or a shared in-flight load.
func (m *Memo[V]) GetOrLoad(ctx context.Context, key string, load func(ctx context.Context) (V, error)) (V, bool, error) {
	if v, ok := m.lru.Get(key); ok {
		return v, true, nil
	}

	res, err, shared := m.group.Do(key, func() (interface{}, error) {
		if v, ok := m.lru.lookup(key, false); ok {
			return v, nil
		}
		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		m.lru.Put(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	v, _ := res.(V)
	return v, shared, nil
}

// Stats returns cache hits and misses. A key loaded once counts one miss.
func (m *Memo[V]) Stats() (hits, misses int64) {
	return m.lru.Stats()
}

func (m *Memo[V]) Len() int {
	return m.lru.Len()
}
