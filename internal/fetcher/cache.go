package fetcher

import "sync"

// Cache is a concurrency-safe map scoped to one scan run.
type Cache[V any] struct {
	data sync.Map
}

func NewCache[V any]() *Cache[V] {
	return &Cache[V]{}
}

func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	v, ok := c.data.Load(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(V)
	if !ok {
		return zero, false
	}
	return typed, true
}

func (c *Cache[V]) Set(key string, value V) {
	c.data.Store(key, value)
}
