package backend

import "sync"

// cache is a deduplicating map guarded by a read-write lock. Lookups take the
// read lock; population takes the write lock and re-checks before creating,
// so two racing callers converge on one entry while the loser's surplus
// object is handed to discard.
type cache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
}

func newCache[K comparable, V any]() *cache[K, V] {
	return &cache[K, V]{entries: map[K]V{}}
}

// getOrCreate returns the cached entry for key, creating it with create on a
// miss. create runs outside any lock, so it may be slow (pipeline compilation,
// driver calls) without stalling readers; if another caller populated the key
// first, the freshly created value is released through discard and the cached
// one wins.
func (c *cache[K, V]) getOrCreate(key K, create func() (V, error), discard func(V)) (V, error) {
	c.mu.RLock()
	v, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return v, nil
	}

	created, err := create()
	if err != nil {
		var zero V
		return zero, err
	}

	c.mu.Lock()
	if existing, ok := c.entries[key]; ok {
		c.mu.Unlock()
		if discard != nil {
			discard(created)
		}
		return existing, nil
	}
	c.entries[key] = created
	c.mu.Unlock()
	return created, nil
}

// get returns the cached entry without populating.
func (c *cache[K, V]) get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// remove drops the entry for key and returns it so the caller can dispose of
// the underlying object.
func (c *cache[K, V]) remove(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	return v, ok
}

// drain empties the cache and returns every entry for disposal.
func (c *cache[K, V]) drain() []V {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]V, 0, len(c.entries))
	for _, v := range c.entries {
		out = append(out, v)
	}
	c.entries = map[K]V{}
	return out
}

func (c *cache[K, V]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
