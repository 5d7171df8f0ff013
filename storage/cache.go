package storage

import (
	"fmt"

	"github.com/coocood/freecache"

	"github.com/janelia-flyem/dsvalue/dsv"
)

// cachedStore keeps recently read and written values in a freecache.Cache in front
// of another store.  Writes go through to the store before the cache is updated.
type cachedStore struct {
	ChunkStore
	cache *freecache.Cache
}

// NewCachedStore wraps a store with a read cache of roughly size bytes.
// Values larger than 1/1024 of the cache size are not cached.
func NewCachedStore(store ChunkStore, size int) ChunkStore {
	return &cachedStore{
		ChunkStore: store,
		cache:      freecache.NewCache(size),
	}
}

func (c *cachedStore) String() string {
	return fmt.Sprintf("cached %s", c.ChunkStore)
}

// Unwrap returns the underlying store.
func (c *cachedStore) Unwrap() ChunkStore {
	return c.ChunkStore
}

func (c *cachedStore) Get(k Key) ([]byte, error) {
	if v, err := c.cache.Get(k); err == nil {
		return v, nil
	}
	v, err := c.ChunkStore.Get(k)
	if err != nil || v == nil {
		return v, err
	}
	c.set(k, v)
	return v, nil
}

func (c *cachedStore) set(k Key, v []byte) {
	if err := c.cache.Set(k, v, 0); err != nil {
		// Too large to cache, so make sure no stale copy lingers.
		c.cache.Del(k)
		dsv.Debugf("not caching %d byte value for key %s: %v\n", len(v), k, err)
	}
}

func (c *cachedStore) Put(k Key, v []byte) error {
	if err := c.ChunkStore.Put(k, v); err != nil {
		c.cache.Del(k)
		return err
	}
	c.set(k, v)
	return nil
}

func (c *cachedStore) Delete(k Key) error {
	c.cache.Del(k)
	return c.ChunkStore.Delete(k)
}

func (c *cachedStore) DeleteRange(kStart, kEnd Key) error {
	keys, err := c.ChunkStore.KeysInRange(kStart, kEnd)
	if err != nil {
		return err
	}
	for _, k := range keys {
		c.cache.Del(k)
	}
	return c.ChunkStore.DeleteRange(kStart, kEnd)
}

func (c *cachedStore) NewBatch() Batch {
	return &cachedBatch{store: c, batch: c.ChunkStore.NewBatch(), last: make(map[string][]byte)}
}

// HitRate returns the fraction of cache lookups that were hits.
func (c *cachedStore) HitRate() float64 {
	return c.cache.HitRate()
}

type cachedBatch struct {
	store *cachedStore
	batch Batch

	// last value put for each touched key, nil for a deletion
	last map[string][]byte
}

func (b *cachedBatch) Put(k Key, v []byte) {
	b.batch.Put(k, v)
	b.last[string(k)] = v
}

func (b *cachedBatch) Delete(k Key) {
	b.batch.Delete(k)
	b.last[string(k)] = nil
}

// Commit evicts every touched key first so a failed commit leaves no stale entries,
// then caches the new values once the batch is durable.
func (b *cachedBatch) Commit() error {
	for k := range b.last {
		b.store.cache.Del([]byte(k))
	}
	if err := b.batch.Commit(); err != nil {
		return err
	}
	for k, v := range b.last {
		if v != nil {
			b.store.set(Key(k), v)
		}
	}
	return nil
}
