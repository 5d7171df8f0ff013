/*
Package memstore is an in-process ordered key-value engine backed by a B-tree.
Nothing is persisted, so it suits tests and throwaway servers.
*/
package memstore

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/blang/semver"
	"github.com/google/btree"

	"github.com/janelia-flyem/dsvalue/dsv"
	"github.com/janelia-flyem/dsvalue/storage"
)

const degree = 32

func init() {
	ver, err := semver.Make("0.1.0")
	if err != nil {
		dsv.Errorf("Unable to make semver in memstore: %v\n", err)
	}
	e := Engine{"memory", "In-memory B-tree", ver}
	storage.RegisterEngine(e)
}

// --- Engine Implementation ------

type Engine struct {
	name   string
	desc   string
	semver semver.Version
}

func (e Engine) GetName() string {
	return e.name
}

func (e Engine) GetDescription() string {
	return e.desc
}

func (e Engine) GetSemVer() semver.Version {
	return e.semver
}

func (e Engine) String() string {
	return fmt.Sprintf("%s [%s]", e.name, e.semver)
}

// NewStore returns an empty in-memory store.  An optional "name" setting
// identifies the store for Equal.
func (e Engine) NewStore(config dsv.StoreConfig) (dsv.Store, bool, error) {
	name, _, err := config.GetString("name")
	if err != nil {
		return nil, false, err
	}
	return New(name), true, nil
}

func less(a, b storage.KeyValue) bool {
	return bytes.Compare(a.K, b.K) < 0
}

// MemStore is safe for concurrent use.
type MemStore struct {
	name string

	mu   sync.RWMutex
	tree *btree.BTreeG[storage.KeyValue]
}

// New returns an empty store.
func New(name string) *MemStore {
	return &MemStore{
		name: name,
		tree: btree.NewG(degree, less),
	}
}

func (db *MemStore) String() string {
	if db.name == "" {
		return "memory store"
	}
	return fmt.Sprintf("memory store %q", db.name)
}

func (db *MemStore) Close() {
	db.mu.Lock()
	db.tree.Clear(false)
	db.mu.Unlock()
}

// Equal returns true if the config names this store.
func (db *MemStore) Equal(config dsv.StoreConfig) bool {
	name, _, err := config.GetString("name")
	return err == nil && config.Engine == "memory" && name == db.name
}

// Len returns the number of stored keys.
func (db *MemStore) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.tree.Len()
}

// ---- KeyValueGetter interface ------

func (db *MemStore) Get(k storage.Key) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	kv, found := db.tree.Get(storage.KeyValue{K: k})
	if !found {
		return nil, nil
	}
	return append([]byte{}, kv.V...), nil
}

func (db *MemStore) Exists(k storage.Key) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.tree.Has(storage.KeyValue{K: k}), nil
}

// ---- OrderedKeyValueGetter interface ------

func (db *MemStore) ascend(kStart, kEnd storage.Key, fn func(kv storage.KeyValue)) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	db.tree.AscendGreaterOrEqual(storage.KeyValue{K: kStart}, func(kv storage.KeyValue) bool {
		if bytes.Compare(kv.K, kEnd) > 0 {
			return false
		}
		fn(kv)
		return true
	})
}

func (db *MemStore) GetRange(kStart, kEnd storage.Key) ([]*storage.KeyValue, error) {
	var kvs []*storage.KeyValue
	db.ascend(kStart, kEnd, func(kv storage.KeyValue) {
		kvs = append(kvs, &storage.KeyValue{K: kv.K, V: append([]byte{}, kv.V...)})
	})
	return kvs, nil
}

func (db *MemStore) KeysInRange(kStart, kEnd storage.Key) ([]storage.Key, error) {
	var keys []storage.Key
	db.ascend(kStart, kEnd, func(kv storage.KeyValue) {
		keys = append(keys, kv.K)
	})
	return keys, nil
}

// ---- KeyValueSetter interface ------

func (db *MemStore) Put(k storage.Key, v []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.tree.ReplaceOrInsert(storage.KeyValue{K: append(storage.Key{}, k...), V: append([]byte{}, v...)})
	return nil
}

func (db *MemStore) Delete(k storage.Key) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.tree.Delete(storage.KeyValue{K: k})
	return nil
}

func (db *MemStore) DeleteRange(kStart, kEnd storage.Key) error {
	keys, err := db.KeysInRange(kStart, kEnd)
	if err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, k := range keys {
		db.tree.Delete(storage.KeyValue{K: k})
	}
	dsv.Debugf("Deleted %d key-value pairs via delete range in %s\n", len(keys), db)
	return nil
}

// --- Batcher interface ----

type batch struct {
	db  *MemStore
	ops []op
}

type op struct {
	del bool
	kv  storage.KeyValue
}

func (db *MemStore) NewBatch() storage.Batch {
	return &batch{db: db}
}

func (b *batch) Delete(k storage.Key) {
	b.ops = append(b.ops, op{del: true, kv: storage.KeyValue{K: append(storage.Key{}, k...)}})
}

func (b *batch) Put(k storage.Key, v []byte) {
	b.ops = append(b.ops, op{kv: storage.KeyValue{K: append(storage.Key{}, k...), V: append([]byte{}, v...)}})
}

// Commit applies all operations under one write lock.
func (b *batch) Commit() error {
	if b.db == nil {
		return fmt.Errorf("batch already committed")
	}
	db := b.db
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, o := range b.ops {
		if o.del {
			db.tree.Delete(o.kv)
		} else {
			db.tree.ReplaceOrInsert(o.kv)
		}
	}
	b.db, b.ops = nil, nil
	return nil
}
