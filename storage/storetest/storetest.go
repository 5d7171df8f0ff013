// Package storetest checks that a storage.ChunkStore behaves as the dataset layer expects.
package storetest

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/janelia-flyem/dsvalue/storage"
)

const (
	classA storage.KeyClass = 10
	classB storage.KeyClass = 11
)

func key(class storage.KeyClass, i int) storage.Key {
	return storage.NewKey(class, []byte(fmt.Sprintf("k%03d", i)))
}

// Run exercises the getter, setter, range and batch operations of an empty store.
func Run(t *testing.T, store storage.ChunkStore) {
	t.Run("GetPut", func(t *testing.T) { testGetPut(t, store) })
	t.Run("Range", func(t *testing.T) { testRange(t, store) })
	t.Run("Batch", func(t *testing.T) { testBatch(t, store) })
}

func testGetPut(t *testing.T, store storage.ChunkStore) {
	k := key(classA, 1)
	v, err := store.Get(k)
	if err != nil {
		t.Fatalf("Get on missing key: %v\n", err)
	}
	if v != nil {
		t.Fatalf("expected nil for missing key, got %v\n", v)
	}
	if found, err := store.Exists(k); err != nil || found {
		t.Fatalf("Exists on missing key returned %t, %v\n", found, err)
	}
	if err := store.Put(k, []byte("first")); err != nil {
		t.Fatalf("Put: %v\n", err)
	}
	if err := store.Put(k, []byte("second")); err != nil {
		t.Fatalf("Put: %v\n", err)
	}
	if v, err = store.Get(k); err != nil {
		t.Fatalf("Get: %v\n", err)
	}
	if string(v) != "second" {
		t.Fatalf("expected overwritten value %q, got %q\n", "second", v)
	}
	if found, err := store.Exists(k); err != nil || !found {
		t.Fatalf("Exists on set key returned %t, %v\n", found, err)
	}
	if err := store.Delete(k); err != nil {
		t.Fatalf("Delete: %v\n", err)
	}
	if v, err = store.Get(k); err != nil || v != nil {
		t.Fatalf("expected deleted key to read nil, got %v, %v\n", v, err)
	}
}

func testRange(t *testing.T, store storage.ChunkStore) {
	for i := 0; i < 10; i++ {
		if err := store.Put(key(classA, i), []byte{byte(i)}); err != nil {
			t.Fatalf("Put %d: %v\n", i, err)
		}
		if err := store.Put(key(classB, i), []byte{byte(100 + i)}); err != nil {
			t.Fatalf("Put %d: %v\n", i, err)
		}
	}
	kvs, err := store.GetRange(key(classA, 3), key(classA, 6))
	if err != nil {
		t.Fatalf("GetRange: %v\n", err)
	}
	if len(kvs) != 4 {
		t.Fatalf("expected 4 key-values in inclusive range, got %d\n", len(kvs))
	}
	for i, kv := range kvs {
		if !bytes.Equal(kv.K, key(classA, i+3)) || kv.V[0] != byte(i+3) {
			t.Errorf("range result %d is %s -> %v\n", i, kv.K, kv.V)
		}
	}
	keys, err := store.KeysInRange(storage.MinKey(classB), storage.MaxKey(classB))
	if err != nil {
		t.Fatalf("KeysInRange: %v\n", err)
	}
	if len(keys) != 10 {
		t.Fatalf("expected 10 keys in class, got %d\n", len(keys))
	}
	for i := 1; i < len(keys); i++ {
		if bytes.Compare(keys[i-1], keys[i]) >= 0 {
			t.Fatalf("keys not in order: %s then %s\n", keys[i-1], keys[i])
		}
	}
	if err := store.DeleteRange(storage.MinKey(classA), storage.MaxKey(classA)); err != nil {
		t.Fatalf("DeleteRange: %v\n", err)
	}
	if keys, err = store.KeysInRange(storage.MinKey(classA), storage.MaxKey(classA)); err != nil || len(keys) != 0 {
		t.Fatalf("expected empty class after DeleteRange, got %d keys, %v\n", len(keys), err)
	}
	if v, err := store.Get(key(classA, 4)); err != nil || v != nil {
		t.Fatalf("expected range-deleted key to read nil, got %v, %v\n", v, err)
	}
	if v, err := store.Get(key(classB, 4)); err != nil || len(v) != 1 || v[0] != 104 {
		t.Fatalf("other class disturbed by DeleteRange: %v, %v\n", v, err)
	}
	if err := store.DeleteRange(storage.MinKey(classB), storage.MaxKey(classB)); err != nil {
		t.Fatalf("DeleteRange: %v\n", err)
	}
}

func testBatch(t *testing.T, store storage.ChunkStore) {
	if err := store.Put(key(classA, 50), []byte("old")); err != nil {
		t.Fatalf("Put: %v\n", err)
	}
	batch := store.NewBatch()
	batch.Put(key(classA, 51), []byte("a"))
	batch.Put(key(classA, 52), []byte("b"))
	batch.Delete(key(classA, 50))

	if v, err := store.Get(key(classA, 51)); err != nil || v != nil {
		t.Fatalf("batched put visible before commit: %v, %v\n", v, err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit: %v\n", err)
	}
	for i, want := range map[int]string{51: "a", 52: "b"} {
		v, err := store.Get(key(classA, i))
		if err != nil {
			t.Fatalf("Get: %v\n", err)
		}
		if string(v) != want {
			t.Errorf("key %d: expected %q, got %q\n", i, want, v)
		}
	}
	if v, err := store.Get(key(classA, 50)); err != nil || v != nil {
		t.Fatalf("batched delete not applied: %v, %v\n", v, err)
	}
	if err := store.DeleteRange(storage.MinKey(classA), storage.MaxKey(classA)); err != nil {
		t.Fatalf("DeleteRange: %v\n", err)
	}
}
