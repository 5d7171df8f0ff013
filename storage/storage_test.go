package storage_test

import (
	"bytes"
	"testing"

	"github.com/janelia-flyem/dsvalue/dsv"
	"github.com/janelia-flyem/dsvalue/storage"
	"github.com/janelia-flyem/dsvalue/storage/memstore"
	"github.com/janelia-flyem/dsvalue/storage/storetest"
)

func TestKeys(t *testing.T) {
	k := storage.NewKey(7, []byte{1, 2}, []byte{3})
	if !bytes.Equal(k, []byte{7, 1, 1, 2, 3}) {
		t.Fatalf("bad key bytes: %v\n", []byte(k))
	}
	class, err := k.Class()
	if err != nil || class != 7 {
		t.Fatalf("expected class 7, got %d, %v\n", class, err)
	}
	parts, err := k.ClassBytes(7)
	if err != nil || !bytes.Equal(parts, []byte{1, 2, 3}) {
		t.Fatalf("bad class bytes: %v, %v\n", parts, err)
	}
	if _, err := k.ClassBytes(8); err == nil {
		t.Fatalf("expected error on class mismatch\n")
	}
	if _, err := storage.Key(nil).Class(); err == nil {
		t.Fatalf("expected error on empty key\n")
	}
	if bytes.Compare(storage.MinKey(7), k) >= 0 || bytes.Compare(k, storage.MaxKey(7)) >= 0 {
		t.Fatalf("key %s not within class bounds\n", k)
	}
	if bytes.Compare(storage.MaxKey(7), storage.MinKey(8)) >= 0 {
		t.Fatalf("class key spaces overlap\n")
	}
}

func TestDeserialize(t *testing.T) {
	data := []byte("some chunk data that compresses some chunk data")
	s, err := dsv.SerializeData(data, dsv.Snappy, dsv.CRC32)
	if err != nil {
		t.Fatalf("SerializeData: %v\n", err)
	}
	kv, err := storage.KeyValue{K: storage.NewKey(1), V: s}.Deserialize(true)
	if err != nil {
		t.Fatalf("Deserialize: %v\n", err)
	}
	if !bytes.Equal(kv.V, data) {
		t.Fatalf("expected %q, got %q\n", data, kv.V)
	}
}

func TestUnknownEngine(t *testing.T) {
	c := dsv.StoreConfig{Config: dsv.NewConfig(), Engine: "nosuch"}
	if _, _, err := storage.NewStore(c); err == nil {
		t.Fatalf("expected error for unknown engine\n")
	}
}

func TestCachedStore(t *testing.T) {
	storetest.Run(t, storage.NewCachedStore(memstore.New("cached"), 1024*1024))
}

func TestCacheCoherence(t *testing.T) {
	base := memstore.New("base")
	cached := storage.NewCachedStore(base, 1024*1024)
	k := storage.NewKey(2, []byte("k"))
	if err := cached.Put(k, []byte("v1")); err != nil {
		t.Fatalf("Put: %v\n", err)
	}
	b := cached.NewBatch()
	b.Put(k, []byte("v2"))
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit: %v\n", err)
	}
	if v, _ := cached.Get(k); string(v) != "v2" {
		t.Fatalf("cache returned stale value %q after batch\n", v)
	}
	if err := cached.DeleteRange(storage.MinKey(2), storage.MaxKey(2)); err != nil {
		t.Fatalf("DeleteRange: %v\n", err)
	}
	if v, _ := cached.Get(k); v != nil {
		t.Fatalf("cache returned %q after range delete\n", v)
	}
}

func TestCacheSetting(t *testing.T) {
	c := dsv.StoreConfig{Config: dsv.NewConfig(), Engine: "memory"}
	c.Set("cache_mb", 1)
	store, _, err := storage.NewStore(c)
	if err != nil {
		t.Fatalf("NewStore: %v\n", err)
	}
	defer store.Close()
	if _, ok := store.(interface{ HitRate() float64 }); !ok {
		t.Fatalf("expected cached store when cache_mb is set, got %s\n", store)
	}
	if engines := storage.EnginesAvailable(); engines == "" {
		t.Fatalf("no engines registered\n")
	}
}
