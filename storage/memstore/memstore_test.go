package memstore

import (
	"testing"

	"github.com/janelia-flyem/dsvalue/dsv"
	"github.com/janelia-flyem/dsvalue/storage"
	"github.com/janelia-flyem/dsvalue/storage/storetest"
)

func TestMemStore(t *testing.T) {
	storetest.Run(t, New("test"))
}

func TestRegistered(t *testing.T) {
	c := dsv.StoreConfig{Config: dsv.NewConfig(), Engine: "memory"}
	c.Set("name", "registered")
	store, created, err := storage.NewStore(c)
	if err != nil {
		t.Fatalf("NewStore: %v\n", err)
	}
	defer store.Close()
	if !created {
		t.Errorf("expected in-memory store to need metadata initialization\n")
	}
	if !store.Equal(c) {
		t.Errorf("store %s should equal its own config\n", store)
	}
	other := dsv.StoreConfig{Config: dsv.NewConfig(), Engine: "memory"}
	other.Set("name", "other")
	if store.Equal(other) {
		t.Errorf("store %s should not equal a differently named config\n", store)
	}
}

func TestLen(t *testing.T) {
	db := New("")
	b := db.NewBatch()
	b.Put(storage.NewKey(1, []byte("x")), []byte("1"))
	b.Put(storage.NewKey(1, []byte("y")), []byte("2"))
	b.Put(storage.NewKey(1, []byte("x")), []byte("3"))
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit: %v\n", err)
	}
	if db.Len() != 2 {
		t.Fatalf("expected 2 keys, got %d\n", db.Len())
	}
	v, _ := db.Get(storage.NewKey(1, []byte("x")))
	if string(v) != "3" {
		t.Fatalf("later put in batch should win, got %q\n", v)
	}
}
