package badger

import (
	"testing"

	"github.com/janelia-flyem/dsvalue/dsv"
	"github.com/janelia-flyem/dsvalue/storage"
	"github.com/janelia-flyem/dsvalue/storage/storetest"
)

func TestInMemory(t *testing.T) {
	c := dsv.StoreConfig{Config: dsv.NewConfig(), Engine: "badger"}
	c.Set("inmemory", true)
	store, _, err := storage.NewStore(c)
	if err != nil {
		t.Fatalf("can't open in-memory badger: %v\n", err)
	}
	defer store.Close()
	storetest.Run(t, store)
}

func TestOnDisk(t *testing.T) {
	c := TestConfig()
	e := storage.GetEngine("badger")
	if e == nil {
		t.Fatalf("badger engine not registered\n")
	}
	store, created, err := storage.NewStore(c)
	if err != nil {
		t.Fatalf("can't open badger: %v\n", err)
	}
	defer func() {
		if err := e.(Engine).Delete(c); err != nil {
			t.Errorf("unable to delete test badger: %v\n", err)
		}
	}()
	if !created {
		t.Errorf("expected new badger directory to be created\n")
	}
	if !store.Equal(c) {
		t.Errorf("badger should equal its own config\n")
	}
	storetest.Run(t, store)

	// Reopen and make sure data persisted.
	k := storage.NewKey(3, []byte("persist"))
	if err := store.Put(k, []byte("yes")); err != nil {
		t.Fatalf("Put: %v\n", err)
	}
	store.Close()
	if store, created, err = storage.NewStore(c); err != nil {
		t.Fatalf("can't reopen badger: %v\n", err)
	}
	defer store.Close()
	if created {
		t.Errorf("reopened badger should not report creation\n")
	}
	v, err := store.Get(k)
	if err != nil || string(v) != "yes" {
		t.Fatalf("expected persisted value, got %q, %v\n", v, err)
	}
}

func TestMissingPath(t *testing.T) {
	c := dsv.StoreConfig{Config: dsv.NewConfig(), Engine: "badger"}
	if _, _, err := storage.NewStore(c); err == nil {
		t.Fatalf("expected error for badger without path\n")
	}
}
