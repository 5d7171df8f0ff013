/*
Package storage provides a unified interface to a number of storage engines.
Since each storage engine has different capabilities, this package defines a
number of interfaces in addition to the core Engine interface, which all
storage engines should satisfy.

Keys are a class byte followed by class-specific parts.  Each user of a store
claims its own KeyClass so key spaces never collide.  The class partitioning also
gives cheap range queries over all keys of a class via MinKey and MaxKey.

We assume all storage engines use lexicographic ordering of keys, where a key that
is a prefix of another precedes it.
*/
package storage

import (
	"bytes"
	"fmt"

	"github.com/janelia-flyem/dsvalue/dsv"
)

// Key is the slice of bytes used to store a value in a storage engine.
type Key []byte

const (
	keyMinByte      = 0x00
	keyStandardByte = 0x01
	keyMaxByte      = 0xFF
)

// KeyClass partitions the Key space into a maximum of 256 classes.
type KeyClass byte

// NewKey returns a key of the given class with the parts concatenated.
func NewKey(class KeyClass, parts ...[]byte) Key {
	size := 2
	for _, p := range parts {
		size += len(p)
	}
	b := make([]byte, 2, size)
	b[0] = byte(class)
	b[1] = keyStandardByte
	for _, p := range parts {
		b = append(b, p...)
	}
	return Key(b)
}

// MinKey returns the lexicographically smallest Key for this class.
func MinKey(class KeyClass) Key {
	return Key([]byte{byte(class), keyMinByte})
}

// MaxKey returns the lexicographically largest Key for this class.
func MaxKey(class KeyClass) Key {
	return Key([]byte{byte(class), keyMaxByte})
}

// Class returns the KeyClass of a Key.
func (k Key) Class() (KeyClass, error) {
	if len(k) == 0 {
		return 0, fmt.Errorf("can't get class of length 0 key")
	}
	return KeyClass(k[0]), nil
}

// ClassBytes returns the parts of a key after checking its class.
func (k Key) ClassBytes(class KeyClass) ([]byte, error) {
	if len(k) < 2 || k[0] != byte(class) {
		return nil, fmt.Errorf("bad key %x: expected class %d", []byte(k), class)
	}
	return k[2:], nil
}

func (k Key) String() string {
	return fmt.Sprintf("%x", []byte(k))
}

// KeyValue stores a full storage key-value pair.
type KeyValue struct {
	K Key
	V []byte
}

// Deserialize returns a key-value pair where the value has been deserialized.
func (kv KeyValue) Deserialize(uncompress bool) (KeyValue, error) {
	value, _, err := dsv.DeserializeData(kv.V, uncompress)
	return KeyValue{kv.K, value}, err
}

// KeyValues is a slice of key-value pairs that can be sorted.
type KeyValues []KeyValue

func (kv KeyValues) Len() int      { return len(kv) }
func (kv KeyValues) Swap(i, j int) { kv[i], kv[j] = kv[j], kv[i] }
func (kv KeyValues) Less(i, j int) bool {
	return bytes.Compare(kv[i].K, kv[j].K) < 0
}

type KeyValueGetter interface {
	// Get returns a value given a key, or nil if the key was never set.
	Get(k Key) ([]byte, error)

	// Exists returns true if a key has been set.
	Exists(k Key) (bool, error)
}

type OrderedKeyValueGetter interface {
	KeyValueGetter

	// GetRange returns the key-value pairs with keys in [kStart, kEnd].
	GetRange(kStart, kEnd Key) ([]*KeyValue, error)

	// KeysInRange returns the keys in [kStart, kEnd].
	KeysInRange(kStart, kEnd Key) ([]Key, error)
}

type KeyValueSetter interface {
	// Put writes a value with given key.
	Put(Key, []byte) error

	// Delete deletes a key-value pair so that subsequent Get on the key returns nil.
	Delete(Key) error
}

type OrderedKeyValueSetter interface {
	KeyValueSetter

	// DeleteRange removes all key-value pairs with keys in [kStart, kEnd].
	DeleteRange(kStart, kEnd Key) error
}

// KeyValueDB provides an interface to the simplest storage API: a key-value store.
type KeyValueDB interface {
	dsv.Store
	KeyValueGetter
	KeyValueSetter
}

// OrderedKeyValueDB adds range queries to a base KeyValueDB.
type OrderedKeyValueDB interface {
	dsv.Store
	OrderedKeyValueGetter
	OrderedKeyValueSetter
}

// KeyValueBatcher allow batching operations into an atomic update or transaction.
type KeyValueBatcher interface {
	NewBatch() Batch
}

// Batch groups operations into a transaction.  Either every operation in a
// committed batch becomes visible or none does.
type Batch interface {
	// Delete adds a deletion of the given key to the batch.
	Delete(Key)

	// Put adds to the batch a put using the given key-value.
	Put(k Key, v []byte)

	// Commits a batch of operations and closes the batch.
	Commit() error
}

// ChunkStore is the set of capabilities needed to hold datasets: ordered access
// for listing and removal plus atomic batches for writes.
type ChunkStore interface {
	OrderedKeyValueDB
	KeyValueBatcher
}
