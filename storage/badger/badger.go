package badger

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/blang/semver"
	"github.com/dgraph-io/badger/v3"
	"github.com/twinj/uuid"

	"github.com/janelia-flyem/dsvalue/dsv"
	"github.com/janelia-flyem/dsvalue/storage"
)

const (
	// DefaultVersionsToKeep is the number of versions to keep per key.
	DefaultVersionsToKeep = 1

	// DefaultSyncWrites is true if all writes are synced to disk, thereby making db resilient
	// at cost of speed.
	DefaultSyncWrites = false

	syncInterval = 30 * time.Second
)

func init() {
	ver, err := semver.Make("0.1.0")
	if err != nil {
		dsv.Errorf("Unable to make semver in badger: %v\n", err)
	}
	e := Engine{"badger", "BadgerDB", ver}
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

// NewStore returns a badger. The passed Config must contain "path" string unless
// "inmemory" is true.
func (e Engine) NewStore(config dsv.StoreConfig) (dsv.Store, bool, error) {
	return e.newDB(config)
}

type settings struct {
	path     string
	inMemory bool
}

func parseConfig(config dsv.StoreConfig) (s settings, err error) {
	var found bool
	if s.inMemory, _, err = config.GetBool("inmemory"); err != nil {
		return
	}
	if s.path, found, err = config.GetString("path"); err != nil {
		return
	}
	if !found && !s.inMemory {
		err = fmt.Errorf("%q must be specified for BadgerDB configuration", "path")
		return
	}
	testing, _, err := config.GetBool("testing")
	if err != nil {
		return
	}
	if testing && !s.inMemory {
		s.path = filepath.Join(os.TempDir(), s.path)
	}
	return
}

// TestConfig returns a store configuration for a throwaway on-disk database in the
// temp directory.  Remove it with Engine.Delete.
func TestConfig() dsv.StoreConfig {
	c := dsv.NewConfig()
	c.SetAll(map[string]interface{}{
		"path":    fmt.Sprintf("dsvalue-test-badger-%x", uuid.NewV4().Bytes()),
		"testing": true,
	})
	return dsv.StoreConfig{Config: c, Engine: "badger"}
}

// Delete disposes of a database directory.
func (e Engine) Delete(config dsv.StoreConfig) error {
	s, err := parseConfig(config)
	if err != nil {
		return err
	}
	if s.inMemory {
		return nil
	}
	if _, err := os.Stat(s.path); !os.IsNotExist(err) {
		if err := os.RemoveAll(s.path); err != nil {
			return fmt.Errorf("can't delete old datastore %q: %v", s.path, err)
		}
	}
	return nil
}

// Periodically sync to prevent too many writes from being buffered
// if server crashes.
func syncPeriodically(db *BadgerDB) {
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-db.stopSyncCh:
			dsv.Infof("Stopping sync goroutine for badger @ %s\n", db.directory)
			return
		case <-ticker.C:
			if err := db.bdp.Sync(); err != nil {
				dsv.Errorf("Unable to sync badger @ %s: %v\n", db.directory, err)
			}
		}
	}
}

// newDB returns a Badger backend, creating one at path if it doesn't exist.
func (e Engine) newDB(config dsv.StoreConfig) (*BadgerDB, bool, error) {
	s, err := parseConfig(config)
	if err != nil {
		return nil, false, err
	}

	created := s.inMemory
	if !s.inMemory {
		if _, err := os.Stat(s.path); os.IsNotExist(err) {
			dsv.Infof("Database not already at path (%s). Creating directory...\n", s.path)
			created = true
			if err := os.MkdirAll(s.path, 0744); err != nil {
				return nil, true, fmt.Errorf("can't make directory at %s: %v", s.path, err)
			}
		}
	}

	opts, err := getOptions(s.path, s.inMemory, config.Config)
	if err != nil {
		return nil, false, err
	}

	badgerDB := &BadgerDB{
		directory:  s.path,
		inMemory:   s.inMemory,
		config:     config,
		options:    opts,
		stopSyncCh: make(chan bool),
	}

	timedLog := dsv.NewTimeLog()
	bdp, err := badger.Open(*opts)
	if err != nil {
		return nil, false, err
	}
	badgerDB.bdp = bdp
	timedLog.Infof("Opened %s", badgerDB)

	if !s.inMemory {
		go syncPeriodically(badgerDB)
	}
	return badgerDB, created, nil
}

// --- The BadgerDB Implementation must satisfy a storage.ChunkStore interface ----

type BadgerDB struct {
	// Directory of datastore
	directory string
	inMemory  bool

	// Config at time of Open()
	config dsv.StoreConfig

	options *badger.Options
	bdp     *badger.DB

	// stopSyncCh is used to signal the sync goroutine to stop.
	stopSyncCh chan bool
}

func (db *BadgerDB) String() string {
	if db.inMemory {
		return "in-memory badger"
	}
	return fmt.Sprintf("badger @ %s", db.directory)
}

// Close closes the BadgerDB
func (db *BadgerDB) Close() {
	if db != nil {
		if db.bdp != nil {
			if !db.inMemory {
				db.stopSyncCh <- true
			}
			db.bdp.Close()
			dsv.Infof("Closed %s\n", db)
		}
		db.bdp = nil
		db.options = nil
	}
}

// Equal returns true if the badger matches the given store configuration.
func (db *BadgerDB) Equal(config dsv.StoreConfig) bool {
	s, err := parseConfig(config)
	if err != nil || s.inMemory || db.inMemory {
		return false
	}
	return db.directory == s.path
}

// GetStoreConfig returns the configuration for this store.
func (db *BadgerDB) GetStoreConfig() dsv.StoreConfig {
	return db.config
}

func (db *BadgerDB) check(op string) error {
	if db == nil {
		return fmt.Errorf("can't call %s on nil BadgerDB", op)
	}
	if db.bdp == nil {
		return fmt.Errorf("can't call %s on closed %s", op, db)
	}
	return nil
}

// ---- KeyValueGetter interface ------

// Get returns a value given a key.
func (db *BadgerDB) Get(k storage.Key) ([]byte, error) {
	if err := db.check("Get"); err != nil {
		return nil, err
	}
	var v []byte
	err := db.bdp.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		v, err = item.ValueCopy(nil)
		return err
	})
	return v, err
}

// Exists returns true if the key exists.
func (db *BadgerDB) Exists(k storage.Key) (bool, error) {
	if err := db.check("Exists"); err != nil {
		return false, err
	}
	var found bool
	err := db.bdp.View(func(txn *badger.Txn) error {
		_, err := txn.Get(k)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		found = err == nil
		return err
	})
	return found, err
}

// ---- OrderedKeyValueGetter interface ------

func (db *BadgerDB) iterate(kStart, kEnd storage.Key, keysOnly bool, fn func(item *badger.Item) error) error {
	return db.bdp.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = !keysOnly
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(kStart); it.Valid(); it.Next() {
			item := it.Item()
			if bytes.Compare(item.Key(), kEnd) > 0 {
				break
			}
			if err := fn(item); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetRange returns the key-value pairs with keys in [kStart, kEnd].
func (db *BadgerDB) GetRange(kStart, kEnd storage.Key) ([]*storage.KeyValue, error) {
	if err := db.check("GetRange"); err != nil {
		return nil, err
	}
	var kvs []*storage.KeyValue
	err := db.iterate(kStart, kEnd, false, func(item *badger.Item) error {
		v, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		kvs = append(kvs, &storage.KeyValue{K: item.KeyCopy(nil), V: v})
		return nil
	})
	return kvs, err
}

// KeysInRange returns the keys in [kStart, kEnd].
func (db *BadgerDB) KeysInRange(kStart, kEnd storage.Key) ([]storage.Key, error) {
	if err := db.check("KeysInRange"); err != nil {
		return nil, err
	}
	var keys []storage.Key
	err := db.iterate(kStart, kEnd, true, func(item *badger.Item) error {
		keys = append(keys, item.KeyCopy(nil))
		return nil
	})
	return keys, err
}

// ---- KeyValueSetter interface ------

// Put writes a value with given key.
func (db *BadgerDB) Put(k storage.Key, v []byte) error {
	if err := db.check("Put"); err != nil {
		return err
	}
	return db.bdp.Update(func(txn *badger.Txn) error {
		return txn.Set(k, v)
	})
}

// Delete removes a value with given key.
func (db *BadgerDB) Delete(k storage.Key) error {
	if err := db.check("Delete"); err != nil {
		return err
	}
	return db.bdp.Update(func(txn *badger.Txn) error {
		return txn.Delete(k)
	})
}

// DeleteRange removes all key-value pairs with keys in [kStart, kEnd].  Deletion
// is done in a series of transactions, so it is not atomic.
func (db *BadgerDB) DeleteRange(kStart, kEnd storage.Key) error {
	keys, err := db.KeysInRange(kStart, kEnd)
	if err != nil {
		return err
	}
	wb := db.bdp.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	if err := wb.Flush(); err != nil {
		return err
	}
	dsv.Debugf("Deleted %d key-value pairs via delete range in %s\n", len(keys), db)
	return nil
}

// --- Batcher interface ----

// goBatch collects operations and applies them in a single transaction so the
// whole batch commits or none of it does.
type goBatch struct {
	db   *BadgerDB
	txn  *badger.Txn
	err  error
	size int
}

// NewBatch returns an implementation that allows batch writes
func (db *BadgerDB) NewBatch() storage.Batch {
	if err := db.check("NewBatch"); err != nil {
		dsv.Criticalf("%v\n", err)
		return &goBatch{err: err}
	}
	return &goBatch{db: db, txn: db.bdp.NewTransaction(true)}
}

// --- Batch interface ---

func (batch *goBatch) Delete(k storage.Key) {
	if batch.err != nil {
		return
	}
	batch.err = batch.txn.Delete(k)
}

func (batch *goBatch) Put(k storage.Key, v []byte) {
	if batch.err != nil {
		return
	}
	batch.size += len(k) + len(v)
	batch.err = batch.txn.Set(k, v)
}

func (batch *goBatch) Commit() error {
	if batch.txn == nil {
		return batch.err
	}
	defer batch.txn.Discard()
	if batch.err != nil {
		if errors.Is(batch.err, badger.ErrTxnTooBig) {
			return fmt.Errorf("batch of %d bytes too large for one badger transaction: %w", batch.size, batch.err)
		}
		return batch.err
	}
	return batch.txn.Commit()
}
