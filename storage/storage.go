package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/blang/semver"
	"github.com/dustin/go-humanize"

	"github.com/janelia-flyem/dsvalue/dsv"
)

// Engine is a storage engine that can create a storage instance, dsv.Store, which could be
// a database directory in the case of an embedded database Engine implementation.
// Engine implementations can fulfill a variety of interfaces, checkable by runtime cast checks,
// e.g., myGetter, ok := myEngine.(OrderedKeyValueGetter)
type Engine interface {
	fmt.Stringer

	GetName() string
	GetDescription() string
	GetSemVer() semver.Version

	// NewStore returns a new storage engine given the passed configuration.
	// It should return true for initMetadata if the store needs initialization of metadata.
	NewStore(dsv.StoreConfig) (db dsv.Store, initMetadata bool, err error)
}

var (
	enginesMu    sync.RWMutex
	availEngines map[string]Engine
)

// RegisterEngine makes an Engine available to NewStore by name.
func RegisterEngine(e Engine) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	dsv.Debugf("Engine %q registered with storage.\n", e.GetName())
	if availEngines == nil {
		availEngines = map[string]Engine{e.GetName(): e}
	} else {
		availEngines[e.GetName()] = e
	}
}

// GetEngine returns an Engine of the given name.
func GetEngine(name string) Engine {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	if availEngines == nil {
		return nil
	}
	e, found := availEngines[name]
	if !found {
		return nil
	}
	return e
}

// EnginesAvailable returns a description of the available storage engines.
func EnginesAvailable() string {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	var engines []string
	for _, e := range availEngines {
		engines = append(engines, e.String())
	}
	sort.Strings(engines)
	return strings.Join(engines, "; ")
}

// NewStore opens a store with the named engine.  A positive "cache_mb" setting
// wraps the store in a read cache of that many megabytes.
func NewStore(c dsv.StoreConfig) (store ChunkStore, initMetadata bool, err error) {
	e := GetEngine(c.Engine)
	if e == nil {
		return nil, false, fmt.Errorf("storage engine %q is not available, have: %s", c.Engine, EnginesAvailable())
	}
	var db dsv.Store
	if db, initMetadata, err = e.NewStore(c); err != nil {
		return nil, false, err
	}
	var ok bool
	if store, ok = db.(ChunkStore); !ok {
		db.Close()
		return nil, false, fmt.Errorf("storage engine %q does not support ordered batched key-values", c.Engine)
	}
	cacheMB, found, err := c.GetInt("cache_mb")
	if err != nil {
		store.Close()
		return nil, false, err
	}
	if found && cacheMB > 0 {
		size := cacheMB * dsv.Mega
		dsv.Infof("Adding %s read cache to %s\n", humanize.Bytes(uint64(size)), store)
		store = NewCachedStore(store, size)
	}
	return store, initMetadata, nil
}
