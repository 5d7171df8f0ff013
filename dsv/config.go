package dsv

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	Kilo = 1 << 10
	Mega = 1 << 20
	Giga = 1 << 30
)

// Config is a map of keyword to arbitrary data to specify configurations via keyword.
// Keys are case-insensitive.
type Config map[string]interface{}

func NewConfig() Config {
	return make(Config)
}

// Set sets a configuration value using a lower-cased key.
func (c Config) Set(key string, value interface{}) {
	c[strings.ToLower(key)] = value
}

// SetAll replaces the configuration with the given settings.
func (c *Config) SetAll(settings map[string]interface{}) {
	*c = make(Config, len(settings))
	for k, v := range settings {
		(*c)[strings.ToLower(k)] = v
	}
}

// GetAll returns all settings.
func (c Config) GetAll() map[string]interface{} {
	return c
}

// Get returns the raw value for a key.
func (c Config) Get(key string) (value interface{}, found bool) {
	if c == nil {
		return nil, false
	}
	value, found = c[strings.ToLower(key)]
	return
}

// GetString returns a string setting or found = false if the key is absent.
func (c Config) GetString(key string) (s string, found bool, err error) {
	var v interface{}
	if v, found = c.Get(key); !found {
		return
	}
	var ok bool
	if s, ok = v.(string); !ok {
		err = fmt.Errorf("setting %q must be a string, got %v", key, v)
	}
	return
}

// GetInt returns an int setting, accepting any of the numeric forms produced by
// TOML or JSON decoding as well as numeric strings.
func (c Config) GetInt(key string) (i int, found bool, err error) {
	var v interface{}
	if v, found = c.Get(key); !found {
		return
	}
	switch n := v.(type) {
	case int:
		i = n
	case int32:
		i = int(n)
	case int64:
		i = int(n)
	case uint64:
		i = int(n)
	case float64:
		if n != float64(int(n)) {
			err = fmt.Errorf("setting %q must be a whole number, got %v", key, n)
		}
		i = int(n)
	case json.Number:
		var i64 int64
		i64, err = n.Int64()
		i = int(i64)
	case string:
		i, err = strconv.Atoi(n)
	default:
		err = fmt.Errorf("setting %q must be an integer, got %v", key, v)
	}
	return
}

// GetBool returns a bool setting.
func (c Config) GetBool(key string) (b bool, found bool, err error) {
	var v interface{}
	if v, found = c.Get(key); !found {
		return
	}
	switch t := v.(type) {
	case bool:
		b = t
	case string:
		b, err = strconv.ParseBool(t)
	default:
		err = fmt.Errorf("setting %q must be a bool, got %v", key, v)
	}
	return
}

// StoreCloser stores can be closed.
type StoreCloser interface {
	Close()
}

// StoreIdentifiable stores can say whether they are identified by a given store configuration.
type StoreIdentifiable interface {
	// Equal returns true if this store matches the given store configuration.
	Equal(StoreConfig) bool
}

// Store allows polyglot persistence of data.
type Store interface {
	fmt.Stringer
	StoreCloser
	StoreIdentifiable
}

// StoreConfig is a store-specific configuration where each store implementation
// defines the types of parameters it accepts.
type StoreConfig struct {
	Config

	// Engine is a simple name describing the engine, e.g., "badger"
	Engine string
}
