package dsv

import (
	"encoding/json"
	"testing"
)

func TestConfig(t *testing.T) {
	c := NewConfig()
	c.Set("Path", "/tmp/data")
	c.Set("cache_mb", int64(64))
	c.Set("inmemory", true)
	c.Set("ratio", json.Number("12"))

	s, found, err := c.GetString("path")
	if err != nil || !found || s != "/tmp/data" {
		t.Errorf("bad string setting: %q, %t, %v\n", s, found, err)
	}
	i, found, err := c.GetInt("CACHE_MB")
	if err != nil || !found || i != 64 {
		t.Errorf("bad int setting: %d, %t, %v\n", i, found, err)
	}
	i, _, err = c.GetInt("ratio")
	if err != nil || i != 12 {
		t.Errorf("bad json.Number setting: %d, %v\n", i, err)
	}
	b, found, err := c.GetBool("inmemory")
	if err != nil || !found || !b {
		t.Errorf("bad bool setting: %t, %t, %v\n", b, found, err)
	}
	if _, found, _ = c.GetString("missing"); found {
		t.Errorf("expected missing setting to be not found\n")
	}
	if _, _, err = c.GetInt("path"); err == nil {
		t.Errorf("expected error reading string setting as int\n")
	}
}
