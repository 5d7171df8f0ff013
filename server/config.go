package server

import (
	"fmt"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/janelia-flyem/dsvalue/dataset"
	"github.com/janelia-flyem/dsvalue/dsv"
)

const (
	// DefaultWebAddress is the default address of the web server.
	DefaultWebAddress = "localhost:8000"

	// DefaultEngine is the storage engine used when none is configured.
	DefaultEngine = "badger"
)

// Config is the parsed TOML configuration.
type Config struct {
	Server  serverConfig
	Logging dsv.LogConfig
	Store   map[string]interface{}
	Engine  engineConfig
}

type serverConfig struct {
	HTTPAddress string   `toml:"httpAddress"`
	CorsDomains []string `toml:"corsDomains"`
	Note        string
}

type engineConfig struct {
	MaxTypeDepth     int   `toml:"max_type_depth"`
	ChunkBytes       int   `toml:"chunk_bytes"`
	VarChunkElements int   `toml:"var_chunk_elements"`
	MaxElements      int64 `toml:"max_elements"`
	MaxReadElements  int64 `toml:"max_read_elements"`
}

// LoadConfig loads server configuration from a TOML file.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("no server TOML configuration file provided")
	}
	c := new(Config)
	if _, err := toml.DecodeFile(filename, c); err != nil {
		return nil, fmt.Errorf("could not decode TOML config: %v", err)
	}
	if err := c.convertPathsToAbsolute(filename); err != nil {
		return nil, fmt.Errorf("could not convert relative paths to absolute paths in TOML config: %v", err)
	}
	dsv.Infof("Loaded configuration from %s\n", filename)
	return c, nil
}

// Some settings in the TOML can be given as relative paths.
// This function converts them in-place to absolute paths,
// assuming the given paths were relative to the TOML file's own directory.
func (c *Config) convertPathsToAbsolute(configPath string) error {
	configDir := filepath.Dir(configPath)

	// [logging].logfile
	if c.Logging.Logfile != "" && !filepath.IsAbs(c.Logging.Logfile) {
		c.Logging.Logfile = filepath.Join(configDir, c.Logging.Logfile)
	}

	// [store].path
	p, ok := c.Store["path"]
	if !ok {
		return nil
	}
	path, ok := p.(string)
	if !ok {
		return fmt.Errorf("don't understand path setting %v for store", p)
	}
	if !filepath.IsAbs(path) {
		c.Store["path"] = filepath.Join(configDir, path)
	}
	return nil
}

// HTTPAddress returns the configured web address or the default.
func (c *Config) HTTPAddress() string {
	if c.Server.HTTPAddress == "" {
		return DefaultWebAddress
	}
	return c.Server.HTTPAddress
}

// StoreConfig returns the settings of the [store] section for the storage engine.
func (c *Config) StoreConfig() (dsv.StoreConfig, error) {
	settings := dsv.NewConfig()
	settings.SetAll(c.Store)
	engine, found, err := settings.GetString("engine")
	if err != nil {
		return dsv.StoreConfig{}, err
	}
	if !found {
		engine = DefaultEngine
	}
	return dsv.StoreConfig{Config: settings, Engine: engine}, nil
}

// DatasetConfig returns the value engine settings, including the chunk
// compression and checksum from the [store] section.
func (c *Config) DatasetConfig() (dataset.Config, error) {
	config := dataset.Config{
		MaxTypeDepth:     c.Engine.MaxTypeDepth,
		ChunkBytes:       c.Engine.ChunkBytes,
		VarChunkElements: c.Engine.VarChunkElements,
		MaxElements:      c.Engine.MaxElements,
		MaxReadElements:  c.Engine.MaxReadElements,
	}
	settings := dsv.NewConfig()
	settings.SetAll(c.Store)
	name, _, err := settings.GetString("compression")
	if err != nil {
		return config, err
	}
	if config.Compression, err = dsv.ParseCompression(name); err != nil {
		return config, err
	}
	if name, _, err = settings.GetString("checksum"); err != nil {
		return config, err
	}
	if config.Checksum, err = dsv.ParseChecksum(name); err != nil {
		return config, err
	}
	return config, nil
}
