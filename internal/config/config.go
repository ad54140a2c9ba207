// Package config provides application configuration management.
// Configuration files are JSON or HCL; both decode into the same structure
// and missing properties keep their defaults.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"quote-engine/internal/errors"
	"quote-engine/internal/logging"
)

// Config is the main application configuration
type Config struct {
	// Version is the configuration version
	Version string `json:"version" hcl:"version,optional"`

	// Currency is the quote currency
	Currency string `json:"currency" hcl:"currency,optional"`

	// ModelCacheSize is the maximum number of compiled model graphs to keep
	ModelCacheSize int64 `json:"model_cache_size" hcl:"model_cache_size,optional"`

	// Server contains HTTP facade configuration
	Server ServerConfig `json:"server" hcl:"server,block"`

	// Logging contains logging configuration
	Logging logging.Config `json:"logging" hcl:"logging,block"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	// Addr is the listen address
	Addr string `json:"addr" hcl:"addr,optional"`
}

// Default returns a default configuration
func Default() *Config {
	return &Config{
		Version:        "1.0",
		Currency:       "USD",
		ModelCacheSize: 128,
		Server: ServerConfig{
			Addr: ":8480",
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load loads configuration from a JSON or HCL file
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hcl":
		var hclCfg hclConfig
		if err := hclsimple.DecodeFile(path, nil, &hclCfg); err != nil {
			return nil, errors.Wrap(errors.TypeConfig, "cannot decode HCL configuration", err).WithField(path)
		}
		hclCfg.apply(cfg)
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.TypeConfig, "cannot read configuration", err).WithField(path)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.TypeConfig, "cannot decode JSON configuration", err).WithField(path)
		}
	default:
		return nil, errors.Newf(errors.TypeConfig, "unsupported configuration format %q", filepath.Ext(path)).WithField(path)
	}
	return cfg, nil
}

// hclConfig is the HCL decode target; pointer fields keep every property and
// block optional so partial files layer over the defaults.
type hclConfig struct {
	Version        *string         `hcl:"version,optional"`
	Currency       *string         `hcl:"currency,optional"`
	ModelCacheSize *int64          `hcl:"model_cache_size,optional"`
	Server         *ServerConfig   `hcl:"server,block"`
	Logging        *logging.Config `hcl:"logging,block"`
}

func (h *hclConfig) apply(cfg *Config) {
	if h.Version != nil {
		cfg.Version = *h.Version
	}
	if h.Currency != nil {
		cfg.Currency = *h.Currency
	}
	if h.ModelCacheSize != nil {
		cfg.ModelCacheSize = *h.ModelCacheSize
	}
	if h.Server != nil {
		cfg.Server = *h.Server
	}
	if h.Logging != nil {
		cfg.Logging = *h.Logging
	}
}

// Save saves configuration to a JSON file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Global configuration instance
var globalConfig = Default()

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// Set sets the global configuration
func Set(config *Config) {
	globalConfig = config
}
