// Package config provides configuration management for fsmirror.
// It supports multi-layer configuration with precedence:
//  1. Built-in defaults (lowest priority)
//  2. Global user config (~/.config/fsmirror/config.toml)
//  3. Project config (.fsmirror/config.toml or fsmirror.toml)
//  4. Environment variables (FSMIRROR_*)
//  5. CLI flags (highest priority)
package config

import (
	"fmt"
	"slices"
	"time"
)

// Config is the main configuration struct for fsmirror.
type Config struct {
	// Hash configures content hashing of regular files.
	Hash HashConfig `toml:"hash"`

	// Locations configures the mirror's location classifier.
	Locations LocationsConfig `toml:"locations"`

	// Watch configures the watch command.
	Watch WatchConfig `toml:"watch"`

	// Log configures logging and terminal output.
	Log LogConfig `toml:"log"`
}

// HashConfig holds hashing configuration.
type HashConfig struct {
	// Algorithm is the content hash ("xxh3", "xxhash", "sha256").
	Algorithm string `toml:"algorithm"`

	// CacheSize is the number of (path, size, mtime) keyed digests to keep.
	// Zero disables the cache.
	CacheSize *int `toml:"cache_size"`
}

// LocationsConfig holds the location classifier configuration.
type LocationsConfig struct {
	// Immutable lists well-known roots whose contents never change while
	// the process runs (for example dependency caches).
	Immutable []string `toml:"immutable"`
}

// WatchConfig holds watch-mode configuration.
type WatchConfig struct {
	// DebounceMs is the quiet period before a batch of events is processed.
	DebounceMs int `toml:"debounce_ms"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	// Verbosity is the default -v level (0-4).
	Verbosity *int `toml:"verbosity"`

	// Format is the log format ("text" or "json").
	Format string `toml:"format"`

	// Color forces colored change output on or off. Unset means auto-detect.
	Color *bool `toml:"color"`
}

// Defaults.
const (
	DefaultHashAlgorithm = "xxh3"
	DefaultHashCacheSize = 65536
	DefaultDebounceMs    = 500
	DefaultVerbosity     = 1
	DefaultLogFormat     = "text"
)

// NewConfig creates a new Config with built-in defaults.
func NewConfig() *Config {
	cacheSize := DefaultHashCacheSize
	verbosity := DefaultVerbosity
	return &Config{
		Hash: HashConfig{
			Algorithm: DefaultHashAlgorithm,
			CacheSize: &cacheSize,
		},
		Locations: LocationsConfig{
			Immutable: []string{},
		},
		Watch: WatchConfig{
			DebounceMs: DefaultDebounceMs,
		},
		Log: LogConfig{
			Verbosity: &verbosity,
			Format:    DefaultLogFormat,
		},
	}
}

// Debounce returns the watch debounce period.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Watch.DebounceMs) * time.Millisecond
}

// HashCacheSize returns the configured hash cache size, or zero if unset.
func (c *Config) HashCacheSize() int {
	if c.Hash.CacheSize == nil {
		return 0
	}
	return *c.Hash.CacheSize
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if !slices.Contains([]string{"xxh3", "xxhash", "sha256"}, c.Hash.Algorithm) {
		return fmt.Errorf("invalid hash algorithm %q", c.Hash.Algorithm)
	}
	if c.HashCacheSize() < 0 {
		return fmt.Errorf("invalid hash cache size %d", c.HashCacheSize())
	}
	if c.Watch.DebounceMs < 0 {
		return fmt.Errorf("invalid watch debounce %dms", c.Watch.DebounceMs)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}
	return nil
}

// Merge merges another config into this one (other takes precedence).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Merge hash config
	if other.Hash.Algorithm != "" {
		c.Hash.Algorithm = other.Hash.Algorithm
	}
	if other.Hash.CacheSize != nil {
		c.Hash.CacheSize = other.Hash.CacheSize
	}

	// Immutable roots accumulate across layers
	for _, root := range other.Locations.Immutable {
		if !slices.Contains(c.Locations.Immutable, root) {
			c.Locations.Immutable = append(c.Locations.Immutable, root)
		}
	}

	// Merge watch config
	if other.Watch.DebounceMs != 0 {
		c.Watch.DebounceMs = other.Watch.DebounceMs
	}

	// Merge log config
	if other.Log.Verbosity != nil {
		c.Log.Verbosity = other.Log.Verbosity
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}
	if other.Log.Color != nil {
		c.Log.Color = other.Log.Color
	}
}
