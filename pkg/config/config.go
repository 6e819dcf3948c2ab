// Package config provides configuration management for lineage.
// It supports multi-layer configuration with precedence:
//  1. Built-in defaults (lowest priority)
//  2. Global user config (~/.config/lineage/config.toml)
//  3. Project config (.lineage/config.toml or lineage.toml)
//  4. Environment variables (LINEAGE_*)
//  5. CLI flags (highest priority)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Attach modes for persisted documents.
const (
	// ModeAuto tries extended attributes first and falls back to a side file.
	ModeAuto = "auto"
	// ModeSideFile always writes side files.
	ModeSideFile = "sidefile"
)

// DefaultRegionCapacity is the size of the shared input region (128 MiB).
const DefaultRegionCapacity = 128 << 20

// minRegionCapacity leaves room for the length prefix and an empty array.
const minRegionCapacity = 64

// Config is the main configuration struct for lineage.
type Config struct {
	// Persist configures how lineage documents are attached to outputs.
	Persist PersistConfig `toml:"persist"`

	// Region configures the cross-process shared region and its lock.
	Region RegionConfig `toml:"region"`

	// Hashing configures content fingerprinting.
	Hashing HashingConfig `toml:"hashing"`

	// Log configures diagnostics.
	Log LogConfig `toml:"log"`
}

// PersistConfig holds persistence settings.
type PersistConfig struct {
	// XattrKey is the extended attribute name holding the document.
	XattrKey string `toml:"xattr_key"`

	// SideFileMarker is the suffix of side files: .<basename>.<marker>
	SideFileMarker string `toml:"side_file_marker"`

	// Mode is "auto" or "sidefile".
	Mode string `toml:"mode"`
}

// RegionConfig holds shared region settings.
type RegionConfig struct {
	// Dir is where the root process creates the region file.
	Dir string `toml:"dir"`

	// Capacity is the region size in bytes, including the length prefix.
	Capacity int64 `toml:"capacity"`

	// LockPath is the advisory lock file guarding the region.
	LockPath string `toml:"lock_path"`

	// LockTimeout bounds how long a flush waits for the lock.
	LockTimeout Duration `toml:"lock_timeout"`
}

// HashingConfig holds content hashing settings.
type HashingConfig struct {
	// TrustCached reuses a hash recorded in a file's own lineage when the
	// file's size and modification time still match.
	TrustCached *bool `toml:"trust_cached"`

	// ChunkSize is the read size used while hashing.
	ChunkSize int `toml:"chunk_size"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Verbosity is 0=error .. 4=trace.
	Verbosity *int `toml:"verbosity"`

	// Format is "text" or "json".
	Format string `toml:"format"`
}

// Duration is a time.Duration that decodes from strings like "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// NewConfig creates a new Config with built-in defaults.
func NewConfig() *Config {
	trueVal := true
	verbosity := 1
	tmp := os.TempDir()
	return &Config{
		Persist: PersistConfig{
			XattrKey:       "user.lineage",
			SideFileMarker: "lineage",
			Mode:           ModeAuto,
		},
		Region: RegionConfig{
			Dir:         tmp,
			Capacity:    DefaultRegionCapacity,
			LockPath:    filepath.Join(tmp, "lineage.lock"),
			LockTimeout: Duration{30 * time.Second},
		},
		Hashing: HashingConfig{
			TrustCached: &trueVal,
			ChunkSize:   1 << 20,
		},
		Log: LogConfig{
			Verbosity: &verbosity,
			Format:    "text",
		},
	}
}

// TrustCachedHashes reports whether cached hashes may be reused.
func (c *Config) TrustCachedHashes() bool {
	return c.Hashing.TrustCached != nil && *c.Hashing.TrustCached
}

// Verbosity returns the configured log verbosity.
func (c *Config) Verbosity() int {
	if c.Log.Verbosity == nil {
		return 1
	}
	return *c.Log.Verbosity
}

// Validate checks values that would make the engine misbehave.
func (c *Config) Validate() error {
	switch c.Persist.Mode {
	case ModeAuto, ModeSideFile:
	default:
		return fmt.Errorf("persist.mode must be %q or %q, got %q", ModeAuto, ModeSideFile, c.Persist.Mode)
	}
	if c.Persist.SideFileMarker == "" {
		return fmt.Errorf("persist.side_file_marker must not be empty")
	}
	if c.Region.Capacity < minRegionCapacity {
		return fmt.Errorf("region.capacity must be at least %d bytes, got %d", minRegionCapacity, c.Region.Capacity)
	}
	if c.Region.LockPath == "" {
		return fmt.Errorf("region.lock_path must not be empty")
	}
	if c.Region.LockTimeout.Duration <= 0 {
		return fmt.Errorf("region.lock_timeout must be positive")
	}
	if c.Hashing.ChunkSize <= 0 {
		return fmt.Errorf("hashing.chunk_size must be positive")
	}
	return nil
}

// Merge merges another config into this one (other takes precedence).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Persist
	if other.Persist.XattrKey != "" {
		c.Persist.XattrKey = other.Persist.XattrKey
	}
	if other.Persist.SideFileMarker != "" {
		c.Persist.SideFileMarker = other.Persist.SideFileMarker
	}
	if other.Persist.Mode != "" {
		c.Persist.Mode = other.Persist.Mode
	}

	// Region
	if other.Region.Dir != "" {
		c.Region.Dir = other.Region.Dir
	}
	if other.Region.Capacity != 0 {
		c.Region.Capacity = other.Region.Capacity
	}
	if other.Region.LockPath != "" {
		c.Region.LockPath = other.Region.LockPath
	}
	if other.Region.LockTimeout.Duration != 0 {
		c.Region.LockTimeout = other.Region.LockTimeout
	}

	// Hashing
	if other.Hashing.TrustCached != nil {
		c.Hashing.TrustCached = other.Hashing.TrustCached
	}
	if other.Hashing.ChunkSize != 0 {
		c.Hashing.ChunkSize = other.Hashing.ChunkSize
	}

	// Log
	if other.Log.Verbosity != nil {
		c.Log.Verbosity = other.Log.Verbosity
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}
}
