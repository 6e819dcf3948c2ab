package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ConfigFileName is the name of the project-level config file.
const ConfigFileName = "lineage.toml"

// ConfigDirName is the name of the project-level config directory.
const ConfigDirName = ".lineage"

// GlobalConfigDir is the name of the global config directory inside user's config.
const GlobalConfigDir = "lineage"

// Environment variables a root process exports so children attach to its
// region. LockEnv also overrides region.lock_path in every process.
const (
	RegionEnv = "LINEAGE_REGION"
	LockEnv   = "LINEAGE_LOCK"
)

// Load loads configuration from all layers in order of precedence:
//  1. Built-in defaults
//  2. Global user config (~/.config/lineage/config.toml)
//  3. Project config (.lineage/config.toml or lineage.toml)
//  4. Environment variables (LINEAGE_*)
//
// CLI flags are applied separately after Load() returns.
func Load() *Config {
	wd, err := os.Getwd()
	if err != nil {
		wd = ""
	}
	return LoadFrom(wd)
}

// LoadFrom loads configuration starting from a specific directory.
func LoadFrom(dir string) *Config {
	cfg := NewConfig()

	// Layer 2: Global user config
	if globalCfg := loadGlobalConfig(); globalCfg != nil {
		cfg.Merge(globalCfg)
	}

	// Layer 3: Project config from specified directory
	if dir != "" {
		if projectCfg := loadProjectConfigFrom(dir); projectCfg != nil {
			cfg.Merge(projectCfg)
		}
	}

	// Layer 4: Environment variables
	applyEnvironmentVariables(cfg)

	return cfg
}

// LoadFile loads defaults, then the given file, then environment variables.
// Unlike the discovered layers, an explicit file must exist and parse.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fileCfg Config
	if _, err := toml.Decode(string(data), &fileCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg := NewConfig()
	cfg.Merge(&fileCfg)
	applyEnvironmentVariables(cfg)
	return cfg, nil
}

// loadGlobalConfig loads the global user configuration from ~/.config/lineage/config.toml.
func loadGlobalConfig() *Config {
	path := GetGlobalConfigPath()
	if path == "" {
		return nil
	}
	return loadConfigFile(path)
}

// loadProjectConfigFrom looks for project configuration starting from the given directory.
func loadProjectConfigFrom(dir string) *Config {
	current := dir
	for {
		for _, candidate := range GetProjectConfigPaths(current) {
			if cfg := loadConfigFile(candidate); cfg != nil {
				return cfg
			}
		}

		// Stop at filesystem root or repository root
		if isProjectRoot(current) {
			break
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return nil
}

// isProjectRoot checks if the directory is a repository root.
func isProjectRoot(dir string) bool {
	markers := []string{".git", "go.mod"}
	for _, marker := range markers {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// loadConfigFile loads a configuration from a TOML file.
func loadConfigFile(path string) *Config {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil
	}

	return &cfg
}

// applyEnvironmentVariables applies LINEAGE_* environment variables to the config.
func applyEnvironmentVariables(cfg *Config) {
	if v := os.Getenv("LINEAGE_XATTR_KEY"); v != "" {
		cfg.Persist.XattrKey = v
	}
	if v := os.Getenv("LINEAGE_SIDE_FILE_MARKER"); v != "" {
		cfg.Persist.SideFileMarker = v
	}
	if v := os.Getenv("LINEAGE_PERSIST_MODE"); v != "" {
		cfg.Persist.Mode = strings.ToLower(v)
	}

	if v := os.Getenv("LINEAGE_REGION_DIR"); v != "" {
		cfg.Region.Dir = v
	}
	if v := os.Getenv("LINEAGE_REGION_CAPACITY"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Region.Capacity = n
		}
	}
	if v := os.Getenv(LockEnv); v != "" {
		cfg.Region.LockPath = v
	}
	if v := os.Getenv("LINEAGE_LOCK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Region.LockTimeout = Duration{d}
		}
	}

	applyBoolEnv("LINEAGE_TRUST_CACHED", &cfg.Hashing.TrustCached)
	if v := os.Getenv("LINEAGE_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Hashing.ChunkSize = n
		}
	}

	if v := os.Getenv("LINEAGE_VERBOSITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Log.Verbosity = &n
		}
	}
	if v := os.Getenv("LINEAGE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// applyBoolEnv applies a boolean environment variable to a pointer.
func applyBoolEnv(envVar string, target **bool) {
	if v := os.Getenv(envVar); v != "" {
		v = strings.ToLower(v)
		if v == "true" || v == "1" || v == "yes" {
			t := true
			*target = &t
		} else if v == "false" || v == "0" || v == "no" {
			f := false
			*target = &f
		}
	}
}

// GetGlobalConfigPath returns the path to the global config file.
func GetGlobalConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, GlobalConfigDir, "config.toml")
}

// GetProjectConfigPaths returns potential project config paths for a given directory.
func GetProjectConfigPaths(dir string) []string {
	return []string{
		filepath.Join(dir, ConfigDirName, "config.toml"),
		filepath.Join(dir, ConfigFileName),
	}
}
