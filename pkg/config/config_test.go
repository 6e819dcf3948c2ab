package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	if cfg.Persist.XattrKey != "user.lineage" {
		t.Errorf("xattr key should be 'user.lineage', got %q", cfg.Persist.XattrKey)
	}
	if cfg.Persist.Mode != ModeAuto {
		t.Errorf("mode should be %q, got %q", ModeAuto, cfg.Persist.Mode)
	}
	if cfg.Region.Capacity != DefaultRegionCapacity {
		t.Errorf("capacity should be %d, got %d", DefaultRegionCapacity, cfg.Region.Capacity)
	}
	if cfg.Region.LockTimeout.Duration != 30*time.Second {
		t.Errorf("lock timeout should be 30s, got %v", cfg.Region.LockTimeout)
	}
	if !cfg.TrustCachedHashes() {
		t.Error("cached hashes should be trusted by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Persist.Mode = "xattr-only" }},
		{"empty marker", func(c *Config) { c.Persist.SideFileMarker = "" }},
		{"tiny region", func(c *Config) { c.Region.Capacity = 8 }},
		{"no lock path", func(c *Config) { c.Region.LockPath = "" }},
		{"zero timeout", func(c *Config) { c.Region.LockTimeout = Duration{} }},
		{"zero chunk", func(c *Config) { c.Hashing.ChunkSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}
}

func TestMerge(t *testing.T) {
	base := NewConfig()
	falseVal := false
	other := &Config{
		Persist: PersistConfig{Mode: ModeSideFile},
		Region:  RegionConfig{Capacity: 4096, LockTimeout: Duration{time.Second}},
		Hashing: HashingConfig{TrustCached: &falseVal},
	}

	base.Merge(other)

	if base.Persist.Mode != ModeSideFile {
		t.Errorf("mode should be %q after merge, got %q", ModeSideFile, base.Persist.Mode)
	}
	if base.Persist.XattrKey != "user.lineage" {
		t.Errorf("unset fields should keep defaults, got xattr key %q", base.Persist.XattrKey)
	}
	if base.Region.Capacity != 4096 {
		t.Errorf("capacity should be 4096, got %d", base.Region.Capacity)
	}
	if base.Region.LockTimeout.Duration != time.Second {
		t.Errorf("lock timeout should be 1s, got %v", base.Region.LockTimeout)
	}
	if base.TrustCachedHashes() {
		t.Error("trust_cached should be false after merge")
	}

	base.Merge(nil) // should not panic
}

func TestLoadConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	configContent := `
[persist]
mode = "sidefile"
side_file_marker = "prov"

[region]
capacity = 1048576
lock_timeout = "250ms"

[hashing]
trust_cached = false
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg := loadConfigFile(configPath)
	if cfg == nil {
		t.Fatal("loadConfigFile returned nil")
	}

	if cfg.Persist.Mode != ModeSideFile {
		t.Errorf("mode should be %q, got %q", ModeSideFile, cfg.Persist.Mode)
	}
	if cfg.Persist.SideFileMarker != "prov" {
		t.Errorf("marker should be 'prov', got %q", cfg.Persist.SideFileMarker)
	}
	if cfg.Region.Capacity != 1048576 {
		t.Errorf("capacity should be 1048576, got %d", cfg.Region.Capacity)
	}
	if cfg.Region.LockTimeout.Duration != 250*time.Millisecond {
		t.Errorf("lock timeout should be 250ms, got %v", cfg.Region.LockTimeout)
	}
	if cfg.Hashing.TrustCached == nil || *cfg.Hashing.TrustCached {
		t.Error("trust_cached should be false")
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("LoadFile() should fail for a missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(bad, []byte("[region\ncapacity = "), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(bad); err == nil {
		t.Error("LoadFile() should fail for malformed TOML")
	}
}

func TestApplyEnvironmentVariables(t *testing.T) {
	cfg := NewConfig()

	t.Setenv("LINEAGE_PERSIST_MODE", "SIDEFILE")
	t.Setenv(LockEnv, "/run/lineage-test.lock")
	t.Setenv("LINEAGE_LOCK_TIMEOUT", "2s")
	t.Setenv("LINEAGE_REGION_CAPACITY", "65536")
	t.Setenv("LINEAGE_TRUST_CACHED", "no")
	t.Setenv("LINEAGE_VERBOSITY", "3")

	applyEnvironmentVariables(cfg)

	if cfg.Persist.Mode != ModeSideFile {
		t.Errorf("mode should be %q via env var, got %q", ModeSideFile, cfg.Persist.Mode)
	}
	if cfg.Region.LockPath != "/run/lineage-test.lock" {
		t.Errorf("lock path should come from %s, got %q", LockEnv, cfg.Region.LockPath)
	}
	if cfg.Region.LockTimeout.Duration != 2*time.Second {
		t.Errorf("lock timeout should be 2s, got %v", cfg.Region.LockTimeout)
	}
	if cfg.Region.Capacity != 65536 {
		t.Errorf("capacity should be 65536, got %d", cfg.Region.Capacity)
	}
	if cfg.TrustCachedHashes() {
		t.Error("trust_cached should be disabled via env var")
	}
	if cfg.Verbosity() != 3 {
		t.Errorf("verbosity should be 3, got %d", cfg.Verbosity())
	}
}

func TestApplyEnvironmentVariablesIgnoresGarbage(t *testing.T) {
	cfg := NewConfig()

	t.Setenv("LINEAGE_REGION_CAPACITY", "lots")
	t.Setenv("LINEAGE_LOCK_TIMEOUT", "soon")
	t.Setenv("LINEAGE_TRUST_CACHED", "maybe")

	applyEnvironmentVariables(cfg)

	if cfg.Region.Capacity != DefaultRegionCapacity {
		t.Errorf("capacity should stay default, got %d", cfg.Region.Capacity)
	}
	if cfg.Region.LockTimeout.Duration != 30*time.Second {
		t.Errorf("lock timeout should stay default, got %v", cfg.Region.LockTimeout)
	}
	if !cfg.TrustCachedHashes() {
		t.Error("trust_cached should stay enabled")
	}
}

func TestProjectConfigSearch(t *testing.T) {
	tmpDir := t.TempDir()
	projectDir := filepath.Join(tmpDir, "project", "subdir")
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		t.Fatalf("failed to create project dir: %v", err)
	}

	gitDir := filepath.Join(tmpDir, "project", ".git")
	if err := os.MkdirAll(gitDir, 0o755); err != nil {
		t.Fatalf("failed to create .git dir: %v", err)
	}

	configPath := filepath.Join(tmpDir, "project", ConfigFileName)
	configContent := `
[persist]
xattr_key = "user.project"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg := loadProjectConfigFrom(projectDir)
	if cfg == nil {
		t.Fatal("loadProjectConfigFrom returned nil")
	}
	if cfg.Persist.XattrKey != "user.project" {
		t.Errorf("xattr key should be 'user.project', got %q", cfg.Persist.XattrKey)
	}
}

func TestProjectRootDetection(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmpDir, ".git"), 0o755); err != nil {
		t.Fatalf("failed to create .git dir: %v", err)
	}
	if !isProjectRoot(tmpDir) {
		t.Error("directory with .git should be project root")
	}

	tmpDir2 := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir2, "go.mod"), []byte("module x\n"), 0o644); err != nil {
		t.Fatalf("failed to write go.mod: %v", err)
	}
	if !isProjectRoot(tmpDir2) {
		t.Error("directory with go.mod should be project root")
	}

	if isProjectRoot(t.TempDir()) {
		t.Error("empty directory should not be project root")
	}
}
