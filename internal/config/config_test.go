package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

// clearEnv keeps host overrides out of LoadWithRepo tests.
func clearEnv(t *testing.T) {
	t.Setenv(EnvPostgresDSN, "")
	t.Setenv(EnvRedisAddr, "")
	t.Setenv(EnvOwner, "")
}

func TestLoad_DefaultWhenMissing(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	def := DefaultConfig()
	if cfg.Backend != def.Backend || cfg.OrderStep != def.OrderStep || cfg.Owner != def.Owner {
		t.Fatalf("Load() = %+v, want defaults %+v", cfg, def)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"order_step": 16, "retry_max_attempts": 2, "owner": "alice"}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.OrderStep != 16 {
		t.Errorf("OrderStep = %d, want 16", cfg.OrderStep)
	}
	if cfg.RetryMaxAttempts != 2 {
		t.Errorf("RetryMaxAttempts = %d, want 2", cfg.RetryMaxAttempts)
	}
	if cfg.Owner != "alice" {
		t.Errorf("Owner = %q, want alice", cfg.Owner)
	}
	if cfg.RetryInitialMs != DefaultConfig().RetryInitialMs {
		t.Errorf("RetryInitialMs = %d, want default", cfg.RetryInitialMs)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{not json}`)

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoad_DisabledTools(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"disabled_tools": ["entry_delete", "parent_reconcile"]}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Fatalf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
	if cfg.DisabledTools[0] != "entry_delete" || cfg.DisabledTools[1] != "parent_reconcile" {
		t.Errorf("DisabledTools = %v", cfg.DisabledTools)
	}
}

func TestLoadWithRepo_BothPresent(t *testing.T) {
	clearEnv(t)
	globalDir := t.TempDir()
	repoRoot := t.TempDir()

	writeConfig(t, globalDir, `{"order_step": 64, "owner": "global", "disabled_tools": ["entry_delete"]}`)
	writeConfig(t, filepath.Join(repoRoot, ".shelf"), `{"owner": "repo", "disabled_tools": ["child_delete"]}`)

	cfg, err := LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	// Repo overrides scalar
	if cfg.Owner != "repo" {
		t.Errorf("Owner = %q, want repo (repo override)", cfg.Owner)
	}
	// Global scalar kept when repo is silent
	if cfg.OrderStep != 64 {
		t.Errorf("OrderStep = %d, want 64", cfg.OrderStep)
	}
	// Arrays merged
	if len(cfg.DisabledTools) != 2 {
		t.Errorf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
}

func TestLoadWithRepo_NeitherPresent(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadWithRepo(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.Backend != BackendSQLite {
		t.Errorf("Backend = %q, want sqlite", cfg.Backend)
	}
	if len(cfg.DisabledTools) != 0 {
		t.Errorf("DisabledTools = %v, want empty", cfg.DisabledTools)
	}
}

func TestLoadWithRepo_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPostgresDSN, "postgres://shelf@localhost/shelf")
	t.Setenv(EnvOwner, "bob")
	t.Setenv(EnvRedisAddr, "localhost:6379")

	cfg, err := LoadWithRepo(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.Backend != BackendPostgres {
		t.Errorf("Backend = %q, want postgres when a DSN is in the environment", cfg.Backend)
	}
	if cfg.Owner != "bob" || cfg.RedisAddr != "localhost:6379" {
		t.Errorf("env not applied: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown backend", func(c *Config) { c.Backend = "mongo" }, true},
		{"postgres without dsn", func(c *Config) { c.Backend = BackendPostgres }, true},
		{"postgres with dsn", func(c *Config) { c.Backend = BackendPostgres; c.PostgresDSN = "postgres://x" }, false},
		{"empty owner", func(c *Config) { c.Owner = " " }, true},
		{"negative retry", func(c *Config) { c.RetryMaxMs = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMerge_ScalarOverride(t *testing.T) {
	base := &Config{OrderStep: 1024, DBMaxOpenConns: 5, RedisChannel: "a"}
	overlay := &Config{OrderStep: 8, RedisChannel: " b "} // DBMaxOpenConns is 0 (zero value)

	result := Merge(base, overlay)

	if result.OrderStep != 8 {
		t.Errorf("OrderStep = %d, want 8 (overlay)", result.OrderStep)
	}
	if result.DBMaxOpenConns != 5 {
		t.Errorf("DBMaxOpenConns = %d, want 5 (base, overlay is zero)", result.DBMaxOpenConns)
	}
	if result.RedisChannel != "b" {
		t.Errorf("RedisChannel = %q, want trimmed overlay", result.RedisChannel)
	}
}

func TestMerge_ArrayMergeDedup(t *testing.T) {
	base := &Config{DisabledTypes: []string{"child", "space"}}
	overlay := &Config{DisabledTypes: []string{"space", " entry "}}

	result := Merge(base, overlay)

	if len(result.DisabledTypes) != 3 {
		t.Fatalf("DisabledTypes = %v, want 3 merged entries", result.DisabledTypes)
	}
	has := make(map[string]bool)
	for _, s := range result.DisabledTypes {
		has[s] = true
	}
	for _, want := range []string{"child", "space", "entry"} {
		if !has[want] {
			t.Errorf("DisabledTypes missing %q", want)
		}
	}
}

func TestFindRepoConfig_InParentDir(t *testing.T) {
	// Create: tmpDir/.shelf/config.json
	//         tmpDir/subdir/deeper/
	tmpDir := t.TempDir()
	writeConfig(t, filepath.Join(tmpDir, ".shelf"), `{}`)
	configPath := filepath.Join(tmpDir, ".shelf", "config.json")

	subdir := filepath.Join(tmpDir, "subdir", "deeper")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	if found := FindRepoConfig(subdir); found != configPath {
		t.Errorf("FindRepoConfig() = %q, want %q", found, configPath)
	}
	if found := FindRepoConfig(tmpDir); found != configPath {
		t.Errorf("FindRepoConfig() = %q, want %q", found, configPath)
	}
}

func TestFindRepoConfig_NotFound(t *testing.T) {
	if found := FindRepoConfig(t.TempDir()); found != "" {
		t.Errorf("FindRepoConfig() = %q, want empty string", found)
	}
}
