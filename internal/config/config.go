package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Backends understood by the Backend field.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Environment variables that override file configuration.
const (
	EnvPostgresDSN = "SHELF_POSTGRES_DSN"
	EnvRedisAddr   = "SHELF_REDIS_ADDR"
	EnvOwner       = "SHELF_OWNER"
)

// Config holds application configuration.
type Config struct {
	// Backend selects the store: "sqlite" (embedded, default) or "postgres".
	Backend string `json:"backend,omitempty"`

	// PostgresDSN is required when Backend is "postgres".
	PostgresDSN string `json:"postgres_dsn,omitempty"`

	// Owner is the account every command acts for. The store only ever
	// reads and writes this owner's rows.
	Owner string `json:"owner,omitempty"`

	// OrderStep is the gap left between sort orders on append and renumber.
	OrderStep int64 `json:"order_step,omitempty"`

	// RetryMaxAttempts bounds how often a transient persistence failure is
	// retried before the command fails. 1 disables retries.
	RetryMaxAttempts int `json:"retry_max_attempts,omitempty"`

	// RetryInitialMs and RetryMaxMs shape the exponential backoff between retries.
	RetryInitialMs int `json:"retry_initial_ms,omitempty"`
	RetryMaxMs     int `json:"retry_max_ms,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited). Only set if you experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// RedisAddr enables cross-process change notices when set.
	RedisAddr string `json:"redis_addr,omitempty"`

	// RedisChannel is the pub/sub channel for change notices.
	RedisChannel string `json:"redis_channel,omitempty"`

	// LogMode is "dev" (console, debug level) or "prod" (JSON, info level).
	LogMode string `json:"log_mode,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// All tools are enabled by default. Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of type names to disable entirely.
	// All tools belonging to disabled types are excluded from registration.
	// Known types: "entry", "child", "space", "parent". Unknown type names are logged as warnings.
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Backend:          BackendSQLite,
		Owner:            "local",
		OrderStep:        1024,
		RetryMaxAttempts: 4,
		RetryInitialMs:   50,
		RetryMaxMs:       1000,
		RedisChannel:     "shelf:changes",
		LogMode:          "prod",
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.shelf.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.shelf) and repo (.shelf) directories.
// Repo config is found by walking upward from startDir to find the nearest .shelf/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing. Environment overrides are applied last.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	// Walk upward from startDir to find repo config
	repoConfigPath := FindRepoConfig(startDir)
	repo, err := loadFileRaw(repoConfigPath)
	if err != nil {
		return nil, err
	}

	// Apply defaults, then global, then repo, then environment
	cfg := Merge(Merge(DefaultConfig(), global), repo)
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// FindRepoConfig walks upward from startDir to find the nearest .shelf/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".shelf", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root, not found
			return ""
		}
		dir = parent
	}
}

// ApplyEnv overlays environment overrides. lookup is os.LookupEnv outside tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvPostgresDSN); ok && strings.TrimSpace(v) != "" {
		c.PostgresDSN = strings.TrimSpace(v)
		if c.Backend == "" || c.Backend == BackendSQLite {
			c.Backend = BackendPostgres
		}
	}
	if v, ok := lookup(EnvRedisAddr); ok && strings.TrimSpace(v) != "" {
		c.RedisAddr = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvOwner); ok && strings.TrimSpace(v) != "" {
		c.Owner = strings.TrimSpace(v)
	}
}

// Validate rejects configurations no backend can start with.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSQLite:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("backend %q requires postgres_dsn or %s", BackendPostgres, EnvPostgresDSN)
		}
	default:
		return fmt.Errorf("unknown backend %q (want %q or %q)", c.Backend, BackendSQLite, BackendPostgres)
	}
	if strings.TrimSpace(c.Owner) == "" {
		return errors.New("owner must not be empty")
	}
	if c.OrderStep < 0 {
		return fmt.Errorf("order_step must be positive, got %d", c.OrderStep)
	}
	if c.RetryMaxAttempts < 0 || c.RetryInitialMs < 0 || c.RetryMaxMs < 0 {
		return errors.New("retry settings must not be negative")
	}
	return nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// File doesn't exist, return zero config
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.Backend = mergeString(base.Backend, overlay.Backend)
	result.PostgresDSN = mergeString(base.PostgresDSN, overlay.PostgresDSN)
	result.Owner = mergeString(base.Owner, overlay.Owner)
	result.RedisAddr = mergeString(base.RedisAddr, overlay.RedisAddr)
	result.RedisChannel = mergeString(base.RedisChannel, overlay.RedisChannel)
	result.LogMode = mergeString(base.LogMode, overlay.LogMode)

	result.OrderStep = overlay.OrderStep
	if result.OrderStep == 0 {
		result.OrderStep = base.OrderStep
	}

	result.RetryMaxAttempts = mergeInt(base.RetryMaxAttempts, overlay.RetryMaxAttempts)
	result.RetryInitialMs = mergeInt(base.RetryInitialMs, overlay.RetryInitialMs)
	result.RetryMaxMs = mergeInt(base.RetryMaxMs, overlay.RetryMaxMs)
	result.DBMaxOpenConns = mergeInt(base.DBMaxOpenConns, overlay.DBMaxOpenConns)
	result.DBMaxIdleConns = mergeInt(base.DBMaxIdleConns, overlay.DBMaxIdleConns)

	// Arrays: merge and deduplicate
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func mergeString(base, overlay string) string {
	if strings.TrimSpace(overlay) != "" {
		return strings.TrimSpace(overlay)
	}
	return base
}

func mergeInt(base, overlay int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
