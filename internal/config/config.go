// Package config provides configuration management for memento-index.
// It loads settings from environment variables and provides sensible
// defaults for all configuration options.
//
// User settings (e.g., display_name) are persisted to the settings table in
// the database. LoadConfigFromDB reads from the database first and falls back
// to environment variables. SaveConfig writes user settings to the database.
package config

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable the indexing/search/decay engine needs, grouped
// by the component that owns it.
type Config struct {
	Storage   StorageConfig
	Embedding EmbeddingConfig
	Tokens    TokenConfig
	Preflight PreflightConfig
	Cache     CacheConfig
	User      UserConfig
}

// StorageConfig locates the per-profile SQLite databases and the paths the
// engine is allowed to read source files from.
type StorageConfig struct {
	DBDir        string   // Directory holding memento-{profile}.db files (default: ./data)
	AllowedPaths []string // Path bases the pre-flight gate and ingestor may read from
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider string        // ollama, simulated (default: ollama)
	OllamaURL string       // Ollama API URL (default: http://localhost:11434)
	Model    string        // Embedding model name (default: nomic-embed-text)
	Dim      int           // Embedding dimension (default: 768)
	Timeout  time.Duration // Per-call timeout (default: 5s)
}

// TokenConfig mirrors internal/tokenbudget.Config's tunables.
type TokenConfig struct {
	MaxTokens     int     // Overall response token ceiling (default: 25000)
	SafetyBuffer  float64 // Fraction of MaxTokens usable before truncation kicks in (default: 0.8)
	CharsPerToken float64 // Heuristic chars-per-token ratio (default: 3.5)
	MinItems      int     // Minimum items to keep even if over budget (default: 1)
}

// PreflightConfig mirrors internal/preflight.Config's tunables.
type PreflightConfig struct {
	MinContentLength      int     // default: 10
	MaxContentLength      int     // default: 100000
	AnchorStrict          bool    // default: false
	DuplicateThreshold    float64 // cosine similarity treated as a near-duplicate warning (default: 0.95)
	MaxMemoryTokens       int     // default: 25000
	TokenWarningThreshold float64 // fraction of MaxMemoryTokens that triggers a warning (default: 0.8)
}

// CacheConfig mirrors internal/cache.Config's tunables.
type CacheConfig struct {
	TTL           time.Duration // default: 5m
	EntriesPerKey int           // default: 20
	TokenBudget   int           // default: 2000
}

// UserConfig contains user-specific settings that persist across restarts.
// These settings are stored in the settings table in the database.
type UserConfig struct {
	// DisplayName is the display name shown for the user.
	// Env var: MEMORY_DISPLAY_NAME
	// Database key: display_name
	DisplayName string
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. User settings (UserConfig) are loaded from environment variables
// only. Use LoadConfigFromDB to also read persisted user settings from the
// database.
func LoadConfig() (*Config, error) {
	cfg := buildBaseConfig()
	return cfg, nil
}

// LoadConfigFromDB loads configuration from both environment variables and
// the database. The database value takes precedence over the environment
// variable for user settings. Falls back to the environment variable when no
// DB entry exists.
//
// Returns an error if db is nil.
func LoadConfigFromDB(db *sql.DB) (*Config, error) {
	if db == nil {
		return nil, errors.New("config: database connection is required")
	}

	cfg := buildBaseConfig()

	displayName, err := getSetting(db, "display_name")
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("config: failed to load display_name from database: %w", err)
	}
	if displayName != "" {
		cfg.User.DisplayName = displayName
	}

	return cfg, nil
}

// SaveConfig persists user configuration settings to the settings table in
// the database. Uses upsert semantics: inserts if not present, updates if
// already stored.
//
// Returns an error if db is nil.
func (c *Config) SaveConfig(db *sql.DB) error {
	if db == nil {
		return errors.New("config: database connection is required")
	}
	if err := setSetting(db, "display_name", c.User.DisplayName); err != nil {
		return fmt.Errorf("config: failed to save display_name: %w", err)
	}
	return nil
}

// getSetting retrieves a single setting value by key from the settings table.
// Returns an empty string and sql.ErrNoRows if the key does not exist.
func getSetting(db *sql.DB, key string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// setSetting writes a key-value pair to the settings table using upsert
// semantics.
func setSetting(db *sql.DB, key, value string) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// buildBaseConfig constructs a Config with values from environment variables
// and defaults. This is the shared base for both LoadConfig and
// LoadConfigFromDB.
func buildBaseConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DBDir:        getEnv("MEMORY_DB_DIR", "./data"),
			AllowedPaths: getEnvPathList("MEMORY_ALLOWED_PATHS", nil),
		},
		Embedding: EmbeddingConfig{
			Provider:  getEnv("MEMORY_EMBEDDING_PROVIDER", "ollama"),
			OllamaURL: getEnv("MEMORY_OLLAMA_URL", "http://localhost:11434"),
			Model:     getEnv("MEMORY_EMBEDDING_MODEL", "nomic-embed-text"),
			Dim:       getEnvInt("MEMORY_EMBEDDING_DIM", 768),
			Timeout:   getEnvDuration("MEMORY_EMBEDDING_TIMEOUT", 5*time.Second),
		},
		Tokens: TokenConfig{
			MaxTokens:     getEnvInt("MCP_MAX_TOKENS", 25000),
			SafetyBuffer:  getEnvFloat("MCP_TOKEN_SAFETY_BUFFER", 0.8),
			CharsPerToken: getEnvFloat("MCP_CHARS_PER_TOKEN", 3.5),
			MinItems:      getEnvInt("MCP_MIN_ITEMS", 1),
		},
		Preflight: PreflightConfig{
			MinContentLength:      getEnvInt("MCP_MIN_CONTENT_LENGTH", 10),
			MaxContentLength:      getEnvInt("MCP_MAX_CONTENT_LENGTH", 100_000),
			AnchorStrict:          getEnvBool("MCP_ANCHOR_STRICT", false),
			DuplicateThreshold:    getEnvFloat("MCP_DUPLICATE_THRESHOLD", 0.95),
			MaxMemoryTokens:       getEnvInt("MCP_MAX_MEMORY_TOKENS", 25000),
			TokenWarningThreshold: getEnvFloat("MCP_TOKEN_WARNING_THRESHOLD", 0.8),
		},
		Cache: CacheConfig{
			TTL:           getEnvDuration("MCP_CACHE_TTL_SECONDS", 5*time.Minute),
			EntriesPerKey: getEnvInt("MCP_CACHE_ENTRIES_PER_KEY", 20),
			TokenBudget:   getEnvInt("MCP_CACHE_TOKEN_BUDGET", 2000),
		},
		User: UserConfig{
			DisplayName: getEnv("MEMORY_DISPLAY_NAME", ""),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. If the environment variable exists but cannot be parsed as an
// integer, it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default
// value. It recognizes "true", "1", "yes" as true and "false", "0", "no" as
// false (case-insensitive).
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable, accepting either
// a Go duration string (e.g. "5m") or a bare integer number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

// getEnvPathList retrieves a colon-separated list of paths.
func getEnvPathList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, p := range strings.Split(value, ":") {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
