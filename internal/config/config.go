// Package config provides configuration for the conversation store.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the convstore configuration.
type Config struct {
	// Server settings
	HTTPPort int `yaml:"http_port"`
	RPCPort  int `yaml:"rpc_port"` // 0 disables the JSON-RPC listener

	// Database
	DatabaseDriver string        `yaml:"database_driver"`
	DatabaseURL    string        `yaml:"database_url"`
	StoreTimeout   time.Duration `yaml:"-"`
	StoreTimeoutMs int           `yaml:"store_timeout_ms"`

	// Cache
	RedisAddr       string        `yaml:"redis_addr"`
	RedisPassword   string        `yaml:"redis_password"`
	RedisDB         int           `yaml:"redis_db"`
	CacheTTL        time.Duration `yaml:"-"`
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`

	// Session resolution
	ResolverPolicyFile string `yaml:"resolver_policy_file"`

	// Reads
	DefaultPageSize int `yaml:"default_page_size"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{
		HTTPPort:        8080,
		DatabaseDriver:  "sqlite3",
		DatabaseURL:     "file:convstore.db?cache=shared&mode=rwc",
		StoreTimeoutMs:  5000,
		CacheTTLSeconds: 300,
		DefaultPageSize: 20,
		LogLevel:        "info",
		LogFormat:       "text",
	}
	cfg.derive()
	return cfg
}

// Load loads configuration from the optional YAML file named by
// CONVSTORE_CONFIG and then from environment variables. Environment
// variables win.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONVSTORE_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.HTTPPort = getEnvInt("HTTP_PORT", cfg.HTTPPort)
	cfg.RPCPort = getEnvInt("RPC_PORT", cfg.RPCPort)
	cfg.DatabaseDriver = getEnv("DATABASE_DRIVER", cfg.DatabaseDriver)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.StoreTimeoutMs = getEnvInt("STORE_TIMEOUT_MS", cfg.StoreTimeoutMs)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("REDIS_DB", cfg.RedisDB)
	cfg.CacheTTLSeconds = getEnvInt("CACHE_TTL_SECONDS", cfg.CacheTTLSeconds)
	cfg.ResolverPolicyFile = getEnv("RESOLVER_POLICY_FILE", cfg.ResolverPolicyFile)
	cfg.DefaultPageSize = getEnvInt("DEFAULT_PAGE_SIZE", cfg.DefaultPageSize)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)

	cfg.derive()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) derive() {
	c.StoreTimeout = time.Duration(c.StoreTimeoutMs) * time.Millisecond
	c.CacheTTL = time.Duration(c.CacheTTLSeconds) * time.Second
	c.DatabaseDriver = strings.ToLower(strings.TrimSpace(c.DatabaseDriver))
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "sqlite", "sqlite3", "mysql", "memory":
	default:
		return fmt.Errorf("unsupported database driver %q", c.DatabaseDriver)
	}
	if c.DatabaseDriver != "memory" && c.DatabaseURL == "" {
		return fmt.Errorf("database url is required for driver %q", c.DatabaseDriver)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port %d", c.HTTPPort)
	}
	if c.RPCPort < 0 || c.RPCPort > 65535 {
		return fmt.Errorf("invalid rpc port %d", c.RPCPort)
	}
	if c.StoreTimeoutMs < 0 {
		return fmt.Errorf("store timeout must not be negative")
	}
	if c.DefaultPageSize < 1 {
		return fmt.Errorf("default page size must be positive")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}
	return nil
}

// CacheEnabled reports whether a Redis read-through cache is configured.
func (c *Config) CacheEnabled() bool {
	return c.RedisAddr != "" && c.CacheTTL > 0
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
