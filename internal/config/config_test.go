package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"CONVSTORE_CONFIG", "HTTP_PORT", "RPC_PORT", "DATABASE_DRIVER", "DATABASE_URL", "STORE_TIMEOUT_MS",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "CACHE_TTL_SECONDS", "RESOLVER_POLICY_FILE",
	"DEFAULT_PAGE_SIZE", "LOG_LEVEL", "LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "sqlite3", cfg.DatabaseDriver)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 20, cfg.DefaultPageSize)
	assert.False(t, cfg.CacheEnabled())
}

func TestLoadEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("RPC_PORT", "9091")
	t.Setenv("DATABASE_DRIVER", "MySQL")
	t.Setenv("DATABASE_URL", "user:pass@tcp(localhost:3306)/convstore")
	t.Setenv("STORE_TIMEOUT_MS", "250")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("CACHE_TTL_SECONDS", "60")
	t.Setenv("DEFAULT_PAGE_SIZE", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, 9091, cfg.RPCPort)
	assert.Equal(t, "mysql", cfg.DatabaseDriver)
	assert.Equal(t, 250*time.Millisecond, cfg.StoreTimeout)
	assert.Equal(t, time.Minute, cfg.CacheTTL)
	assert.Equal(t, 20, cfg.DefaultPageSize)
	assert.True(t, cfg.CacheEnabled())
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "convstore.yaml")
	content := `
http_port: 7070
database_driver: memory
default_page_size: 50
log_format: json
redis_addr: cache:6379
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONVSTORE_CONFIG", path)
	t.Setenv("HTTP_PORT", "7171")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7171, cfg.HTTPPort)
	assert.Equal(t, "memory", cfg.DatabaseDriver)
	assert.Equal(t, 50, cfg.DefaultPageSize)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "cache:6379", cfg.RedisAddr)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONVSTORE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	bad := Default()
	bad.DatabaseDriver = "postgres"
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.DatabaseURL = ""
	assert.Error(t, bad.Validate())

	mem := Default()
	mem.DatabaseDriver = "memory"
	mem.DatabaseURL = ""
	assert.NoError(t, mem.Validate())

	bad = Default()
	bad.LogFormat = "xml"
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.DefaultPageSize = 0
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.RPCPort = 70000
	assert.Error(t, bad.Validate())
}
