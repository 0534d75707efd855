package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storefront.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Orders.IdempotencyTTL)
	assert.False(t, cfg.Orders.Transactional)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
http:
  addr: ":9090"
store:
  driver: postgres
  dsn: postgres://localhost/storefront?sslmode=disable
  conn_max_lifetime: 90s
carts:
  backend: redis
  ttl: 48h
orders:
  transactional: true
retry:
  max_tries: 3
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 90*time.Second, cfg.Store.ConnMaxLifetime)
	assert.Equal(t, "redis", cfg.Carts.Backend)
	assert.Equal(t, 48*time.Hour, cfg.Carts.TTL)
	assert.True(t, cfg.Orders.Transactional)
	assert.Equal(t, uint(3), cfg.Retry.MaxTries)

	// Untouched sections keep their defaults
	assert.Equal(t, ":50051", cfg.GRPC.Addr)
	assert.Equal(t, 50, cfg.Store.MaxOpenConns)
	assert.Equal(t, 24*time.Hour, cfg.Orders.IdempotencyTTL)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "store: [not, a, map]"))
	assert.Error(t, err)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("STOREFRONT_STORE_DRIVER", "sqlite3")
	t.Setenv("STOREFRONT_STORE_DSN", "file:test.db")
	t.Setenv("STOREFRONT_REDIS_POOL_SIZE", "7")
	t.Setenv("STOREFRONT_ORDERS_TRANSACTIONAL", "true")
	t.Setenv("STOREFRONT_CARTS_TTL", "30m")
	t.Setenv("STOREFRONT_RETRY_MAX_TRIES", "12")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, "sqlite3", cfg.Store.Driver)
	assert.Equal(t, "file:test.db", cfg.Store.DSN)
	assert.Equal(t, 7, cfg.Redis.PoolSize)
	assert.True(t, cfg.Orders.Transactional)
	assert.Equal(t, 30*time.Minute, cfg.Carts.TTL)
	assert.Equal(t, uint(12), cfg.Retry.MaxTries)
}

func TestApplyEnv_BadValue(t *testing.T) {
	t.Setenv("STOREFRONT_SHUTDOWN_TIMEOUT", "soon")
	assert.Error(t, Default().ApplyEnv())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "oracle" }},
		{"sql driver without dsn", func(c *Config) { c.Store.Driver = "mysql" }},
		{"unknown cart backend", func(c *Config) { c.Carts.Backend = "disk" }},
		{"redis carts without addr", func(c *Config) { c.Carts.Backend = "redis"; c.Redis.Addr = "" }},
		{"no http addr", func(c *Config) { c.HTTP.Addr = "" }},
		{"negative ttl", func(c *Config) { c.Carts.TTL = -time.Second }},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }},
		{"unknown pricing policy", func(c *Config) { c.Pricing.MissingProduct = "guess" }},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
