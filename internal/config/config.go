// Package config loads server settings from a YAML file and STOREFRONT_*
// environment variables, in that order of precedence (env wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "STOREFRONT_"

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	Store     StoreConfig     `yaml:"store"`
	Carts     CartsConfig     `yaml:"carts"`
	Redis     RedisConfig     `yaml:"redis"`
	Orders    OrdersConfig    `yaml:"orders"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Retry     RetryConfig     `yaml:"retry"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type GRPCConfig struct {
	Addr string `yaml:"addr"` // empty disables the gRPC listener
}

type StoreConfig struct {
	Driver          string        `yaml:"driver"` // memory | mysql | postgres | sqlite3
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	Migrate         bool          `yaml:"migrate"`
}

type CartsConfig struct {
	Backend string        `yaml:"backend"` // store | redis
	TTL     time.Duration `yaml:"ttl"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	PoolSize int    `yaml:"pool_size"`
}

type OrdersConfig struct {
	Transactional  bool          `yaml:"transactional"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
}

type PricingConfig struct {
	MissingProduct string `yaml:"missing_product"` // skip | fail
}

type RetryConfig struct {
	MaxTries        uint          `yaml:"max_tries"`
	InitialInterval time.Duration `yaml:"initial_interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{Addr: ":8080"},
		GRPC: GRPCConfig{Addr: ":50051"},
		Store: StoreConfig{
			Driver:          "memory",
			MaxOpenConns:    50,
			MaxIdleConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
			Migrate:         true,
		},
		Carts: CartsConfig{Backend: "store"},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 100,
		},
		Orders:  OrdersConfig{IdempotencyTTL: 24 * time.Hour},
		Pricing: PricingConfig{MissingProduct: "skip"},
		Retry: RetryConfig{
			MaxTries:        8,
			InitialInterval: 5 * time.Millisecond,
		},
		Log:             LogConfig{Level: "info", Format: "text"},
		Telemetry:       TelemetryConfig{ServiceName: "storefront"},
		ShutdownTimeout: 5 * time.Second,
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from STOREFRONT_* variables, e.g.
// STOREFRONT_STORE_DSN or STOREFRONT_ORDERS_TRANSACTIONAL.
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"HTTP_ADDR":               &c.HTTP.Addr,
		"GRPC_ADDR":               &c.GRPC.Addr,
		"STORE_DRIVER":            &c.Store.Driver,
		"STORE_DSN":               &c.Store.DSN,
		"CARTS_BACKEND":           &c.Carts.Backend,
		"REDIS_ADDR":              &c.Redis.Addr,
		"PRICING_MISSING_PRODUCT": &c.Pricing.MissingProduct,
		"LOG_LEVEL":               &c.Log.Level,
		"LOG_FORMAT":              &c.Log.Format,
		"TELEMETRY_SERVICE_NAME":  &c.Telemetry.ServiceName,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"STORE_MAX_OPEN_CONNS": &c.Store.MaxOpenConns,
		"STORE_MAX_IDLE_CONNS": &c.Store.MaxIdleConns,
		"REDIS_POOL_SIZE":      &c.Redis.PoolSize,
	}
	for name, dst := range ints {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*dst = n
		}
	}

	bools := map[string]*bool{
		"STORE_MIGRATE":        &c.Store.Migrate,
		"ORDERS_TRANSACTIONAL": &c.Orders.Transactional,
		"TELEMETRY_ENABLED":    &c.Telemetry.Enabled,
	}
	for name, dst := range bools {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*dst = b
		}
	}

	durations := map[string]*time.Duration{
		"STORE_CONN_MAX_LIFETIME": &c.Store.ConnMaxLifetime,
		"CARTS_TTL":               &c.Carts.TTL,
		"ORDERS_IDEMPOTENCY_TTL":  &c.Orders.IdempotencyTTL,
		"RETRY_INITIAL_INTERVAL":  &c.Retry.InitialInterval,
		"SHUTDOWN_TIMEOUT":        &c.ShutdownTimeout,
	}
	for name, dst := range durations {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*dst = d
		}
	}

	if v, ok := os.LookupEnv(envPrefix + "RETRY_MAX_TRIES"); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("%sRETRY_MAX_TRIES: %w", envPrefix, err)
		}
		c.Retry.MaxTries = uint(n)
	}

	return nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory":
	case "mysql", "postgres", "sqlite3":
		if c.Store.DSN == "" {
			return fmt.Errorf("%w: store.dsn is required for driver %s", ErrInvalidConfig, c.Store.Driver)
		}
	default:
		return fmt.Errorf("%w: unknown store.driver %q", ErrInvalidConfig, c.Store.Driver)
	}

	switch c.Carts.Backend {
	case "store":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("%w: redis.addr is required for the redis cart backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown carts.backend %q", ErrInvalidConfig, c.Carts.Backend)
	}

	if c.HTTP.Addr == "" {
		return fmt.Errorf("%w: http.addr is required", ErrInvalidConfig)
	}
	if c.Carts.TTL < 0 || c.Orders.IdempotencyTTL < 0 {
		return fmt.Errorf("%w: ttl values must not be negative", ErrInvalidConfig)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: shutdown_timeout must be positive", ErrInvalidConfig)
	}

	switch c.Pricing.MissingProduct {
	case "", "skip", "fail":
	default:
		return fmt.Errorf("%w: unknown pricing.missing_product %q", ErrInvalidConfig, c.Pricing.MissingProduct)
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log.format %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}
