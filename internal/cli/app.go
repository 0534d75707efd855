package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/config"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/port"
)

// App is the wired service graph shared by serve and the stress tool.
type App struct {
	Store   port.RecordStore
	Catalog *service.CatalogService
	Carts   *service.CartService
	Orders  *service.OrderService

	closers []func() error
	logger  *slog.Logger
}

// NewApp opens the configured stores and builds the services on top of them.
// Close releases everything NewApp opened.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{logger: logger}

	records, err := app.openRecordStore(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	store := records
	var idempotency port.IdempotencyRepository
	if repo, ok := records.(port.IdempotencyRepository); ok {
		idempotency = repo
	}

	if cfg.Carts.Backend == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			PoolSize: cfg.Redis.PoolSize,
		})
		app.closers = append(app.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			app.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		logger.Info("connected to redis", "addr", cfg.Redis.Addr)

		carts := storage.NewRedisAdapter(rdb, cfg.Carts.TTL, cfg.Orders.IdempotencyTTL)
		store = storage.NewSplitStore(records, carts)
		idempotency = carts
	}

	policy, err := service.ParseMissingProductPolicy(cfg.Pricing.MissingProduct)
	if err != nil {
		app.Close()
		return nil, err
	}

	guard := service.NewInventoryGuard(store)
	orderOpts := []service.OrderOption{service.WithOrderLogger(logger)}
	if idempotency != nil {
		orderOpts = append(orderOpts, service.WithIdempotency(idempotency))
	} else {
		logger.Warn("no idempotency backend, Idempotency-Key headers are ignored", "driver", cfg.Store.Driver)
	}
	if cfg.Orders.Transactional {
		tx, ok := store.(port.Transactor)
		if !ok {
			app.Close()
			return nil, errors.New("orders.transactional requires a store with transactions")
		}
		orderOpts = append(orderOpts, service.WithTransactionalConversion(tx))
		logger.Info("transactional order conversion enabled")
	}

	app.Store = store
	app.Catalog = service.NewCatalogService(store, store)
	app.Carts = service.NewCartService(store, guard, service.NewTotaler(store, policy),
		service.WithCartLogger(logger),
		service.WithCartRetry(service.RetryConfig{
			MaxTries:        cfg.Retry.MaxTries,
			InitialInterval: cfg.Retry.InitialInterval,
		}),
	)
	app.Orders = service.NewOrderService(store, store, guard, orderOpts...)
	return app, nil
}

func (a *App) openRecordStore(ctx context.Context, cfg *config.Config) (port.RecordStore, error) {
	if cfg.Store.Driver == "memory" {
		a.logger.Info("using in-memory store")
		return storage.NewMemoryStore(cfg.Orders.IdempotencyTTL), nil
	}

	db, dialect, err := openDB(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	a.logger.Info("connected to " + dialect.Name)

	adapter := storage.NewSQLAdapter(db, dialect)
	if cfg.Store.Migrate {
		if err := adapter.Migrate(ctx); err != nil {
			return nil, err
		}
		a.logger.Info("schema migrated", "dialect", dialect.Name)
	}
	return adapter, nil
}

// openDB opens and pings a pooled connection for a SQL driver.
func openDB(ctx context.Context, cfg config.StoreConfig) (*sql.DB, storage.Dialect, error) {
	dialect, err := storage.DialectFor(cfg.Driver)
	if err != nil {
		return nil, storage.Dialect{}, err
	}

	dsn, err := driverDSN(dialect, cfg.DSN)
	if err != nil {
		return nil, dialect, err
	}

	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, dialect, fmt.Errorf("open %s: %w", dialect.Name, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, dialect, fmt.Errorf("ping %s: %w", dialect.Name, err)
	}
	return db, dialect, nil
}

// driverDSN forces parseTime on MySQL DSNs; timestamps are scanned into
// time.Time.
func driverDSN(dialect storage.Dialect, dsn string) (string, error) {
	if dialect.Driver != "mysql" {
		return dsn, nil
	}
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	mc.ParseTime = true
	return mc.FormatDSN(), nil
}

// Close closes connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
