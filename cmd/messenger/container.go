package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	messenger "github.com/goliatone/go-messenger"
	"github.com/goliatone/go-messenger/core"
	messengermigrations "github.com/goliatone/go-messenger/migrations"
	"github.com/goliatone/go-messenger/queue"
	"github.com/goliatone/go-messenger/session"
	sqlstore "github.com/goliatone/go-messenger/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
	"go.uber.org/dig"
)

// Container holds the resolved runtime singletons. Close releases the
// database and redis connections it opened.
type Container struct {
	config   core.Config
	hub      *messenger.Hub
	database *database
	redis    *redisHandle
}

func (c *Container) Hub() *messenger.Hub  { return c.hub }
func (c *Container) Config() core.Config { return c.config }

func (c *Container) Close() error {
	var err error
	if c.redis != nil && c.redis.client != nil {
		err = c.redis.client.Close()
	}
	if c.database != nil && c.database.client != nil {
		if closeErr := c.database.client.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

// database is only opened when the queue or session backend is SQL.
type database struct {
	client *persistence.Client
}

type redisHandle struct {
	client *redis.Client
}

type persistenceConfig struct {
	driver string
	server string
	debug  bool
}

func (c persistenceConfig) GetDebug() bool                { return c.debug }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "go-messenger" }

// NewContainer wires the hub and its backends from cfg.
func NewContainer(ctx context.Context, cfg core.Config, logger glog.Logger, provider glog.LoggerProvider) (*Container, error) {
	d := dig.New()
	provide := []any{
		func() context.Context { return ctx },
		func() core.Config { return cfg },
		func() glog.Logger { return logger },
		func() glog.LoggerProvider { return provider },
		newDatabase,
		newRedis,
		newSessionBackend,
		newBroker,
		newHub,
	}
	for _, constructor := range provide {
		if err := d.Provide(constructor); err != nil {
			return nil, err
		}
	}

	var out *Container
	err := d.Invoke(func(hub *messenger.Hub, db *database, rh *redisHandle) {
		out = &Container{config: cfg, hub: hub, database: db, redis: rh}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func usesSQL(cfg core.Config) bool {
	queueSQL := (cfg.UseMessageQueue || cfg.Queue.UseOutboundQueue) &&
		strings.EqualFold(strings.TrimSpace(cfg.Queue.Transport), core.QueueTransportSQL)
	sessionSQL := strings.EqualFold(strings.TrimSpace(cfg.Session.Backend), core.SessionBackendSQL)
	return queueSQL || sessionSQL
}

func newDatabase(ctx context.Context, cfg core.Config) (*database, error) {
	if !usesSQL(cfg) {
		return &database{}, nil
	}
	client, err := openDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := registerMigrations(ctx, client, cfg.Database.Driver); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &database{client: client}, nil
}

func openDatabase(cfg core.DatabaseConfig) (*persistence.Client, error) {
	driver := strings.TrimSpace(cfg.Driver)
	var dialect schema.Dialect
	switch driver {
	case core.DatabaseDriverSQLite, "sqlite":
		driver = core.DatabaseDriverSQLite
		dialect = sqlitedialect.New()
	case core.DatabaseDriverPostgres, "pg":
		driver = core.DatabaseDriverPostgres
		dialect = pgdialect.New()
	default:
		return nil, core.ConfigurationError(nil, "unsupported database driver", map[string]any{"driver": cfg.Driver})
	}
	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, core.ConfigurationError(err, "open database", map[string]any{"driver": driver})
	}
	if driver == core.DatabaseDriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(persistenceConfig{driver: driver, server: cfg.DSN, debug: cfg.Debug}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, core.BrokerUnavailable(err, "connect database", map[string]any{"driver": driver})
	}
	return client, nil
}

func registerMigrations(ctx context.Context, client *persistence.Client, driver string) error {
	return messengermigrations.Register(ctx, driver, func(_ context.Context, _ string, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	})
}

func newRedis(ctx context.Context, cfg core.Config) (*redisHandle, error) {
	if !strings.EqualFold(strings.TrimSpace(cfg.Session.Backend), core.SessionBackendRedis) {
		return &redisHandle{}, nil
	}
	client, err := session.DialRedis(ctx, cfg.Session.RedisURL)
	if err != nil {
		return nil, core.BrokerUnavailable(err, "connect redis", nil)
	}
	return &redisHandle{client: client}, nil
}

func newSessionBackend(cfg core.Config, db *database, rh *redisHandle) (session.Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Session.Backend)) {
	case core.SessionBackendRedis:
		return session.NewRedisBackend(rh.client, cfg.Session.KeyPrefix, cfg.Session.TTL)
	case core.SessionBackendSQL:
		store, err := sqlstore.NewSessionStore(db.client.DB())
		if err != nil {
			return nil, err
		}
		store.TTL = cfg.Session.TTL
		if cfg.Session.CacheTTL <= 0 {
			return store, nil
		}
		cacheConfig := repositorycache.DefaultConfig()
		cacheConfig.TTL = cfg.Session.CacheTTL
		cacheService, err := repositorycache.NewCacheService(cacheConfig)
		if err != nil {
			return nil, fmt.Errorf("session cache: %w", err)
		}
		return sqlstore.NewCachedSessionStore(store, cacheService)
	default:
		backend := session.NewMemoryBackend()
		backend.TTL = cfg.Session.TTL
		return backend, nil
	}
}

func newBroker(cfg core.Config, db *database) (queue.Broker, error) {
	if strings.EqualFold(strings.TrimSpace(cfg.Queue.Transport), core.QueueTransportSQL) && db.client != nil {
		store, err := sqlstore.NewQueueStore(db.client.DB())
		if err != nil {
			return nil, err
		}
		store.LeaseTimeout = cfg.Queue.LeaseTimeout
		store.PollInterval = cfg.Queue.PollInterval
		return store, nil
	}
	broker := queue.NewMemoryBroker(cfg.Queue.LeaseTimeout)
	broker.PollInterval = cfg.Queue.PollInterval
	return broker, nil
}

func newHub(cfg core.Config, logger glog.Logger, provider glog.LoggerProvider, backend session.Backend, broker queue.Broker) (*messenger.Hub, error) {
	return messenger.New(cfg,
		messenger.WithLogger(logger),
		messenger.WithLoggerProvider(provider),
		messenger.WithSessionBackend(backend),
		messenger.WithBroker(broker),
	)
}
