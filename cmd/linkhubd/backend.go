package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jmerrifield20/LinkHub/internal/auditlog"
	"github.com/jmerrifield20/LinkHub/internal/docstore"
	"github.com/jmerrifield20/LinkHub/internal/identity"
	"github.com/jmerrifield20/LinkHub/internal/pagecache"
)

// backend groups the persistence collaborators chosen by store.driver.
type backend struct {
	store      docstore.Store
	identities identity.Repository
	ledger     auditlog.Ledger
	closers    []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackend(ctx context.Context, driver string, logger *zap.Logger) (*backend, error) {
	b := &backend{}
	switch driver {
	case "postgres":
		db, err := pgxpool.New(ctx, viper.GetString("database.url"))
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")
		b.store = docstore.NewPostgresStore(db, logger)
		b.identities = identity.NewPostgresRepository(db)
		b.ledger = auditlog.NewPostgresLedger(db, logger)
		b.closers = append(b.closers, db.Close)
		return b, nil

	case "badger":
		s, err := docstore.NewBadgerStore(viper.GetString("store.badger_dir"), logger)
		if err != nil {
			return nil, err
		}
		b.store = s
	case "sqlite":
		s, err := docstore.NewSQLiteStore(viper.GetString("store.sqlite_path"), logger)
		if err != nil {
			return nil, err
		}
		b.store = s
	case "memory", "":
		b.store = docstore.NewMemoryStore()
		logger.Warn("using in-memory store; data is lost on restart")
	default:
		return nil, fmt.Errorf("unknown store.driver %q", driver)
	}

	// Embedded drivers keep identities next to the account documents. The
	// audit chain lives in memory for them.
	b.identities = identity.NewDocstoreRepository(b.store)
	b.ledger = auditlog.NewMemoryLedger()
	store := b.store
	b.closers = append(b.closers, func() {
		if err := store.Close(); err != nil {
			logger.Warn("close store", zap.Error(err))
		}
	})
	return b, nil
}

// openCache returns the public page cache, a health check for Redis (nil
// otherwise) and a close function.
func openCache(logger *zap.Logger) (pagecache.Cache, func(context.Context) error, func(), error) {
	ttl := viper.GetDuration("cache.ttl")
	addr := viper.GetString("redis.addr")
	if addr == "" {
		logger.Info("page cache: in-process", zap.Duration("ttl", ttl))
		return pagecache.NewMemoryCache(ttl), nil, func() {}, nil
	}
	client, err := pagecache.Connect(pagecache.ConnectOptions{
		Addr:     addr,
		Password: viper.GetString("redis.password"),
		DB:       viper.GetInt("redis.db"),
	}, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("page cache: redis", zap.String("addr", addr), zap.Duration("ttl", ttl))
	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warn("close redis", zap.Error(err))
		}
	}
	return pagecache.NewRedisCache(client, ttl), ping, closeFn, nil
}

func verifyLedger(ctx context.Context, ledger auditlog.Ledger, logger *zap.Logger) {
	if err := ledger.Verify(ctx); err != nil {
		logger.Warn("audit ledger integrity check FAILED", zap.Error(err))
		return
	}
	n, _ := ledger.Len(ctx)
	root, _ := ledger.Root(ctx)
	logger.Info("audit ledger verified",
		zap.Int("entries", n),
		zap.String("root", root),
	)
}
