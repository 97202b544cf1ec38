// Package state provides the durable key-value boundary behind the product
// collection and the notification log. Values are opaque bytes; callers own
// the encoding.
package state

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/valeevte/pricewatch/internal/config"
	"github.com/valeevte/pricewatch/internal/database"
)

type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

var ErrUnknownDriver = errors.New("state: unknown storage driver")

// Open builds the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig, db database.DBConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	var (
		store Store
		err   error
	)
	switch driver {
	case "", "sqlite":
		store, err = NewSQLiteStore(ctx, cfg.SQLitePath)
	case "postgres":
		pool, perr := database.Connect(ctx, db, logger)
		if perr != nil {
			return nil, perr
		}
		store, err = NewPostgresStore(ctx, pool)
		if err != nil {
			pool.Close()
		}
	case "redis":
		store, err = NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	case "memory":
		store = NewMemoryStore()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("state store opened", zap.String("driver", driverName(driver)))
	if cfg.KeyPrefix != "" {
		return WithPrefix(store, cfg.KeyPrefix), nil
	}
	return store, nil
}

func driverName(d string) string {
	if d == "" {
		return "sqlite"
	}
	return d
}

type prefixed struct {
	Store
	prefix string
}

// WithPrefix namespaces every key of s.
func WithPrefix(s Store, prefix string) Store {
	return &prefixed{Store: s, prefix: prefix}
}

func (p *prefixed) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return p.Store.Get(ctx, p.prefix+key)
}

func (p *prefixed) Put(ctx context.Context, key string, value []byte) error {
	return p.Store.Put(ctx, p.prefix+key, value)
}
