package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var ErrIncompleteConfig = errors.New("db config incomplete: user/host/port/name must be set")

// Connect opens a pgx pool for cfg and pings it. When a superuser is
// configured the target database is created first if it does not exist.
func Connect(ctx context.Context, cfg DBConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	if !cfg.Validate() {
		return nil, ErrIncompleteConfig
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if admin := cfg.AdminDSN(); admin != "" {
		created, err := ensureDatabase(ctx, admin, cfg.DBName)
		if err != nil {
			return nil, err
		}
		if created {
			logger.Info("created postgres database", zap.String("name", cfg.DBName))
		}
	}

	pool, err := pgxpool.New(ctx, cfg.TargetDSN())
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("connected to postgres", zap.String("host", cfg.Host), zap.String("db", cfg.DBName))
	return pool, nil
}

func ensureDatabase(ctx context.Context, adminDSN, name string) (bool, error) {
	conn, err := pgx.Connect(ctx, adminDSN)
	if err != nil {
		return false, fmt.Errorf("connect as superuser: %w", err)
	}
	defer conn.Close(ctx)

	var exists bool
	err = conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup database: %w", err)
	}
	if exists {
		return false, nil
	}
	if _, err := conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize()); err != nil {
		return false, fmt.Errorf("create database: %w", err)
	}
	return true, nil
}
