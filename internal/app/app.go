// Package app wires the state store, catalogue, oracle and worker together
// for the server and the CLI.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/valeevte/pricewatch/internal/config"
	"github.com/valeevte/pricewatch/internal/notify"
	"github.com/valeevte/pricewatch/internal/oracle"
	"github.com/valeevte/pricewatch/internal/products"
	"github.com/valeevte/pricewatch/internal/scheduler"
	"github.com/valeevte/pricewatch/internal/state"
)

type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Store     state.Store
	Center    *notify.Center
	Repo      *products.Repository
	Oracle    products.QuoteOracle
	Searcher  products.Searcher
	Scheduler *scheduler.Scheduler
}

// ConfigFromEnv reads PW_CONFIG (default config/config.yaml) and PW_ENV_ONLY.
func ConfigFromEnv() (config.Config, error) {
	path := os.Getenv("PW_CONFIG")
	if path == "" {
		path = "config/config.yaml"
	}
	envOnly := false
	if raw := os.Getenv("PW_ENV_ONLY"); raw != "" {
		envOnly = strings.EqualFold(raw, "true") || raw == "1"
	}
	return config.Load(path, envOnly)
}

// New opens the configured store and loads persisted state.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	store, err := state.Open(ctx, cfg.Storage, cfg.DB, logger)
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}

	center := notify.NewCenter(store, logger.Named("notify"))
	if err := center.Load(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	repo := products.NewRepository(store, center, logger.Named("products"), products.ValidateOptions{
		RequireCompetitor: cfg.Products.RequireCompetitor,
	})
	if err := repo.Load(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	pageOracle := oracle.NewPageOracle(cfg.Oracle, logger.Named("oracle"))
	var searcher products.Searcher
	if cfg.Search.BaseURL != "" {
		s, err := oracle.NewSiteSearcher(cfg.Search, cfg.Oracle, logger.Named("search"))
		if err != nil {
			logger.Warn("search disabled", zap.Error(err))
		} else {
			searcher = s
		}
	}

	refresher := products.NewRefresher(pageOracle, center, logger.Named("refresh"))
	sched := scheduler.New(repo, refresher, center, scheduler.Config{
		CompetitorDelay: cfg.Scheduler.CompetitorDelay,
		ProductDelay:    cfg.Scheduler.ProductDelay,
		QueueSize:       cfg.Scheduler.QueueSize,
	}, logger.Named("scheduler"))

	return &App{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Center:    center,
		Repo:      repo,
		Oracle:    pageOracle,
		Searcher:  searcher,
		Scheduler: sched,
	}, nil
}

// Ready reports whether the state store answers.
func (a *App) Ready(ctx context.Context) error {
	_, _, err := a.Store.Get(ctx, "products")
	return err
}

func (a *App) Close() error {
	a.Scheduler.Stop()
	return a.Store.Close()
}
