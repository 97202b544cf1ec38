package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/valeevte/pricewatch/internal/app"
	cronrunner "github.com/valeevte/pricewatch/internal/cron"
	"github.com/valeevte/pricewatch/internal/httpapi"
	"github.com/valeevte/pricewatch/internal/logger"
	"github.com/valeevte/pricewatch/internal/notify"
	"github.com/valeevte/pricewatch/internal/products"
)

func main() {
	_ = godotenv.Load() // load .env if present; not fatal if missing

	cfg, err := app.ConfigFromEnv()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// graceful shutdown coordination
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}

	// the worker runs until ctx is cancelled
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Scheduler.Run(ctx)
	}()

	cronRunner := cronrunner.New(log, ctx)
	if cfg.Cron.Enabled {
		_, err := cronRunner.Add(cfg.Cron.AutoRefresh, func(ctx context.Context) {
			if err := a.Scheduler.EnqueueBatch(nil, ""); err != nil {
				log.Warn("auto refresh not queued", zap.Error(err))
			}
		})
		if err != nil {
			log.Fatal("invalid auto refresh schedule", zap.String("spec", cfg.Cron.AutoRefresh), zap.Error(err))
		}
	}
	cronRunner.Start()

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	(&httpapi.HealthHandler{Ready: a.Ready}).Register(engine)
	(&products.Handler{
		Repo:        a.Repo,
		Queue:       a.Scheduler,
		Searcher:    a.Searcher,
		Logger:      log.Named("http"),
		QueueStatus: func() any { return a.Scheduler.Status() },
	}).Register(engine)
	(&notify.Handler{Center: a.Center, Logger: log.Named("http")}).Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	go func() {
		log.Info("server started", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server ListenAndServe", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	// stop accepting new requests and let in-flight ones finish
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server Shutdown", zap.Error(err))
	}

	cronRunner.Stop()
	// wait for the worker to finish its current step
	wg.Wait()

	if err := a.Close(); err != nil {
		log.Warn("close state store", zap.Error(err))
	}
	log.Info("graceful shutdown complete")
}
