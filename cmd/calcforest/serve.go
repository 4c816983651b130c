package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/calcforest/calcforest/db"
	"github.com/calcforest/calcforest/internal/auth"
	"github.com/calcforest/calcforest/internal/feed"
	"github.com/calcforest/calcforest/internal/logging"
	"github.com/calcforest/calcforest/internal/metrics"
	"github.com/calcforest/calcforest/internal/middleware"
	"github.com/calcforest/calcforest/internal/router"
	"github.com/calcforest/calcforest/internal/services"
	"github.com/calcforest/calcforest/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const limiterCleanupInterval = 10 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run migrations and serve the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	database, err := db.Connect(cfg, log)
	if err != nil {
		return err
	}
	if sqlDB, err := database.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := db.MigrateDatabase(database); err != nil {
		return err
	}

	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}

	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector = metrics.New()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gs := store.NewGorm(database)
	hub := feed.NewHub(cfg.Origins(), log, collector)
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, log)
	limiter.StartCleanup(limiterCleanupInterval, ctx.Done())

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := router.NewRouter(router.Deps{
		Log:            log,
		AllowedOrigins: cfg.Origins(),
		TrustedProxies: cfg.Proxies(),
		Metrics:        collector,
		RateLimiter:    limiter,
		Users:          services.NewUserService(gs, auth.NewHasher(cfg.BcryptCost), tokens, log, collector),
		Calculations:   services.NewCalculationService(gs, log, collector, services.WithBroadcaster(hub)),
		Feed:           hub,
		Ping: func(ctx context.Context) error {
			return db.Ping(ctx, database)
		},
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	err = srv.Shutdown(shutdownCtx)
	hub.Close()
	return err
}
