// cmd/rangesyncd/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/aleka07/range_egizz/go-range-sync/pkg/api"
	"github.com/aleka07/range_egizz/go-range-sync/pkg/config"
	"github.com/aleka07/range_egizz/go-range-sync/pkg/gateway"
	"github.com/aleka07/range_egizz/go-range-sync/pkg/identity"
	"github.com/aleka07/range_egizz/go-range-sync/pkg/model"
	"github.com/aleka07/range_egizz/go-range-sync/pkg/persistence"
	"github.com/aleka07/range_egizz/go-range-sync/pkg/reconcile"
)

func main() {
	app := &cli.App{
		Name:  "rangesyncd",
		Usage: "serves shooting-range targets merged with their room assignments",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
				EnvVars: []string{"RANGESYNC_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  "dev",
				Usage: "run against in-memory fixtures and trust the " + identity.DevHeader + " header",
			},
			&cli.BoolFlag{
				Name:  "migrate",
				Usage: "create the database tables before serving",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	logConfig := zap.NewProductionConfig()
	if cfg.Development {
		logConfig = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logConfig.Level = level
	return logConfig.Build()
}

func run(c *cli.Context) error {
	dev := c.Bool("dev")

	// --- Configuration ---
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if err := config.Validate(cfg, dev); err != nil {
		return err
	}

	zlog, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = zlog.Sync() }()
	logger := zlog.Sugar()
	logger.Info("Starting range sync API server...")

	// --- Create Dependencies ---
	initCtx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	defer cancel()

	var (
		store  persistence.Store
		pinger persistence.Pinger
	)
	if dev {
		mem := persistence.NewMemoryStore()
		store, pinger = mem, mem
		logger.Warn("Development mode: using the in-memory store")
	} else {
		pg, err := persistence.NewPostgresStore(initCtx, cfg.Database.DSN, logger.Named("store"))
		if err != nil {
			return err
		}
		if c.Bool("migrate") {
			if err := pg.Migrate(initCtx); err != nil {
				pg.Close()
				return err
			}
			logger.Info("Database schema is up to date")
		}
		store, pinger = pg, pg
	}
	defer store.Close()

	var fetcher gateway.Fetcher
	if cfg.Gateway.BaseURL != "" {
		fetcher = gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.Token, cfg.Gateway.Timeout)
	} else {
		logger.Warn("No gateway configured: serving fixture targets")
		fetcher = gateway.NewFixture(devTargets()...)
	}

	cache := reconcile.New(store, fetcher,
		reconcile.WithTTL(cfg.Cache.TTL),
		reconcile.WithFetchTimeout(cfg.Gateway.Timeout),
		reconcile.WithLogger(logger.Named("cache")),
	)

	watchCtx, stopWatching := context.WithCancel(context.Background())
	defer stopWatching()
	if cfg.Gateway.WatchEvents && cfg.Gateway.BaseURL != "" {
		watcher, err := gateway.NewWatcher(cfg.Gateway.BaseURL, cfg.Gateway.Token,
			func(gateway.Event) { cache.Invalidate() },
			logger.Named("watcher"),
		)
		if err != nil {
			return err
		}
		go func() {
			if err := watcher.Run(watchCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("Gateway watcher stopped: %v", err)
			}
		}()
	}

	auth := identity.HeaderMiddleware
	if !dev {
		auth = identity.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer).Middleware
	}

	handler := api.NewRouter(api.NewAPI(cache, pinger, logger.Named("api")), auth, logger.Named("http"))

	// --- Configure and Start Server ---
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Infof("Server listening on :%s", cfg.Server.Port)
		serverErrors <- server.ListenAndServe()
	}()

	// --- Graceful Shutdown ---
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-shutdown:
		logger.Infof("Shutdown signal (%v) received. Starting graceful shutdown...", sig)
		stopWatching()

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Graceful server shutdown failed: %v", err)
			if closeErr := server.Close(); closeErr != nil {
				logger.Errorf("Server Close() failed: %v", closeErr)
			}
		} else {
			logger.Info("Server shutdown complete.")
		}
	}

	logger.Info("Application shutdown finished.")
	return nil
}

// devTargets seeds the fixture gateway in development mode.
func devTargets() []model.Target {
	connected, disconnected := true, false
	recent := time.Now().Add(-5 * time.Minute)
	stale := time.Now().Add(-48 * time.Hour)
	return []model.Target{
		{ID: "target-01", Name: "Lane 1", Connected: &connected, LastActivity: &recent},
		{ID: "target-02", Name: "Lane 2", Connected: &connected, LastActivity: &recent, GameID: "game-demo", ShotCount: 14},
		{ID: "target-03", Name: "Lane 3", Connected: &disconnected, LastActivity: &stale},
	}
}
