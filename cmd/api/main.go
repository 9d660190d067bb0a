package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"onloc/internal/auth"
	"onloc/internal/config"
	"onloc/internal/httpserver"
	"onloc/internal/logger"
	"onloc/internal/realtime"
	"onloc/internal/repository"
	"onloc/internal/repository/gormrepo"
	"onloc/internal/repository/memrepo"
	"onloc/internal/services/device"
	"onloc/internal/services/identity"
	"onloc/internal/services/location"
	"onloc/internal/services/setting"
	"onloc/internal/services/token"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	lg := logger.New(cfg.LogLevel)
	defer lg.Sync()

	if err := run(cfg, lg); err != nil {
		lg.Fatalw("server stopped", "error", err)
	}
}

func run(cfg config.Config, lg *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(cfg, lg)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := realtime.NewHub(lg)
	go hub.Run(ctx)

	settings := setting.NewService(store, lg)
	engine := location.NewEngine(store, lg)
	router := httpserver.NewRouter(httpserver.Deps{
		Users:     identity.NewService(store, settings, lg),
		Tokens:    token.NewService(store, store, auth.NewTokenSigner(cfg.TokenSecret, cfg.TokenTTL), lg),
		Devices:   device.NewService(store, engine, lg),
		Locations: location.NewService(store, store, hub, lg),
		Queries:   engine,
		Settings:  settings,
		Hub:       hub,
	}, lg)

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		lg.Infow("listening", "port", cfg.HTTPPort, "storage", cfg.StorageDriver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	lg.Infow("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(cfg config.Config, lg *zap.SugaredLogger) (repository.Store, func(), error) {
	if cfg.StorageDriver == config.DriverMemory {
		lg.Warnw("using in-memory storage; data is lost on exit")
		return memrepo.New(), func() {}, nil
	}
	store, err := gormrepo.ConnectWithRetry(cfg.StorageDriver, cfg.DatabaseURL, cfg.DBAttempts, cfg.DBDelay, lg)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			lg.Warnw("db close failed", "error", err)
		}
	}, nil
}
