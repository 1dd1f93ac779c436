package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/bengol30/bandgo/internal/application"
	"github.com/bengol30/bandgo/internal/config"
	"github.com/bengol30/bandgo/internal/events"
	"github.com/bengol30/bandgo/internal/events/redisbridge"
	httptransport "github.com/bengol30/bandgo/internal/http"
	"github.com/bengol30/bandgo/internal/logging"
	"github.com/bengol30/bandgo/internal/metrics"
	"github.com/bengol30/bandgo/internal/persistence"
	"github.com/bengol30/bandgo/internal/persistence/filestore"
	"github.com/bengol30/bandgo/internal/persistence/memory"
	"github.com/bengol30/bandgo/internal/persistence/redisstore"
	"github.com/bengol30/bandgo/internal/persistence/sqlite"
	"github.com/bengol30/bandgo/internal/scheduler"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		slog.Error("failed to build logger", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("bandgo stopped with error", "error", err)
		os.Exit(1)
	}
}

// backend is the snapshot store chosen by configuration with its teardown.
type backend struct {
	store  persistence.SnapshotStore
	health func(context.Context) error
	close  func() error
}

func openBackend(ctx context.Context, cfg config.Config, redisClient *redis.Client) (backend, error) {
	switch cfg.SnapshotBackend {
	case config.BackendFile:
		return backend{store: filestore.New(cfg.SnapshotPath), close: func() error { return nil }}, nil
	case config.BackendSQLite:
		pool, err := sqlite.NewConnectionPool(ctx, sqlite.DefaultConfig(cfg.SQLiteDSN))
		if err != nil {
			return backend{}, fmt.Errorf("open sqlite: %w", err)
		}
		if err := pool.Migrate(); err != nil {
			_ = pool.Close()
			return backend{}, fmt.Errorf("migrate sqlite: %w", err)
		}
		return backend{
			store:  sqlite.NewSnapshotStore(pool, "", sqlite.DefaultRetryConfig()),
			health: pool.Ping,
			close:  pool.Close,
		}, nil
	case config.BackendRedis:
		if redisClient == nil {
			return backend{}, errors.New("redis backend needs a client")
		}
		return backend{
			store:  redisstore.New(redisClient, cfg.RedisKey),
			health: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
			close:  func() error { return nil },
		}, nil
	default:
		return backend{close: func() error { return nil }}, nil
	}
}

// restore loads the last snapshot into platform. A missing snapshot is not an error.
func restore(ctx context.Context, platform *application.Platform, store persistence.SnapshotStore, logger *slog.Logger) error {
	if store == nil {
		return nil
	}
	snapshot, err := store.LoadSnapshot(ctx)
	if errors.Is(err, persistence.ErrNotFound) {
		logger.Info("no snapshot found, starting empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if err := platform.Restore(ctx, snapshot); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	logger.Info("snapshot restored", "saved_at", snapshot.SavedAt, "users", len(snapshot.Users), "bands", len(snapshot.Bands))
	return nil
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	recorder := metrics.New()

	var redisClient *redis.Client
	if cfg.SnapshotBackend == config.BackendRedis || cfg.RedisBridge {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error("failed to close redis client", "error", err)
			}
		}()
	}

	snapshots, err := openBackend(ctx, cfg, redisClient)
	if err != nil {
		return err
	}
	defer func() {
		if err := snapshots.close(); err != nil {
			logger.Error("failed to close snapshot backend", "error", err)
		}
	}()

	bus := events.New(events.WithLogger(logger), events.WithObserver(recorder))
	defer bus.Destroy()

	bridgeCtx, cancelBridge := context.WithCancel(ctx)
	defer cancelBridge()
	if cfg.RedisBridge {
		bridge := redisbridge.New(bus, redisClient, cfg.RedisTopic, logger)
		bridge.Attach()
		go func() {
			if err := bridge.Run(bridgeCtx); err != nil {
				logger.Error("redis bridge stopped", "error", err)
			}
		}()
	}

	platform := application.NewPlatform(application.Deps{
		Store:       memory.New(),
		Bus:         bus,
		Observer:    recorder,
		IDGenerator: uuid.NewString,
		Now:         time.Now,
		Logger:      logger,
	}, application.PlatformConfig{
		Auth:     application.AuthConfig{SessionTTL: cfg.SessionTTL},
		Settings: cfg.Settings,
	})

	if err := restore(ctx, platform, snapshots.store, logger); err != nil {
		return err
	}

	opts := []scheduler.Option{
		scheduler.WithRecorder(recorder),
		scheduler.WithLogger(logger),
		scheduler.WithFlushInterval(cfg.FlushInterval),
	}
	if snapshots.store != nil {
		opts = append(opts, scheduler.WithSnapshotStore(snapshots.store, cfg.SnapshotBackend))
	}
	jobs := scheduler.New(platform, opts...)
	if err := jobs.Start(); err != nil {
		return err
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Profiles: platform.Auth,
		Inbox:    platform.Notifications,
		Metrics:  recorder.Handler(),
		Health:   []httptransport.HealthCheck{{Name: "snapshot", Check: snapshots.health}},
		Logger:   logger,
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			recorder.InstrumentHandler,
		},
	})
	server := &http.Server{
		Addr:              cfg.OpsAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("ops endpoint listening", "addr", server.Addr, "snapshot_backend", cfg.SnapshotBackend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		runErr = fmt.Errorf("ops server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("failed to shutdown ops server", "error", err)
	}
	if err := jobs.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop jobs", "error", err)
	}
	if snapshots.store != nil {
		if err := jobs.RunJob(shutdownCtx, scheduler.JobFlushSnapshot, jobs.FlushSnapshot); err != nil {
			runErr = errors.Join(runErr, err)
		} else {
			logger.Info("final snapshot saved")
		}
	}
	cancelBridge()
	return runErr
}
