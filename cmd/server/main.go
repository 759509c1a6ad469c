package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lalith-99/courtyard/internal/api"
	"github.com/lalith-99/courtyard/internal/auth"
	"github.com/lalith-99/courtyard/internal/config"
	"github.com/lalith-99/courtyard/internal/db"
	"github.com/lalith-99/courtyard/internal/observ"
	"github.com/lalith-99/courtyard/internal/push"
	"github.com/lalith-99/courtyard/internal/realtime"
	"github.com/lalith-99/courtyard/internal/repository"
	"github.com/lalith-99/courtyard/internal/repository/memory"
	"github.com/lalith-99/courtyard/internal/repository/postgres"
	"github.com/lalith-99/courtyard/internal/service"
	"github.com/lalith-99/courtyard/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ---------------------------------------------------------------
	// 1. Load config
	// ---------------------------------------------------------------
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// ---------------------------------------------------------------
	// 2. Create logger
	// ---------------------------------------------------------------
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	// ctx is cancelled on SIGINT/SIGTERM. Everything long-running below
	// watches it and winds down.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------------------------------------------------------
	// 3. Storage
	//
	// Postgres in every real deployment. An explicitly empty DATABASE_URL
	// runs on the in-memory store, which is handy for local demos and
	// loses everything on restart.
	// ---------------------------------------------------------------
	var (
		store  repository.Store
		health func(context.Context) error
	)
	if cfg.DatabaseURL != "" {
		database, err := db.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		// Acquire resource, immediately defer its release.
		defer database.Close()

		if err := database.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		store = postgres.NewStore(database.Pool())
		health = database.Health
	} else {
		logger.Warn("DATABASE_URL is empty, using in-memory store")
		store = memory.NewStore()
	}

	// ---------------------------------------------------------------
	// 4. Push queue and device registry
	//
	// Redis holds device tokens and the outbound queue an external push
	// gateway consumes. Without REDIS_URL pushes are dropped and tokens
	// live in process memory.
	// ---------------------------------------------------------------
	var (
		pusher  push.Pusher         = push.Discard{}
		devices push.DeviceRegistry = push.NewMemoryDevices()
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		pusher = push.NewRedisQueue(rdb, cfg.PushQueueKey)
		devices = push.NewRedisDevices(rdb)
	} else {
		logger.Warn("REDIS_URL is empty, push notifications are disabled")
	}

	// ---------------------------------------------------------------
	// 5. Core
	// ---------------------------------------------------------------
	hub := realtime.NewHub(logger.Named("hub"))
	dispatcher := worker.NewDispatcher(cfg.WorkerCount, cfg.WorkerQueueSize, logger.Named("worker"))
	resolver := auth.NewResolver(cfg.JWTSecret, cfg.TokenTTL, store.Users(), store.Tenants())

	svc := service.New(service.Config{
		Store:         store,
		Presence:      hub,
		Async:         dispatcher,
		Pusher:        pusher,
		Devices:       devices,
		Logger:        logger,
		PreviewLength: cfg.MessagePreviewLength,
	})

	// ---------------------------------------------------------------
	// 6. HTTP server
	// ---------------------------------------------------------------
	router := api.NewRouter(api.Deps{
		Services:     svc,
		Resolver:     resolver,
		Users:        store.Users(),
		Hub:          hub,
		Logger:       logger,
		Health:       health,
		WSSendBuffer: cfg.WSSendBuffer,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ---------------------------------------------------------------
	// 7. Run until a signal arrives or something fails
	//
	// Why errgroup?
	//   - The server, the worker pool and the ring-timeout sweeper must
	//     live and die together. errgroup cancels gctx as soon as one of
	//     them returns an error, and Wait reports the first one.
	// ---------------------------------------------------------------
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting courtyard",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		// Hijacked websocket connections are not tracked by Shutdown.
		hub.Close()
		return err
	})

	g.Go(func() error {
		return dispatcher.Run(gctx)
	})

	if cfg.CallRingTimeout > 0 {
		g.Go(func() error {
			return svc.Calls.RunRingTimeout(gctx, cfg.CallRingTimeout)
		})
	}

	return g.Wait()
}
