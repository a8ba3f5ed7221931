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

	"github.com/go-redis/redis/v8"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/match3-backend/internal/config"
	"github.com/DoyleJ11/match3-backend/internal/httpapi"
	"github.com/DoyleJ11/match3-backend/internal/hub"
	"github.com/DoyleJ11/match3-backend/internal/janitor"
	"github.com/DoyleJ11/match3-backend/internal/logging"
	"github.com/DoyleJ11/match3-backend/internal/store"
	"github.com/DoyleJ11/match3-backend/internal/timer"
	"github.com/DoyleJ11/match3-backend/internal/validator"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, rdb, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer func() { err = multierr.Append(err, rdb.Close()) }()
	}

	pool := validator.NewPool(ctx, cfg.ValidatorWorkers, logger)
	defer pool.Close()

	h := hub.NewHub(ctx, hub.Deps{
		Timers:          timer.NewCoordinator(logger, time.Second),
		Validator:       pool,
		Store:           st,
		Logger:          logger,
		ValidateTimeout: cfg.ValidateTimeout,
		Defaults:        cfg.SessionDefaults(),
	})

	sweeper, err := janitor.Start(h, cfg.FinishedRetention, cfg.SweepSchedule, logger)
	if err != nil {
		return fmt.Errorf("janitor: %w", err)
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Hub:            h,
			Store:          st,
			Logger:         logger,
			AllowedOrigins: cfg.AllowedOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		<-sweeper.Stop().Done()
		h.Shutdown()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openStore picks postgres when DATABASE_URL is set and the in-memory store
// otherwise, then fronts it with the redis ranking cache when REDIS_ADDR is set.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, *redis.Client, error) {
	var st store.Store = store.NewMemory()
	if cfg.DatabaseURL != "" {
		pg, err := store.OpenPostgres(cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		st = pg
	} else {
		logger.Warn("DATABASE_URL not set, results are kept in memory only")
	}

	if cfg.RedisAddr == "" {
		return st, nil, nil
	}
	rdb, err := store.InitRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
	if err != nil {
		// the ranking still works uncached
		logger.Warn("redis unavailable, ranking cache disabled", zap.Error(err))
		return st, nil, nil
	}
	return store.NewRankingCache(st, rdb, time.Minute, logger), rdb, nil
}
