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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/ryanbastic/go-pixelgrid/internal/api"
	"github.com/ryanbastic/go-pixelgrid/internal/auth"
	"github.com/ryanbastic/go-pixelgrid/internal/broadcast"
	"github.com/ryanbastic/go-pixelgrid/internal/circuitbreaker"
	"github.com/ryanbastic/go-pixelgrid/internal/config"
	"github.com/ryanbastic/go-pixelgrid/internal/history"
	"github.com/ryanbastic/go-pixelgrid/internal/metrics"
	"github.com/ryanbastic/go-pixelgrid/internal/placement"
	"github.com/ryanbastic/go-pixelgrid/internal/ratelimit"
	"github.com/ryanbastic/go-pixelgrid/internal/storage"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("pixelgrid exited", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	backends := make(map[string]api.Pinger)

	var pool *pgxpool.Pool
	if cfg.NeedsPostgres() {
		var err error
		pool, err = connectPostgres(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		backends["postgres"] = pool
		prometheus.MustRegister(metrics.NewPoolCollector(map[string]*pgxpool.Pool{"main": pool}))
	}

	var rdb *redis.Client
	if cfg.NeedsRedis() {
		var err error
		rdb, err = connectRedis(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer rdb.Close()
		backends["redis"] = api.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}

	// Grid store
	var grid storage.GridStore
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		grid = storage.NewPostgresStore(pool, storage.DefaultTables.Pixels, cfg.QueryTimeout)
	default:
		grid = storage.NewMemoryStore()
		logger.Warn("using in-memory grid store; pixels are lost on restart")
	}
	if cfg.GridPrefill {
		if err := grid.Prefill(ctx, cfg.GridSize); err != nil {
			return fmt.Errorf("prefill grid: %w", err)
		}
		logger.Info("grid prefilled", "size", cfg.GridSize)
	}

	// Rate limiter
	var (
		limiter   ratelimit.Limiter
		memLimits *ratelimit.MemoryLimiter
	)
	switch cfg.RateLimitBackend {
	case config.BackendRedis:
		limiter = ratelimit.NewRedisLimiter(rdb, cfg.PixelCooldown)
	default:
		memLimits = ratelimit.NewMemoryLimiter(cfg.PixelCooldown, ratelimit.WithIdleTTL(cfg.RateLimitIdleTTL))
		limiter = memLimits
	}

	// History log
	var histLog history.Log
	switch cfg.HistoryBackend {
	case config.BackendPostgres:
		histLog = history.NewPostgresLog(pool, storage.DefaultTables.History)
	case config.BackendRedis:
		histLog = history.NewRedisLog(rdb, cfg.HistoryStream, int64(cfg.HistoryStreamMaxLen))
	default:
		histLog = history.Discard{}
	}
	breaker := circuitbreaker.New(cfg.HistoryBreakerFailures, cfg.HistoryBreakerReset,
		circuitbreaker.WithStateChange(func(from, to circuitbreaker.State) {
			metrics.SetHistoryBreakerState(int(to))
			logger.Warn("history breaker state changed", "from", from.String(), "to", to.String())
		}),
	)
	recorder := history.NewRecorder(histLog, breaker, cfg.HistoryQueueSize, cfg.QueryTimeout, logger)

	hub := broadcast.NewHub(cfg.FeedBuffer, logger)
	coord := placement.New(grid, limiter, recorder, hub, cfg.GridSize, cfg.PixelCooldown, logger)

	handler := api.NewServer(logger, api.Deps{
		Grid:             coord,
		History:          histLog,
		Hub:              hub,
		Verifier:         auth.NewHMAC(cfg.JWTSecret),
		Backends:         backends,
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		FeedPingInterval: cfg.FeedPingInterval,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting HTTP server",
			"port", cfg.Port,
			"grid_size", cfg.GridSize,
			"cooldown", cfg.PixelCooldown,
			"store", cfg.StoreBackend,
			"rate_limit", cfg.RateLimitBackend,
			"history", cfg.HistoryBackend,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// The recorder outlives gctx until the HTTP server has finished draining.
	recCtx, stopRecorder := context.WithCancel(context.WithoutCancel(gctx))

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		return shutdown(srv, hub, stopRecorder, cfg.ShutdownTimeout)
	})

	g.Go(func() error {
		return recorder.Run(recCtx)
	})

	if memLimits != nil {
		g.Go(func() error {
			memLimits.RunJanitor(gctx, time.Minute)
			return nil
		})
	}

	return g.Wait()
}

func connectPostgres(ctx context.Context, cfg config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("connected to database")

	if err := storage.RunMigrations(ctx, pool, storage.DefaultTables); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("migrations complete")
	return pool, nil
}

func connectRedis(ctx context.Context, cfg config.Config, logger *slog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("connected to redis", "addr", opts.Addr)
	return rdb, nil
}
