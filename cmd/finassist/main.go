package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"finassist/internal/backend"
	"finassist/internal/cache"
	"finassist/internal/cli"
	"finassist/internal/config"
	"finassist/internal/core"
	apphttp "finassist/internal/http"
	"finassist/internal/log"
	"finassist/internal/middleware/ratelimit"
	"finassist/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Stdout, log.ComponentApp)
	cfg := cli.MustLoadConfig(logger)

	ctx, stop := cli.SignalContext(context.Background(), logger)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server exited with error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	beCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, beCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	}()

	opts := []services.Option{
		services.WithCurrency(cfg.Currency),
		services.WithLogger(logger),
	}
	if res.Publisher != nil {
		opts = append(opts, services.WithPublisher(res.Publisher))
	}

	caches := cache.NewManager()
	if cfg.UserCacheSize > 0 {
		users := cache.NewLRUCache[core.User](cfg.UserCacheSize, cfg.UserCacheTTL)
		caches.Register("users", users)
		opts = append(opts, services.WithUserCache(users))
	}
	caches.Start(ctx, time.Minute)
	defer caches.Stop()

	ledger := services.NewLedgerService(res.Backend, res.Backend, opts...)

	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:     cfg.Addr(),
		Ledger:   ledger,
		Pinger:   res.Backend,
		Limiter:  newLimiter(ctx, cfg, logger),
		Registry: prometheus.NewRegistry(),
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting finassist server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"events", res.Publisher != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// newLimiter prefers Redis when configured and falls back to process memory.
// A zero limit disables throttling.
func newLimiter(ctx context.Context, cfg *config.Config, logger *log.Logger) ratelimit.Limiter {
	if cfg.RateLimitPerMinute == 0 {
		return nil
	}
	if cfg.RateLimitRedisAddr != "" {
		rl, err := ratelimit.NewRedisLimiter(ctx, ratelimit.RedisConfig{
			Addr:              cfg.RateLimitRedisAddr,
			Password:          cfg.RateLimitRedisPassword,
			DB:                cfg.RateLimitRedisDB,
			RequestsPerMinute: cfg.RateLimitPerMinute,
		})
		if err == nil {
			logger.Info("Using Redis rate limiter", "addr", cfg.RateLimitRedisAddr)
			return rl
		}
		logger.Warn("Redis rate limiter unavailable, using in-memory limiter", "error", err)
	}
	return ratelimit.NewMemoryLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimitPerMinute,
		CleanupInterval:   5 * time.Minute,
	})
}
