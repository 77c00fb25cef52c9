package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"movedesk/internal/config"
	"movedesk/internal/contracts"
	"movedesk/internal/httpapi"
	"movedesk/internal/notify"
	"movedesk/internal/pricing"
	"movedesk/internal/settings"
	"movedesk/internal/storage"
	"movedesk/pkg/logger"
	"movedesk/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const usage = `usage: movedesk [serve | migrate up|down|status]`

func main() {
	os.Exit(run())
}

// run owns every deferred cleanup so it completes before the process exits.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	zapLogger, err := logger.New(cfg.Log.Level, cfg.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer zapLogger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "serve":
		err = serve(ctx, cfg, zapLogger)
	case "migrate":
		direction := "up"
		if len(args) > 1 {
			direction = args[1]
		}
		err = migrate(ctx, cfg, direction, zapLogger)
	default:
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}

	if err != nil {
		zapLogger.Error("movedesk stopped with error", zap.String("command", cmd), zap.Error(err))
		return 1
	}
	return 0
}

func migrate(ctx context.Context, cfg *config.Config, direction string, zapLogger *zap.Logger) error {
	pgStorage, err := storage.NewPostgresStorage(ctx, cfg, zapLogger)
	if err != nil {
		return err
	}
	defer pgStorage.Close()

	switch direction {
	case "up":
		return storage.RunMigrations(ctx, pgStorage.DB(), zapLogger)
	case "down":
		return storage.RollbackMigration(ctx, pgStorage.DB(), zapLogger)
	case "status":
		return storage.Status(ctx, pgStorage.DB(), zapLogger)
	}
	return fmt.Errorf("unknown migrate direction %q, %s", direction, usage)
}

func serve(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) error {
	decimal.MarshalJSONWithoutQuotes = true
	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	pgStorage, err := storage.NewPostgresStorage(ctx, cfg, zapLogger)
	if err != nil {
		return fmt.Errorf("init PostgreSQL storage: %w", err)
	}
	defer pgStorage.Close()

	if err := storage.RunMigrations(ctx, pgStorage.DB(), zapLogger); err != nil {
		return err
	}

	redisClient := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	engine := pricing.NewEngine(pricing.DefaultCatalog(), pricing.DefaultSettings())

	settingsService := settings.NewService(engine, pgStorage, redisClient, zapLogger)
	if err := settingsService.Load(ctx); err != nil {
		return err
	}
	go func() {
		if err := settingsService.Watch(ctx); err != nil {
			zapLogger.Error("Settings watcher stopped", zap.Error(err))
		}
	}()

	var notifier contracts.Notifier = notify.Nop{}
	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, zapLogger)
		if err != nil {
			zapLogger.Warn("Telegram notifications disabled", zap.Error(err))
		} else {
			notifier = tg
		}
	}

	contractService := contracts.NewService(engine, pgStorage, notifier, cfg.Pricing.Strict, zapLogger).
		WithCache(redisClient, cfg.Cache.ContractTTL)

	server := httpapi.NewServer(httpapi.Deps{
		Engine:    engine,
		Settings:  settingsService,
		Contracts: contractService,
		Strict:    cfg.Pricing.Strict,
		RateLimit: httpapi.RateLimit{
			Counter: redisClient,
			Limit:   cfg.RateLimit.Quotes,
			Window:  cfg.RateLimit.Window,
		},
		Health: []httpapi.HealthCheck{
			{Name: "postgres", Check: pgStorage.Ping},
			{Name: "redis", Check: redisClient.Ping},
		},
		Logger: zapLogger,
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      server.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		zapLogger.Info("HTTP server listening",
			zap.String("addr", cfg.HTTP.Addr),
			zap.Bool("strict_pricing", cfg.Pricing.Strict))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	zapLogger.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	zapLogger.Info("movedesk shutdown gracefully")
	return nil
}
