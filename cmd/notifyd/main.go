package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tablemate/notifyd/internal/analytics"
	"github.com/tablemate/notifyd/internal/backend"
	"github.com/tablemate/notifyd/internal/config"
	"github.com/tablemate/notifyd/internal/connectivity"
	"github.com/tablemate/notifyd/internal/domain"
	"github.com/tablemate/notifyd/internal/engine"
	"github.com/tablemate/notifyd/internal/events"
	"github.com/tablemate/notifyd/internal/handler"
	"github.com/tablemate/notifyd/internal/infra/postgresql"
	"github.com/tablemate/notifyd/internal/infra/postgresql/migrations"
	infraredis "github.com/tablemate/notifyd/internal/infra/redis"
	"github.com/tablemate/notifyd/internal/mapper"
	"github.com/tablemate/notifyd/internal/observability"
	"github.com/tablemate/notifyd/internal/platform"
	"github.com/tablemate/notifyd/internal/prefs"
	"github.com/tablemate/notifyd/internal/store"
	"github.com/tablemate/notifyd/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("notifyd exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	kv, rdb, closeStore, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	gateway, err := platform.NewPushGateway(cfg.PushGatewayURL)
	if err != nil {
		return fmt.Errorf("push gateway init failed: %w", err)
	}

	backendClient, err := backend.NewHTTPClient(cfg.BackendBaseURL)
	if err != nil {
		return fmt.Errorf("backend client init failed: %w", err)
	}

	os, err := platform.ParseOSFromString(cfg.Platform)
	if err != nil {
		return err
	}

	gate, err := buildPreferenceGate(cfg)
	if err != nil {
		return err
	}

	var throttle *infraredis.DeliveryThrottle
	if rdb != nil {
		throttle, err = infraredis.NewDeliveryThrottle(rdb, cfg.RateLimitPerSec)
		if err != nil {
			return fmt.Errorf("delivery throttle init failed: %w", err)
		}
	}

	batcher, err := analytics.NewEventBatcher(backendClient, kv, metrics, logger)
	if err != nil {
		return fmt.Errorf("analytics batcher init failed: %w", err)
	}
	if err := batcher.Initialize(ctx); err != nil {
		return err
	}

	deps := engine.Deps{
		Store:        kv,
		Notifier:     gateway,
		Capabilities: platform.ForOS(os),
		Gate:         gate,
		Tracker:      batcher,
		Backend:      backendClient,
		Metrics:      metrics,
		Logger:       logger,
	}
	if throttle != nil {
		deps.Limiter = throttle
	}
	eng, err := engine.New(deps)
	if err != nil {
		return fmt.Errorf("delivery engine init failed: %w", err)
	}
	if err := eng.Initialize(ctx); err != nil {
		return err
	}

	eventMapper, err := mapper.New(cfg.LocalUserID, eng, backendClient, logger)
	if err != nil {
		return fmt.Errorf("event mapper init failed: %w", err)
	}

	mq, err := events.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("rabbitmq init failed: %w", err)
	}
	defer mq.Close()
	source := events.NewRabbitMQSource(mq, 32, logger)

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	var monitor *connectivity.Monitor
	var connReader handler.ConnectivityReader
	if cfg.ConnectivityProbeURL != "" {
		monitor, err = connectivity.NewMonitor(cfg.ConnectivityProbeURL, 0, logger)
		if err != nil {
			return err
		}
		monitor.Subscribe(eng.SetOnline)
		connReader = monitor
	}

	handler.RegisterHealthRoutes(app, kv, connReader)
	if err := handler.RegisterNotificationRoutes(app, eng, batcher); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return eng.StartRetrySweep(groupCtx, time.Duration(cfg.SweepIntervalMS)*time.Millisecond)
	})
	group.Go(func() error {
		return source.Subscribe(groupCtx, eventMapper.Handle)
	})
	if monitor != nil {
		group.Go(func() error {
			return monitor.Run(groupCtx)
		})
	}
	group.Go(func() error {
		logger.Info("notifyd started",
			zap.Int("port", cfg.APIPort),
			zap.String("store", cfg.StoreBackend),
			zap.String("localUserId", cfg.LocalUserID),
		)
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	group.Go(func() error {
		<-groupCtx.Done()
		// Final flush keeps restarts from sitting on tracked events.
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := batcher.Flush(flushCtx); err != nil {
			logger.Warn("shutdown analytics flush failed", zap.Error(err))
		}
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	return group.Wait()
}

func buildStore(cfg *config.Config) (store.Store, *goredis.Client, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreBackendPostgres:
		db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("postgres init failed: %w", err)
		}
		if err := migrations.Migrate(db); err != nil {
			return nil, nil, nil, fmt.Errorf("database migrations failed: %w", err)
		}
		kv, err := store.NewPostgres(db)
		if err != nil {
			return nil, nil, nil, err
		}
		closeFn := func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}
		return kv, nil, closeFn, nil
	default:
		rdb, err := infraredis.NewRedis(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("redis init failed: %w", err)
		}
		kv, err := store.NewRedis(rdb)
		if err != nil {
			return nil, nil, nil, err
		}
		return kv, rdb, func() { rdb.Close() }, nil
	}
}

func buildPreferenceGate(cfg *config.Config) (*prefs.Gate, error) {
	quietHours, err := prefs.ParseQuietHours(cfg.QuietHours)
	if err != nil {
		return nil, err
	}

	categories := make(map[domain.Type]bool)
	for _, raw := range cfg.DisabledCategoryList() {
		typ, err := domain.ParseTypeFromString(raw)
		if err != nil {
			return nil, err
		}
		categories[typ] = false
	}

	source := prefs.StaticSource{Prefs: prefs.Preferences{
		PushEnabled: cfg.PushEnabled,
		Categories:  categories,
		QuietHours:  quietHours,
	}}
	return prefs.NewGate(source), nil
}
