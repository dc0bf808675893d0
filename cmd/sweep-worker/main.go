package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/halcyonlabs/cardvault/internal/audit"
	"github.com/halcyonlabs/cardvault/internal/cron"
	"github.com/halcyonlabs/cardvault/internal/delivery"
	"github.com/halcyonlabs/cardvault/internal/notify"
	"github.com/halcyonlabs/cardvault/pkg/config"
	"github.com/halcyonlabs/cardvault/pkg/db"
	"github.com/halcyonlabs/cardvault/pkg/logger"
	"github.com/halcyonlabs/cardvault/pkg/metrics"
	"github.com/halcyonlabs/cardvault/pkg/migrate"
	"github.com/halcyonlabs/cardvault/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "sweep-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "sweep-worker"

	logg = logger.New(logger.Options{
		ServiceName: "sweep-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gateway, err := notify.NewLoggingGateway(logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification gateway", err)
		os.Exit(1)
	}

	auditService, err := audit.NewService(audit.ServiceParams{
		Repo:   audit.NewRepository(dbClient.DB()),
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create audit service", err)
		os.Exit(1)
	}

	deliveryRepo := delivery.NewRepository(dbClient.DB())
	deliveryService, err := delivery.NewService(delivery.ServiceParams{
		Tx:      dbClient,
		Repo:    deliveryRepo,
		Audit:   auditService,
		Gateway: gateway,
		Metrics: metrics.NewDeliveryMetrics(prometheus.DefaultRegisterer),
		Logger:  logg,
		Config:  cfg.Delivery,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create delivery service", err)
		os.Exit(1)
	}

	pendingSweep, err := cron.NewPendingDeliveriesJob(cron.PendingDeliveriesJobParams{
		Logger:    logg,
		Repo:      deliveryRepo,
		Processor: deliveryService,
		BatchSize: cfg.Sweeps.OrderBatch,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create pending sweep", err)
		os.Exit(1)
	}
	retrySweep, err := cron.NewRetryJob(cron.RetryJobParams{
		Logger:    logg,
		Audit:     auditService,
		Processor: deliveryService,
		Config:    cfg.Delivery,
		BatchSize: cfg.Sweeps.RetryBatch,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create retry sweep", err)
		os.Exit(1)
	}
	stockSweep, err := cron.NewStockLevelsJob(cron.StockLevelsJobParams{
		Logger:    logg,
		Repo:      deliveryRepo,
		Gateway:   gateway,
		Threshold: cfg.Delivery.LowStockThreshold,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stock sweep", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("sweep-worker:"+cfg.App.Env), cfg.Sweeps.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(pendingSweep, retrySweep, stockSweep),
		Lock:     lock,
		Metrics:  metrics.NewSweepMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Sweeps.Interval,
		Disabled: cfg.Sweeps.DisabledJobs,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting sweep worker")

	if cfg.Sweeps.MetricsOn {
		go serveMetrics(ctx, logg, cfg.Sweeps.MetricsPort)
	}

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sweep worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sweep worker shutting down gracefully")
}

func serveMetrics(ctx context.Context, logg *logger.Logger, port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(":"+port, mux); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "metrics endpoint stopped unexpectedly", err)
	}
}
