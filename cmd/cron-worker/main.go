package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/spoolhub-backend/internal/cron"
	"github.com/angelmondragon/spoolhub-backend/internal/pipeline"
	"github.com/angelmondragon/spoolhub-backend/pkg/config"
	"github.com/angelmondragon/spoolhub-backend/pkg/db"
	"github.com/angelmondragon/spoolhub-backend/pkg/logger"
	"github.com/angelmondragon/spoolhub-backend/pkg/metrics"
	"github.com/angelmondragon/spoolhub-backend/pkg/migrate"
	"github.com/angelmondragon/spoolhub-backend/pkg/redis"
)

const drainTimeout = 30 * time.Second

func main() {
	runOnce := flag.String("run-once", "", "run the named job a single time and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
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

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	// In inline mode recovered sessions are processed by this process.
	pipe, err := pipeline.New(context.Background(), pipeline.Params{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Redis:      redisClient,
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build extraction pipeline", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := pipe.Close(ctx); err != nil {
			logg.Error(ctx, "error closing extraction pipeline", err)
		}
	}()

	stalledJob, err := cron.NewStalledSessionJob(cron.StalledSessionJobParams{
		Logger:     logg,
		Repo:       pipe.Repo,
		Dispatcher: pipe.Dispatcher,
		StallAfter: cfg.Uploads.StallAfter,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stalled session job", err)
		os.Exit(1)
	}

	registry, err := cron.NewRegistry(stalledJob)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockName(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Uploads.RecoveryInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"serviceKind":  cfg.Service.Kind,
		"dispatchMode": cfg.Uploads.DispatchMode,
	})

	if *runOnce != "" {
		logg.Info(logg.WithField(ctx, "job", *runOnce), "running cron job once")
		if err := service.RunOnce(ctx, *runOnce); err != nil {
			logg.Error(ctx, "cron job failed", err)
			os.Exit(1)
		}
		// inline dispatch runs recovered sessions on this process's runner
		if err := pipe.Runner.Wait(ctx); err != nil {
			logg.Warn(ctx, "exiting before recovered sessions finished")
		}
		return
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}
