package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/spoolhub-backend/api"
	"github.com/angelmondragon/spoolhub-backend/api/controllers"
	"github.com/angelmondragon/spoolhub-backend/api/routes"
	"github.com/angelmondragon/spoolhub-backend/internal/inventory"
	"github.com/angelmondragon/spoolhub-backend/internal/pipeline"
	"github.com/angelmondragon/spoolhub-backend/internal/uploads"
	"github.com/angelmondragon/spoolhub-backend/pkg/config"
	"github.com/angelmondragon/spoolhub-backend/pkg/db"
	"github.com/angelmondragon/spoolhub-backend/pkg/instance"
	"github.com/angelmondragon/spoolhub-backend/pkg/logger"
	"github.com/angelmondragon/spoolhub-backend/pkg/migrate"
	"github.com/angelmondragon/spoolhub-backend/pkg/redis"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	pipe, err := pipeline.New(context.Background(), pipeline.Params{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Redis:      redisClient,
		Registerer: registry,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build extraction pipeline", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := pipe.Close(ctx); err != nil {
			logg.Error(ctx, "error closing extraction pipeline", err)
		}
	}()

	reconciler, err := uploads.NewReconciler(inventory.NewRepository(dbClient.DB()), pipe.Repo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciler", err)
		os.Exit(1)
	}

	uploadsService, err := uploads.NewService(uploads.ServiceParams{
		Repo:       pipe.Repo,
		Tx:         dbClient,
		Store:      pipe.Store,
		Dispatcher: pipe.Dispatcher,
		Reconciler: reconciler,
		Config:     cfg.Uploads,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create uploads service", err)
		os.Exit(1)
	}

	readiness := map[string]controllers.Pinger{}
	for name, pinger := range pipe.Readiness() {
		readiness[name] = pinger
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"addr":         addr,
		"instance":     instance.GetID(),
		"dispatchMode": cfg.Uploads.DispatchMode,
	})
	logg.Info(ctx, "starting api server")

	server := api.NewServer(addr, routes.NewRouter(cfg, logg, redisClient, readiness, registry, uploadsService), logg)
	if err := server.Run(ctx, shutdownTimeout); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}
