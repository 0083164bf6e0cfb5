package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	httpAdapter "github.com/kzeybek/push-fanout/internal/adapter/http"
	"github.com/kzeybek/push-fanout/internal/adapter/postgres"
	"github.com/kzeybek/push-fanout/internal/adapter/provider"
	"github.com/kzeybek/push-fanout/internal/adapter/queue"
	"github.com/kzeybek/push-fanout/internal/adapter/ws"
	"github.com/kzeybek/push-fanout/internal/app"
	"github.com/kzeybek/push-fanout/pkg/config"
	"github.com/kzeybek/push-fanout/pkg/logger"
	"github.com/kzeybek/push-fanout/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := tracing.InitTracer(ctx, "push-fanout", cfg.JaegerEndpoint)
	if err != nil {
		log.Warn("failed to initialize tracer, continuing without tracing", zap.Error(err))
	} else {
		defer func() { _ = tp.Shutdown(ctx) }()
	}

	db, err := postgres.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	runMigrations(cfg.DatabaseURL, log)

	notificationRepo := postgres.NewNotificationRepo(db)
	deviceRepo := postgres.NewDeviceRepo(db)
	publisher := queue.NewPublisher(cfg.KafkaBrokers)
	defer func() { _ = publisher.Close() }()
	gateway := provider.NewGatewayTransport(cfg.PushGatewayURL)
	wsHub := ws.NewHub()

	notificationService := app.NewNotificationService(
		notificationRepo,
		deviceRepo,
		publisher,
		log,
		cfg.FanoutBatchSize,
	)

	drainService := app.NewDrainService(
		notificationRepo,
		gateway,
		wsHub,
		publisher,
		log,
		app.DrainConfig{
			PageSize:    cfg.DrainPageSize,
			Concurrency: cfg.WorkerConcurrency,
			SendRate:    cfg.SendRatePerSec,
		},
	)

	metricsCollector := app.NewMetricsCollector(notificationRepo)

	router := httpAdapter.NewRouter(httpAdapter.RouterDeps{
		ActionHandler:    httpAdapter.NewActionHandler(notificationService, drainService, cfg.CronDeviceCap),
		HealthHandler:    httpAdapter.NewHealthHandler(db, cfg.KafkaBrokers),
		MetricsHandler:   httpAdapter.NewMetricsHandler(metricsCollector),
		WebSocketHandler: httpAdapter.NewWebSocketHandler(wsHub),
		Logger:           log,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.AppPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting http server", zap.String("port", cfg.AppPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

func runMigrations(databaseURL string, log *zap.Logger) {
	m, err := migrate.New("file://migrations", databaseURL)
	if err != nil {
		log.Warn("failed to create migrator", zap.Error(err))
		return
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		log.Warn("migration failed", zap.Error(err))
		return
	}

	log.Info("database migrations applied")
}
