package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

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

	tp, err := tracing.InitTracer(ctx, "push-fanout-worker", cfg.JaegerEndpoint)
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

	sweeper := app.NewSweeper(notificationRepo, log, cfg.ClaimStaleAfter)
	go sweeper.Run(ctx)

	go runDrainLoop(ctx, drainService, cfg.DrainInterval, cfg.CronDeviceCap, log)

	consumer := queue.NewConsumer(queue.ConsumerConfig{
		Brokers: cfg.KafkaBrokers,
		Group:   cfg.KafkaConsumerGroup,
		Logger:  log,
	})

	go func() {
		if err := consumer.Start(ctx, func(ctx context.Context, title, message string, countryID int64) error {
			_, err := notificationService.Send(ctx, app.SendInput{
				Title:     title,
				Message:   message,
				CountryID: countryID,
			})
			return err
		}); err != nil {
			if ctx.Err() == nil {
				log.Error("consumer stopped unexpectedly", zap.Error(err))
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()

	if err := consumer.Stop(shutdownCtx); err != nil {
		log.Error("consumer shutdown error", zap.Error(err))
	}

	log.Info("worker stopped")
}

func runDrainLoop(ctx context.Context, drainer *app.DrainService, interval time.Duration, deviceCap int, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := drainer.Run(ctx, deviceCap); err != nil && ctx.Err() == nil {
				log.Error("scheduled drain failed", zap.Error(err))
			}
		}
	}
}
