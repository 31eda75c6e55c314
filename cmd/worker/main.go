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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/urbanfix/backend/internal/bootstrap"
	"github.com/urbanfix/backend/internal/metrics"
	"github.com/urbanfix/backend/internal/queue/rabbitmq"
	"github.com/urbanfix/backend/pkg/config"
	"github.com/urbanfix/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting UrbanFix complaint analysis worker")

	metrics.Init()

	components, err := bootstrap.Build(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	publisher, err := rabbitmq.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
	if err != nil {
		logger.Fatal("Failed to create publisher", zap.Error(err))
	}
	defer publisher.Close()

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.RequestQueue, cfg.RabbitMQ.Prefetch)
	if err != nil {
		logger.Fatal("Failed to create consumer", zap.Error(err))
	}
	defer consumer.Close()

	processor := rabbitmq.NewComplaintProcessor(components.Predictions, publisher, cfg.RabbitMQ.ResultRoutingKey)

	metricsServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Consuming complaints",
		zap.String("queue", cfg.RabbitMQ.RequestQueue),
		zap.String("routing_key", cfg.RabbitMQ.RequestRoutingKey),
	)

	err = consumer.Consume(ctx, cfg.RabbitMQ.RequestRoutingKey, processor.Handle)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Consumer stopped", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Metrics server shutdown failed", zap.Error(err))
	}
	logger.Info("Worker stopped")
}
