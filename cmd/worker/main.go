package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joao-fontenele/printstore/internal/auth"
	"github.com/joao-fontenele/printstore/internal/config"
	"github.com/joao-fontenele/printstore/internal/messaging"
	"github.com/joao-fontenele/printstore/internal/telemetry"
	"github.com/joao-fontenele/printstore/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load("")
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Require("KAFKA_BROKERS", "ADMIN_SERVICE_URL", "JWT_SECRET"); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "worker", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	authenticator := auth.NewAuthenticator(cfg.Auth.JWTSecret, logger)
	tokens := func() (string, error) {
		return authenticator.Issue("stock-worker", auth.RoleAdmin, 5*time.Minute)
	}

	stockHandler := worker.NewStockHandler(cfg.Upstream.AdminURL, tokens, telemetry.HTTPClient(10*time.Second), logger)
	alertHandler := worker.NewOrphanAlertHandler(logger)

	stockConsumer := messaging.NewConsumer(cfg.Kafka.Brokers, messaging.TopicOrderPlaced, "stock-worker")
	defer func() { _ = stockConsumer.Close() }()

	alertConsumer := messaging.NewConsumer(cfg.Kafka.Brokers, messaging.TopicPaymentOrphaned, "reconciliation-alerts")
	defer func() { _ = alertConsumer.Close() }()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting worker", "brokers", cfg.Kafka.Brokers)

	var (
		wg     sync.WaitGroup
		failed bool
		mu     sync.Mutex
	)
	run := func(name string, consumer *messaging.Consumer, handler messaging.HandlerFunc) {
		defer wg.Done()
		err := consumer.Consume(ctx, handler)
		if err == nil || errors.Is(err, context.Canceled) {
			logger.Info("consumer stopped", "consumer", name)
			return
		}
		logger.Error("consumer error", "consumer", name, "error", err)
		mu.Lock()
		failed = true
		mu.Unlock()
		cancel()
	}

	wg.Add(2)
	go run("stock", stockConsumer, stockHandler.Handle)
	go run("orphan-alerts", alertConsumer, alertHandler.Handle)
	wg.Wait()

	if failed {
		os.Exit(1)
	}
}
