package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/printstore/internal/auth"
	"github.com/joao-fontenele/printstore/internal/blobstore"
	"github.com/joao-fontenele/printstore/internal/catalog"
	"github.com/joao-fontenele/printstore/internal/checkout"
	"github.com/joao-fontenele/printstore/internal/config"
	"github.com/joao-fontenele/printstore/internal/docstore"
	"github.com/joao-fontenele/printstore/internal/domain"
	"github.com/joao-fontenele/printstore/internal/messaging"
	"github.com/joao-fontenele/printstore/internal/orders"
	"github.com/joao-fontenele/printstore/internal/pricing"
	"github.com/joao-fontenele/printstore/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	decimal.MarshalJSONWithoutQuotes = true

	cfg, err := config.Load("8082")
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Require("POSTGRES_URL", "JWT_SECRET"); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "admin", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("admin", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	conn := docstore.NewConn(cfg.Postgres.URL, telemetry.OpenPostgres, logger)
	defer func() { _ = conn.Close() }()

	if err := conn.Ping(ctx); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	var publisher orders.Publisher
	if cfg.Kafka.Enabled() {
		producer := messaging.NewProducer(cfg.Kafka.Brokers)
		defer func() { _ = producer.Close() }()
		publisher = producer
	}

	products := docstore.NewPGCollection[domain.Product](conn, docstore.CollectionProducts)
	files := blobstore.NewPGStore(conn, cfg.PublicBaseURL)

	orderSvc := orders.NewService(
		docstore.NewPGCollection[domain.PrintOrder](conn, docstore.CollectionPrintOrders),
		docstore.NewPGCollection[domain.EcommerceOrder](conn, docstore.CollectionEcommerceOrders),
		products,
		files,
		publisher,
		orders.Config{
			Pricing:        pricing.DefaultTable(),
			Currency:       cfg.Checkout.Currency,
			MinOrderAmount: cfg.Checkout.MinOrderAmount,
		},
		logger,
	)

	// The admin API only reads and resolves orphaned payments; it never
	// talks to the payment gateway.
	checkoutSvc := checkout.NewService(
		orderSvc,
		nil,
		docstore.NewPGCollection[domain.OrphanedPayment](conn, docstore.CollectionOrphanedPayments),
		publisher,
		logger,
	)

	adjustments := docstore.NewPGCollection[domain.StockAdjustment](conn, docstore.CollectionStockAdjustments)
	catalogHandler := catalog.NewHandler(catalog.NewService(products, adjustments, files, logger), logger)
	ordersHandler := orders.NewHandler(orderSvc, logger)
	checkoutHandler := checkout.NewHandler(checkoutSvc, logger)

	api := http.NewServeMux()
	api.HandleFunc("GET /products", telemetry.WithHTTPRoute(catalogHandler.HandleList))
	api.HandleFunc("POST /products", telemetry.WithHTTPRoute(catalogHandler.HandleCreate))
	api.HandleFunc("GET /products/{id}", telemetry.WithHTTPRoute(catalogHandler.HandleGet))
	api.HandleFunc("PUT /products/{id}", telemetry.WithHTTPRoute(catalogHandler.HandleUpdate))
	api.HandleFunc("DELETE /products/{id}", telemetry.WithHTTPRoute(catalogHandler.HandleDelete))
	api.HandleFunc("POST /products/{id}/stock", telemetry.WithHTTPRoute(catalogHandler.HandleAdjustStock))
	api.HandleFunc("DELETE /products/{id}/stock/{reference}", telemetry.WithHTTPRoute(catalogHandler.HandleRevertStock))
	api.HandleFunc("GET /print-orders", telemetry.WithHTTPRoute(ordersHandler.HandleListPrintOrders))
	api.HandleFunc("GET /print-orders/{id}", telemetry.WithHTTPRoute(ordersHandler.HandleGetPrintOrder))
	api.HandleFunc("PATCH /print-orders/{id}/status", telemetry.WithHTTPRoute(ordersHandler.HandleUpdatePrintStatus))
	api.HandleFunc("GET /orders", telemetry.WithHTTPRoute(ordersHandler.HandleListEcommerceOrders))
	api.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(ordersHandler.HandleGetEcommerceOrder))
	api.HandleFunc("PATCH /orders/{id}/status", telemetry.WithHTTPRoute(ordersHandler.HandleUpdateEcommerceStatus))
	api.HandleFunc("GET /stats", telemetry.WithHTTPRoute(ordersHandler.HandleStats))
	api.HandleFunc("GET /orphaned-payments", telemetry.WithHTTPRoute(checkoutHandler.HandleListOrphans))
	api.HandleFunc("POST /orphaned-payments/{id}/resolve", telemetry.WithHTTPRoute(checkoutHandler.HandleResolveOrphan))

	authenticator := auth.NewAuthenticator(cfg.Auth.JWTSecret, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", conn.HandleHealth)
	mux.Handle("GET /metrics", metricsHandler)
	mux.Handle("/", authenticator.Require(auth.RoleAdmin)(api))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      telemetry.HTTPHandler(mux, "admin"),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("starting admin service", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
