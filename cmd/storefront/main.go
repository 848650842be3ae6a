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
	"github.com/joao-fontenele/printstore/internal/payment"
	"github.com/joao-fontenele/printstore/internal/pricing"
	"github.com/joao-fontenele/printstore/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	decimal.MarshalJSONWithoutQuotes = true

	cfg, err := config.Load("8081")
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Require("POSTGRES_URL", "RAZORPAY_KEY_ID", "RAZORPAY_KEY_SECRET"); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "storefront", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("storefront", "0.1.0")
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
	} else {
		logger.Warn("KAFKA_BROKERS not set, order events are disabled")
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

	gatewayClient := payment.NewClient(payment.Config{
		BaseURL:         cfg.Razorpay.BaseURL,
		KeyID:           cfg.Razorpay.KeyID,
		KeySecret:       cfg.Razorpay.KeySecret,
		DefaultCurrency: cfg.Checkout.Currency,
	}, telemetry.HTTPClient(15*time.Second))

	checkoutSvc := checkout.NewService(
		orderSvc,
		gatewayClient,
		docstore.NewPGCollection[domain.OrphanedPayment](conn, docstore.CollectionOrphanedPayments),
		publisher,
		logger,
	)

	adjustments := docstore.NewPGCollection[domain.StockAdjustment](conn, docstore.CollectionStockAdjustments)
	catalogHandler := catalog.NewHandler(catalog.NewService(products, adjustments, files, logger), logger)
	checkoutHandler := checkout.NewHandler(checkoutSvc, logger)
	ordersHandler := orders.NewHandler(orderSvc, logger)
	filesHandler := blobstore.NewHandler(files, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /products", telemetry.WithHTTPRoute(catalogHandler.HandleListActive))
	mux.HandleFunc("GET /products/{id}", telemetry.WithHTTPRoute(catalogHandler.HandleGetActive))
	mux.HandleFunc("POST /checkout/quote", telemetry.WithHTTPRoute(checkoutHandler.HandleQuote))
	mux.HandleFunc("POST /checkout/start", telemetry.WithHTTPRoute(checkoutHandler.HandleStart))
	mux.HandleFunc("POST /checkout/confirm", telemetry.WithHTTPRoute(checkoutHandler.HandleConfirm))
	mux.HandleFunc("POST /checkout/failures", telemetry.WithHTTPRoute(checkoutHandler.HandleFailure))
	mux.HandleFunc("GET /print-orders/{id}", telemetry.WithHTTPRoute(ordersHandler.HandleGetPrintOrder))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(ordersHandler.HandleGetEcommerceOrder))
	mux.HandleFunc("GET /files/{path...}", telemetry.WithHTTPRoute(filesHandler.HandleGet))
	mux.HandleFunc("GET /healthz", conn.HandleHealth)
	mux.Handle("GET /metrics", metricsHandler)

	var handler http.Handler = mux
	if cfg.Auth.JWTSecret != "" {
		handler = auth.NewAuthenticator(cfg.Auth.JWTSecret, logger).Optional(mux)
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      telemetry.HTTPHandler(handler, "storefront"),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("starting storefront service", "port", cfg.Port)
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
