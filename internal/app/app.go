package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corray333/backend-labs/payment/internal/clock"
	stripegw "github.com/corray333/backend-labs/payment/internal/dal/gateway/stripe"
	"github.com/corray333/backend-labs/payment/internal/dal/postgres"
	"github.com/corray333/backend-labs/payment/internal/dal/rabbitmq"
	"github.com/corray333/backend-labs/payment/internal/dal/repositories/alert"
	listingrepo "github.com/corray333/backend-labs/payment/internal/dal/repositories/listing/postgres"
	orderrepo "github.com/corray333/backend-labs/payment/internal/dal/repositories/order/postgres"
	outboxrepo "github.com/corray333/backend-labs/payment/internal/dal/repositories/outbox/postgres"
	"github.com/corray333/backend-labs/payment/internal/dal/uow"
	"github.com/corray333/backend-labs/payment/internal/otel"
	"github.com/corray333/backend-labs/payment/internal/service/models/currency"
	"github.com/corray333/backend-labs/payment/internal/service/services/checkoutsvc"
	"github.com/corray333/backend-labs/payment/internal/service/services/eventauth"
	"github.com/corray333/backend-labs/payment/internal/service/services/ordersvc"
	"github.com/corray333/backend-labs/payment/internal/service/services/paymentsvc"
	"github.com/corray333/backend-labs/payment/internal/service/services/pricing"
	"github.com/corray333/backend-labs/payment/internal/service/services/reconcilesvc"
	httptransport "github.com/corray333/backend-labs/payment/internal/transport/http"
	outboxworker "github.com/corray333/backend-labs/payment/internal/worker/outbox"
	"github.com/spf13/viper"
)

// App represents the application.
type App struct {
	transport       *httptransport.HTTPTransport
	outboxWorker    *outboxworker.Worker
	postgresClient  *postgres.Client
	rabbitMqClient  *rabbitmq.Client
	otelController  *otel.OtelController
	shutdownTimeout time.Duration
}

// MustNewApp creates a new application.
func MustNewApp() *App {
	ctx := context.Background()

	otelController := otel.MustInitOtel(otel.Config{
		ServiceName:    viper.GetString("otel.service_name"),
		JaegerEndpoint: viper.GetString("otel.jaeger_endpoint"),
		Disabled:       viper.GetBool("otel.disabled"),
	})

	postgresClient := postgres.MustNewClient(ctx, postgres.Config{
		Host:     viper.GetString("postgres.host"),
		Port:     viper.GetInt("postgres.port"),
		User:     viper.GetString("postgres.user"),
		Password: viper.GetString("postgres.password"),
		DB:       viper.GetString("postgres.db"),
		SSLMode:  viper.GetString("postgres.sslmode"),
		MaxConns: viper.GetInt32("postgres.max_conns"),
	})

	rabbitMqClient := rabbitmq.MustNewClient(rabbitmq.Config{
		User:     viper.GetString("rabbitmq.user"),
		Password: viper.GetString("rabbitmq.password"),
		Host:     viper.GetString("rabbitmq.host"),
		Port:     viper.GetInt("rabbitmq.port"),
	})

	exchange := viper.GetString("rabbitmq.exchange")
	if err := rabbitMqClient.DeclareTopicExchange(exchange); err != nil {
		panic(err)
	}
	alertsQueue, err := rabbitMqClient.DeclareQueue(rabbitmq.DeclareQueueConfig{
		Name:    viper.GetString("rabbitmq.alerts_queue"),
		Durable: true,
	})
	if err != nil {
		panic(err)
	}

	cur, err := currency.ParseCurrency(viper.GetString("payments.currency"))
	if err != nil {
		panic(err)
	}

	storeTimeout := viper.GetDuration("postgres.query_timeout")
	systemClock := clock.NewSystem()

	orderRepository := orderrepo.NewPostgresOrderRepository(postgresClient.Pool())
	listingRepository := listingrepo.NewListingRepository(postgresClient.Pool())
	outboxRepository := outboxrepo.NewOutboxRepository(postgresClient.Pool())

	gateway := stripegw.MustNewGateway(stripegw.Config{
		SecretKey: viper.GetString("stripe.secret_key"),
		URL:       viper.GetString("stripe.api_url"),
		Timeout:   viper.GetDuration("payments.gateway_timeout"),
	})

	issuer := paymentsvc.MustNewIssuer(
		paymentsvc.WithGateway(gateway),
		paymentsvc.WithOrderRepository(orderRepository),
		paymentsvc.WithInconsistencyReporter(alert.NewInconsistencyRabbitMQRepository(rabbitMqClient, alertsQueue.Name)),
		paymentsvc.WithClock(systemClock),
		paymentsvc.WithGatewayTimeout(viper.GetDuration("payments.gateway_timeout")),
		paymentsvc.WithStoreTimeout(storeTimeout),
	)

	checkoutSvc := checkoutsvc.MustNewCheckoutService(
		checkoutsvc.WithListingRepository(listingRepository),
		checkoutsvc.WithPricer(pricing.NewEngine(cur)),
		checkoutsvc.WithIssuer(issuer),
		checkoutsvc.WithLookupLimits(
			viper.GetInt("payments.listing_lookup.chunk_size"),
			viper.GetInt("payments.listing_lookup.concurrency"),
		),
		checkoutsvc.WithLookupTimeout(storeTimeout),
	)

	webhookSecret := viper.GetString("stripe.webhook_secret")
	if webhookSecret == "" {
		slog.Warn("Webhook signing secret is empty, every payment event will be rejected")
	}

	reconciler := reconcilesvc.MustNewReconciler(
		reconcilesvc.WithUnitOfWork(func() reconcilesvc.UnitOfWork {
			return uow.NewUnitOfWork(postgresClient)
		}),
		reconcilesvc.WithAuthenticator(eventauth.NewAuthenticator(
			webhookSecret,
			viper.GetDuration("payments.webhook_tolerance"),
		)),
		reconcilesvc.WithClock(systemClock),
		reconcilesvc.WithStoreTimeout(storeTimeout),
		reconcilesvc.WithStatusEvents(
			exchange,
			viper.GetString("rabbitmq.order_events_routing_key"),
			viper.GetInt("rabbitmq.outbox.max_retries"),
		),
	)

	orderSvc := ordersvc.MustNewOrderService(
		ordersvc.WithOrderRepository(orderRepository),
	)

	transport := httptransport.NewHTTPTransport(httptransport.Config{
		Port:        viper.GetInt("server.http.port"),
		ServiceName: viper.GetString("otel.service_name"),
		CORS: httptransport.CORSConfig{
			AllowedOrigins:   viper.GetStringSlice("server.http.cors.allowed_origins"),
			AllowedMethods:   viper.GetStringSlice("server.http.cors.allowed_methods"),
			AllowedHeaders:   viper.GetStringSlice("server.http.cors.allowed_headers"),
			ExposedHeaders:   viper.GetStringSlice("server.http.cors.exposed_headers"),
			AllowCredentials: viper.GetBool("server.http.cors.allow_credentials"),
			MaxAge:           viper.GetInt("server.http.cors.max_age"),
		},
		MaxWebhookBodyBytes: viper.GetInt64("server.http.max_webhook_body_bytes"),
		ReadHeaderTimeout:   viper.GetDuration("server.http.read_header_timeout"),
	}, httptransport.Services{
		Checkout:  checkoutSvc,
		Reconcile: reconciler,
		Orders:    orderSvc,
		Health:    postgresClient,
	})
	transport.RegisterRoutes()

	outboxWorker := outboxworker.NewWorker(outboxRepository, rabbitMqClient, outboxworker.Config{
		PollInterval:  viper.GetDuration("rabbitmq.outbox.poll_interval"),
		BatchSize:     viper.GetInt("rabbitmq.outbox.batch_size"),
		RetryInterval: viper.GetDuration("rabbitmq.outbox.retry_interval"),
	}, systemClock)

	return &App{
		transport:       transport,
		outboxWorker:    outboxWorker,
		postgresClient:  postgresClient,
		rabbitMqClient:  rabbitMqClient,
		otelController:  otelController,
		shutdownTimeout: viper.GetDuration("server.http.shutdown_timeout"),
	}
}

// Run starts the application.
// Tracks interrupt signal to gracefully shut down the application.
func (a *App) Run() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		slog.Info("Starting HTTP server")
		if err := a.transport.Run(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	go func() {
		slog.Info("Starting outbox worker")
		a.outboxWorker.Start(ctx)
	}()

	<-stop
	slog.Info("Shutdown signal received")
	cancel()

	a.gracefulShutdown()
}

// gracefulShutdown stops intake first, then the worker, then the clients the
// handlers depend on.
func (a *App) gracefulShutdown() {
	timeout := a.shutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := a.transport.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped gracefully")
	}

	a.outboxWorker.Stop()
	slog.Info("Outbox worker stopped gracefully")

	if err := a.rabbitMqClient.Close(); err != nil {
		slog.Error("RabbitMQ connection close error", "error", err)
	} else {
		slog.Info("RabbitMQ connection closed gracefully")
	}

	a.postgresClient.Close()
	slog.Info("Database connection closed gracefully")

	if err := a.otelController.Shutdown(ctx); err != nil {
		slog.Error("Otel trace provider connection close error", "error", err)
	} else {
		slog.Info("Otel trace provider connection closed gracefully")
	}

	select {
	case <-ctx.Done():
		slog.Warn("Shutdown timeout exceeded")
	default:
		slog.Info("Application shutdown complete")
	}
}
