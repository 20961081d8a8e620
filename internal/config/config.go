package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/corray333/backend-labs/payment/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func MustInit() {
	if err := godotenv.Load("./.env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic("error while loading .env file: " + err.Error())
	}

	SetDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/payment-svc")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			panic("error while reading config file: " + err.Error())
		}
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if err := BindSecrets(); err != nil {
		panic("error while binding environment: " + err.Error())
	}

	SetupLogger()
}

// SetDefaults registers the values used when config.yaml leaves a key out.
func SetDefaults() {
	viper.SetDefault("server.http.port", 8080)
	viper.SetDefault("server.http.max_webhook_body_bytes", 64<<10)
	viper.SetDefault("server.http.read_header_timeout", "5s")
	viper.SetDefault("server.http.shutdown_timeout", "10s")
	viper.SetDefault("server.http.cors.allowed_origins", []string{"*"})
	viper.SetDefault("server.http.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	viper.SetDefault("server.http.cors.allowed_headers", []string{"Accept", "Content-Type", "X-Request-Id"})
	viper.SetDefault("server.http.cors.max_age", 300)

	viper.SetDefault("postgres.port", 5432)
	viper.SetDefault("postgres.sslmode", "disable")
	viper.SetDefault("postgres.max_conns", 10)
	viper.SetDefault("postgres.query_timeout", "5s")

	viper.SetDefault("payments.currency", "USD")
	viper.SetDefault("payments.gateway_timeout", "10s")
	viper.SetDefault("payments.webhook_tolerance", "5m")
	viper.SetDefault("payments.listing_lookup.chunk_size", 50)
	viper.SetDefault("payments.listing_lookup.concurrency", 4)

	viper.SetDefault("rabbitmq.host", "rabbitmq")
	viper.SetDefault("rabbitmq.port", 5672)
	viper.SetDefault("rabbitmq.exchange", "payments")
	viper.SetDefault("rabbitmq.order_events_routing_key", "orders.status_changed")
	viper.SetDefault("rabbitmq.alerts_queue", "payments.alerts")
	viper.SetDefault("rabbitmq.outbox.poll_interval", "10s")
	viper.SetDefault("rabbitmq.outbox.batch_size", 100)
	viper.SetDefault("rabbitmq.outbox.retry_interval", "30s")
	viper.SetDefault("rabbitmq.outbox.max_retries", 10)

	viper.SetDefault("otel.service_name", "payment-svc")
	viper.SetDefault("otel.jaeger_endpoint", "http://jaeger:14268/api/traces")
	viper.SetDefault("otel.disabled", false)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
}

// secretEnv maps config keys onto the environment variables that carry
// connection details and credentials.
var secretEnv = map[string]string{
	"postgres.host":         "PAYMENT_PG_HOST",
	"postgres.port":         "PAYMENT_PG_PORT",
	"postgres.user":         "PAYMENT_PG_USER",
	"postgres.password":     "PAYMENT_PG_PASSWORD",
	"postgres.db":           "PAYMENT_PG_DB",
	"stripe.secret_key":     "STRIPE_SECRET_KEY",
	"stripe.webhook_secret": "STRIPE_WEBHOOK_SECRET",
	"stripe.api_url":        "STRIPE_API_URL",
	"rabbitmq.user":         "RABBITMQ_DEFAULT_USER",
	"rabbitmq.password":     "RABBITMQ_DEFAULT_PASS",
	"rabbitmq.host":         "RABBITMQ_HOST",
}

// BindSecrets binds secretEnv onto viper.
func BindSecrets() error {
	for key, env := range secretEnv {
		if err := viper.BindEnv(key, env); err != nil {
			return err
		}
	}

	return nil
}

func SetupLogger() {
	handler := logger.NewHandler(&logger.Options{
		Level:  viper.GetString("log.level"),
		Format: viper.GetString("log.format"),
	})
	log := slog.New(handler).With("service", viper.GetString("otel.service_name"))
	slog.SetDefault(log)
}
