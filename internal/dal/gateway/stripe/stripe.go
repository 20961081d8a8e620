package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/corray333/backend-labs/payment/internal/service/models/payment"
	stripeapi "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// Config configures the Stripe adapter.
type Config struct {
	SecretKey string
	// URL overrides the API base URL. Empty means api.stripe.com.
	URL     string
	Timeout time.Duration
}

// Gateway opens payment intents through the Stripe API.
type Gateway struct {
	api *client.API
}

// NewGateway creates a Stripe gateway. Network retries are disabled: the
// caller owns the timeout and the correlation id makes a resubmission safe.
func NewGateway(cfg Config) (*Gateway, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe secret key is not configured")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	backendCfg := &stripeapi.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripeapi.Int64(0),
		LeveledLogger:     &stripeapi.LeveledLogger{Level: stripeapi.LevelWarn},
	}
	if cfg.URL != "" {
		backendCfg.URL = stripeapi.String(cfg.URL)
	}

	backend := stripeapi.GetBackendWithConfig(stripeapi.APIBackend, backendCfg)

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripeapi.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})

	return &Gateway{api: api}, nil
}

// MustNewGateway creates a Stripe gateway or panics.
func MustNewGateway(cfg Config) *Gateway {
	g, err := NewGateway(cfg)
	if err != nil {
		panic(err)
	}

	return g
}

// CreateIntent opens a payment intent for the exact amount. The correlation
// id is the idempotency key, so a repeated request returns the same intent.
func (g *Gateway) CreateIntent(ctx context.Context, req payment.IntentRequest) (payment.IntentRef, error) {
	params := &stripeapi.PaymentIntentParams{
		Amount:   stripeapi.Int64(req.AmountMinorUnits),
		Currency: stripeapi.String(req.Currency.Lower()),
		AutomaticPaymentMethods: &stripeapi.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripeapi.Bool(true),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.CorrelationID)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return payment.IntentRef{}, &payment.PaymentGatewayError{Err: describe(err)}
	}
	if pi.ID == "" || pi.ClientSecret == "" {
		return payment.IntentRef{}, &payment.PaymentGatewayError{Err: errors.New("intent response is missing id or client secret")}
	}

	return payment.IntentRef{
		IntentID:      pi.ID,
		CorrelationID: req.CorrelationID,
		ClientSecret:  pi.ClientSecret,
	}, nil
}

func describe(err error) error {
	var stripeErr *stripeapi.Error
	if errors.As(err, &stripeErr) {
		return fmt.Errorf("stripe %s (status %d, code %q, request %s): %w",
			stripeErr.Type, stripeErr.HTTPStatusCode, stripeErr.Code, stripeErr.RequestID, err)
	}

	return err
}
