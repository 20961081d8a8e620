package eventauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/corray333/backend-labs/payment/internal/service/models/payment"
	"github.com/stripe/stripe-go/v76/webhook"
)

// DefaultTolerance is the maximum age of a signed delivery.
const DefaultTolerance = webhook.DefaultTolerance

// Gateway event types mapped onto payment outcomes.
const (
	TypeIntentSucceeded = "payment_intent.succeeded"
	TypeIntentFailed    = "payment_intent.payment_failed"
	TypeIntentCanceled  = "payment_intent.canceled"
)

var ErrMissingSecret = errors.New("webhook signing secret is not configured")

// Authenticator verifies and classifies gateway deliveries.
type Authenticator struct {
	secret    string
	tolerance time.Duration
}

// NewAuthenticator creates an Authenticator for the shared signing secret.
func NewAuthenticator(secret string, tolerance time.Duration) *Authenticator {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	return &Authenticator{
		secret:    secret,
		tolerance: tolerance,
	}
}

type envelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID     string `json:"id"`
			Object string `json:"object"`
		} `json:"object"`
	} `json:"data"`
}

// Authenticate checks the timestamped HMAC in sigHeader against the raw
// payload and only then parses it. Unknown event types are returned as
// payment.EventIgnored.
func (a *Authenticator) Authenticate(payload []byte, sigHeader string) (payment.InboundEvent, error) {
	if a.secret == "" {
		return payment.InboundEvent{}, &payment.SignatureVerificationError{Err: ErrMissingSecret}
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, sigHeader, a.secret, a.tolerance); err != nil {
		return payment.InboundEvent{}, &payment.SignatureVerificationError{Err: err}
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return payment.InboundEvent{}, fmt.Errorf("%w: %v", payment.ErrMalformedEvent, err)
	}

	ev := payment.InboundEvent{
		ID:       env.ID,
		Type:     classify(env.Type),
		RawType:  env.Type,
		IntentID: env.Data.Object.ID,
		Payload:  payload,
	}
	if ev.Type != payment.EventIgnored && ev.IntentID == "" {
		return payment.InboundEvent{}, fmt.Errorf("%w: event %s carries no payment intent id", payment.ErrMalformedEvent, env.ID)
	}

	return ev, nil
}

func classify(eventType string) payment.EventType {
	switch eventType {
	case TypeIntentSucceeded:
		return payment.EventSucceeded
	case TypeIntentFailed, TypeIntentCanceled:
		return payment.EventFailed
	default:
		return payment.EventIgnored
	}
}
