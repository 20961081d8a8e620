package payment

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCart           = errors.New("invalid cart")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrPaymentGateway        = errors.New("payment gateway error")
	ErrDuplicateRequest      = errors.New("duplicate payment request")
	ErrSignatureVerification = errors.New("signature verification failed")
	ErrMalformedEvent        = errors.New("malformed payment event")
	ErrInconsistency         = errors.New("payment intent opened without local order")
	ErrStoreUnavailable      = errors.New("store unavailable")
	ErrOrderNotFound         = errors.New("order not found")
	ErrListingNotFound       = errors.New("listing not found")
)

// InvalidCartError names the cart item that failed validation.
// Index is -1 when the cart as a whole is invalid.
type InvalidCartError struct {
	Index     int
	ListingID string
	Reason    string
}

func (e *InvalidCartError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid cart: %s", e.Reason)
	}
	return fmt.Sprintf("invalid cart item %d (listing %q): %s", e.Index, e.ListingID, e.Reason)
}

func (e *InvalidCartError) Is(target error) bool {
	return target == ErrInvalidCart
}

// InvalidAmountError is returned when a cart prices to a non-positive or
// unrepresentable total.
type InvalidAmountError struct {
	TotalMinorUnits int64
	Reason          string
}

func (e *InvalidAmountError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid amount: %s", e.Reason)
	}
	return fmt.Sprintf("invalid amount: total %d must be positive", e.TotalMinorUnits)
}

func (e *InvalidAmountError) Is(target error) bool {
	return target == ErrInvalidAmount
}

// PaymentGatewayError wraps a failed call to the payment gateway.
type PaymentGatewayError struct {
	Err error
}

func (e *PaymentGatewayError) Error() string {
	return fmt.Sprintf("payment gateway: %v", e.Err)
}

func (e *PaymentGatewayError) Unwrap() error {
	return e.Err
}

func (e *PaymentGatewayError) Is(target error) bool {
	return target == ErrPaymentGateway
}

// DuplicateRequestError is returned when the correlation id is already bound to an order.
type DuplicateRequestError struct {
	CorrelationID string
}

func (e *DuplicateRequestError) Error() string {
	return fmt.Sprintf("correlation id %q is already bound to an order", e.CorrelationID)
}

func (e *DuplicateRequestError) Is(target error) bool {
	return target == ErrDuplicateRequest
}

// SignatureVerificationError rejects an inbound event before its payload is parsed.
type SignatureVerificationError struct {
	Err error
}

func (e *SignatureVerificationError) Error() string {
	return fmt.Sprintf("signature verification failed: %v", e.Err)
}

func (e *SignatureVerificationError) Unwrap() error {
	return e.Err
}

func (e *SignatureVerificationError) Is(target error) bool {
	return target == ErrSignatureVerification
}

// InconsistencyError reports a gateway intent that has no local order because
// persisting the order failed after the gateway call succeeded.
type InconsistencyError struct {
	IntentID      string
	CorrelationID string
	Err           error
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("intent %s (correlation %s) has no local order: %v", e.IntentID, e.CorrelationID, e.Err)
}

func (e *InconsistencyError) Unwrap() error {
	return e.Err
}

func (e *InconsistencyError) Is(target error) bool {
	return target == ErrInconsistency
}
