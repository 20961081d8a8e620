package payment

// EventType classifies an authenticated gateway notification.
type EventType string

const (
	EventSucceeded EventType = "succeeded"
	EventFailed    EventType = "failed"
	EventIgnored   EventType = "ignored"
)

// InboundEvent is an authenticated payment notification.
type InboundEvent struct {
	ID       string
	Type     EventType
	RawType  string
	IntentID string
	Payload  []byte
}

// Outcome tells the caller what reconciliation did with an event.
// Every outcome is acknowledged to the gateway.
type Outcome string

const (
	OutcomeApplied  Outcome = "applied"
	OutcomeNoop     Outcome = "noop"
	OutcomeNotFound Outcome = "not_found"
	OutcomeIgnored  Outcome = "ignored"
)
