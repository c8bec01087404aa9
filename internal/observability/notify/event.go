// Package notify defines the job-failure notification contract shared by the
// dispatcher and its sinks.
package notify

import (
	"context"
	"time"
)

// SeverityCritical marks failures of paid work; every sink message carries it.
const SeverityCritical = "critical"

// JobFailurePayload captures the canonical data emitted for dispatch failures.
// The client has already paid when a dispatch fails, so these are the
// notifications an operator actually has to act on.
type JobFailurePayload struct {
	PaymentHash string
	Service     string
	PriceMsats  int64
	Error       string
	Severity    string
	OccurredAt  time.Time
}

// Sink describes a destination capable of consuming job failure notifications.
type Sink interface {
	SendJobFailure(ctx context.Context, payload JobFailurePayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload JobFailurePayload) error

// SendJobFailure implements the Sink interface.
func (f SinkFunc) SendJobFailure(ctx context.Context, payload JobFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
