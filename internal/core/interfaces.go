// Package core defines the ports between the service layer and its
// collaborators (persistence, settlement provider, backend adapters, cache).
// Services depend on these interfaces, not on concrete implementations.
package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/zapgate/zapgate/internal/domain/model"
)

// TransitionParams groups parameters for JobRepository.TryTransition.
type TransitionParams struct {
	PaymentHash string
	From        model.JobState
	To          model.JobState
}

// JobRepository defines persistence for job records. All state mutation goes
// through single atomic statements; there is no read-then-write path.
type JobRepository interface {
	Create(ctx context.Context, params *model.CreateJobParams) (*model.Job, error)
	GetByPaymentHash(ctx context.Context, hash string) (*model.Job, error)

	// MarkSettled flips the settlement flag to settled. Monotonic and
	// idempotent: settling an already-settled job is a no-op.
	MarkSettled(ctx context.Context, hash string) error

	// TryTransition atomically advances the lifecycle state iff the record is
	// currently in params.From. Returns false (no-op) when the precondition
	// does not hold. This is the primitive that makes dispatch exactly-once
	// under concurrent pollers, including pollers in other process instances.
	TryTransition(ctx context.Context, params TransitionParams) (bool, error)

	// Complete moves a dispatched job to succeeded, storing the result in the
	// same statement. Returns false if the job was not in dispatched state.
	Complete(ctx context.Context, hash string, result json.RawMessage) (bool, error)

	// Fail moves a dispatched job to failed, storing the structured error
	// payload in the same statement.
	Fail(ctx context.Context, hash string, result json.RawMessage) (bool, error)
}

// InvoiceProvider is the settlement-layer API that mints invoices and reports
// settlement. The production implementation speaks LNURL-pay.
type InvoiceProvider interface {
	// PayableRange returns the provider's min/max sendable amounts in msats.
	PayableRange(ctx context.Context) (minMsats, maxMsats int64, err error)

	// RequestInvoice mints an invoice for the given amount. The returned
	// invoice carries the bolt11, payment hash, and verify handle.
	RequestInvoice(ctx context.Context, amountMsats int64, expiry time.Duration) (model.Invoice, error)

	// CheckSettled reports whether the invoice behind the verify handle has
	// been paid.
	CheckSettled(ctx context.Context, verifyURL string) (bool, error)
}

// BackendAdapter executes the paid work for one service. Implementations
// never panic across this boundary; every failure is an error return, which
// the dispatcher captures into the job's failed result.
type BackendAdapter interface {
	Service() model.ServiceID
	Execute(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
}

// CacheRepository defines the caching operations used by the price oracle.
type CacheRepository interface {
	// Set stores a value with the given TTL. TTL 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns nil with no error when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes a key, reporting whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
	// Health checks the cache connection.
	Health(ctx context.Context) error
}
