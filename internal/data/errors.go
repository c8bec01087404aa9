package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// ErrDuplicateJob is returned when a job already exists for a payment hash.
	ErrDuplicateJob = errors.New("job already exists for payment hash")
	// ErrPaymentHashRequired is returned when a payment hash argument is empty.
	ErrPaymentHashRequired = errors.New("payment_hash is required")
)
