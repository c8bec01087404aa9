// Package model defines the core data types used throughout the zapgate
// payment-gated job broker.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceID identifies which backend adapter handles a job.
type ServiceID string

// JobState represents the lifecycle state of a job.
type JobState string

// SettlementStatus represents whether a job's invoice has been paid.
type SettlementStatus string

const (
	// ServiceGPT is the text-generation service backed by a chat-completions API.
	ServiceGPT ServiceID = "GPT"
	// ServiceStableDiffusion is the image-generation service backed by a
	// self-polling diffusion API.
	ServiceStableDiffusion ServiceID = "STABLE"
	// ServiceRelay forwards jobs to another payment-gated endpoint,
	// settling the nested invoice on the caller's behalf.
	ServiceRelay ServiceID = "RELAY"

	// StateAwaitingPayment indicates the invoice has been issued but the
	// job has not been dispatched.
	StateAwaitingPayment JobState = "awaiting_payment"
	// StateDispatched indicates the backend adapter has been invoked.
	StateDispatched JobState = "dispatched"
	// StateSucceeded indicates the adapter returned a result. Terminal.
	StateSucceeded JobState = "succeeded"
	// StateFailed indicates the adapter failed; the error is the result. Terminal.
	StateFailed JobState = "failed"

	// SettlementUnsettled indicates the invoice has not been observed as paid.
	SettlementUnsettled SettlementStatus = "unsettled"
	// SettlementSettled indicates the invoice was paid. Monotonic: never reverts.
	SettlementSettled SettlementStatus = "settled"
)

// ErrJobNotFound is returned when no job exists for a payment hash.
var ErrJobNotFound = errors.New("job not found")

// Valid returns true if the JobState is one of the known states.
func (s JobState) Valid() bool {
	return s == StateAwaitingPayment || s == StateDispatched ||
		s == StateSucceeded || s == StateFailed
}

// Terminal reports whether the state is final. Terminal jobs serve their
// stored result forever and are never re-dispatched.
func (s JobState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// UnmarshalText implements encoding.TextUnmarshaler for ServiceID so service
// lists can be parsed from the environment.
func (id *ServiceID) UnmarshalText(text []byte) error {
	v := ServiceID(strings.ToUpper(strings.TrimSpace(string(text))))
	if v == "" {
		return errors.New("service id is empty")
	}
	*id = v
	return nil
}

// Job is one unit of paid work, keyed by the payment hash of its invoice.
// The payment hash is globally unique per invoice and immutable.
type Job struct {
	PaymentHash    string           `json:"payment_hash"             db:"payment_hash"`
	Service        ServiceID        `json:"service"                  db:"service"`
	Invoice        Invoice          `json:"invoice"                  db:"invoice"`
	PriceMsats     int64            `json:"price_msats"              db:"price_msats"`
	Settlement     SettlementStatus `json:"settlement"               db:"settlement"`
	State          JobState         `json:"state"                    db:"state"`
	RequestPayload json.RawMessage  `json:"request_payload"          db:"request_payload"`
	ResultPayload  json.RawMessage  `json:"result_payload,omitempty" db:"result_payload"`
	CreatedAt      time.Time        `json:"created_at"               db:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"               db:"updated_at"`
	DispatchedAt   *time.Time       `json:"dispatched_at,omitempty"  db:"dispatched_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"   db:"completed_at"`
}

// Settled reports whether the invoice has been observed as paid.
func (j *Job) Settled() bool {
	return j.Settlement == SettlementSettled
}

// CreateJobParams holds everything needed to persist a new job record.
type CreateJobParams struct {
	Service        ServiceID       `json:"service"`
	Invoice        Invoice         `json:"invoice"`
	PriceMsats     int64           `json:"price_msats"`
	RequestPayload json.RawMessage `json:"request_payload"`
}

// Validate checks the CreateJobParams fields.
func (p *CreateJobParams) Validate() error {
	if p.Service == "" {
		return errors.New("service is required")
	}
	if p.Invoice.PaymentHash == "" {
		return errors.New("invoice payment hash is required")
	}
	if p.Invoice.Bolt11 == "" {
		return errors.New("invoice bolt11 is required")
	}
	if p.PriceMsats <= 0 {
		return fmt.Errorf("price must be positive, got %d", p.PriceMsats)
	}
	if len(p.RequestPayload) == 0 {
		return errors.New("request payload is required")
	}
	return nil
}
