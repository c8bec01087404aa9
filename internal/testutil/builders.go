package testutil

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/zapgate/zapgate/internal/domain/model"
)

// JobParamsBuilder provides a fluent interface for building CreateJobParams for testing.
type JobParamsBuilder struct {
	params *model.CreateJobParams
}

// NewJobParams creates a new JobParamsBuilder with sensible defaults.
func NewJobParams() *JobParamsBuilder {
	hash := "aa00000000000000000000000000000000000000000000000000000000000001"
	return &JobParamsBuilder{
		params: &model.CreateJobParams{
			Service: model.ServiceGPT,
			Invoice: model.Invoice{
				Bolt11:      "lnbc210n1testinvoice",
				PaymentHash: hash,
				VerifyURL:   "https://pay.example.com/verify/" + hash,
				AmountMsats: 21000,
				ExpiresAt:   time.Now().Add(10 * time.Minute).UTC(),
			},
			PriceMsats:     21000,
			RequestPayload: json.RawMessage(`{"prompt": "hello"}`),
		},
	}
}

// WithService sets the service the job belongs to.
func (b *JobParamsBuilder) WithService(service model.ServiceID) *JobParamsBuilder {
	b.params.Service = service
	return b
}

// WithPaymentHash sets the payment hash on the invoice.
func (b *JobParamsBuilder) WithPaymentHash(hash string) *JobParamsBuilder {
	b.params.Invoice.PaymentHash = hash
	b.params.Invoice.VerifyURL = "https://pay.example.com/verify/" + hash
	return b
}

// WithPriceMsats sets the price in msats on both job and invoice.
func (b *JobParamsBuilder) WithPriceMsats(msats int64) *JobParamsBuilder {
	b.params.PriceMsats = msats
	b.params.Invoice.AmountMsats = msats
	return b
}

// WithPayloadString sets the request payload from a string.
func (b *JobParamsBuilder) WithPayloadString(payload string) *JobParamsBuilder {
	b.params.RequestPayload = json.RawMessage(payload)
	return b
}

// WithSuccessAction sets the invoice success action.
func (b *JobParamsBuilder) WithSuccessAction(sa *model.SuccessAction) *JobParamsBuilder {
	b.params.Invoice.SuccessAction = sa
	return b
}

// WithInvoiceExpiry sets the invoice expiry time.
func (b *JobParamsBuilder) WithInvoiceExpiry(t time.Time) *JobParamsBuilder {
	b.params.Invoice.ExpiresAt = t.UTC()
	return b
}

// Build returns the constructed CreateJobParams.
func (b *JobParamsBuilder) Build() *model.CreateJobParams {
	return b.params
}

// UniquePaymentHash returns a 64-char hex hash derived from n, for tests that
// need several distinct jobs.
func UniquePaymentHash(n int) string {
	return fmt.Sprintf("%064x", n)
}
