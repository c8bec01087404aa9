package model

import (
	"errors"
	"time"
)

// Invoice is a provider-issued payment request. It is stored as JSONB on the
// job record and is immutable once persisted.
type Invoice struct {
	// Bolt11 is the payment request string handed to the payer ("pr" in the
	// LNURL-pay response).
	Bolt11 string `json:"pr"`
	// PaymentHash is the payment hash decoded from the bolt11 invoice. It is
	// the primary key correlating a job across requests.
	PaymentHash string `json:"paymentHash"`
	// VerifyURL is the LNURL-verify endpoint polled for settlement.
	VerifyURL string `json:"verify,omitempty"`
	// AmountMsats is the invoiced amount in millisatoshis.
	AmountMsats int64 `json:"amountMsats,omitempty"`
	// ExpiresAt is when the invoice stops being payable.
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
	// SuccessAction tells the payer where to collect the paid result.
	SuccessAction *SuccessAction `json:"successAction,omitempty"`
}

// SuccessAction is the LNURL success action attached to an invoice: a URL the
// payer polls to retrieve the result of the purchase.
type SuccessAction struct {
	Tag         string `json:"tag"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// Validate checks the invoice has the fields the broker depends on.
func (i *Invoice) Validate() error {
	if i.Bolt11 == "" {
		return errors.New("bolt11 is required")
	}
	if i.PaymentHash == "" {
		return errors.New("payment hash is required")
	}
	if i.VerifyURL == "" {
		return errors.New("verify url is required")
	}
	return nil
}

// PaymentStatus pairs an invoice with its settlement flag. It is the body of
// 402 responses and of the check_payment endpoint.
type PaymentStatus struct {
	Invoice Invoice `json:"invoice"`
	IsPaid  bool    `json:"isPaid"`
}
