package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/zapgate/zapgate/internal/core"
	"github.com/zapgate/zapgate/internal/domain/model"
	apperrors "github.com/zapgate/zapgate/internal/errors"
	"github.com/zapgate/zapgate/internal/lightning"
	"github.com/zapgate/zapgate/internal/poll"
)

// RelayOptions groups dependencies for NewRelay.
type RelayOptions struct {
	// TargetURL is the downstream payment-gated service endpoint the payload
	// is forwarded to.
	TargetURL string
	// Payer settles the downstream invoice.
	Payer lightning.Payer
	// Poll bounds the downstream result loop. Zero values take poll defaults.
	Poll poll.Config
	// HTTPClient is optional.
	HTTPClient *http.Client
	// Logger is optional.
	Logger *slog.Logger
}

// Relay forwards a job to another payment-gated endpoint. The downstream
// answers 402 with its own invoice; Relay settles it from the operator wallet
// and polls the success-action URL until the downstream job is terminal.
type Relay struct {
	targetURL string
	payer     lightning.Payer
	pollCfg   poll.Config
	client    *http.Client
	logger    *slog.Logger
}

var _ core.BackendAdapter = (*Relay)(nil)

// NewRelay constructs the relay backend adapter.
func NewRelay(opts RelayOptions) (*Relay, error) {
	if opts.TargetURL == "" {
		return nil, errors.New("relay target url is required")
	}
	if opts.Payer == nil {
		return nil, errors.New("relay payer is required")
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	pollCfg := opts.Poll
	pollCfg.Sanitize()

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("adapter", "relay")
	}

	return &Relay{
		targetURL: strings.TrimSuffix(opts.TargetURL, "/"),
		payer:     opts.Payer,
		pollCfg:   pollCfg,
		client:    client,
		logger:    logger,
	}, nil
}

// Service implements core.BackendAdapter.
func (a *Relay) Service() model.ServiceID {
	return model.ServiceRelay
}

// Execute forwards the payload downstream, pays the returned invoice, and
// polls for the downstream result.
func (a *Relay) Execute(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	invoice, err := a.requestQuote(ctx, payload)
	if err != nil {
		return nil, err
	}

	if payErr := a.payer.Pay(ctx, invoice.Bolt11); payErr != nil {
		return nil, fmt.Errorf("settle downstream invoice: %w", payErr)
	}
	if a.logger != nil {
		a.logger.InfoContext(ctx, "downstream invoice settled",
			"payment_hash", invoice.PaymentHash,
		)
	}

	resultURL, err := a.resultURL(invoice)
	if err != nil {
		return nil, err
	}
	return a.awaitResult(ctx, resultURL)
}

// requestQuote posts the payload and decodes the 402 invoice body.
func (a *Relay) requestQuote(ctx context.Context, payload json.RawMessage) (model.Invoice, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, a.targetURL, bytes.NewReader(payload))
	if err != nil {
		return model.Invoice{}, fmt.Errorf("build downstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return model.Invoice{}, fmt.Errorf("call downstream: %w", err)
	}

	body, err := readBody(resp)
	if err != nil {
		return model.Invoice{}, fmt.Errorf("read downstream response: %w", err)
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return model.Invoice{}, statusError(resp, body)
	}

	var invoice model.Invoice
	if decodeErr := json.Unmarshal(body, &invoice); decodeErr != nil {
		return model.Invoice{}, fmt.Errorf("decode downstream invoice: %w", decodeErr)
	}
	if invoice.Bolt11 == "" {
		return model.Invoice{}, errors.New("downstream invoice has no payment request")
	}
	return invoice, nil
}

// resultURL prefers the invoice success action; otherwise it derives the
// get_result URL from the payment hash.
func (a *Relay) resultURL(invoice model.Invoice) (string, error) {
	if invoice.SuccessAction != nil && invoice.SuccessAction.URL != "" {
		return invoice.SuccessAction.URL, nil
	}
	if invoice.PaymentHash == "" {
		return "", errors.New("downstream invoice has no success action or payment hash")
	}
	return a.targetURL + "/" + invoice.PaymentHash + "/get_result", nil
}

// awaitResult polls the downstream result URL. 402 means settlement has not
// been observed yet and 202 means the downstream job is still running; both
// keep the loop going.
func (a *Relay) awaitResult(ctx context.Context, resultURL string) (json.RawMessage, error) {
	var result json.RawMessage
	err := poll.Until(ctx, a.pollCfg, func(ctx context.Context) (bool, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
		if reqErr != nil {
			return false, fmt.Errorf("build result request: %w", reqErr)
		}
		req.Header.Set("Accept", "application/json")

		resp, doErr := a.client.Do(req)
		if doErr != nil {
			return false, fmt.Errorf("poll downstream result: %w", doErr)
		}
		body, readErr := readBody(resp)
		if readErr != nil {
			return false, fmt.Errorf("read downstream result: %w", readErr)
		}

		switch resp.StatusCode {
		case http.StatusOK:
			result = body
			return true, nil
		case http.StatusAccepted, http.StatusPaymentRequired:
			return false, nil
		default:
			return false, statusError(resp, body)
		}
	})
	if errors.Is(err, poll.ErrTimeout) {
		return nil, apperrors.Wrap(
			apperrors.Timeout("downstream job did not finish within the poll budget"), err)
	}
	if err != nil {
		return nil, fmt.Errorf("relay: %w", err)
	}
	return result, nil
}
