package lightning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Payer settles a bolt11 invoice on the caller's behalf. Used by the relay
// adapter when a downstream service is itself payment-gated.
type Payer interface {
	Pay(ctx context.Context, bolt11 string) error
}

// LNbitsPayerOptions groups dependencies for NewLNbitsPayer.
type LNbitsPayerOptions struct {
	// BaseURL is the LNbits instance root (e.g. "https://legend.lnbits.com").
	BaseURL string
	// APIKey is the wallet admin key used to pay outbound invoices.
	APIKey string
	// HTTPClient is optional.
	HTTPClient *http.Client
	// Logger is optional.
	Logger *slog.Logger
}

// LNbitsPayer pays invoices through the LNbits wallet API.
type LNbitsPayer struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

var _ Payer = (*LNbitsPayer)(nil)

// NewLNbitsPayer constructs an LNbitsPayer.
func NewLNbitsPayer(opts LNbitsPayerOptions) (*LNbitsPayer, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("lnbits base url is required")
	}
	if opts.APIKey == "" {
		return nil, errors.New("lnbits api key is required")
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "lnbits_payer")
	}

	return &LNbitsPayer{
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		client:  client,
		logger:  logger,
	}, nil
}

// Pay settles the given bolt11 invoice from the configured wallet.
func (p *LNbitsPayer) Pay(ctx context.Context, bolt11 string) error {
	if bolt11 == "" {
		return errors.New("bolt11 is required")
	}

	payload, err := json.Marshal(map[string]any{
		"out":    true,
		"bolt11": bolt11,
	})
	if err != nil {
		return fmt.Errorf("marshal payment request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, p.baseURL+"/api/v1/payments", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build payment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("pay invoice: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("pay invoice: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if p.logger != nil {
		p.logger.DebugContext(ctx, "invoice paid")
	}
	return nil
}
