// Package lightning implements the LNURL-pay settlement provider: minting
// bolt11 invoices through a Lightning address and polling LNURL-verify for
// settlement.
package lightning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zapgate/zapgate/internal/core"
	"github.com/zapgate/zapgate/internal/domain/model"
)

const (
	defaultHTTPTimeout   = 15 * time.Second
	defaultParamsTTL     = time.Minute
	maxResponseBodyBytes = 1 << 20
)

// payParams is the LNURL-pay metadata served at the well-known endpoint.
type payParams struct {
	Callback    string `json:"callback"`
	MinSendable int64  `json:"minSendable"`
	MaxSendable int64  `json:"maxSendable"`
	Tag         string `json:"tag"`
}

// invoiceResponse is the LNURL-pay callback response.
type invoiceResponse struct {
	PR     string `json:"pr"`
	Verify string `json:"verify"`
	Status string `json:"status,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// verifyResponse is the LNURL-verify response body.
type verifyResponse struct {
	Settled bool `json:"settled"`
}

// ClientOptions groups dependencies for NewClient.
type ClientOptions struct {
	// Address is the Lightning address invoices are minted against
	// ("user@domain").
	Address string
	// HTTPClient is optional; a 15s-timeout client is used by default.
	HTTPClient *http.Client
	// ParamsTTL bounds how long pay parameters are memoized (default 1m).
	ParamsTTL time.Duration
	// Logger is optional.
	Logger *slog.Logger
}

// Client talks LNURL-pay for one Lightning address. It implements
// core.InvoiceProvider.
type Client struct {
	lnurlpURL string
	client    *http.Client
	paramsTTL time.Duration
	logger    *slog.Logger

	mu          sync.Mutex
	params      *payParams
	paramsUntil time.Time
}

var _ core.InvoiceProvider = (*Client)(nil)

// NewClient validates the Lightning address and constructs a Client.
func NewClient(opts ClientOptions) (*Client, error) {
	lnurlpURL, err := WellKnownURL(opts.Address)
	if err != nil {
		return nil, err
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	ttl := opts.ParamsTTL
	if ttl <= 0 {
		ttl = defaultParamsTTL
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "lnurl_client")
	}

	return &Client{
		lnurlpURL: lnurlpURL,
		client:    httpClient,
		paramsTTL: ttl,
		logger:    logger,
	}, nil
}

// WellKnownURL resolves a Lightning address to its LNURL-pay endpoint.
func WellKnownURL(address string) (string, error) {
	parts := strings.Split(strings.TrimSpace(address), "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("invalid lightning address %q", address)
	}
	return fmt.Sprintf("https://%s/.well-known/lnurlp/%s", parts[1], parts[0]), nil
}

// PayableRange returns the provider's min and max sendable msats.
func (c *Client) PayableRange(ctx context.Context) (int64, int64, error) {
	params, err := c.payParams(ctx)
	if err != nil {
		return 0, 0, err
	}
	return params.MinSendable, params.MaxSendable, nil
}

// RequestInvoice mints an invoice for amountMsats via the LNURL callback.
func (c *Client) RequestInvoice(
	ctx context.Context,
	amountMsats int64,
	expiry time.Duration,
) (model.Invoice, error) {
	params, err := c.payParams(ctx)
	if err != nil {
		return model.Invoice{}, err
	}

	expiresAt := time.Now().Add(expiry)

	callback, err := url.Parse(params.Callback)
	if err != nil {
		return model.Invoice{}, fmt.Errorf("parse callback url: %w", err)
	}
	q := callback.Query()
	q.Set("amount", strconv.FormatInt(amountMsats, 10))
	q.Set("expiry", strconv.FormatInt(expiresAt.Unix(), 10))
	callback.RawQuery = q.Encode()

	var resp invoiceResponse
	if err := c.getJSON(ctx, callback.String(), &resp); err != nil {
		return model.Invoice{}, fmt.Errorf("request invoice: %w", err)
	}
	if strings.EqualFold(resp.Status, "ERROR") {
		return model.Invoice{}, fmt.Errorf("invoice provider rejected request: %s", resp.Reason)
	}
	if resp.PR == "" {
		return model.Invoice{}, errors.New("invoice provider returned no payment request")
	}

	hash, err := PaymentHash(resp.PR)
	if err != nil {
		return model.Invoice{}, fmt.Errorf("extract payment hash: %w", err)
	}

	invoice := model.Invoice{
		Bolt11:      resp.PR,
		PaymentHash: hash,
		VerifyURL:   resp.Verify,
		AmountMsats: amountMsats,
		ExpiresAt:   expiresAt,
	}

	if c.logger != nil {
		c.logger.DebugContext(ctx, "invoice minted",
			"payment_hash", hash,
			"amount_msats", amountMsats,
		)
	}
	return invoice, nil
}

// CheckSettled polls the LNURL-verify endpoint behind the invoice.
func (c *Client) CheckSettled(ctx context.Context, verifyURL string) (bool, error) {
	if verifyURL == "" {
		return false, errors.New("verify url is required")
	}

	var resp verifyResponse
	if err := c.getJSON(ctx, verifyURL, &resp); err != nil {
		return false, fmt.Errorf("check settlement: %w", err)
	}
	return resp.Settled, nil
}

// payParams fetches LNURL-pay metadata, memoized for paramsTTL. The metadata
// (callback URL, payable range) changes rarely; memoization keeps the common
// two-step quote-then-mint flow at one upstream round trip.
func (c *Client) payParams(ctx context.Context) (*payParams, error) {
	c.mu.Lock()
	if c.params != nil && time.Now().Before(c.paramsUntil) {
		params := c.params
		c.mu.Unlock()
		return params, nil
	}
	c.mu.Unlock()

	var params payParams
	if err := c.getJSON(ctx, c.lnurlpURL, &params); err != nil {
		return nil, fmt.Errorf("fetch lnurl pay params: %w", err)
	}
	if params.Callback == "" {
		return nil, errors.New("lnurl pay params missing callback")
	}

	c.mu.Lock()
	c.params = &params
	c.paramsUntil = time.Now().Add(c.paramsTTL)
	c.mu.Unlock()

	return &params, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
