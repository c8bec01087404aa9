package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
)

// Source provides one independent BTC-USD quote. Implementations must treat
// every failure as their own: the oracle drops failed samples rather than
// aborting the aggregate.
type Source interface {
	Name() string
	Quote(ctx context.Context) (float64, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc struct {
	SourceName string
	Fn         func(ctx context.Context) (float64, error)
}

// Name returns the source name.
func (s SourceFunc) Name() string { return s.SourceName }

// Quote invokes the wrapped function.
func (s SourceFunc) Quote(ctx context.Context) (float64, error) {
	return s.Fn(ctx)
}

// HTTPSourceConfig describes a JSON price endpoint. Expr is a JMESPath
// expression locating the quote inside the response body; every exchange
// buries it at a different path, and several return it as a string.
type HTTPSourceConfig struct {
	Name string
	URL  string
	Expr string
}

// HTTPSource fetches a quote from a JSON HTTP endpoint.
type HTTPSource struct {
	name   string
	url    string
	expr   jmespath.JMESPath
	client *http.Client
}

const maxSourceBodyBytes = 1 << 20

// NewHTTPSource compiles the extraction expression and returns the source.
func NewHTTPSource(cfg HTTPSourceConfig, client *http.Client) (*HTTPSource, error) {
	expr, err := jmespath.Compile(cfg.Expr)
	if err != nil {
		return nil, fmt.Errorf("compile expression for source %s: %w", cfg.Name, err)
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSource{name: cfg.Name, url: cfg.URL, expr: expr, client: client}, nil
}

// Name returns the source name.
func (s *HTTPSource) Name() string { return s.name }

// Quote fetches the endpoint and extracts a numeric, positive price.
func (s *HTTPSource) Quote(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", s.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch %s: unexpected status %d", s.name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBodyBytes))
	if err != nil {
		return 0, fmt.Errorf("read %s response: %w", s.name, err)
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return 0, fmt.Errorf("decode %s response: %w", s.name, err)
	}

	raw, err := s.expr.Search(doc)
	if err != nil {
		return 0, fmt.Errorf("extract quote from %s: %w", s.name, err)
	}

	price, err := coerceQuote(raw)
	if err != nil {
		return 0, fmt.Errorf("source %s: %w", s.name, err)
	}
	return price, nil
}

// coerceQuote accepts the number-or-string shapes the exchanges return.
func coerceQuote(raw any) (float64, error) {
	var price float64
	switch v := raw.(type) {
	case float64:
		price = v
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("quote %q is not numeric", v)
		}
		price = parsed
	default:
		return 0, fmt.Errorf("quote has unexpected type %T", raw)
	}

	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return 0, fmt.Errorf("quote %v is not a positive number", price)
	}
	return price, nil
}

// DefaultSources returns the five reference exchange feeds.
func DefaultSources(client *http.Client) ([]Source, error) {
	configs := []HTTPSourceConfig{
		{Name: "coinbase", URL: "https://api.coinbase.com/v2/prices/BTC-USD/spot", Expr: "data.amount"},
		{Name: "kraken", URL: "https://api.kraken.com/0/public/Ticker?pair=XBTUSD", Expr: `result."XXBTZUSD".a[0]`},
		{Name: "coindesk", URL: "https://api.coindesk.com/v1/bpi/currentprice.json", Expr: "bpi.USD.rate_float"},
		{Name: "gemini", URL: "https://api.gemini.com/v2/ticker/BTCUSD", Expr: "bid"},
		{Name: "coingecko", URL: "https://api.coingecko.com/api/v3/simple/price?ids=bitcoin&vs_currencies=usd&precision=2", Expr: "bitcoin.usd"},
	}

	sources := make([]Source, 0, len(configs))
	for _, cfg := range configs {
		src, err := NewHTTPSource(cfg, client)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}
