package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/zapgate/zapgate/internal/domain/model"
	apperrors "github.com/zapgate/zapgate/internal/errors"
)

// msatsPerUSDBTC converts USD to msats at a given BTC-USD price:
// 1 BTC = 1e8 sats = 1e11 msats.
const msatsPerUSDBTC = 1e11

const defaultGranularityMsats = 1000

// ServicePricing is the configured price point for one service.
type ServicePricing struct {
	// USD is the target fiat price for one job.
	USD float64
	// MarginPct is the profit margin applied on top, in percent.
	MarginPct float64
}

// PolicyOptions groups dependencies for NewPolicy.
type PolicyOptions struct {
	Oracle           Estimator                         // Required: BTC-USD estimator
	Services         map[model.ServiceID]ServicePricing // Required: per-service price points
	GranularityMsats int64                             // Optional: invoice amount rounding (default 1000)
	Logger           *slog.Logger                      // Optional: structured logger
}

// Policy converts a service's configured USD price into an invoiceable msat
// amount. Amounts are rounded to a configured granularity so float noise from
// the oracle never leaks into invoices.
type Policy struct {
	oracle      Estimator
	services    map[model.ServiceID]ServicePricing
	granularity int64
	logger      *slog.Logger
}

// NewPolicy constructs a Policy.
func NewPolicy(opts PolicyOptions) (*Policy, error) {
	if opts.Oracle == nil {
		return nil, errors.New("price estimator is required")
	}
	if len(opts.Services) == 0 {
		return nil, errors.New("at least one service price point is required")
	}
	for id, sp := range opts.Services {
		if sp.USD <= 0 {
			return nil, fmt.Errorf("service %s: usd price must be positive", id)
		}
		if sp.MarginPct < 0 {
			return nil, fmt.Errorf("service %s: margin must not be negative", id)
		}
	}

	granularity := opts.GranularityMsats
	if granularity <= 0 {
		granularity = defaultGranularityMsats
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "pricing_policy")
	}

	return &Policy{
		oracle:      opts.Oracle,
		services:    opts.Services,
		granularity: granularity,
		logger:      logger,
	}, nil
}

// Known reports whether a price point is configured for the service.
func (p *Policy) Known(service model.ServiceID) bool {
	_, ok := p.services[service]
	return ok
}

// Quote returns the msat amount to invoice for one job of the given service.
func (p *Policy) Quote(ctx context.Context, service model.ServiceID) (int64, error) {
	sp, ok := p.services[service]
	if !ok {
		return 0, apperrors.Validationf("unknown service %q", service)
	}

	btcUSD, err := p.oracle.Estimate(ctx)
	if err != nil {
		return 0, apperrors.PricingUnavailable("btc price estimate failed", err)
	}
	if btcUSD <= 0 {
		return 0, apperrors.PricingUnavailable(
			fmt.Sprintf("btc price estimate %v is not positive", btcUSD), nil)
	}

	marginFactor := 1 + sp.MarginPct/100
	raw := sp.USD * marginFactor * msatsPerUSDBTC / btcUSD
	msats := roundToGranularity(raw, p.granularity)
	if msats <= 0 {
		return 0, apperrors.PricingUnavailable(
			fmt.Sprintf("quoted amount %d msats is not positive", msats), nil)
	}

	if p.logger != nil {
		p.logger.DebugContext(ctx, "service priced",
			"service", service,
			"usd", sp.USD,
			"margin_pct", sp.MarginPct,
			"btc_usd", btcUSD,
			"msats", msats,
		)
	}
	return msats, nil
}

// roundToGranularity rounds to the nearest multiple of granularity.
func roundToGranularity(raw float64, granularity int64) int64 {
	g := float64(granularity)
	return int64(math.Round(raw/g)) * granularity
}
