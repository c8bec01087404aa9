// Package pricing converts a USD-denominated service price into a spendable
// millisatoshi amount using a robust aggregate of independent BTC-USD quote
// sources.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zapgate/zapgate/internal/core"
	apperrors "github.com/zapgate/zapgate/internal/errors"
)

const (
	defaultQuorum        = 2
	defaultSourceTimeout = 5 * time.Second

	estimateCacheKey = "pricing:btc_usd_estimate"
)

// Estimator yields a positive BTC-USD estimate. Satisfied by *Oracle.
type Estimator interface {
	Estimate(ctx context.Context) (float64, error)
}

// OracleOptions groups dependencies for NewOracle.
type OracleOptions struct {
	Sources       []Source             // Required: independent quote sources
	Quorum        int                  // Optional: minimum valid samples (default 2)
	SourceTimeout time.Duration        // Optional: per-source deadline (default 5s)
	Cache         core.CacheRepository // Optional: short-TTL estimate cache
	CacheTTL      time.Duration        // Optional: cache TTL (default 1m)
	Logger        *slog.Logger         // Optional: structured logger
}

// Oracle aggregates quotes from a fixed set of independent sources into one
// robust estimate: the numeric median of the samples that succeeded.
type Oracle struct {
	sources       []Source
	quorum        int
	sourceTimeout time.Duration
	cache         core.CacheRepository
	cacheTTL      time.Duration
	logger        *slog.Logger
}

// NewOracle constructs an Oracle.
func NewOracle(opts OracleOptions) (*Oracle, error) {
	if len(opts.Sources) == 0 {
		return nil, errors.New("at least one price source is required")
	}

	quorum := opts.Quorum
	if quorum <= 0 {
		quorum = defaultQuorum
	}
	if quorum > len(opts.Sources) {
		return nil, fmt.Errorf("quorum %d exceeds source count %d", quorum, len(opts.Sources))
	}

	timeout := opts.SourceTimeout
	if timeout <= 0 {
		timeout = defaultSourceTimeout
	}

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "price_oracle")
	}

	return &Oracle{
		sources:       opts.Sources,
		quorum:        quorum,
		sourceTimeout: timeout,
		cache:         opts.Cache,
		cacheTTL:      ttl,
		logger:        logger,
	}, nil
}

// Estimate returns the current BTC-USD estimate. Each source is queried
// concurrently under its own deadline; a failing or malformed source
// contributes no sample. Fewer valid samples than the quorum yields an
// oracle_unavailable error.
func (o *Oracle) Estimate(ctx context.Context) (float64, error) {
	if cached, ok := o.cachedEstimate(ctx); ok {
		return cached, nil
	}

	samples := o.collectSamples(ctx)
	if len(samples) < o.quorum {
		return 0, apperrors.OracleUnavailable(
			fmt.Sprintf("only %d of %d price sources answered (quorum %d)",
				len(samples), len(o.sources), o.quorum),
			nil,
		)
	}

	estimate := median(samples)
	o.storeEstimate(ctx, estimate)

	if o.logger != nil {
		o.logger.DebugContext(ctx, "price estimate computed",
			"estimate", estimate,
			"samples", len(samples),
		)
	}
	return estimate, nil
}

// collectSamples fans out to every source concurrently and returns the valid
// samples. Source errors are logged and dropped, never propagated.
func (o *Oracle) collectSamples(ctx context.Context) []float64 {
	results := make([]float64, len(o.sources))
	valid := make([]bool, len(o.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range o.sources {
		g.Go(func() error {
			srcCtx, cancel := context.WithTimeout(gctx, o.sourceTimeout)
			defer cancel()

			price, err := src.Quote(srcCtx)
			if err != nil {
				if o.logger != nil {
					o.logger.WarnContext(ctx, "price source failed",
						"source", src.Name(),
						"error", err,
					)
				}
				return nil
			}
			results[i] = price
			valid[i] = true
			return nil
		})
	}
	// Goroutines never return errors; Wait only synchronizes.
	_ = g.Wait()

	samples := make([]float64, 0, len(o.sources))
	for i, ok := range valid {
		if ok {
			samples = append(samples, results[i])
		}
	}
	return samples
}

// median sorts the samples numerically and returns the middle element. For
// even counts the lower-middle element is chosen; the bias is deterministic
// and slightly favors the cheaper quote.
func median(samples []float64) float64 {
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	return sorted[(len(sorted)-1)/2]
}

func (o *Oracle) cachedEstimate(ctx context.Context) (float64, bool) {
	if o.cache == nil {
		return 0, false
	}
	raw, err := o.cache.Get(ctx, estimateCacheKey)
	if err != nil || len(raw) == 0 {
		return 0, false
	}
	estimate, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || estimate <= 0 {
		return 0, false
	}
	return estimate, true
}

func (o *Oracle) storeEstimate(ctx context.Context, estimate float64) {
	if o.cache == nil {
		return
	}
	value := strconv.FormatFloat(estimate, 'f', -1, 64)
	if err := o.cache.Set(ctx, estimateCacheKey, []byte(value), o.cacheTTL); err != nil && o.logger != nil {
		o.logger.WarnContext(ctx, "cache price estimate failed", "error", err)
	}
}
