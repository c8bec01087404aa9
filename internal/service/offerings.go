package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/zapgate/zapgate/internal/domain/model"
)

// Offering statuses understood by discovery consumers.
const (
	OfferingStatusUp   = "UP"
	OfferingStatusDown = "DOWN"
)

// Offering describes one purchasable service: where to submit, what it costs
// right now, and what the payloads look like. External publishers post these
// to whatever discovery channel they use; building the document is all that
// happens here.
type Offering struct {
	Service      model.ServiceID `json:"service"`
	Endpoint     string          `json:"endpoint"`
	Status       string          `json:"status"`
	CostMsats    int64           `json:"cost_msats"`
	InputSchema  map[string]any  `json:"inputSchema,omitempty"`
	OutputSchema map[string]any  `json:"outputSchema,omitempty"`
	Description  string          `json:"description,omitempty"`
}

// OfferingSpec is the static part of an offering, configured per service.
type OfferingSpec struct {
	Service      model.ServiceID
	InputSchema  map[string]any
	OutputSchema map[string]any
	Description  string
}

// OfferingServiceOptions groups dependencies for OfferingService.
type OfferingServiceOptions struct {
	Pricer        Quoter         // Required: live cost quotes
	PublicBaseURL string         // Required: endpoint base
	Specs         []OfferingSpec // Required: services to describe
	Logger        *slog.Logger   // Optional: structured logger
}

// OfferingService builds offering documents with live prices.
type OfferingService struct {
	pricer        Quoter
	publicBaseURL string
	specs         []OfferingSpec
	logger        *slog.Logger
}

// NewOfferingService constructs an OfferingService.
func NewOfferingService(opts OfferingServiceOptions) (*OfferingService, error) {
	if opts.Pricer == nil {
		return nil, errors.New("Quoter is required")
	}
	if opts.PublicBaseURL == "" {
		return nil, errors.New("PublicBaseURL is required")
	}
	if len(opts.Specs) == 0 {
		return nil, errors.New("at least one offering spec is required")
	}
	for _, spec := range opts.Specs {
		if !opts.Pricer.Known(spec.Service) {
			return nil, fmt.Errorf("no price configured for offered service %s", spec.Service)
		}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "offering_service")
	}

	return &OfferingService{
		pricer:        opts.Pricer,
		publicBaseURL: opts.PublicBaseURL,
		specs:         opts.Specs,
		logger:        logger,
	}, nil
}

// Build quotes every configured service and returns the offering documents.
// A service whose quote fails is published as DOWN with zero cost rather than
// dropped, so consumers see the outage instead of a vanished listing.
func (s *OfferingService) Build(ctx context.Context) []Offering {
	offerings := make([]Offering, 0, len(s.specs))
	for _, spec := range s.specs {
		offering := Offering{
			Service:      spec.Service,
			Endpoint:     fmt.Sprintf("%s/%s", s.publicBaseURL, spec.Service),
			Status:       OfferingStatusUp,
			InputSchema:  spec.InputSchema,
			OutputSchema: spec.OutputSchema,
			Description:  spec.Description,
		}

		cost, err := s.pricer.Quote(ctx, spec.Service)
		if err != nil {
			offering.Status = OfferingStatusDown
			if s.logger != nil {
				s.logger.WarnContext(ctx, "offering quote failed",
					"service", spec.Service,
					"error", err,
				)
			}
		} else {
			offering.CostMsats = cost
		}
		offerings = append(offerings, offering)
	}

	sort.Slice(offerings, func(i, j int) bool {
		return offerings[i].Service < offerings[j].Service
	})
	return offerings
}
