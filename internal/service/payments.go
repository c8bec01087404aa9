package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zapgate/zapgate/internal/core"
	"github.com/zapgate/zapgate/internal/domain/model"
	apperrors "github.com/zapgate/zapgate/internal/errors"
)

// PaymentServiceOptions groups dependencies for PaymentService.
type PaymentServiceOptions struct {
	Repo     core.JobRepository   // Required: job repository
	Provider core.InvoiceProvider // Required: settlement provider
	Logger   *slog.Logger         // Optional: structured logger
}

// PaymentService verifies invoice settlement. Settlement is memoized in the
// job record: once a job is persisted as settled, the provider is never asked
// about it again.
type PaymentService struct {
	repo     core.JobRepository
	provider core.InvoiceProvider
	logger   *slog.Logger
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(opts PaymentServiceOptions) (*PaymentService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Provider == nil {
		return nil, errors.New("InvoiceProvider is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "payment_service")
	}

	return &PaymentService{
		repo:     opts.Repo,
		provider: opts.Provider,
		logger:   logger,
	}, nil
}

// IsSettled reports whether the job's invoice has been paid. A transient
// provider failure is a settlement_check_failed error, never a job failure:
// the client retries its poll and the job stays intact.
func (s *PaymentService) IsSettled(ctx context.Context, job *model.Job) (bool, error) {
	if job == nil {
		return false, errors.New("job is required")
	}
	if job.Settled() {
		return true, nil
	}

	settled, err := s.provider.CheckSettled(ctx, job.Invoice.VerifyURL)
	if err != nil {
		return false, apperrors.SettlementCheck("verify invoice settlement", err)
	}
	if !settled {
		return false, nil
	}

	// Persist before reporting so the memoization holds across instances.
	if markErr := s.repo.MarkSettled(ctx, job.PaymentHash); markErr != nil {
		return false, fmt.Errorf("mark job settled: %w", markErr)
	}
	job.Settlement = model.SettlementSettled

	if s.logger != nil {
		s.logger.InfoContext(ctx, "invoice settled",
			"payment_hash", job.PaymentHash,
			"service", job.Service,
		)
	}
	return true, nil
}
