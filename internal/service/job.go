// Package service implements the business logic of the broker: submitting
// paid jobs, verifying settlement, and dispatching settled jobs to backend
// adapters exactly once.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zapgate/zapgate/internal/core"
	"github.com/zapgate/zapgate/internal/domain/model"
	apperrors "github.com/zapgate/zapgate/internal/errors"
	"github.com/zapgate/zapgate/internal/observability/notify"
	"github.com/zapgate/zapgate/internal/observability/statsd"
	"github.com/zapgate/zapgate/internal/service/failurenotifier"
)

const (
	defaultInvoiceExpiry   = time.Hour
	defaultDispatchTimeout = 10 * time.Minute
)

// Quoter prices one job of a service in msats.
type Quoter interface {
	Known(service model.ServiceID) bool
	Quote(ctx context.Context, service model.ServiceID) (int64, error)
}

// AdapterResolver resolves a service ID to its backend adapter.
type AdapterResolver interface {
	Lookup(service model.ServiceID) (core.BackendAdapter, bool)
}

// PollState is the coarse job status reported to polling clients.
type PollState string

const (
	// PollUnpaid means settlement has not been observed; the invoice is
	// returned with the status.
	PollUnpaid PollState = "UNPAID"
	// PollWorking means the job is dispatched and not yet terminal.
	PollWorking PollState = "WORKING"
	// PollDone means the job is terminal; the stored result is the response.
	PollDone PollState = "DONE"
)

// PollResult is the outcome of one poll.
type PollResult struct {
	State PollState
	Job   *model.Job
}

// DispatchError is the envelope persisted as the result payload of a failed
// job. It is what a paying client receives, permanently.
type DispatchError struct {
	Error   string `json:"error"`
	Service string `json:"service"`
}

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo            core.JobRepository       // Required: job repository
	Provider        core.InvoiceProvider     // Required: invoice minting
	Pricer          Quoter                   // Required: per-service pricing
	Adapters        AdapterResolver          // Required: backend adapters
	Payments        *PaymentService          // Required: settlement verifier
	PublicBaseURL   string                   // Required: base for success-action URLs
	InvoiceExpiry   time.Duration            // Optional: default 1h
	DispatchTimeout time.Duration            // Optional: default 10m
	Logger          *slog.Logger             // Optional: structured logger
	Metrics         statsd.Sink              // Optional: lifecycle counters
	FailureNotifier *failurenotifier.Service // Optional: dispatch failure fan-out
}

// JobService owns the paid-job lifecycle: Submit mints the invoice and the
// record, Poll verifies settlement and drives the single dispatch.
type JobService struct {
	repo            core.JobRepository
	provider        core.InvoiceProvider
	pricer          Quoter
	adapters        AdapterResolver
	payments        *PaymentService
	publicBaseURL   string
	invoiceExpiry   time.Duration
	dispatchTimeout time.Duration
	logger          *slog.Logger
	metrics         statsd.Sink
	failureNotifier *failurenotifier.Service
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Provider == nil {
		return nil, errors.New("InvoiceProvider is required")
	}
	if opts.Pricer == nil {
		return nil, errors.New("Quoter is required")
	}
	if opts.Adapters == nil {
		return nil, errors.New("AdapterResolver is required")
	}
	if opts.Payments == nil {
		return nil, errors.New("PaymentService is required")
	}
	if opts.PublicBaseURL == "" {
		return nil, errors.New("PublicBaseURL is required")
	}

	invoiceExpiry := opts.InvoiceExpiry
	if invoiceExpiry <= 0 {
		invoiceExpiry = defaultInvoiceExpiry
	}
	dispatchTimeout := opts.DispatchTimeout
	if dispatchTimeout <= 0 {
		dispatchTimeout = defaultDispatchTimeout
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "job_service")
	}

	return &JobService{
		repo:            opts.Repo,
		provider:        opts.Provider,
		pricer:          opts.Pricer,
		adapters:        opts.Adapters,
		payments:        opts.Payments,
		publicBaseURL:   opts.PublicBaseURL,
		invoiceExpiry:   invoiceExpiry,
		dispatchTimeout: dispatchTimeout,
		logger:          logger,
		metrics:         opts.Metrics,
		failureNotifier: opts.FailureNotifier,
	}, nil
}

// Submit quotes the service, mints an invoice for the amount, and persists a
// new job awaiting payment. The returned job carries the invoice the client
// must settle.
func (s *JobService) Submit(
	ctx context.Context,
	service model.ServiceID,
	payload json.RawMessage,
) (*model.Job, error) {
	if _, ok := s.adapters.Lookup(service); !ok || !s.pricer.Known(service) {
		return nil, apperrors.NotFoundf("unknown service %q", service)
	}
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	if !json.Valid(payload) {
		return nil, apperrors.Validation("request payload is not valid json")
	}

	price, err := s.pricer.Quote(ctx, service)
	if err != nil {
		return nil, err
	}

	minMsats, maxMsats, err := s.provider.PayableRange(ctx)
	if err != nil {
		return nil, apperrors.SettlementCheck("fetch payable range", err)
	}
	if price < minMsats || price > maxMsats {
		return nil, apperrors.Validationf(
			"%d msats not in sendable range of %d - %d", price, minMsats, maxMsats)
	}

	invoice, err := s.provider.RequestInvoice(ctx, price, s.invoiceExpiry)
	if err != nil {
		return nil, apperrors.Internal("mint invoice", err)
	}
	invoice.SuccessAction = s.successAction(service, invoice.PaymentHash)

	job, err := s.repo.Create(ctx, &model.CreateJobParams{
		Service:        service,
		Invoice:        invoice,
		PriceMsats:     price,
		RequestPayload: payload,
	})
	if err != nil {
		return nil, apperrors.Internal("persist job", err)
	}

	s.count("job.requested", job.Service)
	if s.logger != nil {
		s.logger.InfoContext(ctx, "job submitted",
			"payment_hash", job.PaymentHash,
			"service", service,
			"price_msats", price,
		)
	}
	return job, nil
}

// Poll reports the job's status and, on the first poll after settlement,
// dispatches it. Concurrent polls race on an atomic state transition so the
// backend is invoked exactly once; losers see WORKING like any later poll.
func (s *JobService) Poll(
	ctx context.Context,
	service model.ServiceID,
	hash string,
) (PollResult, error) {
	job, err := s.load(ctx, service, hash)
	if err != nil {
		return PollResult{}, err
	}

	settled, err := s.payments.IsSettled(ctx, job)
	if err != nil {
		return PollResult{}, err
	}
	if !settled {
		return PollResult{State: PollUnpaid, Job: job}, nil
	}

	switch {
	case job.State.Terminal():
		return PollResult{State: PollDone, Job: job}, nil
	case job.State == model.StateDispatched:
		return PollResult{State: PollWorking, Job: job}, nil
	}

	won, err := s.repo.TryTransition(ctx, core.TransitionParams{
		PaymentHash: job.PaymentHash,
		From:        model.StateAwaitingPayment,
		To:          model.StateDispatched,
	})
	if err != nil {
		return PollResult{}, apperrors.Internal("dispatch transition", err)
	}
	if won {
		s.count("job.dispatched", job.Service)
		go s.dispatch(ctx, job)
	}

	job.State = model.StateDispatched
	return PollResult{State: PollWorking, Job: job}, nil
}

// CheckPayment reports settlement without touching the job lifecycle.
func (s *JobService) CheckPayment(
	ctx context.Context,
	service model.ServiceID,
	hash string,
) (*model.PaymentStatus, error) {
	job, err := s.load(ctx, service, hash)
	if err != nil {
		return nil, err
	}

	settled, err := s.payments.IsSettled(ctx, job)
	if err != nil {
		return nil, err
	}
	return &model.PaymentStatus{Invoice: job.Invoice, IsPaid: settled}, nil
}

func (s *JobService) load(
	ctx context.Context,
	service model.ServiceID,
	hash string,
) (*model.Job, error) {
	job, err := s.repo.GetByPaymentHash(ctx, hash)
	if errors.Is(err, model.ErrJobNotFound) {
		return nil, apperrors.NotFoundf("no job for payment hash %q", hash)
	}
	if err != nil {
		return nil, apperrors.Internal("load job", err)
	}
	if service != "" && job.Service != service {
		return nil, apperrors.NotFoundf("no %s job for payment hash %q", service, hash)
	}
	return job, nil
}

// dispatch runs the backend adapter and persists the terminal result. It runs
// detached from the poll request: a client abandoning its poll must not
// cancel work it has already paid for.
func (s *JobService) dispatch(parent context.Context, job *model.Job) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.dispatchTimeout)
	defer cancel()

	started := time.Now()
	result, err := s.execute(ctx, job)
	if err != nil {
		s.fail(ctx, job, err)
		return
	}

	ok, completeErr := s.repo.Complete(ctx, job.PaymentHash, result)
	if completeErr != nil {
		s.logError(ctx, "persist job result failed", job, completeErr)
		return
	}
	if !ok {
		s.logError(ctx, "job no longer dispatched on completion", job, nil)
		return
	}

	s.count("job.succeeded", job.Service)
	s.timing("job.duration", job.Service, time.Since(started))
	if s.logger != nil {
		s.logger.InfoContext(ctx, "job succeeded",
			"payment_hash", job.PaymentHash,
			"service", job.Service,
			"duration", time.Since(started),
		)
	}
}

// execute invokes the adapter, converting panics into errors so a misbehaving
// backend can never take down the broker or strand a paid job.
func (s *JobService) execute(ctx context.Context, job *model.Job) (result json.RawMessage, err error) {
	adapter, ok := s.adapters.Lookup(job.Service)
	if !ok {
		return nil, fmt.Errorf("no adapter registered for service %s", job.Service)
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("adapter panic: %v", r)
		}
	}()
	return adapter.Execute(ctx, job.RequestPayload)
}

// fail persists the failure as the job's permanent result and notifies.
func (s *JobService) fail(ctx context.Context, job *model.Job, cause error) {
	payload, marshalErr := json.Marshal(DispatchError{
		Error:   cause.Error(),
		Service: string(job.Service),
	})
	if marshalErr != nil {
		payload = json.RawMessage(`{"error": "dispatch failed"}`)
	}

	ok, failErr := s.repo.Fail(ctx, job.PaymentHash, payload)
	if failErr != nil {
		s.logError(ctx, "persist job failure failed", job, failErr)
		return
	}
	if !ok {
		s.logError(ctx, "job no longer dispatched on failure", job, nil)
		return
	}

	s.count("job.failed", job.Service)
	s.logError(ctx, "job failed", job, cause)

	if s.failureNotifier != nil && s.failureNotifier.Enabled() {
		s.failureNotifier.NotifyJobFailure(ctx, notify.JobFailurePayload{
			PaymentHash: job.PaymentHash,
			Service:     string(job.Service),
			PriceMsats:  job.PriceMsats,
			Error:       cause.Error(),
			OccurredAt:  time.Now(),
		})
	}
}

func (s *JobService) logError(ctx context.Context, msg string, job *model.Job, err error) {
	if s.logger == nil {
		return
	}
	s.logger.ErrorContext(ctx, msg,
		"payment_hash", job.PaymentHash,
		"service", job.Service,
		"error", err,
	)
}

func (s *JobService) successAction(service model.ServiceID, hash string) *model.SuccessAction {
	return &model.SuccessAction{
		Tag:         "url",
		URL:         fmt.Sprintf("%s/%s/%s/get_result", s.publicBaseURL, service, hash),
		Description: "Open to get the result of your purchase.",
	}
}

func (s *JobService) count(name string, service model.ServiceID) {
	if s.metrics == nil {
		return
	}
	s.metrics.Count(name, 1, map[string]string{"service": string(service)})
}

func (s *JobService) timing(name string, service model.ServiceID, d time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.Timing(name, d, map[string]string{"service": string(service)})
}
