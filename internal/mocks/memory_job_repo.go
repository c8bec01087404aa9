package mocks

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/zapgate/zapgate/internal/core"
	"github.com/zapgate/zapgate/internal/domain/model"
)

// MemoryJobRepo is a thread-safe in-memory core.JobRepository. Its transition
// methods hold the same compare-and-swap contract as the SQL implementation,
// so concurrent-dispatch tests exercise the real race.
type MemoryJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.Job

	// FailNext, when set, makes the next mutating call return this error.
	FailNext error
}

var _ core.JobRepository = (*MemoryJobRepo)(nil)

// NewMemoryJobRepo creates an empty MemoryJobRepo.
func NewMemoryJobRepo() *MemoryJobRepo {
	return &MemoryJobRepo{jobs: make(map[string]*model.Job)}
}

func (r *MemoryJobRepo) takeFailure() error {
	err := r.FailNext
	r.FailNext = nil
	return err
}

// Create implements core.JobRepository.
func (r *MemoryJobRepo) Create(_ context.Context, params *model.CreateJobParams) (*model.Job, error) {
	if params == nil {
		return nil, errors.New("create job params are required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return nil, err
	}

	hash := params.Invoice.PaymentHash
	if _, exists := r.jobs[hash]; exists {
		return nil, errors.New("job already exists for payment hash")
	}

	now := time.Now().UTC()
	job := &model.Job{
		PaymentHash:    hash,
		Service:        params.Service,
		Invoice:        params.Invoice,
		PriceMsats:     params.PriceMsats,
		Settlement:     model.SettlementUnsettled,
		State:          model.StateAwaitingPayment,
		RequestPayload: append(json.RawMessage(nil), params.RequestPayload...),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.jobs[hash] = job
	return cloneJob(job), nil
}

// GetByPaymentHash implements core.JobRepository.
func (r *MemoryJobRepo) GetByPaymentHash(_ context.Context, hash string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[hash]
	if !ok {
		return nil, model.ErrJobNotFound
	}
	return cloneJob(job), nil
}

// MarkSettled implements core.JobRepository.
func (r *MemoryJobRepo) MarkSettled(_ context.Context, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return err
	}

	if job, ok := r.jobs[hash]; ok && job.Settlement == model.SettlementUnsettled {
		job.Settlement = model.SettlementSettled
		job.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// TryTransition implements core.JobRepository with CAS semantics.
func (r *MemoryJobRepo) TryTransition(_ context.Context, params core.TransitionParams) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return false, err
	}

	job, ok := r.jobs[params.PaymentHash]
	if !ok || job.State != params.From {
		return false, nil
	}

	now := time.Now().UTC()
	job.State = params.To
	job.UpdatedAt = now
	if params.To == model.StateDispatched && job.DispatchedAt == nil {
		job.DispatchedAt = &now
	}
	return true, nil
}

// Complete implements core.JobRepository.
func (r *MemoryJobRepo) Complete(_ context.Context, hash string, result json.RawMessage) (bool, error) {
	return r.finish(hash, model.StateSucceeded, result)
}

// Fail implements core.JobRepository.
func (r *MemoryJobRepo) Fail(_ context.Context, hash string, result json.RawMessage) (bool, error) {
	return r.finish(hash, model.StateFailed, result)
}

func (r *MemoryJobRepo) finish(hash string, state model.JobState, result json.RawMessage) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return false, err
	}

	job, ok := r.jobs[hash]
	if !ok || job.State != model.StateDispatched {
		return false, nil
	}

	now := time.Now().UTC()
	job.State = state
	job.ResultPayload = append(json.RawMessage(nil), result...)
	job.CompletedAt = &now
	job.UpdatedAt = now
	return true, nil
}

// Snapshot returns a copy of the stored job, or nil.
func (r *MemoryJobRepo) Snapshot(hash string) *model.Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[hash]
	if !ok {
		return nil
	}
	return cloneJob(job)
}

// Put stores a job directly, for test setup.
func (r *MemoryJobRepo) Put(job *model.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.PaymentHash] = cloneJob(job)
}

func cloneJob(job *model.Job) *model.Job {
	cp := *job
	cp.RequestPayload = append(json.RawMessage(nil), job.RequestPayload...)
	if job.ResultPayload != nil {
		cp.ResultPayload = append(json.RawMessage(nil), job.ResultPayload...)
	}
	if job.DispatchedAt != nil {
		t := *job.DispatchedAt
		cp.DispatchedAt = &t
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		cp.CompletedAt = &t
	}
	if job.Invoice.SuccessAction != nil {
		sa := *job.Invoice.SuccessAction
		cp.Invoice.SuccessAction = &sa
	}
	return &cp
}
