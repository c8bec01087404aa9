package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/zapgate/zapgate/internal/core"
	"github.com/zapgate/zapgate/internal/domain/model"
)

const insertJobSQL = `
  INSERT INTO jobs(payment_hash, service, bolt11, verify_url, price_msats,
                   invoice_expires_at, success_action, settlement, state,
                   request_payload, created_at, updated_at)
  VALUES ($1, $2, $3, $4, $5, $6, $7, 'unsettled', 'awaiting_payment', $8, $9, $9)
  RETURNING ` + jobColumns

// Create persists a new job in awaiting_payment state. The payment hash is
// the primary key; inserting a second job for the same invoice returns
// ErrDuplicateJob.
func (r *JobRepo) Create(
	ctx context.Context,
	params *model.CreateJobParams,
) (*model.Job, error) {
	if params == nil {
		return nil, errors.New("create job params are required")
	}
	if validateErr := params.Validate(); validateErr != nil {
		return nil, validateErr
	}

	var successAction []byte
	if params.Invoice.SuccessAction != nil {
		var err error
		successAction, err = json.Marshal(params.Invoice.SuccessAction)
		if err != nil {
			return nil, fmt.Errorf("marshal success action: %w", err)
		}
	}

	currentTime := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, insertJobSQL,
		params.Invoice.PaymentHash,
		params.Service,
		params.Invoice.Bolt11,
		params.Invoice.VerifyURL,
		params.PriceMsats,
		params.Invoice.ExpiresAt.UTC(),
		successAction,
		[]byte(params.RequestPayload),
		currentTime,
	)

	job, err := scanJobFromRow(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateJob
		}
		return nil, fmt.Errorf("insert job: %w", err)
	}

	if r.logger != nil {
		r.logger.InfoContext(ctx, "job created",
			"payment_hash", job.PaymentHash,
			"service", job.Service,
			"price_msats", job.PriceMsats,
		)
	}
	return job, nil
}

// GetByPaymentHash retrieves a job by the payment hash of its invoice.
func (r *JobRepo) GetByPaymentHash(ctx context.Context, hash string) (*model.Job, error) {
	if strings.TrimSpace(hash) == "" {
		return nil, ErrPaymentHashRequired
	}

	row := r.DB.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE payment_hash = $1
	`, hash)

	job, err := scanJobFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// MarkSettled flips the settlement flag to settled. Monotonic: settling an
// already-settled job is a no-op, and nothing ever sets it back.
func (r *JobRepo) MarkSettled(ctx context.Context, hash string) error {
	if strings.TrimSpace(hash) == "" {
		return ErrPaymentHashRequired
	}

	_, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET settlement = 'settled',
		    updated_at = $2
		WHERE payment_hash = $1 AND settlement = 'unsettled'
	`, hash, r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark settled: %w", err)
	}
	return nil
}

// SQL used by TryTransition to atomically advance the lifecycle state. The
// state predicate makes the compare-and-swap: only one caller observes a row
// change when several race on the same transition.
const tryTransitionSQL = `
  UPDATE jobs
  SET
    state = $3,
    dispatched_at = CASE WHEN $3::text = 'dispatched'
                         THEN COALESCE(dispatched_at, $4) ELSE dispatched_at END,
    updated_at = $4
  WHERE payment_hash = $1 AND state = $2`

// TryTransition advances the job from params.From to params.To iff the job is
// currently in params.From. Returns false without error when the precondition
// does not hold, which callers treat as "another worker got there first".
func (r *JobRepo) TryTransition(ctx context.Context, params core.TransitionParams) (bool, error) {
	if strings.TrimSpace(params.PaymentHash) == "" {
		return false, ErrPaymentHashRequired
	}
	if !params.From.Valid() || !params.To.Valid() {
		return false, fmt.Errorf("invalid transition %s -> %s", params.From, params.To)
	}

	res, err := r.DB.ExecContext(ctx, tryTransitionSQL,
		params.PaymentHash,
		params.From,
		params.To,
		r.timeProvider.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("transition job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// Complete moves a dispatched job to succeeded, storing the result in the
// same statement. Returns false if the job was not in dispatched state.
func (r *JobRepo) Complete(ctx context.Context, hash string, result json.RawMessage) (bool, error) {
	return r.finish(ctx, hash, model.StateSucceeded, result)
}

// Fail moves a dispatched job to failed, storing the structured error payload
// as its permanent result.
func (r *JobRepo) Fail(ctx context.Context, hash string, result json.RawMessage) (bool, error) {
	return r.finish(ctx, hash, model.StateFailed, result)
}

func (r *JobRepo) finish(
	ctx context.Context,
	hash string,
	state model.JobState,
	result json.RawMessage,
) (bool, error) {
	if strings.TrimSpace(hash) == "" {
		return false, ErrPaymentHashRequired
	}

	currentTime := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET state = $2,
		    result_payload = $3,
		    completed_at = $4,
		    updated_at = $4
		WHERE payment_hash = $1 AND state = 'dispatched'
	`, hash, state, []byte(result), currentTime)
	if err != nil {
		return false, fmt.Errorf("finish job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("finish rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

type jobRowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	requestPayload, resultPayload, successAction []byte
	dispatchedAt, completedAt                    sql.NullTime
	invoiceExpiresAt                             time.Time
	bolt11, verifyURL                            string
}

func (d *jobRowData) scanInto(scanner jobRowScanner, job *model.Job) error {
	return scanner.Scan(
		&job.PaymentHash,
		&job.Service,
		&d.bolt11,
		&d.verifyURL,
		&job.PriceMsats,
		&d.invoiceExpiresAt,
		&d.successAction,
		&job.Settlement,
		&job.State,
		&d.requestPayload,
		&d.resultPayload,
		&job.CreatedAt,
		&job.UpdatedAt,
		&d.dispatchedAt,
		&d.completedAt,
	)
}

func (d *jobRowData) apply(job *model.Job) error {
	job.Invoice = model.Invoice{
		Bolt11:      d.bolt11,
		PaymentHash: job.PaymentHash,
		VerifyURL:   d.verifyURL,
		AmountMsats: job.PriceMsats,
		ExpiresAt:   d.invoiceExpiresAt.UTC(),
	}
	if len(d.successAction) > 0 {
		var sa model.SuccessAction
		if err := json.Unmarshal(d.successAction, &sa); err != nil {
			return fmt.Errorf("decode success action: %w", err)
		}
		job.Invoice.SuccessAction = &sa
	}

	job.RequestPayload = cloneJSON(d.requestPayload)
	if len(d.resultPayload) > 0 {
		job.ResultPayload = append(json.RawMessage(nil), d.resultPayload...)
	}
	job.DispatchedAt = cloneNullableTime(d.dispatchedAt)
	job.CompletedAt = cloneNullableTime(d.completedAt)
	return nil
}

func scanJobFromRow(scanner jobRowScanner) (*model.Job, error) {
	job := &model.Job{}
	var data jobRowData
	if err := data.scanInto(scanner, job); err != nil {
		return nil, err
	}

	if err := data.apply(job); err != nil {
		return nil, err
	}
	return job, nil
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
