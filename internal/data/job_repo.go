// Package data implements persistence for the broker: the PostgreSQL job
// repository and the Redis cache repository. Every lifecycle mutation is a
// single conditional UPDATE; correctness under concurrent pollers comes from
// the database, not from in-process locks.
package data

import (
	"database/sql"
	"log/slog"

	"github.com/zapgate/zapgate/internal/core"
)

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for payment-gated jobs.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

var _ core.JobRepository = (*JobRepo)(nil)

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const jobColumns = `
  payment_hash,
  service,
  bolt11,
  verify_url,
  price_msats,
  invoice_expires_at,
  success_action,
  settlement,
  state,
  request_payload,
  result_payload,
  created_at,
  updated_at,
  dispatched_at,
  completed_at
`
