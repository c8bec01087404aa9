package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapgate/zapgate/internal/core"
	"github.com/zapgate/zapgate/internal/domain/model"
	"github.com/zapgate/zapgate/internal/testutil"
)

func TestJobRepo_Integration_CreateAndGet(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})

		params := testutil.NewJobParams().
			WithService(model.ServiceGPT).
			WithPaymentHash(testutil.UniquePaymentHash(1)).
			WithPriceMsats(42000).
			WithSuccessAction(&model.SuccessAction{Tag: "url", URL: "https://example.com/r"}).
			Build()

		created, err := repo.Create(context.Background(), params)
		require.NoError(t, err)
		assert.Equal(t, params.Invoice.PaymentHash, created.PaymentHash)
		assert.Equal(t, model.StateAwaitingPayment, created.State)
		assert.Equal(t, model.SettlementUnsettled, created.Settlement)
		assert.Equal(t, int64(42000), created.PriceMsats)
		assert.Nil(t, created.DispatchedAt)

		got, err := repo.GetByPaymentHash(context.Background(), created.PaymentHash)
		require.NoError(t, err)
		assert.Equal(t, created.PaymentHash, got.PaymentHash)
		assert.Equal(t, params.Invoice.Bolt11, got.Invoice.Bolt11)
		assert.JSONEq(t, string(params.RequestPayload), string(got.RequestPayload))
		require.NotNil(t, got.Invoice.SuccessAction)
		assert.Equal(t, "url", got.Invoice.SuccessAction.Tag)

		// Same invoice twice is a conflict, not an update.
		_, err = repo.Create(context.Background(), params)
		require.ErrorIs(t, err, ErrDuplicateJob)
	})
}

func TestJobRepo_Integration_GetMissing(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})

		_, err := repo.GetByPaymentHash(context.Background(), testutil.UniquePaymentHash(404))
		require.ErrorIs(t, err, model.ErrJobNotFound)

		_, err = repo.GetByPaymentHash(context.Background(), "")
		require.ErrorIs(t, err, ErrPaymentHashRequired)
	})
}

func TestJobRepo_Integration_MarkSettledIsMonotonic(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})

		params := testutil.NewJobParams().
			WithPaymentHash(testutil.UniquePaymentHash(2)).
			Build()
		_, err := repo.Create(context.Background(), params)
		require.NoError(t, err)

		hash := params.Invoice.PaymentHash
		require.NoError(t, repo.MarkSettled(context.Background(), hash))
		require.NoError(t, repo.MarkSettled(context.Background(), hash))

		got, err := repo.GetByPaymentHash(context.Background(), hash)
		require.NoError(t, err)
		assert.True(t, got.Settled())
	})
}

func TestJobRepo_Integration_Lifecycle(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})

		params := testutil.NewJobParams().
			WithPaymentHash(testutil.UniquePaymentHash(3)).
			Build()
		_, err := repo.Create(context.Background(), params)
		require.NoError(t, err)
		hash := params.Invoice.PaymentHash

		// awaiting_payment -> dispatched
		ok, err := repo.TryTransition(context.Background(), core.TransitionParams{
			PaymentHash: hash,
			From:        model.StateAwaitingPayment,
			To:          model.StateDispatched,
		})
		require.NoError(t, err)
		assert.True(t, ok)

		// Repeating the same transition is a no-op.
		ok, err = repo.TryTransition(context.Background(), core.TransitionParams{
			PaymentHash: hash,
			From:        model.StateAwaitingPayment,
			To:          model.StateDispatched,
		})
		require.NoError(t, err)
		assert.False(t, ok)

		mid, err := repo.GetByPaymentHash(context.Background(), hash)
		require.NoError(t, err)
		assert.Equal(t, model.StateDispatched, mid.State)
		require.NotNil(t, mid.DispatchedAt)

		result := json.RawMessage(`{"text": "the answer"}`)
		ok, err = repo.Complete(context.Background(), hash, result)
		require.NoError(t, err)
		assert.True(t, ok)

		// Terminal jobs cannot be completed or failed again.
		ok, err = repo.Complete(context.Background(), hash, result)
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = repo.Fail(context.Background(), hash, json.RawMessage(`{"error": "late"}`))
		require.NoError(t, err)
		assert.False(t, ok)

		final, err := repo.GetByPaymentHash(context.Background(), hash)
		require.NoError(t, err)
		assert.Equal(t, model.StateSucceeded, final.State)
		assert.JSONEq(t, string(result), string(final.ResultPayload))
		require.NotNil(t, final.CompletedAt)
	})
}

func TestJobRepo_Integration_FailStoresErrorPayload(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})

		params := testutil.NewJobParams().
			WithPaymentHash(testutil.UniquePaymentHash(4)).
			Build()
		_, err := repo.Create(context.Background(), params)
		require.NoError(t, err)
		hash := params.Invoice.PaymentHash

		ok, err := repo.TryTransition(context.Background(), core.TransitionParams{
			PaymentHash: hash,
			From:        model.StateAwaitingPayment,
			To:          model.StateDispatched,
		})
		require.NoError(t, err)
		require.True(t, ok)

		errPayload := json.RawMessage(`{"error": "backend unavailable"}`)
		ok, err = repo.Fail(context.Background(), hash, errPayload)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetByPaymentHash(context.Background(), hash)
		require.NoError(t, err)
		assert.Equal(t, model.StateFailed, got.State)
		assert.JSONEq(t, string(errPayload), string(got.ResultPayload))
	})
}

// Many goroutines race the awaiting_payment -> dispatched transition; exactly
// one may win.
func TestJobRepo_Integration_TransitionIsExclusive(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})

		params := testutil.NewJobParams().
			WithPaymentHash(testutil.UniquePaymentHash(5)).
			Build()
		_, err := repo.Create(context.Background(), params)
		require.NoError(t, err)
		hash := params.Invoice.PaymentHash

		const racers = 16
		var wg sync.WaitGroup
		wins := make(chan bool, racers)

		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, terr := repo.TryTransition(context.Background(), core.TransitionParams{
					PaymentHash: hash,
					From:        model.StateAwaitingPayment,
					To:          model.StateDispatched,
				})
				require.NoError(t, terr)
				wins <- ok
			}()
		}
		wg.Wait()
		close(wins)

		var winners int
		for ok := range wins {
			if ok {
				winners++
			}
		}
		assert.Equal(t, 1, winners)
	})
}

func TestJobRepo_Integration_TimestampsUseProvider(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		fixed := NewFixedTimeProvider(testutil.TestTime())
		repo := NewJobRepo(db, RepoConfig{TimeProvider: fixed})

		params := testutil.NewJobParams().
			WithPaymentHash(testutil.UniquePaymentHash(6)).
			WithInvoiceExpiry(testutil.TestTime().Add(time.Hour)).
			Build()

		created, err := repo.Create(context.Background(), params)
		require.NoError(t, err)
		assert.True(t, created.CreatedAt.Equal(testutil.TestTime()))
		assert.True(t, created.UpdatedAt.Equal(testutil.TestTime()))

		got, err := repo.GetByPaymentHash(context.Background(), created.PaymentHash)
		require.NoError(t, err)
		assert.True(t, got.Invoice.ExpiresAt.Equal(testutil.TestTime().Add(time.Hour)))
	})
}

func TestJobRepo_CreateValidation(t *testing.T) {
	repo := NewJobRepo(nil, RepoConfig{})

	_, err := repo.Create(context.Background(), nil)
	require.Error(t, err)

	params := testutil.NewJobParams().WithPriceMsats(0).Build()
	_, err = repo.Create(context.Background(), params)
	require.Error(t, err)
}
