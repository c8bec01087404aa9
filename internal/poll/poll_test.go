package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUntilSucceedsOnLaterAttempt(t *testing.T) {
	calls := 0
	err := Until(context.Background(), Config{Attempts: 5, Interval: time.Millisecond},
		func(ctx context.Context) (bool, error) {
			calls++
			return calls == 3, nil
		})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestUntilExhaustsBudget(t *testing.T) {
	calls := 0
	err := Until(context.Background(), Config{Attempts: 4, Interval: time.Millisecond},
		func(ctx context.Context) (bool, error) {
			calls++
			return false, nil
		})

	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 4, calls)
}

func TestUntilAbortsOnError(t *testing.T) {
	boom := errors.New("provider rejected request")
	calls := 0
	err := Until(context.Background(), Config{Attempts: 10, Interval: time.Millisecond},
		func(ctx context.Context) (bool, error) {
			calls++
			return false, boom
		})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestUntilHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Until(ctx, Config{Attempts: 1000, Interval: 50 * time.Millisecond},
			func(ctx context.Context) (bool, error) { return false, nil })
	}()

	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Until did not return after cancellation")
	}
}

func TestConfigSanitize(t *testing.T) {
	var cfg Config
	cfg.Sanitize()
	assert.Equal(t, DefaultAttempts, cfg.Attempts)
	assert.Equal(t, DefaultInterval, cfg.Interval)
}
