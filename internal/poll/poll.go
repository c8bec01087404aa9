// Package poll provides a bounded retry-with-delay loop for awaiting
// asynchronous external results. It is shared by the self-polling backend
// adapters and by the nested pay-per-call relay, which both wait on a remote
// "still processing" sentinel.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when the attempt budget is exhausted before the
// condition reported done. It is distinct from a provider-reported failure.
var ErrTimeout = errors.New("poll timeout")

const (
	// DefaultAttempts mirrors the reference budget of ~99 polls.
	DefaultAttempts = 99
	// DefaultInterval is the fixed delay between attempts.
	DefaultInterval = time.Second
)

// Config bounds a poll loop.
type Config struct {
	Attempts int
	Interval time.Duration
}

// Sanitize applies defaults for unset or nonsensical values.
func (c *Config) Sanitize() {
	if c.Attempts <= 0 {
		c.Attempts = DefaultAttempts
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
}

// Until calls fn up to cfg.Attempts times with cfg.Interval between attempts.
// fn returns done=true to stop successfully; a non-nil error aborts
// immediately. Waiting is cancellation-safe: ctx cancellation interrupts the
// delay and returns ctx.Err().
func Until(ctx context.Context, cfg Config, fn func(ctx context.Context) (bool, error)) error {
	cfg.Sanitize()

	timer := time.NewTimer(cfg.Interval)
	defer timer.Stop()
	if !timer.Stop() {
		<-timer.C
	}

	for attempt := 0; attempt < cfg.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if attempt == cfg.Attempts-1 {
			break
		}

		timer.Reset(cfg.Interval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w after %d attempts", ErrTimeout, cfg.Attempts)
}
