package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"artx-auction/internal/biddingerrors"
)

// RetryPolicy defines how conflicting transactions are retried
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int

	// InitialBackoff is the wait before the first retry
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between retries
	MaxBackoff time.Duration

	// BackoffFactor multiplies the wait after every retry
	BackoffFactor float64

	// JitterFactor spreads the wait by ± this fraction
	JitterFactor float64

	// AttemptTimeout bounds a single transaction attempt; zero disables it
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     8,
		InitialBackoff: 2 * time.Millisecond,
		MaxBackoff:     200 * time.Millisecond,
		BackoffFactor:  2.0,
		JitterFactor:   0.2,
		AttemptTimeout: 5 * time.Second,
	}
}

// Backoff returns the wait before retry number attempt (starting at 1)
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	backoff := float64(p.InitialBackoff) * math.Pow(p.BackoffFactor, float64(attempt-1))
	if p.MaxBackoff > 0 && backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}
	if p.JitterFactor > 0 {
		jitter := backoff * p.JitterFactor
		backoff += jitter*2*rand.Float64() - jitter
	}
	if backoff < 0 {
		return 0
	}
	return time.Duration(backoff)
}

// RunWithRetry runs fn through db.RunInTx and retries it while the commit
// fails with biddingerrors.ErrConflict. Any other error is returned as-is.
func RunWithRetry(ctx context.Context, db AuctionDB, policy RetryPolicy, fn func(tx Tx) error) error {
	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(policy.Backoff(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry aborted after %d attempts: %w", attempt, ctx.Err())
			case <-timer.C:
			}
		}

		lastErr = runAttempt(ctx, db, policy.AttemptTimeout, fn)
		if lastErr == nil || !errors.Is(lastErr, biddingerrors.ErrConflict) {
			return lastErr
		}
	}
	return fmt.Errorf("transaction gave up after %d retries: %w", policy.MaxRetries, lastErr)
}

func runAttempt(ctx context.Context, db AuctionDB, timeout time.Duration, fn func(tx Tx) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return db.RunInTx(ctx, fn)
}
