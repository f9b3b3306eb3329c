package fetcher

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/quantfeed/go-binance-vision/internal/verrors"
)

// RetryPolicy wraps a single network operation with bounded retries.
// Remote-not-found errors are terminal and never retried; everything
// transient is retried up to MaxRetries times, so an operation runs at
// most MaxRetries+1 attempts.
type RetryPolicy struct {
	MaxRetries         int
	InitialDelay       time.Duration
	ExponentialBackoff bool
}

// DefaultRetryPolicy matches the archive host's behavior: a failed fetch
// is almost always a 404, so retries are few and start fast.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:         3,
		InitialDelay:       time.Second,
		ExponentialBackoff: true,
	}
}

// Run executes op with the policy. Terminal errors (per verrors.Retryable)
// and exhausted retries are returned to the caller; Run never sleeps after
// the final attempt.
func (p RetryPolicy) Run(ctx context.Context, op func() error) error {
	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !verrors.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(wrapped, backoff.WithContext(p.strategy(), ctx))
}

func (p RetryPolicy) strategy() backoff.BackOff {
	var b backoff.BackOff
	if p.ExponentialBackoff {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = p.InitialDelay
		exp.Multiplier = 2.0
		exp.RandomizationFactor = 0
		exp.MaxInterval = 5 * time.Minute
		exp.MaxElapsedTime = 0
		b = exp
	} else {
		b = backoff.NewConstantBackOff(p.InitialDelay)
	}
	return backoff.WithMaxRetries(b, uint64(p.MaxRetries))
}
