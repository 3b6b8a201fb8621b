package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/semmidev/rotabak/internal/domain"
)

// RetryPolicy bounds how often a transient upload failure is retried.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    3,
		InitialDelay:  2 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
	}
}

// Do runs op until it succeeds, fails permanently, or retries are exhausted.
// notify is called before each retry and may be nil.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error, notify func(error, time.Duration)) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = p.BackoffFactor
	b.MaxElapsedTime = 0
	b.Reset()

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxRetries)), ctx)

	return backoff.RetryNotify(func() error {
		err := op(ctx)
		if err != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, notify)
}

func isRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, domain.ErrArtifactNotFound),
		errors.Is(err, domain.ErrCredentialsMissing),
		errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}
