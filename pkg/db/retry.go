package db

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"
)

// TxRunner is the unit-of-work surface shared by Client and test fakes.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RetryPolicy bounds how many times a conflicting unit of work is replayed.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
}

// ErrRetriesExhausted wraps the last conflict once every attempt has been used.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RunWithRetry executes fn in a fresh transaction per attempt. Attempts that fail with a
// retryable conflict roll back completely and are replayed after a jittered exponential
// backoff. onAttempt, when set, observes every attempt number and its outcome.
func RunWithRetry(ctx context.Context, runner TxRunner, policy RetryPolicy, onAttempt func(attempt int, err error), fn func(tx *gorm.DB) error) error {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	base := policy.BaseBackoff
	if base <= 0 {
		base = 10 * time.Millisecond
	}

	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.WithJitterPercent(50, retry.NewExponential(base)))

	attempt := 0
	var lastConflict error
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := runner.WithTx(ctx, fn)
		if onAttempt != nil {
			onAttempt(attempt, err)
		}
		if err != nil && IsRetryable(err) {
			lastConflict = err
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil && lastConflict != nil && errors.Is(err, lastConflict) {
		return errors.Join(ErrRetriesExhausted, err)
	}
	return err
}
