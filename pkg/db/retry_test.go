package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"
)

type countingRunner struct {
	errs  []error
	calls int
}

func (r *countingRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	r.calls++
	if len(r.errs) == 0 {
		return fn(nil)
	}
	err := r.errs[0]
	r.errs = r.errs[1:]
	return err
}

func TestRunWithRetryReplaysConflicts(t *testing.T) {
	runner := &countingRunner{errs: []error{ErrStaleWrite, ErrStaleWrite}}
	var seen []int

	err := RunWithRetry(context.Background(), runner, RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond},
		func(attempt int, err error) { seen = append(seen, attempt) },
		func(tx *gorm.DB) error { return nil })
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if runner.calls != 3 || len(seen) != 3 {
		t.Fatalf("expected 3 attempts, got calls=%d seen=%v", runner.calls, seen)
	}
}

func TestRunWithRetryExhausts(t *testing.T) {
	runner := &countingRunner{errs: []error{ErrStaleWrite, ErrStaleWrite, ErrStaleWrite, ErrStaleWrite}}

	err := RunWithRetry(context.Background(), runner, RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond}, nil,
		func(tx *gorm.DB) error { return nil })
	if !errors.Is(err, ErrRetriesExhausted) || !errors.Is(err, ErrStaleWrite) {
		t.Fatalf("expected exhausted stale write, got %v", err)
	}
	if runner.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", runner.calls)
	}
}

func TestRunWithRetryStopsOnNonRetryable(t *testing.T) {
	boom := errors.New("insufficient stock")
	runner := &countingRunner{errs: []error{boom}}

	err := RunWithRetry(context.Background(), runner, RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond}, nil,
		func(tx *gorm.DB) error { return nil })
	if !errors.Is(err, boom) || errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected the original error, got %v", err)
	}
	if runner.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", runner.calls)
	}
}

func TestRunWithRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &countingRunner{errs: []error{ErrStaleWrite, ErrStaleWrite, ErrStaleWrite}}

	err := RunWithRetry(ctx, runner, RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Second},
		func(attempt int, err error) { cancel() },
		func(tx *gorm.DB) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if runner.calls != 1 {
		t.Fatalf("expected cancellation before second attempt, got %d calls", runner.calls)
	}
}
