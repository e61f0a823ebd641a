package db

import (
	"context"
	"errors"

	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
)

// MapConflict converts the outcome of a retried unit of work into the public error
// taxonomy. Typed errors and context cancellation pass through; exhausted or raw conflicts
// become CONFLICT; anything else is INTERNAL_ERROR.
func MapConflict(err error, message string) error {
	if err == nil || pkgerrors.As(err) != nil {
		return err
	}
	if errors.Is(err, ErrRetriesExhausted) || IsRetryable(err) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, message)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, message)
}
