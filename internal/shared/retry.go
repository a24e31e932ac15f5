package shared

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultRetryAttempts bounds internal retries on serialization conflicts.
const DefaultRetryAttempts = 3

// isSerializationFailure matches serialization_failure and
// deadlock_detected.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// WithRetry runs fn up to attempts times, retrying only on transaction
// serialization conflicts. Once exhausted it reports
// ErrConcurrentModification so callers see a transient failure.
func WithRetry(ctx context.Context, attempts int, fn func(context.Context) error) error {
	if attempts <= 0 {
		attempts = DefaultRetryAttempts
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = fn(ctx)
		if err == nil || !isSerializationFailure(err) {
			return err
		}
	}
	return errors.Join(ErrConcurrentModification, err)
}
