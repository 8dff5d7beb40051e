package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"parktronic/internal/dbutil/pgutil"
	"parktronic/internal/repository"
)

// mapError translates driver errors into the store taxonomy, keeping the
// original error in the chain.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	// Timeouts and SQLSTATE classes take precedence over sentinels already in
	// the chain.
	code := pgutil.ErrorCode(err)
	if errors.Is(err, context.DeadlineExceeded) || code == pgutil.QueryCanceled || code == pgutil.LockNotAvailable {
		if errors.Is(err, repository.ErrTimeout) {
			return fmt.Errorf("%s: %w", op, err)
		}
		return fmt.Errorf("%s: %w: %w", op, repository.ErrTimeout, err)
	}

	switch code {
	case pgutil.UniqueViolation:
		return fmt.Errorf("%s: %w: %w", op, repository.ErrConflict, err)
	case pgutil.ForeignKeyViolation:
		return fmt.Errorf("%s: %w: %w", op, repository.ErrNotFound, err)
	case pgutil.NotNullViolation, pgutil.CheckViolation, pgutil.NumericValueOutOfRange:
		return fmt.Errorf("%s: %w: %w", op, repository.ErrValidation, err)
	case pgutil.SerializationFailure, pgutil.DeadlockDetected:
		return fmt.Errorf("%s: %w: %w", op, repository.ErrTransactionFailure, err)
	}

	switch {
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, repository.ErrConflict),
		errors.Is(err, repository.ErrValidation),
		errors.Is(err, repository.ErrTimeout),
		errors.Is(err, repository.ErrTransactionFailure):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// stepError marks a failed write step of a multi-statement unit as a
// transaction failure, unless mapError can classify the cause on its own.
func stepError(step string, err error) error {
	switch pgutil.ErrorCode(err) {
	case pgutil.UniqueViolation, pgutil.ForeignKeyViolation, pgutil.NotNullViolation, pgutil.CheckViolation,
		pgutil.NumericValueOutOfRange, pgutil.QueryCanceled, pgutil.LockNotAvailable:
		return fmt.Errorf("%s: %w", step, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", step, err)
	}
	return fmt.Errorf("%w: %s: %w", repository.ErrTransactionFailure, step, err)
}
