package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"parktronic/internal/dbutil/pgutil"
	"parktronic/internal/repository"
)

func TestMapError(t *testing.T) {
	canceled := &pgconn.PgError{Code: pgutil.QueryCanceled}

	for _, tc := range []struct {
		name string
		err  error
		want error
	}{
		{"no rows", sql.ErrNoRows, repository.ErrNotFound},
		{"deadline", context.DeadlineExceeded, repository.ErrTimeout},
		{"statement timeout", canceled, repository.ErrTimeout},
		{"lock timeout", &pq.Error{Code: pgutil.LockNotAvailable}, repository.ErrTimeout},
		{"statement timeout in replace step", stepError("insert rows", canceled), repository.ErrTimeout},
		{"deadline in replace step", stepError("delete view", fmt.Errorf("exec: %w", context.DeadlineExceeded)), repository.ErrTimeout},
		{"deadline under transaction failure", fmt.Errorf("%w: insert rows: %w", repository.ErrTransactionFailure, context.DeadlineExceeded), repository.ErrTimeout},
		{"unique", &pgconn.PgError{Code: pgutil.UniqueViolation}, repository.ErrConflict},
		{"foreign key", &pq.Error{Code: pgutil.ForeignKeyViolation}, repository.ErrNotFound},
		{"check", &pgconn.PgError{Code: pgutil.CheckViolation}, repository.ErrValidation},
		{"out of range", &pgconn.PgError{Code: pgutil.NumericValueOutOfRange}, repository.ErrValidation},
		{"out of range in replace step", stepError("insert rows", &pq.Error{Code: pgutil.NumericValueOutOfRange}), repository.ErrValidation},
		{"serialization", &pgconn.PgError{Code: pgutil.SerializationFailure}, repository.ErrTransactionFailure},
		{"broken connection in replace step", stepError("insert view", errors.New("conn closed")), repository.ErrTransactionFailure},
		{"sentinel passthrough", fmt.Errorf("lot 3: %w", repository.ErrNotFound), repository.ErrNotFound},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := mapError("OccupancyStore.ReplaceView", tc.err)
			require.ErrorIs(t, err, tc.want)
			require.Contains(t, err.Error(), "OccupancyStore.ReplaceView")
		})
	}

	require.NoError(t, mapError("op", nil))
}

func TestMapErrorTimeoutIsNotTransactionFailure(t *testing.T) {
	err := mapError("OccupancyStore.ReplaceView", stepError("insert rows", &pgconn.PgError{Code: pgutil.QueryCanceled}))
	require.ErrorIs(t, err, repository.ErrTimeout)
	require.NotErrorIs(t, err, repository.ErrTransactionFailure)
}

func TestMapErrorKeepsUnknownErrors(t *testing.T) {
	cause := errors.New("boom")
	err := mapError("op", cause)
	require.ErrorIs(t, err, cause)
	for _, sentinel := range []error{
		repository.ErrNotFound, repository.ErrConflict, repository.ErrValidation,
		repository.ErrTimeout, repository.ErrTransactionFailure,
	} {
		require.NotErrorIs(t, err, sentinel)
	}
}
