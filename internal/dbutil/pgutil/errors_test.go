package pgutil_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"parktronic/internal/dbutil/pgutil"
)

func TestErrorCode(t *testing.T) {
	pgxErr := fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgutil.UniqueViolation, ConstraintName: "users_email_key"})
	require.Equal(t, pgutil.UniqueViolation, pgutil.ErrorCode(pgxErr))
	require.Equal(t, "users_email_key", pgutil.ConstraintName(pgxErr))

	pqErr := fmt.Errorf("insert: %w", &pq.Error{Code: pgutil.ForeignKeyViolation, Constraint: "views_parking_lot_id_fkey"})
	require.Equal(t, pgutil.ForeignKeyViolation, pgutil.ErrorCode(pqErr))
	require.Equal(t, "views_parking_lot_id_fkey", pgutil.ConstraintName(pqErr))

	require.Equal(t, pgutil.NumericValueOutOfRange, pgutil.ErrorCode(&pgconn.PgError{Code: "22003"}))
	require.Empty(t, pgutil.ErrorCode(errors.New("plain")))
	require.Empty(t, pgutil.ErrorCode(nil))
}

func TestIsRetryable(t *testing.T) {
	require.True(t, pgutil.IsRetryable(&pgconn.PgError{Code: pgutil.SerializationFailure}))
	require.True(t, pgutil.IsRetryable(&pq.Error{Code: pgutil.DeadlockDetected}))
	require.False(t, pgutil.IsRetryable(&pgconn.PgError{Code: pgutil.UniqueViolation}))
	require.False(t, pgutil.IsRetryable(errors.New("boom")))
}
