// Package pgutil holds helpers shared by code talking to PostgreSQL through
// either the pgx or the lib/pq driver.
package pgutil

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// SQLSTATE codes the store reacts to.
const (
	UniqueViolation        = "23505"
	ForeignKeyViolation    = "23503"
	NotNullViolation       = "23502"
	CheckViolation         = "23514"
	NumericValueOutOfRange = "22003"
	SerializationFailure   = "40001"
	DeadlockDetected       = "40P01"
	QueryCanceled          = "57014"
	LockNotAvailable       = "55P03"
)

// ErrorCode returns the SQLSTATE of the first postgres error in err's chain,
// or "" when there is none.
func ErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// ConstraintName returns the violated constraint of a postgres error, if any.
func ConstraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}
	return ""
}

// IsRetryable reports whether the transaction that failed with err can be
// restarted from scratch.
func IsRetryable(err error) bool {
	switch ErrorCode(err) {
	case SerializationFailure, DeadlockDetected:
		return true
	}
	return false
}
