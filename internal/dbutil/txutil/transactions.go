// Package txutil provides transaction-encapsulation functions with retry,
// timeout and guaranteed-release semantics.
package txutil

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"parktronic/internal/dbutil/pgutil"
)

var (
	mon = monkit.Package()

	// Error is the class of failures raised by txutil itself.
	Error = errs.Class("txutil")
)

// DefaultMaxRetries bounds the restarts of a transaction that keeps failing
// with a serialization failure or deadlock.
const DefaultMaxRetries = 5

// DB is the subset of *sql.DB needed to run a transaction.
type DB interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Options configures WithTx. The zero value runs a read-committed transaction
// without timeout and with DefaultMaxRetries.
type Options struct {
	TxOptions  *sql.TxOptions
	Timeout    time.Duration
	MaxRetries int
}

// WithTx starts a transaction on db and calls fn with it. If fn returns an
// error the transaction is rolled back, otherwise it is committed. The
// transaction is restarted when postgres reports a serialization failure or a
// deadlock, so fn must not have side effects outside the database.
//
// A cancelled or expired ctx aborts the transaction; database/sql rolls it
// back and no partial writes are kept.
func WithTx(ctx context.Context, db DB, opts Options, fn func(context.Context, *sql.Tx) error) (err error) {
	defer mon.Task()(&ctx)(&err)

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	for i := 0; ; i++ {
		err, rollbackErr := withTxOnce(ctx, db, opts.TxOptions, fn)
		if err != nil && i < maxRetries && ctx.Err() == nil && pgutil.IsRetryable(err) {
			mon.Event(fmt.Sprintf("transaction_retry_%d", i+1))
			continue
		}
		mon.IntVal("transaction_retries").Observe(int64(i))
		if rollbackErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rollbackErr)
		}
		return err
	}
}

// withTxOnce creates a transaction, ensures that it is eventually released
// (commit or rollback) and passes it to fn. It does not retry.
func withTxOnce(ctx context.Context, db DB, txOpts *sql.TxOptions, fn func(context.Context, *sql.Tx) error) (err, rollbackErr error) {
	defer mon.Task()(&ctx)(&err)

	tx, err := db.BeginTx(ctx, txOpts)
	if err != nil {
		return Error.Wrap(err), nil
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err == nil {
			err = tx.Commit()
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			rollbackErr = rbErr
		}
	}()

	return fn(ctx, tx), nil
}
