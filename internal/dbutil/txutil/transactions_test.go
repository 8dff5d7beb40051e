package txutil_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"parktronic/internal/dbutil/pgutil"
	"parktronic/internal/dbutil/txutil"
)

// recorder is a database/sql driver that only counts transaction outcomes.
type recorder struct {
	mu        sync.Mutex
	begins    int
	commits   int
	rollbacks int
}

func (r *recorder) Connect(context.Context) (driver.Conn, error) { return &conn{r: r}, nil }
func (r *recorder) Driver() driver.Driver                        { return nil }

func (r *recorder) counts() (begins, commits, rollbacks int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.begins, r.commits, r.rollbacks
}

type conn struct{ r *recorder }

func (c *conn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (c *conn) Close() error                        { return nil }
func (c *conn) Begin() (driver.Tx, error) {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	c.r.begins++
	return &tx{r: c.r}, nil
}

type tx struct{ r *recorder }

func (t *tx) Commit() error {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	t.r.commits++
	return nil
}

func (t *tx) Rollback() error {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	t.r.rollbacks++
	return nil
}

func openRecorder(t *testing.T) (*sql.DB, *recorder) {
	rec := &recorder{}
	db := sql.OpenDB(rec)
	t.Cleanup(func() { _ = db.Close() })
	return db, rec
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	db, rec := openRecorder(t)

	err := txutil.WithTx(context.Background(), db, txutil.Options{}, func(ctx context.Context, tx *sql.Tx) error {
		return nil
	})
	require.NoError(t, err)

	begins, commits, rollbacks := rec.counts()
	require.Equal(t, 1, begins)
	require.Equal(t, 1, commits)
	require.Zero(t, rollbacks)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db, rec := openRecorder(t)
	boom := errors.New("boom")

	err := txutil.WithTx(context.Background(), db, txutil.Options{}, func(ctx context.Context, tx *sql.Tx) error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	begins, commits, rollbacks := rec.counts()
	require.Equal(t, 1, begins)
	require.Zero(t, commits)
	require.Equal(t, 1, rollbacks)
}

func TestWithTxRetriesSerializationFailures(t *testing.T) {
	db, rec := openRecorder(t)

	calls := 0
	err := txutil.WithTx(context.Background(), db, txutil.Options{}, func(ctx context.Context, tx *sql.Tx) error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: pgutil.SerializationFailure}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)

	begins, commits, rollbacks := rec.counts()
	require.Equal(t, 3, begins)
	require.Equal(t, 1, commits)
	require.Equal(t, 2, rollbacks)
}

func TestWithTxGivesUpAfterMaxRetries(t *testing.T) {
	db, _ := openRecorder(t)

	calls := 0
	err := txutil.WithTx(context.Background(), db, txutil.Options{MaxRetries: 2}, func(ctx context.Context, tx *sql.Tx) error {
		calls++
		return &pgconn.PgError{Code: pgutil.DeadlockDetected}
	})
	require.Error(t, err)
	require.Equal(t, pgutil.DeadlockDetected, pgutil.ErrorCode(err))
	require.Equal(t, 3, calls)
}

func TestWithTxDoesNotRetryOtherErrors(t *testing.T) {
	db, _ := openRecorder(t)

	calls := 0
	err := txutil.WithTx(context.Background(), db, txutil.Options{}, func(ctx context.Context, tx *sql.Tx) error {
		calls++
		return &pgconn.PgError{Code: pgutil.UniqueViolation}
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestWithTxTimeout(t *testing.T) {
	db, _ := openRecorder(t)

	err := txutil.WithTx(context.Background(), db, txutil.Options{Timeout: 10 * time.Millisecond}, func(ctx context.Context, tx *sql.Tx) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithTxPanicRollsBack(t *testing.T) {
	db, rec := openRecorder(t)

	require.Panics(t, func() {
		_ = txutil.WithTx(context.Background(), db, txutil.Options{}, func(ctx context.Context, tx *sql.Tx) error {
			panic("boom")
		})
	})

	_, commits, rollbacks := rec.counts()
	require.Zero(t, commits)
	require.Equal(t, 1, rollbacks)
}
