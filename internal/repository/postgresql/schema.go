package postgresql

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"parktronic/internal/dbutil/txutil"
)

// schema is applied idempotently by Migrate. The (parking_lot_id, camera)
// index on views is deliberately not unique: one live view per camera is kept
// by ReplaceView's delete-then-insert under a lot row lock.
const schema = `
CREATE TABLE IF NOT EXISTS parking_lots (
	id          SERIAL PRIMARY KEY,
	coordinates DOUBLE PRECISION[][] NOT NULL DEFAULT '{}',
	description TEXT NOT NULL DEFAULT '',
	city        TEXT,
	street      TEXT,
	house       INTEGER,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS views (
	id             SERIAL PRIMARY KEY,
	parking_lot_id INTEGER NOT NULL REFERENCES parking_lots (id) ON DELETE CASCADE,
	camera         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS views_parking_lot_id_camera_idx ON views (parking_lot_id, camera);

CREATE TABLE IF NOT EXISTS rows (
	id           SERIAL PRIMARY KEY,
	view_id      INTEGER NOT NULL REFERENCES views (id) ON DELETE CASCADE,
	coordinate_1 DOUBLE PRECISION[][] NOT NULL DEFAULT '{}',
	coordinate_2 DOUBLE PRECISION[][] NOT NULL DEFAULT '{}',
	coordinate_3 DOUBLE PRECISION[][] NOT NULL DEFAULT '{}',
	capacity     INTEGER NOT NULL CHECK (capacity >= 0),
	free_places  INTEGER[] NOT NULL DEFAULT '{}',
	last_updated TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS rows_view_id_last_updated_idx ON rows (view_id, last_updated DESC, id DESC);

CREATE TABLE IF NOT EXISTS users (
	id            SERIAL PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	first_name    TEXT NOT NULL,
	username      TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS favorites (
	id             SERIAL PRIMARY KEY,
	user_id        INTEGER NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	parking_lot_id INTEGER NOT NULL REFERENCES parking_lots (id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS favorites_user_id_parking_lot_id_idx ON favorites (user_id, parking_lot_id);

CREATE TABLE IF NOT EXISTS prediction_info (
	id           BIGSERIAL PRIMARY KEY,
	time         TEXT NOT NULL,
	day          INTEGER NOT NULL,
	month        INTEGER NOT NULL,
	weekday      TEXT NOT NULL,
	weather      TEXT NOT NULL,
	temperature  INTEGER NOT NULL,
	wind         DOUBLE PRECISION NOT NULL,
	id_parking   INTEGER NOT NULL,
	id_view      INTEGER NOT NULL,
	lat          DOUBLE PRECISION NOT NULL,
	lon          DOUBLE PRECISION NOT NULL,
	count_lots   INTEGER NOT NULL,
	free_places  INTEGER NOT NULL,
	collected_at TIMESTAMPTZ NOT NULL
);
`

// Migrate creates the schema and upgrades text-encoded columns left by the
// earlier schema generation, all in one transaction.
func Migrate(ctx context.Context, db *sql.DB, log *zap.Logger) error {
	return txutil.WithTx(ctx, db, txutil.Options{}, func(ctx context.Context, tx *sql.Tx) error {
		if err := upgradeLegacyColumns(ctx, tx, log); err != nil {
			return fmt.Errorf("upgrade legacy columns: %w", err)
		}
		if _, err := tx.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		return nil
	})
}

// columnType returns the information_schema data type of table.column, or ""
// when the column does not exist.
func columnType(ctx context.Context, tx *sql.Tx, table, column string) (string, error) {
	var dataType string
	err := tx.QueryRowContext(ctx, `
		SELECT data_type FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2`,
		table, column).Scan(&dataType)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return dataType, err
}
