package postgresql_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"parktronic/internal/config"
	"parktronic/internal/domain"
	"parktronic/internal/repository"
	"parktronic/internal/repository/postgresql"
	"parktronic/internal/repository/repotest"
)

// openTestDB connects to the database named by the DB_* variables. The tests
// are skipped unless PARKTRONIC_POSTGRES_TEST is set, since they truncate
// every table.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if os.Getenv("PARKTRONIC_POSTGRES_TEST") == "" {
		t.Skip("PARKTRONIC_POSTGRES_TEST not set")
	}
	cfg, _ := config.Load()
	db, err := postgresql.NewDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, postgresql.Migrate(context.Background(), db, zaptest.NewLogger(t)))
	return db
}

func truncate(t *testing.T, db *sql.DB) {
	t.Helper()
	_, err := db.Exec(`TRUNCATE prediction_info, favorites, rows, views, parking_lots, users RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
}

func TestContract(t *testing.T) {
	db := openTestDB(t)
	repotest.Run(t, func(t *testing.T) repotest.Stores {
		truncate(t, db)
		return repotest.Stores{
			Occupancy: postgresql.NewPgOccupancyStore(db, 10*time.Second),
			Users:     postgresql.NewPgUserRepository(db, 10*time.Second),
			Favorites: postgresql.NewPgFavoriteRepository(db, 10*time.Second),
			Dataset:   postgresql.NewPgDatasetRepository(db, 10*time.Second),
		}
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, postgresql.Migrate(context.Background(), db, zaptest.NewLogger(t)))
}

func TestMigrateUpgradesLegacyTextColumns(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.Exec(`
		DROP TABLE IF EXISTS prediction_info, favorites, rows, views, parking_lots, users CASCADE;
		CREATE TABLE parking_lots (id SERIAL PRIMARY KEY, coordinates TEXT, description TEXT NOT NULL DEFAULT '',
			city TEXT, street TEXT, house INTEGER);
		CREATE TABLE views (id SERIAL PRIMARY KEY, parking_lot_id INTEGER REFERENCES parking_lots (id) ON DELETE CASCADE,
			camera INTEGER NOT NULL);
		CREATE TABLE rows (id SERIAL PRIMARY KEY, view_id INTEGER REFERENCES views (id) ON DELETE CASCADE,
			coordinates TEXT, capacity INTEGER NOT NULL, free_places TEXT,
			last_updated TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP);
		CREATE TABLE users (id SERIAL PRIMARY KEY, email TEXT NOT NULL UNIQUE, first_name TEXT NOT NULL,
			username TEXT NOT NULL, password TEXT NOT NULL);
		INSERT INTO parking_lots (coordinates, city, street, house) VALUES ('[[55.7, 37.6], [55.8, 37.7]]', 'X', 'Y', 1);
		INSERT INTO parking_lots (coordinates) VALUES ('not json');
		INSERT INTO views (parking_lot_id, camera) VALUES (1, 0);
		INSERT INTO rows (view_id, coordinates, capacity, free_places) VALUES
			(1, '[[[0, 0]], [[0, 1]], [[1, 1]]]', 5, '[0, 2, 4]'),
			(1, 'garbage', 3, 'None');
		INSERT INTO users (email, first_name, username, password) VALUES ('old@example.com', 'Old', 'old', 'secret');
	`)
	require.NoError(t, err)

	require.NoError(t, postgresql.Migrate(ctx, db, zaptest.NewLogger(t)))

	store := postgresql.NewPgOccupancyStore(db, 10*time.Second)
	lots, err := store.ListLots(ctx)
	require.NoError(t, err)
	require.Len(t, lots, 2)
	require.Equal(t, "X, Y", lots[0].Lot.City+", "+lots[0].Lot.Street)
	require.Len(t, lots[0].Lot.Coordinates, 2)
	require.Empty(t, lots[1].Lot.Coordinates)

	rows := lots[0].Views[0].Rows
	require.Len(t, rows, 2)
	require.Equal(t, []int{0, 2, 4}, []int(rows[0].FreePlaces))
	require.Len(t, rows[0].Coordinates[2], 1)
	require.Empty(t, rows[1].FreePlaces)
	require.Empty(t, rows[1].Coordinates[0])

	user, err := postgresql.NewPgUserRepository(db, 10*time.Second).FindByEmail(ctx, "old@example.com")
	require.NoError(t, err)
	require.Equal(t, "secret", user.PasswordHash)
}

func TestReplaceRollsBackAfterDelete(t *testing.T) {
	db := openTestDB(t)
	truncate(t, db)
	ctx := context.Background()

	// Rows with capacity 13 pass validation but are refused by the table, so
	// the failure happens after the previous view was already deleted.
	_, err := db.Exec(`ALTER TABLE rows ADD CONSTRAINT rows_capacity_not_13 CHECK (capacity <> 13)`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = db.Exec(`ALTER TABLE rows DROP CONSTRAINT IF EXISTS rows_capacity_not_13`)
	})

	store := postgresql.NewPgOccupancyStore(db, 10*time.Second)
	lotID, err := store.UpsertLot(ctx, domain.LotInput{Description: "Lot A"})
	require.NoError(t, err)
	viewID, err := store.ReplaceView(ctx, lotID, 0, []domain.RowInput{{Capacity: 5, FreePlaces: domain.FreePlaces{0, 1}}})
	require.NoError(t, err)

	_, err = store.ReplaceView(ctx, lotID, 0, []domain.RowInput{{Capacity: 7}, {Capacity: 13}})
	require.ErrorIs(t, err, repository.ErrValidation)
	require.NotErrorIs(t, err, repository.ErrTransactionFailure)

	views, err := store.ListViews(ctx, lotID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, viewID, views[0].ID)

	latest, err := store.LatestRowByView(ctx, viewID)
	require.NoError(t, err)
	require.Equal(t, 5, latest.Capacity)
	require.Equal(t, domain.FreePlaces{0, 1}, latest.FreePlaces)
}

func TestReplaceManyRows(t *testing.T) {
	db := openTestDB(t)
	truncate(t, db)
	ctx := context.Background()

	store := postgresql.NewPgOccupancyStore(db, time.Minute)
	lotID, err := store.UpsertLot(ctx, domain.LotInput{Description: "Big lot"})
	require.NoError(t, err)

	rows := make([]domain.RowInput, 12000)
	for i := range rows {
		rows[i] = domain.RowInput{Capacity: i % 50}
	}
	_, err = store.ReplaceView(ctx, lotID, 0, rows)
	require.NoError(t, err)

	lots, err := store.ListLots(ctx)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	require.Len(t, lots[0].Views[0].Rows, len(rows))
}
