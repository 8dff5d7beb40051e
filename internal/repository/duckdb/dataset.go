// Package duckdb stores collector records in a local DuckDB file, for
// offline model training without access to the service database.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb"

	"parktronic/internal/domain"
	"parktronic/internal/repository"
)

const createTable = `
CREATE TABLE IF NOT EXISTS prediction_info (
	time         VARCHAR NOT NULL,
	day          INTEGER NOT NULL,
	month        INTEGER NOT NULL,
	weekday      VARCHAR NOT NULL,
	weather      VARCHAR NOT NULL,
	temperature  INTEGER NOT NULL,
	wind         DOUBLE NOT NULL,
	id_parking   INTEGER NOT NULL,
	id_view      INTEGER NOT NULL,
	lat          DOUBLE NOT NULL,
	lon          DOUBLE NOT NULL,
	count_lots   INTEGER NOT NULL,
	free_places  INTEGER NOT NULL,
	collected_at TIMESTAMP NOT NULL
)`

const insertRecord = `INSERT INTO prediction_info VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

type DatasetRepository struct {
	conn *sql.DB
}

var _ repository.DatasetRepository = (*DatasetRepository)(nil)

// Open opens (or creates) the DuckDB file at path and ensures the table exists.
func Open(ctx context.Context, path string) (*DatasetRepository, error) {
	conn, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb %q: %w", path, err)
	}
	if _, err := conn.ExecContext(ctx, createTable); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create prediction_info: %w", err)
	}
	return &DatasetRepository{conn: conn}, nil
}

func (r *DatasetRepository) Close() error {
	return r.conn.Close()
}

func (r *DatasetRepository) Append(ctx context.Context, records []domain.DatasetRecord) (err error) {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("DatasetRepository.Append: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertRecord)
	if err != nil {
		return fmt.Errorf("DatasetRepository.Append: prepare: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err = stmt.ExecContext(ctx,
			rec.Datetime.Time, rec.Datetime.Day, rec.Datetime.Month, rec.Datetime.Weekday,
			rec.Weather.Weather, rec.Weather.Temperature, rec.Weather.Wind,
			rec.Feature.LotID, rec.Feature.ViewID, rec.Feature.Coords[0], rec.Feature.Coords[1],
			rec.Feature.CountLots, rec.Feature.FreePlaces, rec.CollectedAt.UTC(),
		); err != nil {
			return fmt.Errorf("DatasetRepository.Append: insert: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("DatasetRepository.Append: commit: %w", err)
	}
	return nil
}

// Count returns the number of stored records.
func (r *DatasetRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM prediction_info`).Scan(&n)
	return n, err
}
