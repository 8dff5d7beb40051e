package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"gopkg.in/guregu/null.v4"

	"parktronic/internal/dbutil/txutil"
	"parktronic/internal/domain"
	"parktronic/internal/repository"
)

type pgOccupancyStore struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPgOccupancyStore returns the Postgres occupancy store. txTimeout bounds
// every operation; zero disables the bound.
func NewPgOccupancyStore(db *sql.DB, txTimeout time.Duration) repository.OccupancyStore {
	return &pgOccupancyStore{db: db, timeout: txTimeout}
}

var readSnapshot = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}

func (s *pgOccupancyStore) withTx(ctx context.Context, txOpts *sql.TxOptions, fn func(context.Context, *sql.Tx) error) error {
	return txutil.WithTx(ctx, s.db, txutil.Options{TxOptions: txOpts, Timeout: s.timeout}, fn)
}

func (s *pgOccupancyStore) UpsertLot(ctx context.Context, in domain.LotInput) (int, error) {
	if err := in.Validate(); err != nil {
		return 0, fmt.Errorf("OccupancyStore.UpsertLot: %w", err)
	}
	var lotID int
	err := s.withTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) (err error) {
		lotID, err = upsertLotTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return 0, mapError("OccupancyStore.UpsertLot", err)
	}
	return lotID, nil
}

func (s *pgOccupancyStore) ReplaceView(ctx context.Context, lotID, camera int, rows []domain.RowInput) (int, error) {
	if err := domain.ValidateRows(camera, rows); err != nil {
		return 0, fmt.Errorf("OccupancyStore.ReplaceView: %w", err)
	}
	var viewID int
	err := s.withTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) (err error) {
		viewID, err = replaceViewTx(ctx, tx, lotID, camera, rows)
		return err
	})
	if err != nil {
		return 0, mapError("OccupancyStore.ReplaceView", err)
	}
	return viewID, nil
}

func (s *pgOccupancyStore) IngestSnapshot(ctx context.Context, in domain.SnapshotInput) (domain.IngestResult, error) {
	if err := in.Validate(); err != nil {
		return domain.IngestResult{}, fmt.Errorf("OccupancyStore.IngestSnapshot: %w", err)
	}
	var res domain.IngestResult
	err := s.withTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) (err error) {
		res.LotID, err = upsertLotTx(ctx, tx, in.Lot())
		if err != nil {
			return err
		}
		res.ViewID, err = replaceViewTx(ctx, tx, res.LotID, in.Camera, in.Rows)
		return err
	})
	if err != nil {
		return domain.IngestResult{}, mapError("OccupancyStore.IngestSnapshot", err)
	}
	return res, nil
}

func upsertLotTx(ctx context.Context, tx *sql.Tx, in domain.LotInput) (int, error) {
	var lotID int
	if !in.ID.Valid {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO parking_lots (coordinates, description, city, street, house)
			VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			polylineValue(in.Coordinates), in.Description, in.City, in.Street, in.House,
		).Scan(&lotID)
		return lotID, err
	}

	err := tx.QueryRowContext(ctx, `
		UPDATE parking_lots
		SET coordinates = $1, description = $2, city = $3, street = $4, house = $5, updated_at = CURRENT_TIMESTAMP
		WHERE id = $6 RETURNING id`,
		polylineValue(in.Coordinates), in.Description, in.City, in.Street, in.House, in.ID.Int64,
	).Scan(&lotID)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("lot %d: %w", in.ID.Int64, repository.ErrNotFound)
	}
	return lotID, err
}

// replaceViewTx swaps the (lotID, camera) view for a new one holding rows.
// The lot row lock serializes concurrent replaces for the same lot, so two
// snapshot pushes never interleave their delete and insert steps.
func replaceViewTx(ctx context.Context, tx *sql.Tx, lotID, camera int, rows []domain.RowInput) (int, error) {
	var locked int
	err := tx.QueryRowContext(ctx, `SELECT id FROM parking_lots WHERE id = $1 FOR UPDATE`, lotID).Scan(&locked)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("lot %d: %w", lotID, repository.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("lock lot %d: %w", lotID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM views WHERE parking_lot_id = $1 AND camera = $2`, lotID, camera); err != nil {
		return 0, stepError("delete view", err)
	}

	var viewID int
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO views (parking_lot_id, camera) VALUES ($1, $2) RETURNING id`, lotID, camera,
	).Scan(&viewID); err != nil {
		return 0, stepError("insert view", err)
	}

	for start := 0; start < len(rows); start += rowsPerInsert {
		end := min(start+rowsPerInsert, len(rows))
		if err := insertRows(ctx, tx, viewID, rows[start:end]); err != nil {
			return 0, stepError("insert rows", err)
		}
	}
	return viewID, nil
}

// rowsPerInsert keeps one multi-row INSERT well under the 65535 bind
// parameter limit of the protocol.
const rowsPerInsert = 1000

func insertRows(ctx context.Context, tx *sql.Tx, viewID int, rows []domain.RowInput) error {
	var b strings.Builder
	b.WriteString(`INSERT INTO rows (view_id, coordinate_1, coordinate_2, coordinate_3, capacity, free_places) VALUES `)
	args := make([]any, 0, len(rows)*6)
	for i, r := range rows {
		if i > 0 {
			b.WriteString(",")
		}
		n := len(args)
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6)
		args = append(args, viewID,
			polylineValue(r.Coordinates[0]), polylineValue(r.Coordinates[1]), polylineValue(r.Coordinates[2]),
			r.Capacity, freePlacesValue(r.FreePlaces))
	}
	_, err := tx.ExecContext(ctx, b.String(), args...)
	return err
}

const lotColumns = `id, coordinates, description, city, street, house, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanLot(sc scanner) (domain.ParkingLot, error) {
	var (
		lot                       domain.ParkingLot
		description, city, street null.String
		house                     null.Int
	)
	if err := sc.Scan(&lot.ID, polylineScanner{&lot.Coordinates}, &description, &city, &street, &house,
		&lot.CreatedAt, &lot.UpdatedAt); err != nil {
		return lot, err
	}
	lot.Description = description.ValueOrZero()
	lot.City = city.ValueOrZero()
	lot.Street = street.ValueOrZero()
	lot.House = int(house.ValueOrZero())
	lot.CreatedAt = lot.CreatedAt.In(time.UTC)
	lot.UpdatedAt = lot.UpdatedAt.In(time.UTC)
	return lot, nil
}

const rowColumns = `id, view_id, coordinate_1, coordinate_2, coordinate_3, capacity, free_places, last_updated`

func scanRow(sc scanner) (domain.Row, error) {
	var row domain.Row
	if err := sc.Scan(&row.ID, &row.ViewID,
		polylineScanner{&row.Coordinates[0]}, polylineScanner{&row.Coordinates[1]}, polylineScanner{&row.Coordinates[2]},
		&row.Capacity, freePlacesScanner{&row.FreePlaces}, &row.LastUpdated); err != nil {
		return row, err
	}
	row.LastUpdated = row.LastUpdated.In(time.UTC)
	return row, nil
}

func (s *pgOccupancyStore) GetLot(ctx context.Context, lotID int) (*domain.ParkingLot, error) {
	var lot domain.ParkingLot
	err := s.withTx(ctx, readSnapshot, func(ctx context.Context, tx *sql.Tx) (err error) {
		lot, err = scanLot(tx.QueryRowContext(ctx, `SELECT `+lotColumns+` FROM parking_lots WHERE id = $1`, lotID))
		return err
	})
	if err != nil {
		return nil, mapError(fmt.Sprintf("OccupancyStore.GetLot(%d)", lotID), err)
	}
	return &lot, nil
}

// ListLots reads lots, views and rows inside one repeatable-read transaction,
// so a concurrent ReplaceView is seen either entirely or not at all.
func (s *pgOccupancyStore) ListLots(ctx context.Context) ([]domain.LotSnapshot, error) {
	var snapshots []domain.LotSnapshot
	err := s.withTx(ctx, readSnapshot, func(ctx context.Context, tx *sql.Tx) (err error) {
		snapshots, err = listLotsTx(ctx, tx)
		return err
	})
	if err != nil {
		return nil, mapError("OccupancyStore.ListLots", err)
	}
	return snapshots, nil
}

func listLotsTx(ctx context.Context, tx *sql.Tx) ([]domain.LotSnapshot, error) {
	snapshots := []domain.LotSnapshot{}
	lotIndex := map[int]int{}

	lotRows, err := tx.QueryContext(ctx, `SELECT `+lotColumns+` FROM parking_lots ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query lots: %w", err)
	}
	defer lotRows.Close()
	for lotRows.Next() {
		lot, err := scanLot(lotRows)
		if err != nil {
			return nil, fmt.Errorf("scan lot: %w", err)
		}
		lotIndex[lot.ID] = len(snapshots)
		snapshots = append(snapshots, domain.LotSnapshot{Lot: lot, Views: []domain.View{}})
	}
	if err := lotRows.Err(); err != nil {
		return nil, fmt.Errorf("lots rows: %w", err)
	}
	if len(snapshots) == 0 {
		return snapshots, nil
	}

	type viewRef struct{ lot, view int }
	viewIndex := map[int]viewRef{}
	viewRows, err := tx.QueryContext(ctx, `SELECT id, parking_lot_id, camera FROM views ORDER BY parking_lot_id, camera, id`)
	if err != nil {
		return nil, fmt.Errorf("query views: %w", err)
	}
	defer viewRows.Close()
	for viewRows.Next() {
		v := domain.View{Rows: []domain.Row{}}
		if err := viewRows.Scan(&v.ID, &v.LotID, &v.Camera); err != nil {
			return nil, fmt.Errorf("scan view: %w", err)
		}
		li, ok := lotIndex[v.LotID]
		if !ok {
			continue
		}
		viewIndex[v.ID] = viewRef{lot: li, view: len(snapshots[li].Views)}
		snapshots[li].Views = append(snapshots[li].Views, v)
	}
	if err := viewRows.Err(); err != nil {
		return nil, fmt.Errorf("views rows: %w", err)
	}

	rowRows, err := tx.QueryContext(ctx, `SELECT `+rowColumns+` FROM rows ORDER BY view_id, id`)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rowRows.Close()
	for rowRows.Next() {
		row, err := scanRow(rowRows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		ref, ok := viewIndex[row.ViewID]
		if !ok {
			continue
		}
		view := &snapshots[ref.lot].Views[ref.view]
		view.Rows = append(view.Rows, row)
	}
	if err := rowRows.Err(); err != nil {
		return nil, fmt.Errorf("rows rows: %w", err)
	}
	return snapshots, nil
}

func (s *pgOccupancyStore) ListLotIDs(ctx context.Context) ([]int, error) {
	ids := []int{}
	err := s.withTx(ctx, readSnapshot, func(ctx context.Context, tx *sql.Tx) error {
		ids = ids[:0]
		rows, err := tx.QueryContext(ctx, `SELECT id FROM parking_lots ORDER BY id`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id int
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, mapError("OccupancyStore.ListLotIDs", err)
	}
	return ids, nil
}

func (s *pgOccupancyStore) ListViews(ctx context.Context, lotID int) ([]domain.View, error) {
	views := []domain.View{}
	err := s.withTx(ctx, readSnapshot, func(ctx context.Context, tx *sql.Tx) error {
		views = views[:0]
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM parking_lots WHERE id = $1)`, lotID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return repository.ErrNotFound
		}
		rows, err := tx.QueryContext(ctx,
			`SELECT id, parking_lot_id, camera FROM views WHERE parking_lot_id = $1 ORDER BY camera, id`, lotID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var v domain.View
			if err := rows.Scan(&v.ID, &v.LotID, &v.Camera); err != nil {
				return err
			}
			views = append(views, v)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, mapError(fmt.Sprintf("OccupancyStore.ListViews(%d)", lotID), err)
	}
	return views, nil
}

func (s *pgOccupancyStore) LatestRowByView(ctx context.Context, viewID int) (*domain.Row, error) {
	var row domain.Row
	err := s.withTx(ctx, readSnapshot, func(ctx context.Context, tx *sql.Tx) (err error) {
		row, err = scanRow(tx.QueryRowContext(ctx, `
			SELECT `+rowColumns+` FROM rows
			WHERE view_id = $1
			ORDER BY last_updated DESC, id DESC
			LIMIT 1`, viewID))
		return err
	})
	if err != nil {
		return nil, mapError(fmt.Sprintf("OccupancyStore.LatestRowByView(%d)", viewID), err)
	}
	return &row, nil
}

func (s *pgOccupancyStore) DeleteLot(ctx context.Context, lotID int) error {
	return s.deleteByID(ctx, "OccupancyStore.DeleteLot", `DELETE FROM parking_lots WHERE id = $1`, lotID)
}

func (s *pgOccupancyStore) DeleteView(ctx context.Context, viewID int) error {
	return s.deleteByID(ctx, "OccupancyStore.DeleteView", `DELETE FROM views WHERE id = $1`, viewID)
}

func (s *pgOccupancyStore) deleteByID(ctx context.Context, op, query string, id int) error {
	err := s.withTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, query, id)
		if err != nil {
			return err
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
	return mapError(fmt.Sprintf("%s(%d)", op, id), err)
}
