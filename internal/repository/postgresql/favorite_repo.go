package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"parktronic/internal/dbutil/txutil"
	"parktronic/internal/repository"
)

type pgFavoriteRepository struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPgFavoriteRepository(db *sql.DB, txTimeout time.Duration) repository.FavoriteRepository {
	return &pgFavoriteRepository{db: db, timeout: txTimeout}
}

// Add checks for an existing pair inside the transaction; the favorites table
// carries no unique constraint of its own.
func (r *pgFavoriteRepository) Add(ctx context.Context, userID, lotID int) error {
	err := txutil.WithTx(ctx, r.db, txutil.Options{Timeout: r.timeout}, func(ctx context.Context, tx *sql.Tx) error {
		// Lock the user so two concurrent adds of the same pair cannot both
		// pass the existence check.
		var locked int
		err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&locked)
		if err == sql.ErrNoRows {
			return fmt.Errorf("user %d: %w", userID, repository.ErrNotFound)
		}
		if err != nil {
			return err
		}

		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM favorites WHERE user_id = $1 AND parking_lot_id = $2)`,
			userID, lotID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("favorite (%d, %d): %w", userID, lotID, repository.ErrConflict)
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO favorites (user_id, parking_lot_id) VALUES ($1, $2)`, userID, lotID)
		return err
	})
	return mapError("FavoriteRepository.Add", err)
}

func (r *pgFavoriteRepository) Remove(ctx context.Context, userID, lotID int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM favorites WHERE user_id = $1 AND parking_lot_id = $2`, userID, lotID)
	return mapError("FavoriteRepository.Remove", err)
}

func (r *pgFavoriteRepository) ListByUser(ctx context.Context, userID int) ([]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT parking_lot_id FROM favorites
		WHERE user_id = $1
		GROUP BY parking_lot_id
		ORDER BY MIN(id)`, userID)
	if err != nil {
		return nil, mapError("FavoriteRepository.ListByUser", err)
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, mapError("FavoriteRepository.ListByUser", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("FavoriteRepository.ListByUser", err)
	}
	return ids, nil
}
