package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"parktronic/internal/dbutil/txutil"
	"parktronic/internal/domain"
	"parktronic/internal/repository"
)

type pgUserRepository struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPgUserRepository(db *sql.DB, txTimeout time.Duration) repository.UserRepository {
	return &pgUserRepository{db: db, timeout: txTimeout}
}

const userColumns = `id, email, first_name, username, password_hash, created_at`

func (r *pgUserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(user.Email))
	err := txutil.WithTx(ctx, r.db, txutil.Options{Timeout: r.timeout}, func(ctx context.Context, tx *sql.Tx) error {
		var taken bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email).Scan(&taken); err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("email %q: %w", email, repository.ErrConflict)
		}
		return tx.QueryRowContext(ctx, `
			INSERT INTO users (email, first_name, username, password_hash)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at`,
			email, user.FirstName, user.Username, user.PasswordHash,
		).Scan(&user.ID, &user.CreatedAt)
	})
	if err != nil {
		return nil, mapError("UserRepository.Create", err)
	}
	user.Email = email
	user.CreatedAt = user.CreatedAt.In(time.UTC)
	return user, nil
}

func (r *pgUserRepository) findOne(ctx context.Context, op, where string, arg any) (*domain.User, error) {
	user := &domain.User{}
	err := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg).
		Scan(&user.ID, &user.Email, &user.FirstName, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return nil, mapError(op, err)
	}
	user.CreatedAt = user.CreatedAt.In(time.UTC)
	return user, nil
}

func (r *pgUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, "UserRepository.FindByEmail", `email = $1`, strings.ToLower(strings.TrimSpace(email)))
}

func (r *pgUserRepository) FindByID(ctx context.Context, id int) (*domain.User, error) {
	return r.findOne(ctx, "UserRepository.FindByID", `id = $1`, id)
}

func (r *pgUserRepository) UpdatePasswordHash(ctx context.Context, id int, hash string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, hash, id)
	if err != nil {
		return mapError("UserRepository.UpdatePasswordHash", err)
	}
	return checkAffected("UserRepository.UpdatePasswordHash", result)
}

func (r *pgUserRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return mapError("UserRepository.Delete", err)
	}
	return checkAffected("UserRepository.Delete", result)
}

func checkAffected(op string, result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: checking rows affected: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}
	return nil
}
