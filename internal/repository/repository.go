package repository

import (
	"context"
	"errors"

	"parktronic/internal/domain"
)

// Store error taxonomy. Implementations wrap these with operation context;
// callers match them with errors.Is.
var (
	ErrNotFound           = errors.New("record not found")
	ErrConflict           = errors.New("record already exists")
	ErrValidation         = domain.ErrValidation
	ErrTransactionFailure = errors.New("transaction failed")
	ErrTimeout            = errors.New("operation timed out")
)

// OccupancyStore owns parking lots, their camera views and the rows of each
// view's current snapshot. Every method runs in its own transaction.
type OccupancyStore interface {
	// UpsertLot creates a lot when in.ID is not set, otherwise overwrites the
	// lot's fields. Returns ErrNotFound when in.ID names no lot.
	UpsertLot(ctx context.Context, in domain.LotInput) (int, error)
	// ReplaceView deletes the view of (lotID, camera) with its rows and inserts
	// a new view holding rows. Either all of it happens or none of it.
	ReplaceView(ctx context.Context, lotID, camera int, rows []domain.RowInput) (int, error)
	// IngestSnapshot runs UpsertLot and ReplaceView in one transaction.
	IngestSnapshot(ctx context.Context, in domain.SnapshotInput) (domain.IngestResult, error)
	GetLot(ctx context.Context, lotID int) (*domain.ParkingLot, error)
	// ListLots returns every lot with all views and rows, ordered by id.
	ListLots(ctx context.Context) ([]domain.LotSnapshot, error)
	ListLotIDs(ctx context.Context) ([]int, error)
	ListViews(ctx context.Context, lotID int) ([]domain.View, error)
	// LatestRowByView returns the row with the newest last_updated, ties broken
	// by the highest id. ErrNotFound when the view holds no rows.
	LatestRowByView(ctx context.Context, viewID int) (*domain.Row, error)
	DeleteLot(ctx context.Context, lotID int) error
	DeleteView(ctx context.Context, viewID int) error
}

type UserRepository interface {
	// Create returns ErrConflict when the email is taken.
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id int) (*domain.User, error)
	UpdatePasswordHash(ctx context.Context, id int, hash string) error
	Delete(ctx context.Context, id int) error
}

// FavoriteRepository is the many-to-many ledger between users and lots.
type FavoriteRepository interface {
	// Add returns ErrConflict when the pair already exists and ErrNotFound
	// when the user or the lot does not.
	Add(ctx context.Context, userID, lotID int) error
	// Remove is a no-op for a pair that does not exist.
	Remove(ctx context.Context, userID, lotID int) error
	ListByUser(ctx context.Context, userID int) ([]int, error)
}

// DatasetRepository appends collector records to a dataset table.
type DatasetRepository interface {
	Append(ctx context.Context, records []domain.DatasetRecord) error
}
