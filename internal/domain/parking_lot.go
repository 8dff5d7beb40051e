package domain

import (
	"fmt"
	"math"
	"time"

	"gopkg.in/guregu/null.v4"
)

type ParkingLot struct {
	ID          int       `json:"id"`
	Coordinates Polyline  `json:"coordinates"`
	Description string    `json:"description"`
	City        string    `json:"city"`
	Street      string    `json:"street"`
	House       int       `json:"house"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// View is one camera's perspective on a lot. Camera is unique within a lot only.
type View struct {
	ID     int   `json:"id"`
	LotID  int   `json:"parking_lot_id"`
	Camera int   `json:"camera"`
	Rows   []Row `json:"rows"`
}

// Row is one observed parking row of a view's current snapshot.
type Row struct {
	ID          int            `json:"id"`
	ViewID      int            `json:"view_id"`
	Coordinates RowCoordinates `json:"coordinates"`
	Capacity    int            `json:"capacity"`
	FreePlaces  FreePlaces     `json:"free_places"`
	LastUpdated time.Time      `json:"last_updated"`
}

// LotSnapshot is a lot together with every live view and the rows of each view.
type LotSnapshot struct {
	Lot   ParkingLot
	Views []View
}

// LotInput carries the scalar fields of upsertLot. An invalid ID means "create".
type LotInput struct {
	ID          null.Int `json:"id"`
	Coordinates Polyline `json:"coordinates"`
	Description string   `json:"description"`
	City        string   `json:"city"`
	Street      string   `json:"street"`
	House       int      `json:"house"`
}

// Integer fields are stored in INTEGER columns.
const maxStoredInt = math.MaxInt32

func checkStoredInt(field string, v int64) error {
	if v > maxStoredInt {
		return fmt.Errorf("%w: %s is out of range (%d > %d)", ErrValidation, field, v, maxStoredInt)
	}
	return nil
}

func (in LotInput) Validate() error {
	if in.ID.Valid && in.ID.Int64 <= 0 {
		return fmt.Errorf("%w: lot id must be positive, got %d", ErrValidation, in.ID.Int64)
	}
	if err := checkStoredInt("lot id", in.ID.Int64); err != nil {
		return err
	}
	if in.House < math.MinInt32 || in.House > maxStoredInt {
		return fmt.Errorf("%w: house is out of range (%d)", ErrValidation, in.House)
	}
	if err := in.Coordinates.Validate(); err != nil {
		return fmt.Errorf("lot coordinates: %w", err)
	}
	return nil
}

type RowInput struct {
	Coordinates RowCoordinates `json:"coordinates"`
	Capacity    int            `json:"capacity"`
	FreePlaces  FreePlaces     `json:"free_places"`
}

func (in RowInput) Validate() error {
	if in.Capacity < 0 {
		return fmt.Errorf("%w: capacity must not be negative, got %d", ErrValidation, in.Capacity)
	}
	if err := checkStoredInt("capacity", int64(in.Capacity)); err != nil {
		return err
	}
	if err := in.Coordinates.Validate(); err != nil {
		return err
	}
	return in.FreePlaces.Validate()
}

// ValidateRows checks the row set of one camera snapshot.
func ValidateRows(camera int, rows []RowInput) error {
	if camera < 0 {
		return fmt.Errorf("%w: camera must not be negative, got %d", ErrValidation, camera)
	}
	if err := checkStoredInt("camera", int64(camera)); err != nil {
		return err
	}
	for i, r := range rows {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return nil
}

// SnapshotInput is the detector's ingestion payload: the lot's scalar fields
// plus the complete row set seen by one camera.
type SnapshotInput struct {
	ID          null.Int   `json:"id"`
	Coordinates Polyline   `json:"coordinates"`
	Description string     `json:"description"`
	City        string     `json:"city"`
	Street      string     `json:"street"`
	House       int        `json:"house"`
	Camera      int        `json:"camera"`
	Rows        []RowInput `json:"rows"`
}

func (in SnapshotInput) Lot() LotInput {
	return LotInput{
		ID:          in.ID,
		Coordinates: in.Coordinates,
		Description: in.Description,
		City:        in.City,
		Street:      in.Street,
		House:       in.House,
	}
}

func (in SnapshotInput) Validate() error {
	if err := in.Lot().Validate(); err != nil {
		return err
	}
	return ValidateRows(in.Camera, in.Rows)
}

type IngestResult struct {
	LotID  int `json:"id"`
	ViewID int `json:"-"`
}
