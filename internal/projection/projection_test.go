package projection_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"parktronic/internal/domain"
	"parktronic/internal/projection"
)

var updated = time.Date(2024, 5, 17, 14, 30, 0, 0, time.UTC)

func sampleLot() domain.LotSnapshot {
	return domain.LotSnapshot{
		Lot: domain.ParkingLot{
			ID:          1,
			Coordinates: domain.Polyline{{55.0, 37.0}, {56.0, 38.0}},
			Description: "Lot A",
			City:        "Moscow",
			Street:      "Tverskaya",
			House:       7,
		},
		Views: []domain.View{
			{ID: 10, LotID: 1, Camera: 0, Rows: []domain.Row{
				{ID: 100, ViewID: 10, Coordinates: domain.RowCoordinates{{{0, 0}}, {{0, 2}}, {{2, 2}}}, Capacity: 5, FreePlaces: domain.FreePlaces{0, 2, 4}, LastUpdated: updated},
			}},
			{ID: 11, LotID: 1, Camera: 1, Rows: []domain.Row{
				{ID: 101, ViewID: 11, Capacity: 3, LastUpdated: updated},
			}},
		},
	}
}

func TestListing(t *testing.T) {
	got := projection.Listing([]domain.LotSnapshot{sampleLot(), {Lot: domain.ParkingLot{ID: 2}}})

	rowA := domain.RowListing{
		Coordinates: domain.RowCoordinates{{{0, 0}}, {{0, 2}}, {{2, 2}}},
		Capacity:    5,
		FreePlaces:  domain.FreePlaces{0, 2, 4},
		LastUpdated: updated,
	}
	rowB := domain.RowListing{
		Coordinates: domain.RowCoordinates{{}, {}, {}},
		Capacity:    3,
		FreePlaces:  domain.FreePlaces{},
		LastUpdated: updated,
	}
	want := domain.ListingResponse{ParkingLots: []domain.LotListing{
		{
			ID:          1,
			Coordinates: domain.Polyline{{55.0, 37.0}, {56.0, 38.0}},
			Description: "Lot A",
			City:        "Moscow",
			Street:      "Tverskaya",
			House:       7,
			Address:     "Moscow, Tverskaya, 7",
			Views: []domain.ViewListing{
				{ID: 10, Camera: 0, Rows: []domain.RowListing{rowA}},
				{ID: 11, Camera: 1, Rows: []domain.RowListing{rowB}},
			},
			Rows: []domain.RowListing{rowA, rowB},
		},
		{
			ID:          2,
			Coordinates: domain.Polyline{},
			Address:     ", , 0",
			Views:       []domain.ViewListing{},
			Rows:        []domain.RowListing{},
		},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Listing mismatch (-want +got):\n%s", diff)
	}
}

func TestListingEmptyStore(t *testing.T) {
	body, err := json.Marshal(projection.Listing(nil))
	require.NoError(t, err)
	require.JSONEq(t, `{"parking_lots": []}`, string(body))
}

func TestListingNeverEncodesNull(t *testing.T) {
	body, err := json.Marshal(projection.Listing([]domain.LotSnapshot{{
		Lot:   domain.ParkingLot{ID: 3},
		Views: []domain.View{{ID: 4, Rows: []domain.Row{{ID: 5}}}},
	}}))
	require.NoError(t, err)
	require.NotContains(t, string(body), "null")
}

func TestLatestRowFeature(t *testing.T) {
	lot := sampleLot()
	view := lot.Views[0]

	got := projection.LatestRowFeature(lot.Lot, view, view.Rows[0])
	want := domain.Feature{LotID: 1, ViewID: 10, Coords: domain.Point{55.5, 37.5}, CountLots: 5, FreePlaces: 3}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LatestRowFeature mismatch (-want +got):\n%s", diff)
	}
}

func TestLatestRowFeatureFallsBackToRowCentroid(t *testing.T) {
	lot := sampleLot()
	lot.Lot.Coordinates = nil
	view := lot.Views[0]

	got := projection.LatestRowFeature(lot.Lot, view, view.Rows[0])
	require.InDelta(t, 2.0/3, got.Coords[0], 1e-9)
	require.InDelta(t, 4.0/3, got.Coords[1], 1e-9)
}

func TestRowCentroid(t *testing.T) {
	require.Equal(t, domain.Point{}, projection.RowCentroid(domain.Row{}))
	require.Equal(t, domain.Point{1, 1}, projection.RowCentroid(domain.Row{
		Coordinates: domain.RowCoordinates{{{0, 0}}, {{2, 2}}, {}},
	}))
}
