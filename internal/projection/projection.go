// Package projection shapes stored lots into the read models served to
// clients and to the feature collector. Functions here are pure.
package projection

import (
	"strconv"

	"parktronic/internal/domain"
)

// Listing builds the full listing. Each lot carries its views and, flattened
// in camera order, the rows of every view.
func Listing(lots []domain.LotSnapshot) domain.ListingResponse {
	out := domain.ListingResponse{ParkingLots: make([]domain.LotListing, 0, len(lots))}
	for _, l := range lots {
		out.ParkingLots = append(out.ParkingLots, lotListing(l))
	}
	return out
}

func lotListing(l domain.LotSnapshot) domain.LotListing {
	listing := domain.LotListing{
		ID:          l.Lot.ID,
		Coordinates: nonNilPolyline(l.Lot.Coordinates),
		Description: l.Lot.Description,
		City:        l.Lot.City,
		Street:      l.Lot.Street,
		House:       l.Lot.House,
		Address:     Address(l.Lot),
		Views:       make([]domain.ViewListing, 0, len(l.Views)),
		Rows:        []domain.RowListing{},
	}
	for _, v := range l.Views {
		rows := make([]domain.RowListing, 0, len(v.Rows))
		for _, r := range v.Rows {
			rows = append(rows, rowListing(r))
		}
		listing.Views = append(listing.Views, domain.ViewListing{ID: v.ID, Camera: v.Camera, Rows: rows})
		listing.Rows = append(listing.Rows, rows...)
	}
	return listing
}

func rowListing(r domain.Row) domain.RowListing {
	return domain.RowListing{
		Coordinates: domain.RowCoordinates{
			nonNilPolyline(r.Coordinates[0]),
			nonNilPolyline(r.Coordinates[1]),
			nonNilPolyline(r.Coordinates[2]),
		},
		Capacity:    r.Capacity,
		FreePlaces:  nonNilFreePlaces(r.FreePlaces),
		LastUpdated: r.LastUpdated,
	}
}

// Address joins city, street and house with ", ".
func Address(lot domain.ParkingLot) string {
	return lot.City + ", " + lot.Street + ", " + strconv.Itoa(lot.House)
}

// LatestRowFeature is the detector feature of one view. coords is the lot's
// centroid, or the row's when the lot has no coordinates.
func LatestRowFeature(lot domain.ParkingLot, view domain.View, row domain.Row) domain.Feature {
	coords, ok := lot.Coordinates.Centroid()
	if !ok {
		coords = RowCentroid(row)
	}
	return domain.Feature{
		LotID:      lot.ID,
		ViewID:     view.ID,
		Coords:     coords,
		CountLots:  row.Capacity,
		FreePlaces: row.FreePlaces.Count(),
	}
}

// RowCentroid collapses the row's three coordinate sequences into one pair.
// A row with no coordinates maps to (0, 0).
func RowCentroid(row domain.Row) domain.Point {
	p, _ := row.Coordinates.Centroid()
	return p
}

func nonNilPolyline(l domain.Polyline) domain.Polyline {
	if l == nil {
		return domain.Polyline{}
	}
	return l
}

func nonNilFreePlaces(f domain.FreePlaces) domain.FreePlaces {
	if f == nil {
		return domain.FreePlaces{}
	}
	return f
}
