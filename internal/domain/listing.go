package domain

import "time"

// ListingResponse is the public listing read model: lot -> views -> rows.
type ListingResponse struct {
	ParkingLots []LotListing `json:"parking_lots"`
}

type LotListing struct {
	ID          int           `json:"id"`
	Coordinates Polyline      `json:"coordinates"`
	Description string        `json:"description"`
	City        string        `json:"city"`
	Street      string        `json:"street"`
	House       int           `json:"house"`
	Address     string        `json:"address"`
	Views       []ViewListing `json:"views"`
	// Rows flattens every view's rows, cameras in ascending order.
	Rows []RowListing `json:"rows"`
}

type ViewListing struct {
	ID     int          `json:"id"`
	Camera int          `json:"camera"`
	Rows   []RowListing `json:"rows"`
}

type RowListing struct {
	Coordinates RowCoordinates `json:"coordinates"`
	Capacity    int            `json:"capacity"`
	FreePlaces  FreePlaces     `json:"free_places"`
	LastUpdated time.Time      `json:"last_updated"`
}
