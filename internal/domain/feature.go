package domain

import "time"

// Feature is the detector part of one dataset record, one per (lot, view).
type Feature struct {
	LotID      int   `json:"id_parking"`
	ViewID     int   `json:"id_view"`
	Coords     Point `json:"coords"`
	CountLots  int   `json:"count_lots"`
	FreePlaces int   `json:"free_places"`
}

type WeatherFeatures struct {
	Weather     string  `json:"weather"`
	Temperature int     `json:"temperature"`
	Wind        float64 `json:"wind"`
}

type DatetimeFeatures struct {
	Time    string `json:"time"`
	Day     int    `json:"day"`
	Month   int    `json:"month"`
	Weekday string `json:"weekday"`
}

// NewDatetimeFeatures extracts the calendar features of t.
func NewDatetimeFeatures(t time.Time) DatetimeFeatures {
	return DatetimeFeatures{
		Time:    t.Format("15:04:05"),
		Day:     t.Day(),
		Month:   int(t.Month()),
		Weekday: t.Weekday().String(),
	}
}

// DatasetRecord joins detector, weather and datetime features. The target
// variable for prediction is Feature.FreePlaces.
type DatasetRecord struct {
	Datetime    DatetimeFeatures `json:"datetime"`
	Weather     WeatherFeatures  `json:"weather"`
	Feature     Feature          `json:"feature"`
	CollectedAt time.Time        `json:"collected_at"`
}
