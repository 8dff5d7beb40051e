package domain

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Point is a coordinate pair: lat/lon for lot bounds, image x/y for row reference points.
type Point [2]float64

func (p *Point) UnmarshalJSON(data []byte) error {
	var raw []float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: coordinate must be an array of two numbers: %v", ErrValidation, err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("%w: coordinate must have exactly 2 values, got %d", ErrValidation, len(raw))
	}
	*p = Point{raw[0], raw[1]}
	return p.Validate()
}

func (p Point) Validate() error {
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: coordinate value is not finite", ErrValidation)
		}
	}
	return nil
}

// Polyline is an ordered sequence of points. A nil Polyline encodes as [] so
// "no data" never turns into null on the wire.
type Polyline []Point

func (l Polyline) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Point(l))
}

func (l Polyline) Validate() error {
	for i, p := range l {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("point %d: %w", i, err)
		}
	}
	return nil
}

// Centroid returns the mean of all points; ok is false for an empty polyline.
func (l Polyline) Centroid() (Point, bool) {
	if len(l) == 0 {
		return Point{}, false
	}
	xs := make([]float64, len(l))
	ys := make([]float64, len(l))
	for i, p := range l {
		xs[i], ys[i] = p[0], p[1]
	}
	return Point{stat.Mean(xs, nil), stat.Mean(ys, nil)}, true
}

// RowCoordinates holds the three reference sequences (coordinate_1/2/3) that
// define a parking row's physical extent.
type RowCoordinates [3]Polyline

// UnmarshalJSON accepts three polylines, or three bare points which are
// wrapped into one-point polylines.
func (c *RowCoordinates) UnmarshalJSON(data []byte) error {
	var nested []json.RawMessage
	if err := json.Unmarshal(data, &nested); err != nil {
		return fmt.Errorf("%w: row coordinates must be an array: %v", ErrValidation, err)
	}
	if len(nested) != 3 {
		return fmt.Errorf("%w: row coordinates must have exactly 3 entries, got %d", ErrValidation, len(nested))
	}

	var out RowCoordinates
	for i, raw := range nested {
		var line []Point
		if err := json.Unmarshal(raw, &line); err == nil {
			out[i] = Polyline(line)
			continue
		}
		var p Point
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("row coordinate %d: %w", i+1, err)
		}
		out[i] = Polyline{p}
	}
	*c = out
	return nil
}

func (c RowCoordinates) Validate() error {
	for i, l := range c {
		if err := l.Validate(); err != nil {
			return fmt.Errorf("coordinate_%d: %w", i+1, err)
		}
	}
	return nil
}

// Flatten returns every point of the three sequences in order.
func (c RowCoordinates) Flatten() Polyline {
	out := make(Polyline, 0, len(c[0])+len(c[1])+len(c[2]))
	for _, l := range c {
		out = append(out, l...)
	}
	return out
}

// Centroid collapses the three sequences to one representative pair.
func (c RowCoordinates) Centroid() (Point, bool) {
	return c.Flatten().Centroid()
}

// FreePlaces lists the indexes of the currently free spaces in a row.
type FreePlaces []int

func (f FreePlaces) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]int(f))
}

func (f FreePlaces) Validate() error {
	for i, v := range f {
		if v < 0 {
			return fmt.Errorf("%w: free_places[%d] is negative (%d)", ErrValidation, i, v)
		}
		if v > math.MaxInt32 {
			return fmt.Errorf("%w: free_places[%d] is out of range (%d)", ErrValidation, i, v)
		}
	}
	return nil
}

// Count is the scalar consumed by feature extraction.
func (f FreePlaces) Count() int { return len(f) }
