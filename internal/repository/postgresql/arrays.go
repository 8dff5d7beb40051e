package postgresql

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"parktronic/internal/domain"
)

// Coordinate sequences are stored as double precision[][] (N x 2) and free
// places as integer[]; lib/pq array codecs handle the wire format for both
// drivers.

func polylineValue(l domain.Polyline) driver.Valuer {
	out := make([][]float64, len(l))
	for i, p := range l {
		out[i] = []float64{p[0], p[1]}
	}
	return pq.Array(out)
}

func freePlacesValue(f domain.FreePlaces) driver.Valuer {
	out := make([]int64, len(f))
	for i, v := range f {
		out[i] = int64(v)
	}
	return pq.Array(out)
}

// polylineScanner scans a double precision[][] column. NULL and '{}' both
// become an empty, non-nil polyline.
type polylineScanner struct{ dst *domain.Polyline }

func (s polylineScanner) Scan(src any) error {
	var text string
	switch v := src.(type) {
	case nil:
		*s.dst = domain.Polyline{}
		return nil
	case []byte:
		text = string(v)
	case string:
		text = v
	default:
		return fmt.Errorf("scan coordinate array: unsupported source %T", src)
	}
	out, err := parsePointArray(text)
	if err != nil {
		return fmt.Errorf("scan coordinate array: %w", err)
	}
	*s.dst = out
	return nil
}

// parsePointArray parses the text form of an N x 2 float array, e.g.
// {{55.75,37.61},{55.76,37.62}}. lib/pq only scans one-dimensional arrays.
func parsePointArray(text string) (domain.Polyline, error) {
	text = strings.TrimSpace(text)
	if text == "{}" {
		return domain.Polyline{}, nil
	}
	if !strings.HasPrefix(text, "{{") || !strings.HasSuffix(text, "}}") {
		return nil, fmt.Errorf("not a two-dimensional array: %q", text)
	}
	pairs := strings.Split(text[2:len(text)-2], "},{")
	out := make(domain.Polyline, len(pairs))
	for i, pair := range pairs {
		parts := strings.Split(pair, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("point %d has %d values", i, len(parts))
		}
		for j, part := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return nil, fmt.Errorf("point %d: %w", i, err)
			}
			out[i][j] = v
		}
	}
	return out, nil
}

type freePlacesScanner struct{ dst *domain.FreePlaces }

func (s freePlacesScanner) Scan(src any) error {
	var raw pq.Int64Array
	if err := raw.Scan(src); err != nil {
		return fmt.Errorf("scan free_places array: %w", err)
	}
	out := make(domain.FreePlaces, len(raw))
	for i, v := range raw {
		out[i] = int(v)
	}
	*s.dst = out
	return nil
}
