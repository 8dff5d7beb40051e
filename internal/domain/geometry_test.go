package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"parktronic/internal/domain"
)

func TestPointUnmarshalJSON(t *testing.T) {
	for _, tc := range []struct {
		name    string
		in      string
		want    domain.Point
		invalid bool
	}{
		{name: "pair", in: `[55.75, 37.61]`, want: domain.Point{55.75, 37.61}},
		{name: "integers", in: `[1, 2]`, want: domain.Point{1, 2}},
		{name: "one value", in: `[1]`, invalid: true},
		{name: "three values", in: `[1, 2, 3]`, invalid: true},
		{name: "empty", in: `[]`, invalid: true},
		{name: "object", in: `{"lat": 1, "lon": 2}`, invalid: true},
		{name: "strings", in: `["1", "2"]`, invalid: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var p domain.Point
			err := json.Unmarshal([]byte(tc.in), &p)
			if tc.invalid {
				require.ErrorIs(t, err, domain.ErrValidation)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, p)
		})
	}
}

func TestRowCoordinatesUnmarshalJSON(t *testing.T) {
	for _, tc := range []struct {
		name    string
		in      string
		want    domain.RowCoordinates
		invalid bool
	}{
		{
			name: "polylines",
			in:   `[[[0, 0], [0, 1]], [[1, 1]], [[2, 2], [2, 3], [2, 4]]]`,
			want: domain.RowCoordinates{{{0, 0}, {0, 1}}, {{1, 1}}, {{2, 2}, {2, 3}, {2, 4}}},
		},
		{
			name: "bare points",
			in:   `[[0, 0], [0, 1], [1, 1]]`,
			want: domain.RowCoordinates{{{0, 0}}, {{0, 1}}, {{1, 1}}},
		},
		{
			name: "mixed",
			in:   `[[[0, 0], [0, 1]], [5, 6], []]`,
			want: domain.RowCoordinates{{{0, 0}, {0, 1}}, {{5, 6}}, {}},
		},
		{name: "two entries", in: `[[0, 0], [0, 1]]`, invalid: true},
		{name: "four entries", in: `[[0, 0], [0, 1], [1, 1], [2, 2]]`, invalid: true},
		{name: "not an array", in: `{"coordinate_1": []}`, invalid: true},
		{name: "bad point", in: `[[0, 0, 0], [0, 1], [1, 1]]`, invalid: true},
		{name: "bad point in polyline", in: `[[[0]], [[0, 1]], [[1, 1]]]`, invalid: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var c domain.RowCoordinates
			err := json.Unmarshal([]byte(tc.in), &c)
			if tc.invalid {
				require.ErrorIs(t, err, domain.ErrValidation)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, c)
		})
	}
}

func TestEmptySequencesEncodeAsArrays(t *testing.T) {
	out, err := json.Marshal(domain.Row{})
	require.NoError(t, err)
	require.Contains(t, string(out), `"coordinates":[[],[],[]]`)
	require.Contains(t, string(out), `"free_places":[]`)
}

func TestCentroid(t *testing.T) {
	_, ok := domain.Polyline(nil).Centroid()
	require.False(t, ok)

	p, ok := domain.Polyline{{0, 0}, {2, 4}}.Centroid()
	require.True(t, ok)
	require.Equal(t, domain.Point{1, 2}, p)

	p, ok = domain.RowCoordinates{{{0, 0}}, {{3, 3}}, {}}.Centroid()
	require.True(t, ok)
	require.Equal(t, domain.Point{1.5, 1.5}, p)
}

func TestFreePlacesValidate(t *testing.T) {
	require.NoError(t, domain.FreePlaces{0, 3, 7}.Validate())
	require.ErrorIs(t, domain.FreePlaces{1, -1}.Validate(), domain.ErrValidation)
	require.ErrorIs(t, domain.FreePlaces{1 << 35}.Validate(), domain.ErrValidation)
	require.Equal(t, 3, domain.FreePlaces{0, 3, 7}.Count())
}
