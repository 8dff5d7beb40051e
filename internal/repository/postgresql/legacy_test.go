package postgresql

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v4"

	"parktronic/internal/domain"
)

func TestParseLegacyPolyline(t *testing.T) {
	for _, tc := range []struct {
		name string
		in   null.String
		want domain.Polyline
		ok   bool
	}{
		{"null", null.String{}, domain.Polyline{}, true},
		{"python none", null.StringFrom("None"), domain.Polyline{}, true},
		{"pairs", null.StringFrom("[[1.0, 2.0], [3, 4]]"), domain.Polyline{{1, 2}, {3, 4}}, true},
		{"flat pair", null.StringFrom("[55.7, 37.6]"), domain.Polyline{{55.7, 37.6}}, true},
		{"empty list", null.StringFrom("[]"), domain.Polyline{}, true},
		{"garbage", null.StringFrom("((1,2))"), domain.Polyline{}, false},
		{"triple", null.StringFrom("[[1,2,3]]"), domain.Polyline{}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := parseLegacyPolyline(tc.in)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.want, got)
			require.NotNil(t, got)
		})
	}
}

func TestParseLegacyRowCoordinates(t *testing.T) {
	got, ok := parseLegacyRowCoordinates(null.StringFrom("[[0,0],[0,1],[1,1]]"))
	require.True(t, ok)
	require.Equal(t, domain.RowCoordinates{{{0, 0}}, {{0, 1}}, {{1, 1}}}, got)

	got, ok = parseLegacyRowCoordinates(null.StringFrom("[[[0,0],[0,2]],[],[[1,1]]]"))
	require.True(t, ok)
	require.Equal(t, domain.RowCoordinates{{{0, 0}, {0, 2}}, {}, {{1, 1}}}, got)

	got, ok = parseLegacyRowCoordinates(null.StringFrom("[[0,0]]"))
	require.False(t, ok)
	require.Equal(t, domain.RowCoordinates{{}, {}, {}}, got)
}

func TestParseLegacyFreePlaces(t *testing.T) {
	got, ok := parseLegacyFreePlaces(null.StringFrom("[0, 2, 4]"))
	require.True(t, ok)
	require.Equal(t, domain.FreePlaces{0, 2, 4}, got)

	// "no data" and "zero free places" both end up empty, but only the
	// malformed value is reported.
	got, ok = parseLegacyFreePlaces(null.String{})
	require.True(t, ok)
	require.Equal(t, domain.FreePlaces{}, got)

	got, ok = parseLegacyFreePlaces(null.StringFrom("{0,2}"))
	require.False(t, ok)
	require.Equal(t, domain.FreePlaces{}, got)

	_, ok = parseLegacyFreePlaces(null.StringFrom("[-1]"))
	require.False(t, ok)
}
