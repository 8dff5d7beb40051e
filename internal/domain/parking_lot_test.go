package domain_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v4"

	"parktronic/internal/domain"
)

func TestSnapshotValidate(t *testing.T) {
	valid := func() domain.SnapshotInput {
		return domain.SnapshotInput{
			Coordinates: domain.Polyline{{55.75, 37.61}},
			House:       1,
			Rows:        []domain.RowInput{{Capacity: 5, FreePlaces: domain.FreePlaces{0, 2}}},
		}
	}
	require.NoError(t, valid().Validate())

	for _, tc := range []struct {
		name   string
		mutate func(in *domain.SnapshotInput)
	}{
		{"zero id", func(in *domain.SnapshotInput) { in.ID = null.IntFrom(0) }},
		{"id out of range", func(in *domain.SnapshotInput) { in.ID = null.IntFrom(math.MaxInt32 + 1) }},
		{"house out of range", func(in *domain.SnapshotInput) { in.House = math.MaxInt32 + 1 }},
		{"negative camera", func(in *domain.SnapshotInput) { in.Camera = -1 }},
		{"camera out of range", func(in *domain.SnapshotInput) { in.Camera = math.MaxInt32 + 1 }},
		{"negative capacity", func(in *domain.SnapshotInput) { in.Rows[0].Capacity = -1 }},
		{"capacity out of range", func(in *domain.SnapshotInput) { in.Rows[0].Capacity = 1 << 40 }},
		{"free place out of range", func(in *domain.SnapshotInput) { in.Rows[0].FreePlaces = domain.FreePlaces{1 << 35} }},
		{"non-finite lot point", func(in *domain.SnapshotInput) { in.Coordinates = domain.Polyline{{math.NaN(), 0}} }},
		{"non-finite row point", func(in *domain.SnapshotInput) {
			in.Rows[0].Coordinates = domain.RowCoordinates{{{math.Inf(1), 0}}}
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			in := valid()
			tc.mutate(&in)
			require.ErrorIs(t, in.Validate(), domain.ErrValidation)
		})
	}

	in := valid()
	in.ID = null.IntFrom(math.MaxInt32)
	in.Rows[0].Capacity = math.MaxInt32
	require.NoError(t, in.Validate())
}

func TestSnapshotDecodeSplitsLot(t *testing.T) {
	var in domain.SnapshotInput
	require.NoError(t, json.Unmarshal([]byte(`{"id": 3, "description": "Lot A", "city": "X", "street": "Y",
		"house": 7, "camera": 2, "rows": []}`), &in))

	lot := in.Lot()
	require.Equal(t, int64(3), lot.ID.Int64)
	require.Equal(t, "Lot A", lot.Description)
	require.Equal(t, 7, lot.House)
	require.Equal(t, 2, in.Camera)
	require.Empty(t, in.Rows)
}
