// Package repotest is the behavioural contract every repository
// implementation must satisfy. Implementations call Run from their own tests
// with a factory that hands out empty stores.
package repotest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v4"

	"parktronic/internal/domain"
	"parktronic/internal/repository"
)

type Stores struct {
	Occupancy repository.OccupancyStore
	Users     repository.UserRepository
	Favorites repository.FavoriteRepository
	Dataset   repository.DatasetRepository
}

// Factory returns empty stores. It is called once per subtest.
type Factory func(t *testing.T) Stores

// Run executes the whole contract against newStores.
func Run(t *testing.T, newStores Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s Stores)
	}{
		{"CreateLotThenListShowsView", testCreateLotThenList},
		{"ReplaceDropsPreviousRows", testReplaceDropsPreviousRows},
		{"ReplaceIsIdempotent", testReplaceIsIdempotent},
		{"InvalidRowKeepsPreviousRows", testInvalidRowKeepsPreviousRows},
		{"OutOfRangeValuesRejected", testOutOfRangeValuesRejected},
		{"ReplaceUnknownLot", testReplaceUnknownLot},
		{"UpsertUpdatesExistingLot", testUpsertUpdatesExistingLot},
		{"UpsertUnknownLot", testUpsertUnknownLot},
		{"IngestSnapshot", testIngestSnapshot},
		{"CamerasAreIndependent", testCamerasAreIndependent},
		{"EmptySequences", testEmptySequences},
		{"GetLotNotFound", testGetLotNotFound},
		{"LatestRowByView", testLatestRowByView},
		{"ListViews", testListViews},
		{"DeleteLotCascades", testDeleteLotCascades},
		{"DeleteViewCascades", testDeleteViewCascades},
		{"ConcurrentReplace", testConcurrentReplace},
		{"UserEmailConflict", testUserEmailConflict},
		{"UserPasswordHash", testUserPasswordHash},
		{"FavoriteConflict", testFavoriteConflict},
		{"FavoriteRemoveIsIdempotent", testFavoriteRemoveIsIdempotent},
		{"FavoriteUnknownLot", testFavoriteUnknownLot},
		{"DeleteUserCascades", testDeleteUserCascades},
		{"DatasetAppend", testDatasetAppend},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStores(t))
		})
	}
}

func lotA() domain.LotInput {
	return domain.LotInput{
		Coordinates: domain.Polyline{{1, 2}},
		Description: "Lot A",
		City:        "X",
		Street:      "Y",
		House:       1,
	}
}

func row(capacity int, free ...int) domain.RowInput {
	return domain.RowInput{
		Coordinates: domain.RowCoordinates{{{0, 0}}, {{0, 1}}, {{1, 1}}},
		Capacity:    capacity,
		FreePlaces:  append(domain.FreePlaces{}, free...),
	}
}

func createLot(ctx context.Context, t *testing.T, s Stores) int {
	t.Helper()
	id, err := s.Occupancy.UpsertLot(ctx, lotA())
	require.NoError(t, err)
	require.Positive(t, id)
	return id
}

func createUser(ctx context.Context, t *testing.T, s Stores, email string) int {
	t.Helper()
	u, err := s.Users.Create(ctx, &domain.User{Email: email, FirstName: "Ann", Username: "ann", PasswordHash: "hash"})
	require.NoError(t, err)
	return u.ID
}

func findLot(t *testing.T, lots []domain.LotSnapshot, id int) domain.LotSnapshot {
	t.Helper()
	for _, l := range lots {
		if l.Lot.ID == id {
			return l
		}
	}
	t.Fatalf("lot %d not listed", id)
	return domain.LotSnapshot{}
}

func testCreateLotThenList(t *testing.T, s Stores) {
	ctx := context.Background()
	lotID := createLot(ctx, t, s)

	viewID, err := s.Occupancy.ReplaceView(ctx, lotID, 0, []domain.RowInput{row(5, 0, 2, 4)})
	require.NoError(t, err)

	lots, err := s.Occupancy.ListLots(ctx)
	require.NoError(t, err)
	require.Len(t, lots, 1)

	lot := lots[0]
	require.Equal(t, lotID, lot.Lot.ID)
	require.Equal(t, domain.Polyline{{1, 2}}, lot.Lot.Coordinates)
	require.Equal(t, "Lot A", lot.Lot.Description)
	require.Equal(t, "X", lot.Lot.City)
	require.Equal(t, "Y", lot.Lot.Street)
	require.Equal(t, 1, lot.Lot.House)

	require.Len(t, lot.Views, 1)
	require.Equal(t, viewID, lot.Views[0].ID)
	require.Equal(t, 0, lot.Views[0].Camera)
	require.Len(t, lot.Views[0].Rows, 1)

	r := lot.Views[0].Rows[0]
	require.Equal(t, 5, r.Capacity)
	require.Equal(t, domain.FreePlaces{0, 2, 4}, r.FreePlaces)
	require.Equal(t, domain.RowCoordinates{{{0, 0}}, {{0, 1}}, {{1, 1}}}, r.Coordinates)
	require.False(t, r.LastUpdated.IsZero())
}

func testReplaceDropsPreviousRows(t *testing.T, s Stores) {
	ctx := context.Background()
	lotID := createLot(ctx, t, s)

	_, err := s.Occupancy.ReplaceView(ctx, lotID, 0, []domain.RowInput{row(1, 0), row(2, 1)})
	require.NoError(t, err)
	_, err = s.Occupancy.ReplaceView(ctx, lotID, 0, []domain.RowInput{row(3, 0, 1, 2)})
	require.NoError(t, err)

	lots, err := s.Occupancy.ListLots(ctx)
	require.NoError(t, err)
	lot := findLot(t, lots, lotID)
	require.Len(t, lot.Views, 1)
	require.Len(t, lot.Views[0].Rows, 1)
	require.Equal(t, 3, lot.Views[0].Rows[0].Capacity)
}

func testReplaceIsIdempotent(t *testing.T, s Stores) {
	ctx := context.Background()
	lotID := createLot(ctx, t, s)
	rows := []domain.RowInput{row(4, 1), row(6, 2, 3)}

	for i := 0; i < 2; i++ {
		_, err := s.Occupancy.ReplaceView(ctx, lotID, 2, rows)
		require.NoError(t, err)
	}

	views, err := s.Occupancy.ListViews(ctx, lotID)
	require.NoError(t, err)
	require.Len(t, views, 1)

	lots, err := s.Occupancy.ListLots(ctx)
	require.NoError(t, err)
	require.Len(t, findLot(t, lots, lotID).Views[0].Rows, len(rows))
}

func testInvalidRowKeepsPreviousRows(t *testing.T, s Stores) {
	ctx := context.Background()
	lotID := createLot(ctx, t, s)

	viewID, err := s.Occupancy.ReplaceView(ctx, lotID, 0, []domain.RowInput{row(5, 0, 1)})
	require.NoError(t, err)

	_, err = s.Occupancy.ReplaceView(ctx, lotID, 0, []domain.RowInput{row(7, 0), row(-1)})
	require.ErrorIs(t, err, repository.ErrValidation)

	_, err = s.Occupancy.ReplaceView(ctx, lotID, 0, []domain.RowInput{row(7, 0), row(2, -3)})
	require.ErrorIs(t, err, repository.ErrValidation)

	lots, err := s.Occupancy.ListLots(ctx)
	require.NoError(t, err)
	lot := findLot(t, lots, lotID)
	require.Len(t, lot.Views, 1)
	require.Equal(t, viewID, lot.Views[0].ID)
	require.Len(t, lot.Views[0].Rows, 1)
	require.Equal(t, 5, lot.Views[0].Rows[0].Capacity)
}

func testOutOfRangeValuesRejected(t *testing.T, s Stores) {
	ctx := context.Background()
	lotID := createLot(ctx, t, s)

	viewID, err := s.Occupancy.ReplaceView(ctx, lotID, 0, []domain.RowInput{row(5, 0, 1)})
	require.NoError(t, err)

	for _, rows := range [][]domain.RowInput{
		{row(7, 0), row(1 << 40)},
		{row(7, 0), row(2, 1<<35)},
	} {
		_, err = s.Occupancy.ReplaceView(ctx, lotID, 0, rows)
		require.ErrorIs(t, err, repository.ErrValidation)
	}
	_, err = s.Occupancy.ReplaceView(ctx, lotID, 1<<33, []domain.RowInput{row(1)})
	require.ErrorIs(t, err, repository.ErrValidation)

	lot := lotA()
	lot.House = 1 << 40
	_, err = s.Occupancy.UpsertLot(ctx, lot)
	require.ErrorIs(t, err, repository.ErrValidation)

	lots, err := s.Occupancy.ListLots(ctx)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	got := findLot(t, lots, lotID)
	require.Len(t, got.Views, 1)
	require.Equal(t, viewID, got.Views[0].ID)
	require.Len(t, got.Views[0].Rows, 1)
	require.Equal(t, 5, got.Views[0].Rows[0].Capacity)
}

func testReplaceUnknownLot(t *testing.T, s Stores) {
	_, err := s.Occupancy.ReplaceView(context.Background(), 4242, 0, []domain.RowInput{row(1)})
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func testUpsertUpdatesExistingLot(t *testing.T, s Stores) {
	ctx := context.Background()
	lotID := createLot(ctx, t, s)
	_, err := s.Occupancy.ReplaceView(ctx, lotID, 0, []domain.RowInput{row(5)})
	require.NoError(t, err)

	in := lotA()
	in.ID = null.IntFrom(int64(lotID))
	in.Description = "Lot B"
	in.Coordinates = domain.Polyline{{3, 4}, {5, 6}}
	got, err := s.Occupancy.UpsertLot(ctx, in)
	require.NoError(t, err)
	require.Equal(t, lotID, got)

	lot, err := s.Occupancy.GetLot(ctx, lotID)
	require.NoError(t, err)
	require.Equal(t, "Lot B", lot.Description)
	require.Equal(t, domain.Polyline{{3, 4}, {5, 6}}, lot.Coordinates)

	// Updating the scalars leaves the views alone.
	views, err := s.Occupancy.ListViews(ctx, lotID)
	require.NoError(t, err)
	require.Len(t, views, 1)
}

func testUpsertUnknownLot(t *testing.T, s Stores) {
	in := lotA()
	in.ID = null.IntFrom(999)
	_, err := s.Occupancy.UpsertLot(context.Background(), in)
	require.ErrorIs(t, err, repository.ErrNotFound)

	in.ID = null.IntFrom(-1)
	_, err = s.Occupancy.UpsertLot(context.Background(), in)
	require.ErrorIs(t, err, repository.ErrValidation)
}

func testIngestSnapshot(t *testing.T, s Stores) {
	ctx := context.Background()
	in := domain.SnapshotInput{
		Coordinates: domain.Polyline{{10, 20}},
		Description: "ingested",
		City:        "C",
		Street:      "S",
		House:       3,
		Camera:      1,
		Rows:        []domain.RowInput{row(8, 1, 2)},
	}
	res, err := s.Occupancy.IngestSnapshot(ctx, in)
	require.NoError(t, err)
	require.Positive(t, res.LotID)
	require.Positive(t, res.ViewID)

	in.ID = null.IntFrom(int64(res.LotID))
	in.Rows = []domain.RowInput{row(9, 5)}
	again, err := s.Occupancy.IngestSnapshot(ctx, in)
	require.NoError(t, err)
	require.Equal(t, res.LotID, again.LotID)

	latest, err := s.Occupancy.LatestRowByView(ctx, again.ViewID)
	require.NoError(t, err)
	require.Equal(t, 9, latest.Capacity)

	_, err = s.Occupancy.LatestRowByView(ctx, res.ViewID)
	require.ErrorIs(t, err, repository.ErrNotFound)

	// A snapshot for a missing lot creates nothing.
	in.ID = null.IntFrom(int64(res.LotID + 100))
	_, err = s.Occupancy.IngestSnapshot(ctx, in)
	require.ErrorIs(t, err, repository.ErrNotFound)
	ids, err := s.Occupancy.ListLotIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{res.LotID}, ids)
}

func testCamerasAreIndependent(t *testing.T, s Stores) {
	ctx := context.Background()
	lotID := createLot(ctx, t, s)

	_, err := s.Occupancy.ReplaceView(ctx, lotID, 1, []domain.RowInput{row(1)})
	require.NoError(t, err)
	_, err = s.Occupancy.ReplaceView(ctx, lotID, 0, []domain.RowInput{row(2), row(3)})
	require.NoError(t, err)
	_, err = s.Occupancy.ReplaceView(ctx, lotID, 1, []domain.RowInput{row(4)})
	require.NoError(t, err)

	lots, err := s.Occupancy.ListLots(ctx)
	require.NoError(t, err)
	views := findLot(t, lots, lotID).Views
	require.Len(t, views, 2)
	require.Equal(t, 0, views[0].Camera)
	require.Len(t, views[0].Rows, 2)
	require.Equal(t, 1, views[1].Camera)
	require.Len(t, views[1].Rows, 1)
	require.Equal(t, 4, views[1].Rows[0].Capacity)
}

func testEmptySequences(t *testing.T, s Stores) {
	ctx := context.Background()

	lots, err := s.Occupancy.ListLots(ctx)
	require.NoError(t, err)
	require.NotNil(t, lots)
	require.Empty(t, lots)

	lotID, err := s.Occupancy.UpsertLot(ctx, domain.LotInput{})
	require.NoError(t, err)
	viewID, err := s.Occupancy.ReplaceView(ctx, lotID, 0, []domain.RowInput{{}})
	require.NoError(t, err)

	lot, err := s.Occupancy.GetLot(ctx, lotID)
	require.NoError(t, err)
	require.NotNil(t, lot.Coordinates)
	require.Empty(t, lot.Coordinates)

	r, err := s.Occupancy.LatestRowByView(ctx, viewID)
	require.NoError(t, err)
	require.NotNil(t, r.FreePlaces)
	require.Empty(t, r.FreePlaces)
	for _, c := range r.Coordinates {
		require.NotNil(t, c)
		require.Empty(t, c)
	}

	_, err = s.Occupancy.ReplaceView(ctx, lotID, 0, nil)
	require.NoError(t, err)
	lots, err = s.Occupancy.ListLots(ctx)
	require.NoError(t, err)
	views := findLot(t, lots, lotID).Views
	require.Len(t, views, 1)
	require.NotNil(t, views[0].Rows)
	require.Empty(t, views[0].Rows)
}

func testGetLotNotFound(t *testing.T, s Stores) {
	_, err := s.Occupancy.GetLot(context.Background(), 999)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func testLatestRowByView(t *testing.T, s Stores) {
	ctx := context.Background()
	lotID := createLot(ctx, t, s)
	viewID, err := s.Occupancy.ReplaceView(ctx, lotID, 0, []domain.RowInput{row(1), row(2)})
	require.NoError(t, err)

	// Rows of one replace share a timestamp; the newest id wins.
	latest, err := s.Occupancy.LatestRowByView(ctx, viewID)
	require.NoError(t, err)
	require.Equal(t, 2, latest.Capacity)
	require.Equal(t, viewID, latest.ViewID)

	_, err = s.Occupancy.LatestRowByView(ctx, viewID+1000)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func testListViews(t *testing.T, s Stores) {
	ctx := context.Background()
	lotID := createLot(ctx, t, s)

	views, err := s.Occupancy.ListViews(ctx, lotID)
	require.NoError(t, err)
	require.Empty(t, views)

	_, err = s.Occupancy.ReplaceView(ctx, lotID, 3, nil)
	require.NoError(t, err)
	_, err = s.Occupancy.ReplaceView(ctx, lotID, 1, nil)
	require.NoError(t, err)

	views, err = s.Occupancy.ListViews(ctx, lotID)
	require.NoError(t, err)
	require.Len(t, views, 2)
	require.Equal(t, 1, views[0].Camera)
	require.Equal(t, 3, views[1].Camera)
	require.Equal(t, lotID, views[0].LotID)

	_, err = s.Occupancy.ListViews(ctx, lotID+1000)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func testDeleteLotCascades(t *testing.T, s Stores) {
	ctx := context.Background()
	lotID := createLot(ctx, t, s)
	other := createLot(ctx, t, s)
	viewID, err := s.Occupancy.ReplaceView(ctx, lotID, 0, []domain.RowInput{row(1)})
	require.NoError(t, err)
	userID := createUser(ctx, t, s, "cascade@example.com")
	require.NoError(t, s.Favorites.Add(ctx, userID, lotID))
	require.NoError(t, s.Favorites.Add(ctx, userID, other))

	require.NoError(t, s.Occupancy.DeleteLot(ctx, lotID))

	_, err = s.Occupancy.GetLot(ctx, lotID)
	require.ErrorIs(t, err, repository.ErrNotFound)
	_, err = s.Occupancy.LatestRowByView(ctx, viewID)
	require.ErrorIs(t, err, repository.ErrNotFound)
	require.ErrorIs(t, s.Occupancy.DeleteView(ctx, viewID), repository.ErrNotFound)

	favs, err := s.Favorites.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, []int{other}, favs)

	require.ErrorIs(t, s.Occupancy.DeleteLot(ctx, lotID), repository.ErrNotFound)
}

func testDeleteViewCascades(t *testing.T, s Stores) {
	ctx := context.Background()
	lotID := createLot(ctx, t, s)
	viewID, err := s.Occupancy.ReplaceView(ctx, lotID, 0, []domain.RowInput{row(1), row(2)})
	require.NoError(t, err)

	require.NoError(t, s.Occupancy.DeleteView(ctx, viewID))

	_, err = s.Occupancy.LatestRowByView(ctx, viewID)
	require.ErrorIs(t, err, repository.ErrNotFound)
	views, err := s.Occupancy.ListViews(ctx, lotID)
	require.NoError(t, err)
	require.Empty(t, views)
}

func testConcurrentReplace(t *testing.T, s Stores) {
	ctx := context.Background()
	lotID := createLot(ctx, t, s)

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			rows := make([]domain.RowInput, n+1)
			for j := range rows {
				rows[j] = row(n)
			}
			_, err := s.Occupancy.ReplaceView(ctx, lotID, 0, rows)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	lots, err := s.Occupancy.ListLots(ctx)
	require.NoError(t, err)
	views := findLot(t, lots, lotID).Views
	require.Len(t, views, 1)

	// Whichever writer won, its rows are never mixed with another's.
	rows := views[0].Rows
	require.NotEmpty(t, rows)
	require.Len(t, rows, rows[0].Capacity+1)
	for _, r := range rows {
		require.Equal(t, rows[0].Capacity, r.Capacity)
	}
}

func testUserEmailConflict(t *testing.T, s Stores) {
	ctx := context.Background()
	id := createUser(ctx, t, s, "ann@example.com")

	_, err := s.Users.Create(ctx, &domain.User{Email: "ANN@example.com ", FirstName: "A", Username: "a", PasswordHash: "h"})
	require.ErrorIs(t, err, repository.ErrConflict)

	u, err := s.Users.FindByEmail(ctx, "Ann@Example.com")
	require.NoError(t, err)
	require.Equal(t, id, u.ID)
	require.Equal(t, "ann@example.com", u.Email)
	require.Equal(t, "hash", u.PasswordHash)

	_, err = s.Users.FindByEmail(ctx, "bob@example.com")
	require.ErrorIs(t, err, repository.ErrNotFound)
	_, err = s.Users.FindByID(ctx, id+1000)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func testUserPasswordHash(t *testing.T, s Stores) {
	ctx := context.Background()
	id := createUser(ctx, t, s, "hash@example.com")

	require.NoError(t, s.Users.UpdatePasswordHash(ctx, id, "new-hash"))
	u, err := s.Users.FindByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "new-hash", u.PasswordHash)

	require.ErrorIs(t, s.Users.UpdatePasswordHash(ctx, id+1000, "x"), repository.ErrNotFound)
}

func testFavoriteConflict(t *testing.T, s Stores) {
	ctx := context.Background()
	lotID := createLot(ctx, t, s)
	userID := createUser(ctx, t, s, "fav@example.com")

	require.NoError(t, s.Favorites.Add(ctx, userID, lotID))
	require.ErrorIs(t, s.Favorites.Add(ctx, userID, lotID), repository.ErrConflict)

	favs, err := s.Favorites.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, []int{lotID}, favs)
}

func testFavoriteRemoveIsIdempotent(t *testing.T, s Stores) {
	ctx := context.Background()
	lotID := createLot(ctx, t, s)
	userID := createUser(ctx, t, s, "rm@example.com")

	require.NoError(t, s.Favorites.Add(ctx, userID, lotID))
	require.NoError(t, s.Favorites.Remove(ctx, userID, lotID))
	require.NoError(t, s.Favorites.Remove(ctx, userID, lotID))

	favs, err := s.Favorites.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, favs)
	require.Empty(t, favs)
}

func testFavoriteUnknownLot(t *testing.T, s Stores) {
	ctx := context.Background()
	userID := createUser(ctx, t, s, "nolot@example.com")
	lotID := createLot(ctx, t, s)

	require.ErrorIs(t, s.Favorites.Add(ctx, userID, lotID+1000), repository.ErrNotFound)
	require.ErrorIs(t, s.Favorites.Add(ctx, userID+1000, lotID), repository.ErrNotFound)
}

func testDeleteUserCascades(t *testing.T, s Stores) {
	ctx := context.Background()
	lotID := createLot(ctx, t, s)
	userID := createUser(ctx, t, s, "gone@example.com")
	require.NoError(t, s.Favorites.Add(ctx, userID, lotID))

	require.NoError(t, s.Users.Delete(ctx, userID))

	favs, err := s.Favorites.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Empty(t, favs)
	require.ErrorIs(t, s.Users.Delete(ctx, userID), repository.ErrNotFound)
}

func testDatasetAppend(t *testing.T, s Stores) {
	ctx := context.Background()
	at := time.Date(2024, 5, 17, 14, 30, 0, 0, time.UTC)
	records := []domain.DatasetRecord{{
		Datetime:    domain.NewDatetimeFeatures(at),
		Weather:     domain.WeatherFeatures{Weather: "Clear", Temperature: 21, Wind: 3.5},
		Feature:     domain.Feature{LotID: 1, ViewID: 2, Coords: domain.Point{55.7, 37.6}, CountLots: 10, FreePlaces: 4},
		CollectedAt: at,
	}}
	require.NoError(t, s.Dataset.Append(ctx, records))
	require.NoError(t, s.Dataset.Append(ctx, nil))
}
