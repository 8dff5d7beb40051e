package duckdb_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"parktronic/internal/domain"
	"parktronic/internal/repository/duckdb"
)

func TestAppend(t *testing.T) {
	ctx := context.Background()
	repo, err := duckdb.Open(ctx, filepath.Join(t.TempDir(), "dataset.duckdb"))
	require.NoError(t, err)
	defer func() { require.NoError(t, repo.Close()) }()

	at := time.Date(2024, 5, 17, 14, 30, 0, 0, time.UTC)
	rec := domain.DatasetRecord{
		Datetime:    domain.NewDatetimeFeatures(at),
		Weather:     domain.WeatherFeatures{Weather: "Rain", Temperature: 12, Wind: 4.2},
		Feature:     domain.Feature{LotID: 1, ViewID: 1, Coords: domain.Point{55.7, 37.6}, CountLots: 20, FreePlaces: 7},
		CollectedAt: at,
	}
	require.NoError(t, repo.Append(ctx, []domain.DatasetRecord{rec, rec}))
	require.NoError(t, repo.Append(ctx, nil))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestReopenKeepsRecords(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dataset.duckdb")

	repo, err := duckdb.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, repo.Append(ctx, []domain.DatasetRecord{{CollectedAt: time.Now()}}))
	require.NoError(t, repo.Close())

	repo, err = duckdb.Open(ctx, path)
	require.NoError(t, err)
	defer repo.Close()
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
