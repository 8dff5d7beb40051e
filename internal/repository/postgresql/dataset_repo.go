package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"parktronic/internal/dbutil/txutil"
	"parktronic/internal/domain"
	"parktronic/internal/repository"
)

type pgDatasetRepository struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPgDatasetRepository appends collector records to prediction_info.
func NewPgDatasetRepository(db *sql.DB, txTimeout time.Duration) repository.DatasetRepository {
	return &pgDatasetRepository{db: db, timeout: txTimeout}
}

const datasetColumnCount = 14

// datasetRecordsPerInsert keeps one INSERT under the bind parameter limit.
const datasetRecordsPerInsert = 2000

func (r *pgDatasetRepository) Append(ctx context.Context, records []domain.DatasetRecord) error {
	if len(records) == 0 {
		return nil
	}
	err := txutil.WithTx(ctx, r.db, txutil.Options{Timeout: r.timeout}, func(ctx context.Context, tx *sql.Tx) error {
		for start := 0; start < len(records); start += datasetRecordsPerInsert {
			end := min(start+datasetRecordsPerInsert, len(records))
			query, args := datasetInsert(records[start:end])
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return err
			}
		}
		return nil
	})
	return mapError("DatasetRepository.Append", err)
}

func datasetInsert(records []domain.DatasetRecord) (string, []any) {
	var b strings.Builder
	b.WriteString(`INSERT INTO prediction_info (time, day, month, weekday, weather, temperature, wind,
		id_parking, id_view, lat, lon, count_lots, free_places, collected_at) VALUES `)
	args := make([]any, 0, len(records)*datasetColumnCount)
	for i, rec := range records {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(")
		for j := 0; j < datasetColumnCount; j++ {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", len(args)+j+1)
		}
		b.WriteString(")")
		args = append(args,
			rec.Datetime.Time, rec.Datetime.Day, rec.Datetime.Month, rec.Datetime.Weekday,
			rec.Weather.Weather, rec.Weather.Temperature, rec.Weather.Wind,
			rec.Feature.LotID, rec.Feature.ViewID, rec.Feature.Coords[0], rec.Feature.Coords[1],
			rec.Feature.CountLots, rec.Feature.FreePlaces, rec.CollectedAt.UTC())
	}
	return b.String(), args
}
