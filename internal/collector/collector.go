// Package collector builds the occupancy prediction dataset: every few
// minutes it joins each view's latest row with the current weather and
// calendar features and appends the records to a dataset sink.
package collector

import (
	"context"
	"time"

	"go.uber.org/zap"

	"parktronic/internal/domain"
	"parktronic/internal/repository"
	"parktronic/internal/weather"
)

// FeatureSource yields one detector feature per view holding rows.
type FeatureSource interface {
	Features(ctx context.Context) ([]domain.Feature, error)
}

type Collector struct {
	features     FeatureSource
	weather      weather.Provider
	sink         repository.DatasetRepository
	log          *zap.Logger
	now          func() time.Time
	roundTimeout time.Duration
}

func New(features FeatureSource, provider weather.Provider, sink repository.DatasetRepository, log *zap.Logger) *Collector {
	return &Collector{
		features:     features,
		weather:      provider,
		sink:         sink,
		log:          log,
		now:          time.Now,
		roundTimeout: 2 * time.Minute,
	}
}

// Collect builds the records of one round. A feature whose weather lookup
// fails is skipped; the rest of the round goes on.
func (c *Collector) Collect(ctx context.Context) ([]domain.DatasetRecord, error) {
	features, err := c.features.Features(ctx)
	if err != nil {
		return nil, err
	}

	now := c.now()
	calendar := domain.NewDatetimeFeatures(now)
	conditions := map[domain.Point]domain.WeatherFeatures{}

	records := make([]domain.DatasetRecord, 0, len(features))
	for _, f := range features {
		w, ok := conditions[f.Coords]
		if !ok {
			w, err = c.weather.Current(ctx, f.Coords)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				c.log.Warn("weather lookup failed, skipping feature",
					zap.Int("lot_id", f.LotID), zap.Int("view_id", f.ViewID), zap.Error(err))
				continue
			}
			conditions[f.Coords] = w
		}
		records = append(records, domain.DatasetRecord{
			Datetime:    calendar,
			Weather:     w,
			Feature:     f,
			CollectedAt: now.UTC(),
		})
	}
	return records, nil
}

// RunOnce collects one round and appends it to the sink.
func (c *Collector) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.roundTimeout)
	defer cancel()

	records, err := c.Collect(ctx)
	if err != nil {
		return 0, err
	}
	if err := c.sink.Append(ctx, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Run collects a round every interval until ctx is done. Failed rounds are
// logged and do not stop the loop.
func (c *Collector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	c.log.Info("feature collector started", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			c.log.Info("feature collector stopped")
			return
		case <-ticker.C:
			n, err := c.RunOnce(ctx)
			if err != nil {
				c.log.Error("collection round failed", zap.Error(err))
				continue
			}
			c.log.Info("collection round stored", zap.Int("records", n))
		}
	}
}
