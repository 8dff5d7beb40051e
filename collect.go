package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"parktronic/internal/collector"
	"parktronic/internal/config"
	"parktronic/internal/repository"
	"parktronic/internal/repository/duckdb"
	"parktronic/internal/repository/postgresql"
	"parktronic/internal/service"
	"parktronic/internal/weather"
)

var (
	collectCmd = &cobra.Command{
		Use:   "collect",
		Short: "Collect the occupancy prediction dataset",
		Args:  cobra.NoArgs,
		RunE:  cmdCollect,
	}

	collectCfg struct {
		Once     bool
		Interval time.Duration
		Sink     string
	}
)

func init() {
	collectCmd.Flags().BoolVar(&collectCfg.Once, "once", false, "run a single round and exit")
	collectCmd.Flags().DurationVar(&collectCfg.Interval, "interval", 0, "time between rounds (default COLLECT_INTERVAL)")
	collectCmd.Flags().StringVar(&collectCfg.Sink, "sink", "", "dataset sink, postgres or duckdb (default DATASET_SINK)")
}

func cmdCollect(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.WeatherAPIKey == "" {
		return errors.New("WEATHER_API_KEY is required for collecting")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	sinkName := cfg.DatasetSink
	if collectCfg.Sink != "" {
		sinkName = collectCfg.Sink
	}
	var sink repository.DatasetRepository
	switch sinkName {
	case "postgres":
		sink = postgresql.NewPgDatasetRepository(db, cfg.DBTxTimeout)
	case "duckdb":
		ds, err := duckdb.Open(ctx, cfg.DuckDBPath)
		if err != nil {
			return err
		}
		defer ds.Close()
		sink = ds
	default:
		return fmt.Errorf("unknown dataset sink %q", sinkName)
	}

	provider := weather.NewOpenWeatherMap(weatherConfig(cfg))
	occupancy := service.NewOccupancyService(postgresql.NewPgOccupancyStore(db, cfg.DBTxTimeout), log.Named("occupancy"))
	c := collector.New(occupancy, provider, sink, log.Named("collector"))

	log.Info("collector configured", zap.String("sink", sinkName), zap.Stringer("weather", provider))

	if collectCfg.Once {
		n, err := c.RunOnce(ctx)
		if err != nil {
			return err
		}
		log.Info("dataset round stored", zap.Int("records", n))
		return nil
	}

	interval := cfg.CollectInterval
	if collectCfg.Interval > 0 {
		interval = collectCfg.Interval
	}
	c.Run(ctx, interval)
	return nil
}

func weatherConfig(cfg *config.Config) weather.Config {
	return weather.Config{
		BaseURL: cfg.WeatherBaseURL,
		APIKey:  cfg.WeatherAPIKey,
		Units:   cfg.WeatherUnits,
		Lang:    cfg.WeatherLang,
		Timeout: 10 * time.Second,
	}
}
