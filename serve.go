package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"parktronic/internal/api"
	"parktronic/internal/config"
	"parktronic/internal/ingest"
	"parktronic/internal/repository"
	"parktronic/internal/repository/memory"
	"parktronic/internal/repository/postgresql"
	"parktronic/internal/service"
	"parktronic/internal/session"
)

var (
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the snapshot consumers",
		Args:  cobra.NoArgs,
		RunE:  cmdServe,
	}

	serveCfg struct {
		Dev     bool
		Migrate bool
	}
)

func init() {
	serveCmd.Flags().BoolVar(&serveCfg.Dev, "dev", false, "keep everything in memory instead of PostgreSQL")
	serveCmd.Flags().BoolVar(&serveCfg.Migrate, "migrate", false, "run schema migrations before serving")
}

type stores struct {
	occupancy repository.OccupancyStore
	users     repository.UserRepository
	favorites repository.FavoriteRepository
	release   func() error
}

func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger, dev, migrate bool) (*stores, error) {
	if dev {
		log.Warn("running with in-memory storage, data is lost on exit")
		mem := memory.NewDB()
		return &stores{
			occupancy: mem.OccupancyStore(),
			users:     mem.Users(),
			favorites: mem.Favorites(),
			release:   func() error { return nil },
		}, nil
	}

	db, err := postgresql.NewDB(cfg)
	if err != nil {
		return nil, err
	}
	log.Info("connected to database", zap.String("driver", cfg.DBDriver), zap.String("host", cfg.DBHost))
	if migrate {
		if err := postgresql.Migrate(ctx, db, log.Named("migrate")); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &stores{
		occupancy: postgresql.NewPgOccupancyStore(db, cfg.DBTxTimeout),
		users:     postgresql.NewPgUserRepository(db, cfg.DBTxTimeout),
		favorites: postgresql.NewPgFavoriteRepository(db, cfg.DBTxTimeout),
		release:   db.Close,
	}, nil
}

func openSessions(ctx context.Context, cfg *config.Config, log *zap.Logger) (session.Store, func(), error) {
	if cfg.RedisAddr == "" {
		log.Warn("REDIS_ADDR is not set, sessions are kept in memory")
		return session.NewMemoryStore(), func() {}, nil
	}
	client, err := session.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, nil, err
	}
	log.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	return session.NewRedisStore(client, cfg.SessionPrefix), func() { _ = client.Close() }, nil
}

func cmdServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx := cmd.Context()

	st, err := openStores(ctx, cfg, log, serveCfg.Dev, serveCfg.Migrate)
	if err != nil {
		return err
	}
	defer func() { _ = st.release() }()

	sessions, closeSessions, err := openSessions(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSessions()

	occupancy := service.NewOccupancyService(st.occupancy, log.Named("occupancy"))
	snapshots := ingest.NewHandler(occupancy, log.Named("ingest"))
	services := api.Services{
		Auth:      service.NewAuthService(st.users, sessions, cfg.JWTSecret, cfg.JWTExpiration, log.Named("auth")),
		Occupancy: occupancy,
		Favorites: service.NewFavoriteService(st.favorites, st.users),
		Ingest:    snapshots,
	}

	var wg sync.WaitGroup
	consumerCtx, cancelConsumers := context.WithCancel(context.Background())
	defer cancelConsumers()

	if cfg.SQSSnapshotQueueURL == "" {
		log.Info("SQS_SNAPSHOT_QUEUE_URL is not set, SQS consumer disabled")
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		consumer := ingest.NewSQSConsumer(sqs.NewFromConfig(awsCfg), cfg.SQSSnapshotQueueURL, snapshots, log.Named("sqs"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("SQS consumer started", zap.String("queue", cfg.SQSSnapshotQueueURL), zap.String("region", awsCfg.Region))
			consumer.Start(consumerCtx)
			log.Info("SQS consumer stopped")
		}()
	}

	if cfg.AMQPURL == "" {
		log.Info("AMQP_URL is not set, AMQP consumer disabled")
	} else {
		consumer := ingest.NewAMQPConsumer(cfg.AMQPURL, cfg.AMQPSnapshotQueue, snapshots, log.Named("amqp"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("AMQP consumer started", zap.String("queue", cfg.AMQPSnapshotQueue))
			consumer.Start(consumerCtx)
			log.Info("AMQP consumer stopped")
		}()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           api.SetupRouter(services, log.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			cancelConsumers()
			return fmt.Errorf("listen: %w", err)
		}
	}

	cancelConsumers()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()
	select {
	case <-done:
		log.Info("consumers stopped")
	case <-time.After(5 * time.Second):
		log.Warn("consumers did not stop in time")
	}

	log.Info("server stopped")
	return nil
}
