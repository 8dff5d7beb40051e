package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"parktronic/internal/repository/postgresql"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	Args:  cobra.NoArgs,
	RunE:  cmdMigrate,
}

func cmdMigrate(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := postgresql.NewDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgresql.Migrate(cmd.Context(), db, log.Named("migrate")); err != nil {
		return err
	}
	log.Info("schema is up to date", zap.String("database", cfg.DBName))
	return nil
}
