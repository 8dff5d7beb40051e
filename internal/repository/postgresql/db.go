package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"parktronic/internal/config"
)

// NewDB opens the connection pool. Both the pgx ("pgx") and lib/pq
// ("postgres") drivers are registered; cfg.DBDriver picks one.
func NewDB(cfg *config.Config) (*sql.DB, error) {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSslMode)
	if cfg.DBStatementTimeout > 0 {
		// unknown keys are sent as run-time parameters by both drivers
		psqlInfo += fmt.Sprintf(" statement_timeout=%d", cfg.DBStatementTimeout.Milliseconds())
	}

	db, err := sql.Open(cfg.DBDriver, psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxOpenConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}
