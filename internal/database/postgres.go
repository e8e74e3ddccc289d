package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresDatabase represents PostgreSQL database implementation.
// It runs on either lib/pq ("postgres") or pgx ("pgx").
type PostgresDatabase struct {
	*Database
}

// NewPostgresDatabase creates new PostgreSQL database instance using lib/pq
func NewPostgresDatabase(dsn string, opts Options, logger *zap.Logger) (*PostgresDatabase, error) {
	return newPostgres("postgres", dsn, opts, logger)
}

// NewPgxDatabase creates new PostgreSQL database instance using pgx
func NewPgxDatabase(dsn string, opts Options, logger *zap.Logger) (*PostgresDatabase, error) {
	return newPostgres("pgx", dsn, opts, logger)
}

func newPostgres(driver, dsn string, opts Options, logger *zap.Logger) (*PostgresDatabase, error) {
	dsn = addPostgresParams(dsn)

	base, err := newDatabase(driver, DialectPostgres, dsn, opts, logger)
	if err != nil {
		return nil, err
	}

	return &PostgresDatabase{Database: base}, nil
}

// WithTransaction overrides default implementation for PostgreSQL
func (d *PostgresDatabase) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	return d.withTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, fn)
}

// Optimize optimizes the governance tables
func (d *PostgresDatabase) Optimize(ctx context.Context) error {
	if _, err := d.ExecContext(ctx, "VACUUM ANALYZE change_events"); err != nil {
		return fmt.Errorf("failed to vacuum change_events: %w", err)
	}
	return nil
}

// addPostgresParams adds sslmode and timezone runtime parameters
// to both URL and key/value DSNs
func addPostgresParams(dsn string) string {
	isURL := strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")

	add := func(key, value string) {
		if strings.Contains(dsn, key+"=") {
			return
		}
		switch {
		case !isURL:
			dsn = strings.TrimSpace(dsn + " " + key + "=" + value)
		case strings.Contains(dsn, "?"):
			dsn += "&" + key + "=" + value
		default:
			dsn += "?" + key + "=" + value
		}
	}

	add("sslmode", "disable")
	add("timezone", "UTC")
	return dsn
}
