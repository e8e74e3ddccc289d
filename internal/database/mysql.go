package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// MySQLDatabase represents MySQL specific implementation
type MySQLDatabase struct {
	*Database
}

// NewMySQLDatabase creates new MySQL database instance
func NewMySQLDatabase(dsn string, opts Options, logger *zap.Logger) (*MySQLDatabase, error) {
	// Add parameters
	params := []string{
		"charset=utf8mb4",
		"interpolateParams=true",
		"loc=UTC",
		"time_zone=%27%2B00%3A00%27",
		"multiStatements=true",
	}

	if !strings.Contains(dsn, "parseTime=true") {
		params = append(params, "parseTime=true")
	}

	// Append params to DSN
	queryStart := "?"
	if strings.Contains(dsn, "?") {
		queryStart = "&"
	}
	dsn += queryStart + strings.Join(params, "&")

	base, err := newDatabase("mysql", DialectMySQL, dsn, opts, logger)
	if err != nil {
		return nil, err
	}

	return &MySQLDatabase{Database: base}, nil
}

// WithTransaction overrides default implementation for MySQL
func (d *MySQLDatabase) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	return d.withTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead}, fn)
}

// Optimize optimizes the governance tables
func (d *MySQLDatabase) Optimize(ctx context.Context) error {
	query := "OPTIMIZE TABLE change_events, approvals"
	if _, err := d.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to optimize tables: %w", err)
	}
	return nil
}
