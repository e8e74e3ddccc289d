package database

import (
	"context"
	"database/sql"
)

// Interface defines the database interface
type Interface interface {
	// Basic operations

	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row

	// Transaction operations

	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error

	// Rebind converts "?" placeholders to the driver's bind style
	Rebind(query string) string

	// Maintenance operations

	Ping(ctx context.Context) error
	Close() error
	Stats() Stats
	Driver() string
	Unwrap() *sql.DB
}
