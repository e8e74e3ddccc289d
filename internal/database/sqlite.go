package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SQLiteDatabase represents SQLite specific implementation
type SQLiteDatabase struct {
	*Database
	path string
}

// NewSQLiteDatabase creates new SQLite database instance
func NewSQLiteDatabase(dsn string, opts Options, logger *zap.Logger) (*SQLiteDatabase, error) {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}

	// Ensure the database directory exists
	if err := ensureDBDir(path); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Add SQLite parameters
	dsn = addSQLiteParams(dsn)

	base, err := newDatabase("sqlite3", DialectSQLite, dsn, opts, logger)
	if err != nil {
		return nil, err
	}

	d := &SQLiteDatabase{
		Database: base,
		path:     path,
	}

	if err := d.init(); err != nil {
		_ = base.Close()
		return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
	}

	return d, nil
}

// init initializes SQLite specific settings
func (d *SQLiteDatabase) init() error {
	pragmas := []struct {
		name  string
		value string
	}{
		{"journal_mode", "WAL"},
		{"synchronous", "NORMAL"},
		{"temp_store", "MEMORY"},
	}

	for _, pragma := range pragmas {
		query := fmt.Sprintf("PRAGMA %s = %s", pragma.name, pragma.value)
		if _, err := d.ExecContext(context.Background(), query); err != nil {
			return fmt.Errorf("failed to set %s: %w", pragma.name, err)
		}
	}

	return nil
}

// WithTransaction overrides default implementation with SQLite specific options
func (d *SQLiteDatabase) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	return d.withTx(ctx, &sql.TxOptions{Isolation: sql.LevelDefault}, fn)
}

// Backup creates a backup of the database
func (d *SQLiteDatabase) Backup(ctx context.Context, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	if _, err := d.ExecContext(ctx, "VACUUM INTO ?", dst); err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	return nil
}

// Optimize optimizes the database
func (d *SQLiteDatabase) Optimize(ctx context.Context) error {
	for _, opt := range []string{"PRAGMA optimize", "ANALYZE"} {
		if _, err := d.ExecContext(ctx, opt); err != nil {
			return fmt.Errorf("failed to run %s: %w", opt, err)
		}
	}
	return nil
}

// ensureDBDir ensures database directory exists
func ensureDBDir(path string) error {
	if path == "" || strings.HasPrefix(path, ":memory:") {
		return nil
	}
	return os.MkdirAll(filepath.Dir(path), 0755)
}

// addSQLiteParams adds SQLite specific connection parameters
func addSQLiteParams(dsn string) string {
	params := []string{
		"_busy_timeout=5000",
		"_foreign_keys=1",
		"_loc=UTC",
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}

	return dsn + sep + strings.Join(params, "&")
}
