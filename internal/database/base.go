package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Database represents the base database implementation
type Database struct {
	db          *sql.DB
	driver      string
	dialect     string
	logger      *zap.Logger
	opts        Options
	metrics     *metrics
	checkCtx    context.Context
	checkCancel context.CancelFunc
	closeOnce   sync.Once
}

// metrics represents database metrics
type metrics struct {
	queryCount    int64
	queryErrors   int64
	slowQueries   int64
	queryTime     int64
	mu            sync.Mutex
	lastError     error
	lastErrorTime time.Time
}

// newDatabase creates new base database instance.
// driver is the database/sql driver name, dialect the SQL flavour.
func newDatabase(driver, dialect, dsn string, opts Options, logger *zap.Logger) (*Database, error) {
	// Set default options
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 25
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 5
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = 3600 * time.Second
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 30 * time.Second
	}
	if opts.SlowQueryThreshold <= 0 {
		opts.SlowQueryThreshold = time.Second
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)

	checkCtx, checkCancel := context.WithCancel(context.Background())

	d := &Database{
		db:          db,
		driver:      driver,
		dialect:     dialect,
		logger:      logger,
		opts:        opts,
		metrics:     &metrics{},
		checkCtx:    checkCtx,
		checkCancel: checkCancel,
	}

	if opts.HealthCheckInterval > 0 {
		go d.healthCheck(opts.HealthCheckInterval)
	}

	return d, nil
}

// ExecContext executes query and returns result
func (d *Database) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	// Add timeout if not set
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.QueryTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := d.db.ExecContext(ctx, query, args...)
	d.recordMetrics(start, query, err)

	return result, err
}

// QueryContext executes query and returns rows.
// The caller's context bounds the query; rows outlive this call.
func (d *Database) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := d.db.QueryContext(ctx, query, args...)
	d.recordMetrics(start, query, err)

	return rows, err
}

// QueryRowContext executes query and returns row
func (d *Database) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := d.db.QueryRowContext(ctx, query, args...)
	d.recordMetrics(start, query, row.Err())
	return row
}

// BeginTx starts a transaction
func (d *Database) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return d.db.BeginTx(ctx, opts)
}

// WithTransaction executes a transaction
func (d *Database) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	return d.withTx(ctx, nil, fn)
}

func (d *Database) withTx(ctx context.Context, opts *sql.TxOptions, fn func(*sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				d.logger.Error("Transaction rollback failed during panic",
					zap.Error(rbErr))
			}
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	return tx.Commit()
}

// Rebind converts placeholders for the driver
func (d *Database) Rebind(query string) string {
	if d.dialect == DialectPostgres {
		return ConvertPlaceholders(query)
	}
	return query
}

// Ping pings the database
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the database connection and cleans up resources
func (d *Database) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.checkCancel()
		if cerr := d.db.Close(); cerr != nil {
			err = fmt.Errorf("failed to close database: %w", cerr)
		}
	})
	return err
}

// Stats returns database statistics
func (d *Database) Stats() Stats {
	dbStats := d.db.Stats()
	count := atomic.LoadInt64(&d.metrics.queryCount)

	var avg time.Duration
	if count > 0 {
		avg = time.Duration(atomic.LoadInt64(&d.metrics.queryTime) / count)
	}

	d.metrics.mu.Lock()
	lastErr := ""
	if d.metrics.lastError != nil {
		lastErr = d.metrics.lastError.Error()
	}
	lastErrTime := d.metrics.lastErrorTime
	d.metrics.mu.Unlock()

	return Stats{
		OpenConnections: dbStats.OpenConnections,
		InUse:           dbStats.InUse,
		Idle:            dbStats.Idle,
		WaitCount:       dbStats.WaitCount,
		WaitDuration:    dbStats.WaitDuration,
		QueryCount:      count,
		QueryErrors:     atomic.LoadInt64(&d.metrics.queryErrors),
		SlowQueries:     atomic.LoadInt64(&d.metrics.slowQueries),
		AvgQueryTime:    avg,
		LastError:       lastErr,
		LastErrorTime:   lastErrTime,
	}
}

// Driver returns the SQL dialect: sqlite, mysql or postgres
func (d *Database) Driver() string {
	return d.dialect
}

// Unwrap returns the underlying database connection
func (d *Database) Unwrap() *sql.DB {
	return d.db
}

// recordMetrics safely records operation metrics
func (d *Database) recordMetrics(start time.Time, query string, err error) {
	duration := time.Since(start)

	atomic.AddInt64(&d.metrics.queryCount, 1)
	atomic.AddInt64(&d.metrics.queryTime, int64(duration))

	if err != nil && err != sql.ErrNoRows {
		atomic.AddInt64(&d.metrics.queryErrors, 1)
		d.metrics.mu.Lock()
		d.metrics.lastError = err
		d.metrics.lastErrorTime = time.Now()
		d.metrics.mu.Unlock()
	}

	if duration > d.opts.SlowQueryThreshold {
		atomic.AddInt64(&d.metrics.slowQueries, 1)
		d.logger.Warn("Slow query detected",
			zap.String("query", query),
			zap.Duration("duration", duration))
	}
}

// healthCheck performs periodic health checks
func (d *Database) healthCheck(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.checkCtx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(d.checkCtx, 5*time.Second)
			if err := d.db.PingContext(ctx); err != nil && d.checkCtx.Err() == nil {
				d.logger.Error("Database health check failed",
					zap.Error(err),
					zap.String("driver", d.driver))
			}
			cancel()
		}
	}
}
