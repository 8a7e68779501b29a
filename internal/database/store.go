package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/graphein-ai/mcp-temporal-memory-go/internal/metrics"
)

// Store is the graph store: the only component with data-model-aware logic
// and the sole client of the pool and both caches.
type Store struct {
	config  *Config
	db      *sql.DB
	pool    *pool
	results *resultCache
}

// NewStore opens the backing database, applies the schema, and builds the
// pool and caches.
func NewStore(config *Config) (*Store, error) {
	if config.PoolSize <= 0 {
		return nil, newValidationError("pool_size", "must be positive")
	}

	dbURL := config.URL
	if !strings.HasPrefix(dbURL, "file:") && config.AuthToken != "" {
		// Build URL safely and append/override the authToken parameter
		if u, perr := url.Parse(dbURL); perr == nil {
			q := u.Query()
			q.Set("authToken", config.AuthToken)
			u.RawQuery = q.Encode()
			dbURL = u.String()
		}
	}

	db, err := sql.Open("libsql", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connector: %w", err)
	}
	// The semaphore is the bound; sql.DB must never dial past it behind our
	// back.
	db.SetMaxOpenConns(config.PoolSize)

	s := &Store{
		config:  config,
		db:      db,
		pool:    newPool(db, config),
		results: newResultCache(config.ResultCacheTTL),
	}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return s, nil
}

// initialize creates tables and indexes if they don't exist
func (s *Store) initialize() error {
	done := metrics.TimeOp("db_initialize")
	success := false
	defer func() { done(success) }()

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for initialization: %w", err)
	}
	defer tx.Rollback()

	for _, statement := range schema {
		if _, err := tx.Exec(statement); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	success = true
	return nil
}

// withConn runs fn on a leased connection with retry-on-pool-timeout.
func (s *Store) withConn(ctx context.Context, fn func(context.Context, *pooledConn) error) error {
	return s.pool.withConn(ctx, fn)
}

// withTx runs fn inside a transaction on a leased connection. Rollback on
// error or cancellation, commit otherwise.
func (s *Store) withTx(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	return s.withConn(ctx, func(ctx context.Context, pc *pooledConn) error {
		tx, err := pc.conn.BeginTx(ctx, nil)
		if err != nil {
			return newStorageError("begin_tx", err)
		}
		defer tx.Rollback()

		if err := fn(ctx, tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return newStorageError("commit", err)
		}
		return nil
	})
}

// Config returns the store's effective configuration.
func (s *Store) Config() *Config { return s.config }

// PoolStats reports leased and idle connection counts for metrics tickers.
func (s *Store) PoolStats() (inUse, idle int) {
	return s.pool.stats()
}

// InvalidateAll drops the whole result cache. Exposed for maintenance and
// tests.
func (s *Store) InvalidateAll() { s.results.clear() }

// Maintain runs periodic housekeeping: sweep every category with a retention
// policy and let the engine re-optimize its statistics.
func (s *Store) Maintain(ctx context.Context) error {
	cats, err := s.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("maintenance failed listing categories: %w", err)
	}
	for _, cat := range cats {
		if cat.RetentionPeriod <= 0 {
			continue
		}
		if _, err := s.SweepExpired(ctx, cat.ID); err != nil {
			return fmt.Errorf("maintenance sweep of category %d failed: %w", cat.ID, err)
		}
	}
	return s.withConn(ctx, func(ctx context.Context, pc *pooledConn) error {
		if _, err := pc.conn.ExecContext(ctx, "PRAGMA optimize"); err != nil {
			return newStorageError("maintain", err)
		}
		return nil
	})
}

// Close drains the pool and closes the connection factory.
func (s *Store) Close() error {
	s.pool.close()
	s.results.clear()
	return s.db.Close()
}

// toNanos converts a time to its stored integer form (unix nanoseconds UTC).
func toNanos(t time.Time) int64 { return t.UTC().UnixNano() }

// fromNanos converts a stored integer timestamp back to a UTC time.
func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

// nullableNanos handles optional timestamps such as valid_until.
func nullableNanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return toNanos(*t)
}
