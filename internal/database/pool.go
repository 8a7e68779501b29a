package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/graphein-ai/mcp-temporal-memory-go/internal/metrics"
)

// pool hands out dedicated connections bounded by a counting semaphore.
// database/sql has its own pooling, but it cannot give us per-connection
// prepared-statement ownership or explicit acquire timeouts with retry
// accounting, so leases here are dedicated *sql.Conn handles and sql.DB is
// used only as the connection factory.
type pool struct {
	db     *sql.DB
	config *Config
	slots  chan struct{}

	mu     chan struct{} // 1-token mutex so Close can drain under contention
	idle   []*pooledConn
	closed bool
}

// pooledConn pairs a dedicated connection with its prepared-statement cache.
// Prepared plans are not portable across connections, so the cache lives and
// dies with the conn.
type pooledConn struct {
	conn     *sql.Conn
	stmts    *stmtCache
	lastUsed time.Time
}

func newPool(db *sql.DB, config *Config) *pool {
	p := &pool{
		db:     db,
		config: config,
		slots:  make(chan struct{}, config.PoolSize),
		mu:     make(chan struct{}, 1),
	}
	for i := 0; i < config.PoolSize; i++ {
		p.slots <- struct{}{}
	}
	return p
}

func (p *pool) lock()   { p.mu <- struct{}{} }
func (p *pool) unlock() { <-p.mu }

// acquire blocks until a slot frees or the configured timeout elapses. The
// caller owns the returned connection until release.
func (p *pool) acquire(ctx context.Context) (*pooledConn, error) {
	timer := time.NewTimer(p.config.ConnTimeout)
	defer timer.Stop()

	select {
	case <-p.slots:
	case <-timer.C:
		metrics.Default().IncPoolTimeout()
		return nil, &PoolTimeoutError{Waited: p.config.ConnTimeout.String()}
	case <-ctx.Done():
		return nil, fmt.Errorf("pool acquire cancelled: %w", ctx.Err())
	}

	pc, err := p.takeIdleOrDial(ctx)
	if err != nil {
		p.slots <- struct{}{}
		return nil, err
	}
	return pc, nil
}

func (p *pool) takeIdleOrDial(ctx context.Context) (*pooledConn, error) {
	p.lock()
	if p.closed {
		p.unlock()
		return nil, newStorageError("pool_acquire", errors.New("pool is closed"))
	}
	now := time.Now()
	for len(p.idle) > 0 {
		pc := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if now.Sub(pc.lastUsed) > p.config.IdleTimeout {
			// Stale; close outside any transaction and keep looking.
			pc.discard()
			continue
		}
		p.unlock()
		return pc, nil
	}
	p.unlock()

	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, newStorageError("pool_dial", err)
	}
	// Cascades rely on foreign keys, which SQLite enforces per connection.
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return nil, newStorageError("pool_dial", err)
	}
	return &pooledConn{
		conn:  conn,
		stmts: newStmtCache(p.config.StmtCacheSize),
	}, nil
}

// release returns the connection to the idle set, or discards it when it is
// broken. The semaphore slot is always returned, so a lease can never leak.
func (p *pool) release(pc *pooledConn, broken bool) {
	p.lock()
	if broken || p.closed {
		pc.discard()
	} else {
		pc.lastUsed = time.Now()
		p.idle = append(p.idle, pc)
	}
	p.unlock()
	p.slots <- struct{}{}
}

// withConn is the scoped acquisition every store operation goes through:
// the connection is released on every exit path, including panic and
// cancellation, and transient pool timeouts are retried with exponential
// backoff up to the configured attempt bound.
func (p *pool) withConn(ctx context.Context, fn func(context.Context, *pooledConn) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt, p.config.RetryBackoff); err != nil {
				return err
			}
		}
		pc, err := p.acquire(ctx)
		if err != nil {
			if IsRetryable(err) {
				lastErr = err
				continue
			}
			return err
		}
		return p.runScoped(ctx, pc, fn)
	}
	return lastErr
}

func (p *pool) runScoped(ctx context.Context, pc *pooledConn, fn func(context.Context, *pooledConn) error) (err error) {
	defer func() {
		broken := errors.Is(err, driver.ErrBadConn)
		if r := recover(); r != nil {
			p.release(pc, true)
			panic(r)
		}
		p.release(pc, broken)
	}()
	err = fn(ctx, pc)
	return err
}

// sleepBackoff waits attempt^2 * base, capped at one second, honoring
// cancellation.
func sleepBackoff(ctx context.Context, attempt int, base time.Duration) error {
	backoff := time.Duration(attempt*attempt) * base
	if backoff > time.Second {
		backoff = time.Second
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry cancelled: %w", ctx.Err())
	case <-time.After(backoff):
		return nil
	}
}

// stats reports leased and idle connection counts as one observation.
func (p *pool) stats() (inUse, idle int) {
	p.lock()
	idle = len(p.idle)
	inUse = p.config.PoolSize - len(p.slots)
	p.unlock()
	return inUse, idle
}

// close marks the pool closed and discards idle connections. In-flight
// leases drain through release.
func (p *pool) close() {
	p.lock()
	p.closed = true
	for _, pc := range p.idle {
		pc.discard()
	}
	p.idle = nil
	p.unlock()
}

func (pc *pooledConn) discard() {
	pc.stmts.closeAll()
	_ = pc.conn.Close()
}
