// Package pool manages per-data-source *sql.DB handles and the
// context-scoped current-transaction handle spec.md §4.6 describes.
// context.Context value-propagation stands in for the teacher's
// thread-local: the same worker/goroutine that enters Transaction sees the
// handle throughout the block it passes down, the idiomatic Go analogue of
// a thread-scoped current-transaction pointer.
package pool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/FxRayHughes/ptcmapper/internal/dialect"
)

// ErrNoTransaction is returned by operations that require an active
// transaction on the calling worker (spec.md §5's cursor requirement).
var ErrNoTransaction = errors.New("pool: no active transaction on this context")

// Pool hands out *sql.DB connections keyed by data-source name, opening and
// pinging lazily on first use and reusing the handle afterward.
type Pool struct {
	mu   sync.Mutex
	dbs  map[string]*sql.DB
}

// New constructs an empty pool.
func New() *Pool {
	return &Pool{dbs: make(map[string]*sql.DB)}
}

// Open returns the *sql.DB for (d, dsn), opening and pinging it on first
// request for that key.
func (p *Pool) Open(ctx context.Context, d dialect.Dialect, dsn string) (*sql.DB, error) {
	key := string(d.Name()) + "|" + dsn

	p.mu.Lock()
	if db, ok := p.dbs[key]; ok {
		p.mu.Unlock()
		return db, nil
	}
	p.mu.Unlock()

	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("pool: open %s: %w", d.Name(), err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pool: ping %s: %w", d.Name(), err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.dbs[key]; ok {
		_ = db.Close()
		return existing, nil
	}
	p.dbs[key] = db
	return db, nil
}

// Close closes every *sql.DB this pool has opened.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, db := range p.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type txHandleKey struct{}

// Executor is the subset of *sql.DB / *sql.Tx that Query/Exec callers need;
// it lets mapper code be agnostic to whether it is inside a transaction.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CurrentTx returns the transaction published on ctx by Transaction, if any.
func CurrentTx(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txHandleKey{}).(*sql.Tx)
	return tx, ok
}

// Conn resolves the Executor a caller should issue SQL against: the
// current-transaction handle if one is published on ctx, otherwise db
// itself (spec.md §4.6: "any non-transactional CRUD call executed while a
// current-transaction handle exists transparently joins that transaction").
func Conn(ctx context.Context, db *sql.DB) Executor {
	if tx, ok := CurrentTx(ctx); ok {
		return tx
	}
	return db
}

// Transaction implements the nested-transaction semantics of spec.md §4.6.
// Entering at the outermost level begins a *sql.Tx, publishes it on the
// context passed to fn, commits on a nil return or rolls back on error.
// Entering while a handle is already published on ctx reuses that
// transaction without an inner commit/rollback; only the outermost scope
// commits or rolls back, and an inner error propagates to trigger that
// outer rollback.
func Transaction(ctx context.Context, db *sql.DB, fn func(ctx context.Context) error) error {
	if _, ok := CurrentTx(ctx); ok {
		return fn(ctx)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pool: begin transaction: %w", err)
	}

	innerCtx := context.WithValue(ctx, txHandleKey{}, tx)

	if err := fn(innerCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("pool: rollback after %w: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pool: commit transaction: %w", err)
	}
	return nil
}
