package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of the pgx API shared by pools and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// WithTx returns a context carrying tx so repositories join the same unit.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFrom returns the transaction carried by ctx, if any.
func TxFrom(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok
}

// Conn returns the transaction carried by ctx, falling back to the pool.
func Conn(ctx context.Context, pool *pgxpool.Pool) Querier {
	if tx, ok := TxFrom(ctx); ok {
		return tx
	}
	return pool
}

// TxRunner runs fn as one atomic unit of work.
type TxRunner interface {
	Run(ctx context.Context, fn func(ctx context.Context) error) error
}

// PgTxRunner runs units as SERIALIZABLE PostgreSQL transactions. A nested Run
// joins the transaction already carried by ctx instead of opening a new one.
type PgTxRunner struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPgTxRunner builds a runner. lockTimeout bounds how long a unit waits on a
// row lock before failing; zero leaves the server default.
func NewPgTxRunner(pool *pgxpool.Pool, lockTimeout time.Duration) *PgTxRunner {
	return &PgTxRunner{pool: pool, lockTimeout: lockTimeout}
}

// Run commits when fn returns nil and rolls back otherwise.
func (r *PgTxRunner) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFrom(ctx); ok {
		return fn(ctx)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if r.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}

	if err := fn(WithTx(ctx, tx)); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// NoopTxRunner runs fn directly. Used with the in-memory backends, which
// guard each of their own writes.
type NoopTxRunner struct{}

// Run calls fn with ctx unchanged.
func (NoopTxRunner) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
