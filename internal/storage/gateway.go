package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Gateway is the single point of contact between the node runtime and the
// datastore. Every component that issues SQL goes through it instead of
// holding its own *sql.DB, so connection acquisition, transaction
// boundaries, and connection-loss classification live in one place.
type Gateway struct {
	conn *Connection
}

// NewGateway wraps an already-opened Connection.
func NewGateway(conn *Connection) *Gateway {
	return &Gateway{conn: conn}
}

// Query issues a single parameterised statement against the pool and returns
// the resulting rows. Callers must close the returned *sql.Rows.
func (g *Gateway) Query(ctx context.Context, stmt string, args ...any) (*sql.Rows, error) {
	rows, err := g.conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("gateway query: %w", err)
	}

	return rows, nil
}

// Exec issues a single parameterised statement that returns no rows.
func (g *Gateway) Exec(ctx context.Context, stmt string, args ...any) (sql.Result, error) {
	result, err := g.conn.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("gateway exec: %w", err)
	}

	return result, nil
}

// WithClient acquires one pooled connection, invokes fn with it, and
// releases the connection on every exit path including a panic inside fn.
func (g *Gateway) WithClient(ctx context.Context, fn func(*sql.Conn) error) error {
	conn, err := g.conn.Conn(ctx)
	if err != nil {
		return fmt.Errorf("gateway acquire connection: %w", err)
	}

	defer func() {
		_ = conn.Close()
	}()

	return fn(conn)
}

// WithTransaction acquires one connection, begins a transaction, invokes fn
// with it, and commits on success or rolls back on any error or panic. The
// original failure is propagated unchanged; it is never swallowed by a
// rollback error.
func (g *Gateway) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, beginErr := g.conn.BeginTx(ctx, nil)
	if beginErr != nil {
		return fmt.Errorf("gateway begin transaction: %w", beginErr)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		_ = tx.Rollback() // Safe to call even if the transaction already failed.

		return err
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("gateway commit transaction: %w", commitErr)
	}

	return nil
}

// Close releases the underlying connection pool.
func (g *Gateway) Close() error {
	return g.conn.Close()
}

// IsConnectionError reports whether err indicates the database connection
// itself was lost, as opposed to a statement-level failure. Uses PostgreSQL
// error codes (Class 08 = Connection Exception) and standard database/sql
// sentinels.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return strings.HasPrefix(string(pqErr.Code), "08")
	}

	return errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn)
}
