package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
)

func TestGateway_WithTransaction_CommitsOnSuccess(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, conn := setupTestDatabase(ctx, t)

	defer func() {
		_ = conn.Close()
		_ = container.Terminate(ctx)
	}()

	gw := NewGateway(conn)

	_, err := gw.Exec(ctx, "CREATE TABLE gateway_probe_commit (id INT)")
	if err != nil {
		t.Fatalf("create probe table: %v", err)
	}

	err = gw.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, execErr := tx.ExecContext(ctx, "INSERT INTO gateway_probe_commit (id) VALUES (1)")
		return execErr
	})
	if err != nil {
		t.Fatalf("WithTransaction: %v", err)
	}

	rows, err := gw.Query(ctx, "SELECT id FROM gateway_probe_commit")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()

	if !rows.Next() {
		t.Fatal("expected one committed row, found none")
	}
}

func TestGateway_WithTransaction_RollsBackOnError(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, conn := setupTestDatabase(ctx, t)

	defer func() {
		_ = conn.Close()
		_ = container.Terminate(ctx)
	}()

	gw := NewGateway(conn)

	_, err := gw.Exec(ctx, "CREATE TABLE gateway_probe_rollback (id INT)")
	if err != nil {
		t.Fatalf("create probe table: %v", err)
	}

	sentinel := errors.New("handler failed")

	err = gw.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, execErr := tx.ExecContext(ctx, "INSERT INTO gateway_probe_rollback (id) VALUES (1)"); execErr != nil {
			return execErr
		}

		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	rows, err := gw.Query(ctx, "SELECT id FROM gateway_probe_rollback")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()

	if rows.Next() {
		t.Fatal("expected rollback to leave no rows, found one")
	}
}

func TestGateway_IsConnectionError(t *testing.T) {
	if IsConnectionError(nil) {
		t.Fatal("nil error must not be classified as a connection error")
	}

	if IsConnectionError(sql.ErrNoRows) {
		t.Fatal("sql.ErrNoRows must not be classified as a connection error")
	}

	if !IsConnectionError(sql.ErrConnDone) {
		t.Fatal("sql.ErrConnDone must be classified as a connection error")
	}
}
