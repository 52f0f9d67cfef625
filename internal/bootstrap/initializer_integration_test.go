package bootstrap_test

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	testcontainers "github.com/testcontainers/testcontainers-go"

	"github.com/corebus/eventbus/internal/bootstrap"
	"github.com/corebus/eventbus/internal/storage"
)

// bootstrapTestImage ships pg_cron, pg_partman, and pgmq pre-installed so the
// extensions phase has something real to create. Plain postgres:16-alpine
// lacks all three.
const bootstrapTestImage = "ghcr.io/tembo-io/pg17-pgmq:latest"

func TestInitializer_RunIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, bootstrapTestImage,
		postgres.WithDatabase("eventbus_test"),
		postgres.WithUsername("eventbus"),
		postgres.WithPassword("eventbus"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	defer func() { _ = container.Terminate(ctx) }()

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	conn, err := storage.NewConnection(storage.LoadConfig().WithDatabaseURL(connStr))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = conn.Close() }()

	gw := storage.NewGateway(conn)
	init := bootstrap.New(gw, "dev-one", nil)

	if err := init.Run(ctx); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	if err := init.Run(ctx); err != nil {
		t.Fatalf("second Run (idempotence check): %v", err)
	}

	rows, err := gw.Query(ctx, "SELECT count(*) FROM core.namespaces WHERE namespace = $1", "dev-one")
	if err != nil {
		t.Fatalf("query namespace row: %v", err)
	}
	defer rows.Close()

	var count int
	if !rows.Next() {
		t.Fatal("expected a namespaces row")
	}
	if scanErr := rows.Scan(&count); scanErr != nil {
		t.Fatalf("scan: %v", scanErr)
	}
	if count != 1 {
		t.Fatalf("expected exactly one namespace row after two Run calls, got %d", count)
	}
}
