package node_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	testcontainers "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/corebus/eventbus/internal/bootstrap"
	"github.com/corebus/eventbus/internal/emit"
	"github.com/corebus/eventbus/internal/node"
	"github.com/corebus/eventbus/internal/registry"
	"github.com/corebus/eventbus/internal/scheduler"
	"github.com/corebus/eventbus/internal/storage"
)

const nodeTestImage = "ghcr.io/tembo-io/pg17-pgmq:latest"

func setupGateway(t *testing.T, namespace string) *storage.Gateway {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, nodeTestImage,
		postgres.WithDatabase("eventbus_test"),
		postgres.WithUsername("eventbus"),
		postgres.WithPassword("eventbus"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := storage.NewConnection(storage.LoadConfig().WithDatabaseURL(connStr))
	require.NoError(t, err)

	t.Cleanup(func() { _ = conn.Close() })

	gw := storage.NewGateway(conn)
	require.NoError(t, bootstrap.New(gw, namespace, nil).Run(ctx))

	return gw
}

func TestNode_RegistrationUpsertAndHeartbeat(t *testing.T) {
	gw := setupGateway(t, "demo")
	ctx := context.Background()

	reg := registry.New()
	emitter := emit.New(gw, nil, "demo", "node-a", emit.Config{}, nil)
	sched := scheduler.New(gw, "demo")

	n, err := node.New(ctx, gw, reg, emitter, sched, nil, "demo", node.Registration{
		NodeID:      "node-a",
		DisplayName: "Node A",
	}, nil)
	require.NoError(t, err)

	// Re-registering with updated display name exercises the upsert path.
	n2, err := node.New(ctx, gw, reg, emitter, sched, nil, "demo", node.Registration{
		NodeID:      "node-a",
		DisplayName: "Node A Renamed",
	}, nil)
	require.NoError(t, err)

	rows, err := gw.Query(ctx, `SELECT display_name, last_heartbeat FROM core.nodes WHERE node_id = $1`, "node-a")
	require.NoError(t, err)

	defer rows.Close()

	require.True(t, rows.Next())

	var displayName string
	var lastHeartbeat time.Time
	require.NoError(t, rows.Scan(&displayName, &lastHeartbeat))
	require.Equal(t, "Node A Renamed", displayName)

	n.Start()
	n.Start() // idempotent, must not spawn a second ticker
	defer n.Close()

	n2.Close()
}

func TestNode_RejectsCrossNamespaceCollision(t *testing.T) {
	gw := setupGateway(t, "demo")
	ctx := context.Background()

	require.NoError(t, bootstrap.New(gw, "other", nil).Run(ctx))

	reg := registry.New()
	emitter := emit.New(gw, nil, "demo", "node-a", emit.Config{}, nil)
	sched := scheduler.New(gw, "demo")

	_, err := node.New(ctx, gw, reg, emitter, sched, nil, "demo", node.Registration{NodeID: "shared-id"}, nil)
	require.NoError(t, err)

	_, err = node.New(ctx, gw, reg, emitter, sched, nil, "other", node.Registration{NodeID: "shared-id"}, nil)
	require.ErrorIs(t, err, node.ErrNodeIDNamespaceMismatch)
}
