package admission_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	testcontainers "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/corebus/eventbus/internal/admission"
	"github.com/corebus/eventbus/internal/bootstrap"
	"github.com/corebus/eventbus/internal/emit"
	"github.com/corebus/eventbus/internal/node"
	"github.com/corebus/eventbus/internal/registry"
	"github.com/corebus/eventbus/internal/scheduler"
	"github.com/corebus/eventbus/internal/storage"
)

const serverTestImage = "ghcr.io/tembo-io/pg17-pgmq:latest"

func TestServer_EmitEndpointAcceptsEvent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, serverTestImage,
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
	require.NoError(t, bootstrap.New(gw, "demo", nil).Run(ctx))

	reg := registry.New()
	emitter := emit.New(gw, nil, "demo", "http-node", emit.Config{}, nil)
	sched := scheduler.New(gw, "demo")

	n, err := node.New(ctx, gw, reg, emitter, sched, nil, "demo",
		node.Registration{NodeID: "http-node", DisplayName: "HTTP node"}, slog.Default())
	require.NoError(t, err)

	cfg := admission.LoadServerConfig()
	server := admission.NewServer(&cfg, nil, nil, n)

	body, err := json.Marshal(admission.EmitRequest{
		EventType: "order.placed",
		Payload:   json.RawMessage(`{"orderId":"abc-123"}`),
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp admission.EmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Greater(t, resp.MessageID, int64(0))
}
