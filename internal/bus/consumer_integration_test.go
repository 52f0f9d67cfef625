package bus_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	testcontainers "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/corebus/eventbus/internal/bootstrap"
	"github.com/corebus/eventbus/internal/bus"
	"github.com/corebus/eventbus/internal/envelope"
	"github.com/corebus/eventbus/internal/ids"
	"github.com/corebus/eventbus/internal/registry"
	"github.com/corebus/eventbus/internal/storage"
)

const busTestImage = "ghcr.io/tembo-io/pg17-pgmq:latest"

func setupNamespace(t *testing.T, namespace string) *storage.Gateway {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, busTestImage,
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

func enqueue(t *testing.T, ctx context.Context, gw *storage.Gateway, queue string, evt envelope.Event) {
	t.Helper()

	body, err := json.Marshal(evt)
	require.NoError(t, err)

	_, err = gw.Exec(ctx, `SELECT pgmq.send($1, $2::jsonb)`, queue, body)
	require.NoError(t, err)
}

// TestConsumer_SingleSubscriberSingleEmit grounds scenario S1: one handler
// observes the envelope exactly once and the message is acknowledged.
func TestConsumer_SingleSubscriberSingleEmit(t *testing.T) {
	gw := setupNamespace(t, "demo")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := ids.QueueName("demo")
	reg := registry.New()

	received := make(chan envelope.Event, 1)
	reg.Register("user.created", "node-b", func(_ context.Context, evt envelope.Event, _ *sql.Tx) error {
		received <- evt
		return nil
	})

	enqueue(t, ctx, gw, queue, envelope.Event{
		EventType:      "user.created",
		Payload:        json.RawMessage(`{"userId":"123"}`),
		ProducerNodeID: "A",
	})

	cfg := bus.DefaultConfig()
	cfg.IdlePollInterval = 50 * time.Millisecond

	consumer := bus.New(gw, reg, "demo", cfg, nil)
	consumer.Start(ctx)
	defer consumer.Close()

	select {
	case evt := <-received:
		require.Equal(t, "user.created", evt.EventType)
		require.Equal(t, "A", evt.ProducerNodeID)
		require.Equal(t, 0, evt.RedeliveryCount)
	case <-time.After(10 * time.Second):
		t.Fatal("handler was not invoked within timeout")
	}
}

// TestConsumer_HandlerFailureRoutesToDeadLetter grounds scenario S2: a
// failing handler rolls back its transaction and the envelope lands in the
// DLQ exactly once.
func TestConsumer_HandlerFailureRoutesToDeadLetter(t *testing.T) {
	gw := setupNamespace(t, "demo")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := ids.QueueName("demo")
	dlq := ids.DeadLetterQueueName("demo")
	reg := registry.New()

	invocations := make(chan struct{}, 4)
	reg.Register("user.created", "node-b", func(_ context.Context, _ envelope.Event, _ *sql.Tx) error {
		invocations <- struct{}{}
		return errAlwaysFails
	})

	enqueue(t, ctx, gw, queue, envelope.Event{
		EventType:      "user.created",
		Payload:        json.RawMessage(`{}`),
		ProducerNodeID: "A",
	})

	cfg := bus.DefaultConfig()
	cfg.IdlePollInterval = 50 * time.Millisecond

	consumer := bus.New(gw, reg, "demo", cfg, nil)
	consumer.Start(ctx)
	defer consumer.Close()

	require.Eventually(t, func() bool {
		rows, err := gw.Query(ctx, `SELECT count(*) FROM pgmq.read($1, 0, 10)`, dlq)
		if err != nil {
			return false
		}
		defer rows.Close()

		var count int
		if rows.Next() {
			_ = rows.Scan(&count)
		}

		return count == 1
	}, 10*time.Second, 200*time.Millisecond, "expected exactly one message in the DLQ")

	select {
	case <-invocations:
	default:
		t.Fatal("handler was never invoked")
	}

	select {
	case <-invocations:
		t.Fatal("handler was invoked more than once for a single failure")
	default:
	}
}

var errAlwaysFails = &handlerError{"boom"}

type handlerError struct{ msg string }

func (e *handlerError) Error() string { return e.msg }
