package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	testcontainers "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/corebus/eventbus/internal/bootstrap"
	"github.com/corebus/eventbus/internal/scheduler"
	"github.com/corebus/eventbus/internal/storage"
)

const schedulerTestImage = "ghcr.io/tembo-io/pg17-pgmq:latest"

func TestFacade_ScheduleAndUnscheduleTask(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, schedulerTestImage,
		postgres.WithDatabase("eventbus_test"),
		postgres.WithUsername("eventbus"),
		postgres.WithPassword("eventbus"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90*time.Second)),
	)
	require.NoError(t, err)

	defer func() { _ = container.Terminate(ctx) }()

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := storage.NewConnection(storage.LoadConfig().WithDatabaseURL(connStr))
	require.NoError(t, err)

	defer func() { _ = conn.Close() }()

	gw := storage.NewGateway(conn)
	require.NoError(t, bootstrap.New(gw, "demo", nil).Run(ctx))

	facade := scheduler.New(gw, "demo")

	task, err := facade.ScheduleTask(ctx, scheduler.TaskDefinition{
		Name:           "daily",
		CronExpression: "* * * * *",
		EventType:      "cleanup.daily",
		Payload:        map[string]int{"retentionDays": 30},
	})
	require.NoError(t, err)
	require.NotZero(t, task.JobID)
	require.True(t, task.Active)

	rows, err := gw.Query(ctx, `SELECT count(*) FROM core.scheduled_tasks WHERE task_id = $1 AND active`, task.TaskID)
	require.NoError(t, err)

	defer rows.Close()

	var count int
	require.True(t, rows.Next())
	require.NoError(t, rows.Scan(&count))
	require.Equal(t, 1, count)

	require.NoError(t, facade.UnscheduleTask(ctx, task.TaskID))

	rows2, err := gw.Query(ctx, `SELECT active FROM core.scheduled_tasks WHERE task_id = $1`, task.TaskID)
	require.NoError(t, err)

	defer rows2.Close()

	var active bool
	require.True(t, rows2.Next())
	require.NoError(t, rows2.Scan(&active))
	require.False(t, active)
}
