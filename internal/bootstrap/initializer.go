// Package bootstrap runs the idempotent initialization protocol described in
// §4.3: extensions, schema, namespace row, queues, and partitioning. It is
// invoked once per process connect and must converge even when run
// concurrently from multiple processes against the same database.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/corebus/eventbus/internal/ids"
	"github.com/corebus/eventbus/internal/storage"
)

// Postgres error codes tolerated as "already exists" by the phases below.
const (
	pqDuplicateObject = "42710" // duplicate_object (extension, etc.)
	pqDuplicateTable  = "42P07" // duplicate_table (queue, partition)
	pqUniqueViolation = "23505" // unique_violation (namespace row races)

	premadePartitions = 6
	retentionMonths   = 6
)

// extensions providing cron scheduling, statement statistics, partition
// automation, and a durable visibility-timeout queue (§4.3 phase 1).
var extensions = []string{
	"pg_cron",
	"pg_stat_statements",
	"pg_partman",
	"pgmq",
}

// Initializer runs the five-phase protocol against one namespace.
type Initializer struct {
	gw        *storage.Gateway
	namespace string
	logger    *slog.Logger
}

// New returns an Initializer scoped to namespace. namespace is sanitized
// before use in any queue name or DDL interpolation.
func New(gw *storage.Gateway, namespace string, logger *slog.Logger) *Initializer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Initializer{
		gw:        gw,
		namespace: ids.Sanitize(namespace),
		logger:    logger,
	}
}

// Run executes all five phases serially. Phases 1 through 3 block phases 4
// and 5, matching §4.3's ordering requirement.
func (init *Initializer) Run(ctx context.Context) error {
	phases := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"extensions", init.ensureExtensions},
		{"schema", init.ensureSchema},
		{"namespace row", init.ensureNamespaceRow},
		{"queues", init.ensureQueues},
		{"partitioning", init.ensurePartitioning},
	}

	for _, phase := range phases {
		if err := phase.fn(ctx); err != nil {
			return fmt.Errorf("bootstrap phase %q: %w", phase.name, err)
		}

		init.logger.Debug("bootstrap phase complete", "phase", phase.name, "namespace", init.namespace)
	}

	return nil
}

// ensureExtensions creates each required extension inside its own scoped
// connection, per §4.3 phase 1.
func (init *Initializer) ensureExtensions(ctx context.Context) error {
	for _, ext := range extensions {
		stmt := fmt.Sprintf("CREATE EXTENSION IF NOT EXISTS %s", pq.QuoteIdentifier(ext))

		err := init.gw.WithClient(ctx, func(conn *sql.Conn) error {
			_, execErr := conn.ExecContext(ctx, stmt)
			return execErr
		})
		if err != nil && !isTolerable(err, pqDuplicateObject) {
			return fmt.Errorf("create extension %s: %w", ext, err)
		}
	}

	return nil
}

// ensureSchema creates schema `core`, the four §3.1 tables, the two
// event-log lookup indexes, and the five §6.1 stored routines.
func (init *Initializer) ensureSchema(ctx context.Context) error {
	_, err := init.gw.Exec(ctx, schemaSQL)
	if err != nil {
		return fmt.Errorf("apply schema DDL: %w", err)
	}

	return nil
}

// ensureNamespaceRow inserts the namespace row with on-conflict-do-nothing,
// tolerating the race where two processes insert concurrently.
func (init *Initializer) ensureNamespaceRow(ctx context.Context) error {
	_, err := init.gw.Exec(ctx,
		`INSERT INTO core.namespaces (namespace) VALUES ($1) ON CONFLICT (namespace) DO NOTHING`,
		init.namespace,
	)
	if err != nil && !isTolerable(err, pqUniqueViolation) {
		return fmt.Errorf("insert namespace row: %w", err)
	}

	return nil
}

// ensureQueues creates the main queue and DLQ via pgmq's creator, tolerating
// "already exists".
func (init *Initializer) ensureQueues(ctx context.Context) error {
	queue := ids.QueueName(init.namespace)
	dlq := ids.DeadLetterQueueName(init.namespace)

	for _, name := range []string{queue, dlq} {
		_, err := init.gw.Exec(ctx, `SELECT pgmq.create($1)`, name)
		if err != nil && !isTolerable(err, pqDuplicateTable) {
			return fmt.Errorf("create queue %s: %w", name, err)
		}
	}

	return nil
}

// ensurePartitioning registers core.event_log as a monthly-partitioned
// parent via pg_partman when available, falling back to manually created
// FROM/TO partitions for the current month and the next six otherwise.
func (init *Initializer) ensurePartitioning(ctx context.Context) error {
	available, err := init.partmanAvailable(ctx)
	if err != nil {
		return fmt.Errorf("check partman availability: %w", err)
	}

	if available {
		return init.registerPartmanParent(ctx)
	}

	return init.createManualPartitions(ctx)
}

func (init *Initializer) partmanAvailable(ctx context.Context) (bool, error) {
	var count int

	rows, err := init.gw.Query(ctx, `SELECT count(*) FROM pg_extension WHERE extname = 'pg_partman'`)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	if rows.Next() {
		if scanErr := rows.Scan(&count); scanErr != nil {
			return false, scanErr
		}
	}

	return count > 0, rows.Err()
}

func (init *Initializer) registerPartmanParent(ctx context.Context) error {
	_, err := init.gw.Exec(ctx,
		`SELECT partman.create_parent(
			p_parent_table => 'core.event_log',
			p_control => 'emitted_at',
			p_type => 'native',
			p_interval => 'monthly',
			p_premake => $1
		)`,
		premadePartitions,
	)
	if err != nil && !isTolerable(err, pqDuplicateObject, pqDuplicateTable) {
		return fmt.Errorf("register partman parent: %w", err)
	}

	_, err = init.gw.Exec(ctx,
		`UPDATE partman.part_config
		 SET retention = $1, retention_keep_table = false
		 WHERE parent_table = 'core.event_log'`,
		fmt.Sprintf("%d months", retentionMonths),
	)
	if err != nil {
		return fmt.Errorf("configure partman retention: %w", err)
	}

	return nil
}

// createManualPartitions creates explicit FROM/TO range partitions for the
// current month and the next six, tolerating "already exists" on each.
func (init *Initializer) createManualPartitions(ctx context.Context) error {
	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i <= premadePartitions; i++ {
		monthStart := start.AddDate(0, i, 0)
		monthEnd := monthStart.AddDate(0, 1, 0)
		partitionName := fmt.Sprintf("core.event_log_%04d_%02d", monthStart.Year(), int(monthStart.Month()))

		stmt := fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s PARTITION OF core.event_log FOR VALUES FROM ($1) TO ($2)`,
			partitionName,
		)

		_, err := init.gw.Exec(ctx, stmt, monthStart, monthEnd)
		if err != nil && !isTolerable(err, pqDuplicateTable) {
			return fmt.Errorf("create partition %s: %w", partitionName, err)
		}
	}

	return nil
}

// isTolerable reports whether err is a *pq.Error carrying one of the given
// codes, meaning the phase should proceed as if it had succeeded.
func isTolerable(err error, codes ...string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}

	for _, code := range codes {
		if string(pqErr.Code) == code {
			return true
		}
	}

	return false
}
