package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corebus/eventbus/internal/ids"
	"github.com/corebus/eventbus/internal/storage"
)

var queueCmd = &cobra.Command{
	Use:   "queue-depth",
	Short: "Report pending message counts for a namespace's queue and DLQ",
	Long: `Queue-depth reads pgmq.metrics for both the main queue and the
dead-letter queue of a namespace, giving an operator the same visibility
a dashboard would without standing one up.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		gw, namespace, closeGw, err := connect(cmd)
		if err != nil {
			return err
		}
		defer closeGw()

		ctx := context.Background()

		queues := []struct {
			label string
			name  string
		}{
			{"queue", ids.QueueName(namespace)},
			{"dlq", ids.DeadLetterQueueName(namespace)},
		}

		fmt.Printf("%-8s %-30s %10s %14s\n", "QUEUE", "NAME", "DEPTH", "OLDEST (sec)")

		for _, q := range queues {
			depth, oldestSec, err := queueMetrics(ctx, gw, q.name)
			if err != nil {
				return fmt.Errorf("read metrics for %s: %w", q.name, err)
			}

			fmt.Printf("%-8s %-30s %10d %14d\n", q.label, q.name, depth, oldestSec)
		}

		return nil
	},
}

// queueMetrics reads pgmq's own metrics view for one queue, returning the
// current message count and the age in seconds of its oldest pending
// message (0 when empty).
func queueMetrics(ctx context.Context, gw *storage.Gateway, queue string) (depth int64, oldestSec int64, err error) {
	rows, err := gw.Query(ctx, `SELECT queue_length, oldest_msg_age_sec FROM pgmq.metrics($1)`, queue)
	if err != nil {
		return 0, 0, err
	}
	defer rows.Close()

	var oldest sql.NullInt64

	if rows.Next() {
		if scanErr := rows.Scan(&depth, &oldest); scanErr != nil {
			return 0, 0, scanErr
		}
	}

	if err := rows.Err(); err != nil {
		return 0, 0, err
	}

	if oldest.Valid {
		oldestSec = oldest.Int64
	}

	return depth, oldestSec, nil
}
