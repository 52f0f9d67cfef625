package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/corebus/eventbus/internal/storage"
)

// queueRow mirrors one row returned by pgmq.read: the message id, the
// cumulative read count (our redeliveryCount source), the original enqueue
// time, and the raw JSON payload.
type queueRow struct {
	msgID      int64
	readCount  int
	enqueuedAt time.Time
	message    json.RawMessage
}

// readBatch issues pgmq's read primitive against queue, hiding returned rows
// for visibilityTimeout and returning up to batchSize of them.
func readBatch(ctx context.Context, gw *storage.Gateway, queue string, visibilityTimeout time.Duration, batchSize int) ([]queueRow, error) {
	rows, err := gw.Query(ctx,
		`SELECT msg_id, read_ct, enqueued_at, message FROM pgmq.read($1, $2, $3)`,
		queue, int(visibilityTimeout.Seconds()), batchSize,
	)
	if err != nil {
		return nil, fmt.Errorf("pgmq read %s: %w", queue, err)
	}
	defer rows.Close()

	var batch []queueRow

	for rows.Next() {
		var r queueRow

		if scanErr := rows.Scan(&r.msgID, &r.readCount, &r.enqueuedAt, &r.message); scanErr != nil {
			return nil, fmt.Errorf("scan pgmq row: %w", scanErr)
		}

		batch = append(batch, r)
	}

	return batch, rows.Err()
}

// ackMessage deletes msgID from queue, the queue extension's acknowledgement
// primitive.
func ackMessage(ctx context.Context, gw *storage.Gateway, queue string, msgID int64) error {
	_, err := gw.Exec(ctx, `SELECT pgmq.delete($1, $2)`, queue, msgID)
	if err != nil {
		return fmt.Errorf("pgmq delete %s/%d: %w", queue, msgID, err)
	}

	return nil
}

// sendMessage enqueues payload onto queue and returns the assigned message
// id, the queue extension's send primitive.
func sendMessage(ctx context.Context, gw *storage.Gateway, queue string, payload []byte) (int64, error) {
	rows, err := gw.Query(ctx, `SELECT pgmq.send($1, $2::jsonb)`, queue, payload)
	if err != nil {
		return 0, fmt.Errorf("pgmq send %s: %w", queue, err)
	}
	defer rows.Close()

	var msgID int64
	if rows.Next() {
		if scanErr := rows.Scan(&msgID); scanErr != nil {
			return 0, fmt.Errorf("scan pgmq send result: %w", scanErr)
		}
	}

	return msgID, rows.Err()
}
