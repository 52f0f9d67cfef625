// Package bus implements the single per-process polling consumer: batch
// read, per-envelope dispatch against the handler registry, transactional
// handler execution, and dead-letter routing (§4.5).
package bus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/corebus/eventbus/internal/envelope"
	"github.com/corebus/eventbus/internal/ids"
	"github.com/corebus/eventbus/internal/metrics"
	"github.com/corebus/eventbus/internal/registry"
	"github.com/corebus/eventbus/internal/storage"
)

// Consumer is the single long-running polling task per process (not per
// node). It is driven entirely by polling; there is no push-based wake-up.
type Consumer struct {
	gw        *storage.Gateway
	reg       *registry.Registry
	namespace string
	queue     string
	dlq       string
	cfg       Config
	logger    *slog.Logger

	runningMu sync.Mutex
	running   bool
	stop      chan struct{}
	done      chan struct{}
}

// New returns a Consumer scoped to namespace, reading from its main queue
// and writing failures to its DLQ.
func New(gw *storage.Gateway, reg *registry.Registry, namespace string, cfg Config, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}

	ns := ids.Sanitize(namespace)

	return &Consumer{
		gw:        gw,
		reg:       reg,
		namespace: ns,
		queue:     ids.QueueName(ns),
		dlq:       ids.DeadLetterQueueName(ns),
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// Start launches the polling loop in a background goroutine. Calling Start
// on an already-running consumer is a no-op.
func (c *Consumer) Start(ctx context.Context) {
	c.runningMu.Lock()
	defer c.runningMu.Unlock()

	if c.running {
		return
	}

	c.running = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})

	go c.loop(ctx)
}

// Close sets running = false, waits for the in-flight batch to drain, and
// releases the held goroutine. Cancellation is cooperative: handler code is
// not interrupted (§5 "Cancellation and timeouts").
func (c *Consumer) Close() {
	c.runningMu.Lock()

	if !c.running {
		c.runningMu.Unlock()
		return
	}

	c.running = false
	close(c.stop)
	done := c.done

	c.runningMu.Unlock()

	<-done
}

func (c *Consumer) loop(ctx context.Context) {
	defer close(c.done)

	for {
		select {
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		if c.reg.IsEmpty() {
			c.sleep(c.cfg.IdlePollInterval)
			continue
		}

		metrics.BatchesRead.WithLabelValues(c.namespace).Inc()

		batch, err := readBatch(ctx, c.gw, c.queue, c.cfg.VisibilityTimeout, c.cfg.BatchSize)
		if err != nil {
			metrics.ReadErrorsTotal.WithLabelValues(c.namespace).Inc()
			c.logger.Error("queue read failed", "namespace", c.namespace, "queue", c.queue, "error", err)
			c.sleep(defaultReadErrorBackoff)

			continue
		}

		if len(batch) == 0 {
			c.sleep(c.cfg.IdlePollInterval)
			continue
		}

		for _, row := range batch {
			c.dispatch(ctx, row)
		}
	}
}

func (c *Consumer) sleep(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-c.stop:
	}
}

// dispatch implements §4.5.2 for one queue row.
func (c *Consumer) dispatch(ctx context.Context, row queueRow) {
	var evt envelope.Event
	if err := json.Unmarshal(row.message, &evt); err != nil {
		c.logger.Error("malformed envelope, leaving for redelivery", "queue", c.queue, "msg_id", row.msgID, "error", err)
		return
	}

	redeliveryCount := row.readCount - 1
	if redeliveryCount < 0 {
		redeliveryCount = 0
	}

	evt.ApplyDefaults(c.namespace, row.msgID, redeliveryCount, row.enqueuedAt)

	var (
		targets []registry.Target
		hasAny  bool
	)

	if evt.Broadcast {
		targets = c.reg.AllEntries(evt.ProducerNodeID)
		hasAny = !c.reg.IsEmpty()
	} else {
		targets = c.reg.Lookup(evt.EventType, evt.ProducerNodeID)
		hasAny = c.reg.HasAnyHandler(evt.EventType)
	}

	if len(targets) == 0 {
		c.handleNoTargets(ctx, row, evt, hasAny)
		return
	}

	metrics.MessagesDispatched.WithLabelValues(c.namespace, evt.EventType).Inc()

	txErr := c.gw.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, target := range targets {
			if err := target.Handler(ctx, evt, tx); err != nil {
				metrics.HandlersInvoked.WithLabelValues(c.namespace, evt.EventType, "failure").Inc()
				return fmt.Errorf("handler on node %s: %w", target.NodeID, err)
			}

			metrics.HandlersInvoked.WithLabelValues(c.namespace, evt.EventType, "success").Inc()
		}

		return nil
	})

	if txErr != nil {
		c.logger.Error("handler chain failed, routing to DLQ",
			"namespace", c.namespace, "event_type", evt.EventType, "msg_id", row.msgID, "error", txErr)
		if c.moveToDeadLetter(ctx, evt, "Handler execution error", txErr.Error()) {
			c.ackAfterFailure(ctx, row.msgID)
		}

		return
	}

	if err := ackMessage(ctx, c.gw, c.queue, row.msgID); err != nil {
		c.logger.Error("ack failed after commit, message will be redelivered",
			"namespace", c.namespace, "msg_id", row.msgID, "error", err)
	}
}

// handleNoTargets implements the no-handler-policy branch of §4.5.2 step 3
// and the self-skip branch. Both leave the message for redelivery under the
// default policy; only a genuinely empty registry for this event type under
// the legacy NoHandlerImmediateDLQ policy ever produces an immediate DLQ here.
func (c *Consumer) handleNoTargets(ctx context.Context, row queueRow, evt envelope.Event, hasAnyHandler bool) {
	if hasAnyHandler {
		// Every candidate was filtered by producer self-skip; this is never
		// DLQ'd regardless of policy — it is not a "missing handler" case.
		return
	}

	if c.cfg.NoHandlerPolicy == NoHandlerRedeliver {
		return
	}

	if c.moveToDeadLetter(ctx, evt, "No matching handler", "") {
		c.ackAfterFailure(ctx, row.msgID)
	}
}

func (c *Consumer) ackAfterFailure(ctx context.Context, msgID int64) {
	if err := ackMessage(ctx, c.gw, c.queue, msgID); err != nil {
		c.logger.Error("ack of DLQ'd message failed, original message will be redelivered and re-DLQ'd",
			"namespace", c.namespace, "msg_id", msgID, "error", err)
	}
}

// moveToDeadLetter implements §4.5.3. Steps 2 and 3 (send, delete) are not
// in the same transaction: a failure here leaves the original message
// visible again for retry, per the documented at-least-once DLQ caveat. It
// reports whether the DLQ send succeeded; callers ack only when it did.
func (c *Consumer) moveToDeadLetter(ctx context.Context, evt envelope.Event, reason, errDetail string) bool {
	payload := envelope.DeadLetter{
		OriginalEvent: evt,
		Reason:        reason,
		FailedAt:      time.Now().UTC().Format(envelope.TimeLayout),
		Error:         errDetail,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("marshal dead letter payload", "error", err)
		return false
	}

	if _, err := sendMessage(ctx, c.gw, c.dlq, body); err != nil {
		c.logger.Error("dead letter send failed, original message remains visible and will be retried",
			"namespace", c.namespace, "dlq", c.dlq, "error", err)
		return false
	}

	metrics.DeadLetterMoves.WithLabelValues(c.namespace, evt.EventType).Inc()

	return true
}
