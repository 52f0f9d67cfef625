// Package emit implements the emit path (§4.7): envelope construction,
// dispatch via either the standalone queue-only mode or the enhanced
// remote-router mode, and the event-log append.
package emit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/corebus/eventbus/internal/envelope"
	"github.com/corebus/eventbus/internal/ids"
	"github.com/corebus/eventbus/internal/storage"
)

// RouterClient is the subset of router.Client the emit path calls. Defined
// here (rather than importing router directly into the exported surface) so
// callers can substitute a fake in tests.
type RouterClient interface {
	HealthCheck(ctx context.Context) bool
	Route(ctx context.Context, evt envelope.Event) ([]string, error)
}

// Options configures one Emit call.
type Options struct {
	Broadcast bool
}

// Result is returned by Emit. Standalone mode populates MessageID and
// leaves RoutedQueues at 0; enhanced mode populates RoutedQueues and leaves
// MessageID at 0, since the router's route response reports only the queue
// names it fanned out to, never a per-queue message id (§9 open question 3
// — the two modes return structurally different things and this avoids
// silently conflating them).
type Result struct {
	MessageID    int64
	RoutedQueues int
}

// Mode selects how Emit dispatches: directly to the namespace queue, or
// through a remote router for fan-out.
type Mode int

const (
	ModeStandalone Mode = iota
	ModeEnhanced
)

// Emitter owns the configuration needed to construct and dispatch envelopes
// for one node.
type Emitter struct {
	gw           *storage.Gateway
	router       RouterClient
	namespace    string
	nodeID       string
	queue        string
	mode         Mode
	atomicAppend bool
	logger       *slog.Logger
}

// Config controls how New selects standalone vs. enhanced mode (§4.7,
// §6.4).
type Config struct {
	EnableWorkers     bool
	AutoDetectWorkers bool
	AtomicAppend      bool
}

// New returns an Emitter for nodeID in namespace. router may be nil; it is
// only consulted when cfg selects enhanced mode.
func New(gw *storage.Gateway, router RouterClient, namespace, nodeID string, cfg Config, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}

	ns := ids.Sanitize(namespace)

	mode := ModeStandalone
	if cfg.EnableWorkers && router != nil {
		mode = ModeEnhanced
	} else if cfg.AutoDetectWorkers && router != nil && router.HealthCheck(context.Background()) {
		mode = ModeEnhanced
	}

	return &Emitter{
		gw:           gw,
		router:       router,
		namespace:    ns,
		nodeID:       nodeID,
		queue:        ids.QueueName(ns),
		mode:         mode,
		atomicAppend: cfg.AtomicAppend,
		logger:       logger,
	}
}

// WithAtomicAppend returns a copy of e with the enqueue-then-append sequence
// replaced by a single transaction covering both, for deployments that need
// strict audit completeness over raw throughput (§9 open question 5).
func (e *Emitter) WithAtomicAppend(enabled bool) *Emitter {
	cp := *e
	cp.atomicAppend = enabled

	return &cp
}

// Emit constructs an envelope for eventType/payload and dispatches it per
// §4.7.
func (e *Emitter) Emit(ctx context.Context, eventType string, payload any, opts Options) (Result, error) {
	encodedPayload, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("marshal payload: %w", err)
	}

	evt := envelope.Event{
		Namespace:      e.namespace,
		EventType:      eventType,
		Payload:        encodedPayload,
		EmittedAt:      time.Now().UTC().Format(envelope.TimeLayout),
		ProducerNodeID: e.nodeID,
		Broadcast:      opts.Broadcast,
	}

	switch e.mode {
	case ModeEnhanced:
		return e.emitEnhanced(ctx, evt)
	default:
		return e.emitStandalone(ctx, evt)
	}
}

func (e *Emitter) emitStandalone(ctx context.Context, evt envelope.Event) (Result, error) {
	if evt.Broadcast {
		e.logger.Warn("broadcast has no effect without a router; emitting normally",
			"namespace", e.namespace, "event_type", evt.EventType)
	}

	if e.atomicAppend {
		return e.emitStandaloneAtomic(ctx, evt)
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return Result{}, fmt.Errorf("marshal envelope: %w", err)
	}

	msgID, err := e.send(ctx, body)
	if err != nil {
		return Result{}, err
	}

	evt.MessageID = msgID

	if err := e.appendLog(ctx, evt); err != nil {
		e.logger.Error("event logged gap: enqueue succeeded but append_event_log failed",
			"namespace", e.namespace, "event_type", evt.EventType, "message_id", msgID, "error", err)
	}

	return Result{MessageID: msgID}, nil
}

// logMetadata builds the append_event_log metadata column: the message id
// assigned at enqueue time, so an audit row can always be traced back to its
// queue entry (§3.1 "metadata (holds messageId, redeliveryCount)").
func logMetadata(msgID int64) []byte {
	encoded, err := json.Marshal(map[string]int64{"messageId": msgID})
	if err != nil {
		return []byte(`{}`)
	}

	return encoded
}

// emitStandaloneAtomic performs the enqueue and the log append inside one
// transaction against the same connection, per the WithAtomicAppend option
// (§9 open question 5): strict audit completeness over raw throughput.
func (e *Emitter) emitStandaloneAtomic(ctx context.Context, evt envelope.Event) (Result, error) {
	var msgID int64

	err := e.gw.WithTransaction(ctx, func(tx *sql.Tx) error {
		body, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("marshal envelope: %w", err)
		}

		row := tx.QueryRowContext(ctx, `SELECT pgmq.send($1, $2::jsonb)`, e.queue, body)
		if err := row.Scan(&msgID); err != nil {
			return fmt.Errorf("pgmq send: %w", err)
		}

		evt.MessageID = msgID

		_, err = tx.ExecContext(ctx,
			`SELECT core.append_event_log($1, $2, $3, $4, $5, $6)`,
			evt.Namespace, evt.EventType, []byte(evt.Payload), evt.ProducerNodeID, nullableUUID(evt.ScheduledTaskID), logMetadata(msgID),
		)
		if err != nil {
			return fmt.Errorf("append_event_log: %w", err)
		}

		return nil
	})
	if err != nil {
		return Result{}, err
	}

	return Result{MessageID: msgID}, nil
}

// emitEnhanced routes evt through the remote router. The router reports
// only the names of the queues it fanned out to (RoutedQueues), never a
// per-queue message id, so Result.MessageID stays 0 in this mode — there is
// no single id to report back to the caller (§9 open question 3).
func (e *Emitter) emitEnhanced(ctx context.Context, evt envelope.Event) (Result, error) {
	queues, err := e.router.Route(ctx, evt)
	if err != nil {
		return Result{}, fmt.Errorf("router route: %w", err)
	}

	result := Result{RoutedQueues: len(queues)}

	if err := e.appendLog(ctx, evt); err != nil {
		e.logger.Error("event logged gap: routed but append_event_log failed",
			"namespace", e.namespace, "event_type", evt.EventType, "error", err)
	}

	return result, nil
}

func (e *Emitter) send(ctx context.Context, body []byte) (int64, error) {
	rows, err := e.gw.Query(ctx, `SELECT pgmq.send($1, $2::jsonb)`, e.queue, body)
	if err != nil {
		return 0, fmt.Errorf("pgmq send %s: %w", e.queue, err)
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

func (e *Emitter) appendLog(ctx context.Context, evt envelope.Event) error {
	_, err := e.gw.Exec(ctx,
		`SELECT core.append_event_log($1, $2, $3, $4, $5, $6)`,
		evt.Namespace, evt.EventType, []byte(evt.Payload), evt.ProducerNodeID, nullableUUID(evt.ScheduledTaskID), logMetadata(evt.MessageID),
	)

	return err
}

func nullableUUID(id string) any {
	if id == "" {
		return nil
	}

	return id
}
