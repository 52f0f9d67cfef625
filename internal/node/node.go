// Package node implements the per-process node handle (§4.6): registration
// upsert, heartbeat ticker, and the onEvent/offEvent/emit/scheduleTask
// surface nodes expose to application code.
package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corebus/eventbus/internal/emit"
	"github.com/corebus/eventbus/internal/ids"
	"github.com/corebus/eventbus/internal/metrics"
	"github.com/corebus/eventbus/internal/registry"
	"github.com/corebus/eventbus/internal/scheduler"
	"github.com/corebus/eventbus/internal/storage"
)

const heartbeatInterval = 30 * time.Second

// ErrNodeIDNamespaceMismatch is returned when a node id is re-registered
// under a different namespace than its first registration. The spec treats
// node ids as globally unique (§9 open question 2): the upsert's conflict
// target is node_id alone, while the schema's unique constraint is
// (namespace, node_id), so a cross-namespace collision must be rejected
// explicitly rather than silently reassigning the row.
var ErrNodeIDNamespaceMismatch = errors.New("node id already registered under a different namespace")

// Subscriber is the subset of router.Client a node needs for best-effort
// remote subscription notification (§4.6).
type Subscriber interface {
	Subscribe(ctx context.Context, workerID string, eventTypes []string) error
	Unsubscribe(ctx context.Context, workerID string, eventTypes []string) error
}

// Registration describes one node's identity and display metadata.
type Registration struct {
	NodeID      string
	DisplayName string
	Description string
	Metadata    map[string]any
}

// Node is a per-process handle representing one named participant. Multiple
// nodes may share one process, one registry, and one consumer.
type Node struct {
	gw         *storage.Gateway
	reg        *registry.Registry
	emitter    *emit.Emitter
	scheduler  *scheduler.Facade
	subscriber Subscriber
	logger     *slog.Logger

	namespace string
	nodeID    string

	mu            sync.Mutex
	running       bool
	closed        bool
	heartbeatStop chan struct{}
	heartbeatDone chan struct{}
}

// New registers reg's node row (upsert) and returns a Node handle in the
// Stopped state (§4.9). subscriber may be nil when running in standalone
// mode.
func New(
	ctx context.Context,
	gw *storage.Gateway,
	reg *registry.Registry,
	emitter *emit.Emitter,
	sched *scheduler.Facade,
	subscriber Subscriber,
	namespace string,
	registration Registration,
	logger *slog.Logger,
) (*Node, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ns := ids.Sanitize(namespace)

	if err := checkNamespaceOwnership(ctx, gw, ns, registration.NodeID); err != nil {
		return nil, err
	}

	if err := upsertNodeRow(ctx, gw, ns, registration); err != nil {
		return nil, fmt.Errorf("register node %s: %w", registration.NodeID, err)
	}

	return &Node{
		gw:         gw,
		reg:        reg,
		emitter:    emitter,
		scheduler:  sched,
		subscriber: subscriber,
		logger:     logger,
		namespace:  ns,
		nodeID:     registration.NodeID,
	}, nil
}

func checkNamespaceOwnership(ctx context.Context, gw *storage.Gateway, namespace, nodeID string) error {
	rows, err := gw.Query(ctx, `SELECT namespace FROM core.nodes WHERE node_id = $1`, nodeID)
	if err != nil {
		return fmt.Errorf("check node namespace: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		var existingNamespace string
		if scanErr := rows.Scan(&existingNamespace); scanErr != nil {
			return fmt.Errorf("scan existing node namespace: %w", scanErr)
		}

		if existingNamespace != namespace {
			return ErrNodeIDNamespaceMismatch
		}
	}

	return rows.Err()
}

func upsertNodeRow(ctx context.Context, gw *storage.Gateway, namespace string, registration Registration) error {
	metadata := registration.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	_, err := gw.Exec(ctx,
		`INSERT INTO core.nodes (node_id, namespace, display_name, description, metadata)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (node_id) DO UPDATE SET
			display_name = excluded.display_name,
			description = excluded.description,
			metadata = excluded.metadata,
			last_heartbeat = now()`,
		registration.NodeID, namespace, registration.DisplayName, registration.Description, toJSON(metadata),
	)

	return err
}

// Start is idempotent: it starts the heartbeat ticker if not already
// running. The ticker must not prevent process exit (§4.6).
func (n *Node) Start() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running || n.closed {
		return
	}

	n.running = true
	n.heartbeatStop = make(chan struct{})
	n.heartbeatDone = make(chan struct{})

	go n.runHeartbeat()
}

// Stop is idempotent: it cancels the heartbeat ticker without affecting the
// process-wide consumer.
func (n *Node) Stop() {
	n.mu.Lock()

	if !n.running {
		n.mu.Unlock()
		return
	}

	n.running = false
	close(n.heartbeatStop)
	done := n.heartbeatDone

	n.mu.Unlock()

	<-done
}

// Close is the terminal transition: it stops the node and marks it unusable
// for further Start calls.
func (n *Node) Close() {
	n.Stop()

	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
}

func (n *Node) runHeartbeat() {
	defer close(n.heartbeatDone)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.heartbeatStop:
			return
		case <-ticker.C:
			n.touchHeartbeat()
		}
	}
}

func (n *Node) touchHeartbeat() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := n.gw.Exec(ctx, `SELECT core.touch_node_heartbeat($1)`, n.nodeID)
	if err != nil {
		metrics.HeartbeatsTotal.WithLabelValues(n.namespace, n.nodeID, "failure").Inc()
		n.logger.Error("heartbeat failed", "namespace", n.namespace, "node_id", n.nodeID, "error", err)

		return
	}

	metrics.HeartbeatsTotal.WithLabelValues(n.namespace, n.nodeID, "success").Inc()
}

// OnEvent registers handler under eventType for this node, and best-effort
// notifies the remote router when one is configured.
func (n *Node) OnEvent(ctx context.Context, eventType string, handler registry.HandlerFunc) {
	n.reg.Register(eventType, n.nodeID, handler)

	if n.subscriber != nil {
		if err := n.subscriber.Subscribe(ctx, n.nodeID, []string{eventType}); err != nil {
			n.logger.Warn("router subscribe failed, local registry is authoritative",
				"namespace", n.namespace, "node_id", n.nodeID, "event_type", eventType, "error", err)
		}
	}
}

// OffEvent is the inverse of OnEvent.
func (n *Node) OffEvent(ctx context.Context, eventType string, handler registry.HandlerFunc) {
	n.reg.Unregister(eventType, n.nodeID, handler)

	if n.subscriber != nil {
		if err := n.subscriber.Unsubscribe(ctx, n.nodeID, []string{eventType}); err != nil {
			n.logger.Warn("router unsubscribe failed", "namespace", n.namespace, "node_id", n.nodeID,
				"event_type", eventType, "error", err)
		}
	}
}

// Emit dispatches eventType/payload through the emit path (§4.7).
func (n *Node) Emit(ctx context.Context, eventType string, payload any, opts emit.Options) (emit.Result, error) {
	return n.emitter.Emit(ctx, eventType, payload, opts)
}

// ScheduleTask creates a cron-triggered emission (§4.8).
func (n *Node) ScheduleTask(ctx context.Context, def scheduler.TaskDefinition) (scheduler.Task, error) {
	return n.scheduler.ScheduleTask(ctx, def)
}

// UnscheduleTask deactivates a previously scheduled task.
func (n *Node) UnscheduleTask(ctx context.Context, taskID uuid.UUID) error {
	return n.scheduler.UnscheduleTask(ctx, taskID)
}

func toJSON(v map[string]any) []byte {
	body, err := json.Marshal(v)
	if err != nil {
		return []byte(`{}`)
	}

	return body
}
