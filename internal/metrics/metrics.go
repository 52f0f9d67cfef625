// Package metrics exposes the Prometheus counters the consumer and node
// packages increment from their hot paths: batches read, handlers invoked,
// DLQ moves, and heartbeat outcomes.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	BatchesRead = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_batches_read_total",
			Help: "Total number of queue read batches, by namespace",
		},
		[]string{"namespace"},
	)

	MessagesDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_messages_dispatched_total",
			Help: "Total number of envelopes dispatched to at least one handler",
		},
		[]string{"namespace", "event_type"},
	)

	HandlersInvoked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_handlers_invoked_total",
			Help: "Total number of handler invocations, by outcome",
		},
		[]string{"namespace", "event_type", "outcome"},
	)

	DeadLetterMoves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_dead_letter_moves_total",
			Help: "Total number of envelopes moved to the dead-letter queue",
		},
		[]string{"namespace", "event_type"},
	)

	HeartbeatsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_heartbeats_total",
			Help: "Total number of heartbeat ticks, by outcome",
		},
		[]string{"namespace", "node_id", "outcome"},
	)

	ReadErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_queue_read_errors_total",
			Help: "Total number of failed queue read attempts",
		},
		[]string{"namespace"},
	)
)

func init() {
	prometheus.MustRegister(BatchesRead)
	prometheus.MustRegister(MessagesDispatched)
	prometheus.MustRegister(HandlersInvoked)
	prometheus.MustRegister(DeadLetterMoves)
	prometheus.MustRegister(HeartbeatsTotal)
	prometheus.MustRegister(ReadErrorsTotal)
}
