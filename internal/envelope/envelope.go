// Package envelope defines the wire-level shapes exchanged between the emit
// path, the queue, and the consumer: the EventEnvelope transported through
// pgmq and the DeadLetterPayload written on handler failure.
package envelope

import (
	"encoding/json"
	"time"
)

// TimeLayout is the ISO-8601 millisecond-precision, UTC-offset layout every
// emittedAt and failedAt field on the wire must use.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Event is the JSON object transported through the queue and passed to
// handlers. Field names and casing must match §6.2 exactly since other
// processes (including the scheduler's stored routine) enqueue envelopes
// this package must be able to decode.
type Event struct {
	Namespace       string          `json:"namespace"`
	EventType       string          `json:"eventType"`
	Payload         json.RawMessage `json:"payload"`
	EmittedAt       string          `json:"emittedAt"`
	ProducerNodeID  string          `json:"producerNodeId"`
	ScheduledTaskID string          `json:"scheduledTaskId,omitempty"`
	Broadcast       bool            `json:"broadcast,omitempty"`
	MessageID       int64           `json:"messageId,omitempty"`
	RedeliveryCount int             `json:"redeliveryCount,omitempty"`
}

// DeadLetter is the payload sent to the dead-letter queue when a handler
// chain fails mid-transaction (§4.5.3).
type DeadLetter struct {
	OriginalEvent Event  `json:"originalEvent"`
	Reason        string `json:"reason"`
	FailedAt      string `json:"failedAt"`
	Error         string `json:"error,omitempty"`
}

// ApplyDefaults fills in missing fields on a decoded envelope per §4.5.2
// step 1, then overwrites messageId and redeliveryCount with the values read
// from the queue row. namespace is the process namespace used when the
// envelope omits one.
func (e *Event) ApplyDefaults(namespace string, messageID int64, redeliveryCount int, enqueuedAt time.Time) {
	if e.Namespace == "" {
		e.Namespace = namespace
	}

	if e.EventType == "" {
		e.EventType = "unknown"
	}

	if len(e.Payload) == 0 {
		e.Payload = json.RawMessage(`{}`)
	}

	if e.EmittedAt == "" {
		if enqueuedAt.IsZero() {
			enqueuedAt = time.Now().UTC()
		}

		e.EmittedAt = enqueuedAt.Format(TimeLayout)
	}

	if e.ProducerNodeID == "" {
		e.ProducerNodeID = "unknown"
	}

	e.MessageID = messageID
	e.RedeliveryCount = redeliveryCount
}
