package bus

import "time"

// NoHandlerPolicy governs what the consumer does when an envelope's event
// type has no registered handlers at all (§4.5.2 step 3, §9 open question 1).
type NoHandlerPolicy int

const (
	// NoHandlerRedeliver leaves the message unacknowledged so the queue's
	// visibility timeout redelivers it later. This is the spec's
	// recommended behavior: it tolerates nodes registering handlers
	// lazily and never produces false-positive DLQ churn.
	NoHandlerRedeliver NoHandlerPolicy = iota
	// NoHandlerImmediateDLQ reproduces the older behavior some deployments
	// may still depend on: an envelope with zero registered handlers is
	// DLQ'd immediately instead of waiting for redelivery.
	NoHandlerImmediateDLQ
)

const (
	defaultIdlePollInterval  = 1000 * time.Millisecond
	defaultVisibilityTimeout = 30 * time.Second
	defaultBatchSize         = 10
	defaultReadErrorBackoff  = 2 * time.Second
)

// Config controls the consumer's polling cadence and dispatch policy
// (§4.5.1, §6.4).
type Config struct {
	IdlePollInterval  time.Duration
	VisibilityTimeout time.Duration
	BatchSize         int
	NoHandlerPolicy   NoHandlerPolicy
}

// DefaultConfig returns the defaults named in §4.5.1 and §6.4.
func DefaultConfig() Config {
	return Config{
		IdlePollInterval:  defaultIdlePollInterval,
		VisibilityTimeout: defaultVisibilityTimeout,
		BatchSize:         defaultBatchSize,
		NoHandlerPolicy:   NoHandlerRedeliver,
	}
}

func (c Config) withDefaults() Config {
	if c.IdlePollInterval <= 0 {
		c.IdlePollInterval = defaultIdlePollInterval
	}

	if c.VisibilityTimeout <= 0 {
		c.VisibilityTimeout = defaultVisibilityTimeout
	}

	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}

	return c
}
