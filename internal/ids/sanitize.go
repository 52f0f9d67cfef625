// Package ids provides identifier sanitization shared by every component that
// interpolates user-supplied strings into queue names or stored-routine arguments.
package ids

import "strings"

// safeByte reports whether b belongs to the allowed identifier character class
// [A-Za-z0-9_\-:.].
func safeByte(b byte) bool {
	switch {
	case b >= 'A' && b <= 'Z':
		return true
	case b >= 'a' && b <= 'z':
		return true
	case b >= '0' && b <= '9':
		return true
	case b == '_' || b == '-' || b == ':' || b == '.':
		return true
	default:
		return false
	}
}

// Sanitize maps s to the character class [A-Za-z0-9_\-:.], substituting any
// other byte with '_'. It is deterministic and idempotent: Sanitize(Sanitize(s))
// always equals Sanitize(s).
//
// Sanitize is the sole trust boundary for namespace, node id, task name, and job
// name values before they are interpolated into queue names or stored-routine
// arguments. Callers must not interpolate raw input into identifiers directly.
func Sanitize(s string) string {
	if s == "" {
		return s
	}

	var b strings.Builder

	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		if safeByte(c) {
			b.WriteByte(c)
		} else {
			b.WriteByte('_')
		}
	}

	return b.String()
}

// QueueName returns the main queue name for a namespace, applying Sanitize first
// and then mapping hyphens to underscores (dev-one → core_events_dev_one), the
// same mapping core.queue_name_for_namespace applies.
func QueueName(namespace string) string {
	return "core_events_" + strings.ReplaceAll(Sanitize(namespace), "-", "_")
}

// DeadLetterQueueName returns the dead-letter queue name for a namespace.
func DeadLetterQueueName(namespace string) string {
	return QueueName(namespace) + "_dlq"
}
