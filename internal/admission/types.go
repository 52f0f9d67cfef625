// Package admission provides the HTTP front door for emitting events into a
// namespace's bus (§7): authenticated, rate-limited decode-and-forward onto
// Node.Emit.
package admission

import (
	"encoding/json"
	"net/http"
)

type (
	// Version represents the API version response structure.
	Version struct {
		Version     string `json:"version"`
		ServiceName string `json:"serviceName"`
		BuildInfo   string `json:"buildInfo,omitempty"`
	}

	// HealthStatus represents the health check response structure.
	HealthStatus struct {
		Status      string `json:"status"`
		ServiceName string `json:"serviceName"`
		Version     string `json:"version"`
		Uptime      string `json:"uptime,omitempty"`
	}

	// EmitRequest is the wire shape of POST /api/v1/events: a single event
	// emitted into the server's namespace.
	EmitRequest struct {
		EventType string          `json:"eventType"`
		Payload   json.RawMessage `json:"payload"`
		Broadcast bool            `json:"broadcast,omitempty"`
	}

	// EmitResponse reports the outcome of an accepted emit request.
	EmitResponse struct {
		CorrelationID string `json:"correlationId"`
		MessageID     int64  `json:"messageId"`
		RoutedQueues  int    `json:"routedQueues"`
	}

	// Route represents an HTTP route configuration with a path and handler.
	// Used for declarative route registration with middleware bypass support.
	Route struct {
		Path    string           // The URL path for this route (e.g., "/ping", "/api/v1/health")
		Handler http.HandlerFunc // The HTTP handler function for this route
	}
)
