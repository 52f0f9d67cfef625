package admission

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/corebus/eventbus/internal/admission/middleware"
	"github.com/corebus/eventbus/internal/emit"
)

const (
	healthCheckTimeout = 2 * time.Second
	expectedURLParts   = 2
)

// setupRoutes wires all HTTP routes for the admission server.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Public health endpoints
	s.registerPublicRoutes(
		mux,
		Route{"GET /ping", s.handlePing},     // K8s liveness probe
		Route{"GET /ready", s.handleReady},   // K8s readiness probe
		Route{"GET /health", s.handleHealth}, // Basic health check - status, uptime, version
		Route{"/", s.handleNotFound},         // Catch-all handler for 404 responses
	)

	// Emit endpoint
	mux.HandleFunc("POST /api/v1/events", s.handleEmit)
}

// registerPublicRoutes registers HTTP routes that bypass authentication. They still
// pass through the rate limiter, which counts them as unauthenticated requests.
// This is a convenience method that:
//  1. Registers the route handler with the HTTP mux
//  2. Automatically registers the path as a public endpoint (bypasses auth middleware)
//
// Public routes should only be used for health check endpoints that need to be accessible
// without authentication (e.g., K8s liveness/readiness probes, monitoring tools).
//
// Security Warning: Never register business logic endpoints as public routes.
func (s *Server) registerPublicRoutes(mux *http.ServeMux, routes ...Route) {
	validHTTPMethods := map[string]bool{
		"GET":    true,
		"POST":   true,
		"PUT":    true,
		"PATCH":  true,
		"DELETE": true,
	}

	for _, route := range routes {
		mux.Handle(route.Path, route.Handler)

		// Strip method prefix for public endpoint bypass registration
		// Go 1.22+ method-based routing uses "GET /path" format
		// But r.URL.Path is just "/path" (no method prefix)
		path := route.Path

		parts := strings.Fields(path)
		if len(parts) == expectedURLParts && validHTTPMethods[parts[0]] {
			path = strings.TrimSpace(parts[1])
		}

		if path == "" {
			s.logger.Warn("Malformed route path detected, ignoring route", slog.String("path", path))

			continue
		}

		middleware.RegisterPublicEndpoint(path)
	}
}

// handlePing responds to ping requests for basic server validation.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("pong")); err != nil {
		s.logger.Error("failed to write ping response",
			slog.String("correlation_id", correlationID), slog.String("error", err.Error()))
	}
}

// handleReady responds to Kubernetes readiness probes with storage backend health checks.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	if s.apiKeyStore == nil { // pragma: allowlist secret
		s.logger.Warn("API key store not configured - readiness check disabled",
			slog.String("correlation_id", correlationID))

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))

		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.apiKeyStore.HealthCheck(ctx); err != nil {
		s.logger.Error("storage health check failed",
			slog.String("correlation_id", correlationID), slog.String("error", err.Error()))

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("storage unavailable"))

		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleHealth returns detailed health status information.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	var uptime string
	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime).Round(time.Second).String()
	}

	health := HealthStatus{
		Status:      "healthy",
		ServiceName: "eventbus",
		Version:     "v1.0.0",
		Uptime:      uptime,
	}

	data, err := json.Marshal(health)
	if err != nil {
		s.logger.Error("failed to encode health response",
			slog.String("correlation_id", correlationID), slog.String("error", err.Error()))
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to encode health response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(data); err != nil {
		s.logger.Error("failed to write health response",
			slog.String("correlation_id", correlationID), slog.String("error", err.Error()))
	}
}

// handleNotFound returns RFC 7807 compliant 404 responses for unknown endpoints.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, s.logger, NotFound("the requested resource was not found"))
}

// handleEmit handles POST /api/v1/events: decode, then hand off to Node.Emit.
// The node's emitter is responsible for enqueueing onto pgmq and appending the
// durable event log (§4.7); this handler's job ends at the HTTP boundary.
//
// Request validation (returns 4xx):
//   - 415 Unsupported Media Type: Content-Type must be application/json
//   - 413 Payload Too Large: Request body exceeds MaxRequestSize
//   - 400 Bad Request: empty body, invalid JSON, or missing eventType
//
// Success response:
//   - 202 Accepted: event enqueued
func (s *Server) handleEmit(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	correlationID := middleware.GetCorrelationID(r.Context())

	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		WriteErrorResponse(w, r, s.logger, UnsupportedMediaType("Content-Type must be application/json"))

		return
	}

	req, problem := s.parseEmitRequest(r)
	if problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	result, err := s.node.Emit(r.Context(), req.EventType, req.Payload, emit.Options{Broadcast: req.Broadcast})
	if err != nil {
		s.logger.Error("emit failed",
			slog.String("correlation_id", correlationID), slog.String("event_type", req.EventType),
			slog.String("error", err.Error()))
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to emit event"))

		return
	}

	response := EmitResponse{
		CorrelationID: correlationID,
		MessageID:     result.MessageID,
		RoutedQueues:  result.RoutedQueues,
	}

	data, err := json.Marshal(response)
	if err != nil {
		s.logger.Error("failed to marshal emit response",
			slog.String("correlation_id", correlationID), slog.String("error", err.Error()))
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)

	if _, err := w.Write(data); err != nil {
		s.logger.Error("failed to write emit response",
			slog.String("correlation_id", correlationID), slog.String("error", err.Error()))
	}

	s.logger.Info("event emitted",
		slog.String("correlation_id", correlationID),
		slog.String("event_type", req.EventType),
		slog.Int64("message_id", result.MessageID),
		slog.Int("routed_queues", result.RoutedQueues),
		slog.Duration("duration", time.Since(startTime)),
	)
}

// parseEmitRequest parses and validates the HTTP request body.
func (s *Server) parseEmitRequest(r *http.Request) (*EmitRequest, *ProblemDetail) {
	if r.ContentLength > 0 && r.ContentLength > s.config.MaxRequestSize {
		return nil, PayloadTooLarge("request body exceeds maximum size")
	}

	if r.ContentLength == 0 {
		return nil, BadRequest("request body cannot be empty")
	}

	var req EmitRequest

	decoder := json.NewDecoder(io.LimitReader(r.Body, s.config.MaxRequestSize))
	if err := decoder.Decode(&req); err != nil {
		return nil, BadRequest("invalid JSON: " + err.Error())
	}

	if strings.TrimSpace(req.EventType) == "" {
		return nil, BadRequest("eventType is required")
	}

	return &req, nil
}

// hasJSONContentType checks if Content-Type header starts with "application/json".
func hasJSONContentType(contentType string) bool {
	return strings.HasPrefix(strings.TrimSpace(contentType), "application/json")
}
