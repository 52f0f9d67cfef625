package router_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corebus/eventbus/internal/envelope"
	"github.com/corebus/eventbus/internal/router"
)

func TestClient_HealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := router.New(srv.URL)
	assert.True(t, c.HealthCheck(context.Background()))
}

func TestClient_HealthCheck_NonOKIsFalseNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := router.New(srv.URL)
	assert.False(t, c.HealthCheck(context.Background()))
}

func TestClient_Route_ReturnsRoutedQueues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/events/route", r.URL.Path)

		var evt envelope.Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&evt))
		assert.Equal(t, "user.created", evt.EventType)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"routedQueues": []string{"core_events_demo"}})
	}))
	defer srv.Close()

	c := router.New(srv.URL)
	queues, err := c.Route(context.Background(), envelope.Event{EventType: "user.created"})
	require.NoError(t, err)
	assert.Equal(t, []string{"core_events_demo"}, queues)
}

func TestClient_RegisterWorker_NonSuccessIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/workers/w1/register", r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := router.New(srv.URL)
	err := c.RegisterWorker(context.Background(), "w1", "demo", []string{"default"})
	assert.Error(t, err)
}

func TestClient_Subscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/workers/w1/subscribe", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := router.New(srv.URL)
	assert.NoError(t, c.Subscribe(context.Background(), "w1", []string{"user.created"}))
}
