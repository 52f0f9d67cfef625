package registry_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corebus/eventbus/internal/envelope"
	"github.com/corebus/eventbus/internal/registry"
)

func noop(_ context.Context, _ envelope.Event, _ *sql.Tx) error { return nil }

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := registry.New()
	require.True(t, r.IsEmpty())

	r.Register("user.created", "node-a", noop)
	require.False(t, r.IsEmpty())

	targets := r.Lookup("user.created", "node-b")
	require.Len(t, targets, 1)
	assert.Equal(t, "node-a", targets[0].NodeID)
}

func TestRegistry_ProducerSelfSkip(t *testing.T) {
	r := registry.New()
	r.Register("user.created", "node-a", noop)

	targets := r.Lookup("user.created", "node-a")
	assert.Empty(t, targets)
	assert.True(t, r.HasAnyHandler("user.created"))
}

func TestRegistry_UnregisterRemovesEmptyEntry(t *testing.T) {
	r := registry.New()
	r.Register("x", "node-a", noop)
	r.Unregister("x", "node-a", noop)

	assert.False(t, r.HasAnyHandler("x"))
	assert.True(t, r.IsEmpty())
}

func TestRegistry_AllEntriesExcludesProducer(t *testing.T) {
	r := registry.New()
	r.Register("x", "node-a", noop)
	r.Register("y", "node-b", noop)
	r.Register("z", "node-b", noop)

	all := r.AllEntries("node-a")
	require.Len(t, all, 2)

	for _, target := range all {
		assert.Equal(t, "node-b", target.NodeID)
	}
}

func TestRegistry_UnregisterOnlyRemovesMatchingNode(t *testing.T) {
	r := registry.New()
	r.Register("x", "node-a", noop)
	r.Register("x", "node-b", noop)

	r.Unregister("x", "node-a", noop)

	targets := r.Lookup("x", "")
	require.Len(t, targets, 1)
	assert.Equal(t, "node-b", targets[0].NodeID)
}
