// Package eventbus composes the namespace-scoped event bus (§4): bootstrap,
// registry, consumer, node, emitter, and scheduler wired against a single
// storage gateway. There is no process-wide global state — a process may
// host multiple Systems against different namespaces, each with its own
// Consumer and set of Nodes (§9).
package eventbus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/corebus/eventbus/internal/bootstrap"
	"github.com/corebus/eventbus/internal/bus"
	"github.com/corebus/eventbus/internal/emit"
	"github.com/corebus/eventbus/internal/node"
	"github.com/corebus/eventbus/internal/registry"
	"github.com/corebus/eventbus/internal/router"
	"github.com/corebus/eventbus/internal/scheduler"
	"github.com/corebus/eventbus/internal/storage"
)

// Config configures one System.
type Config struct {
	Namespace string

	// RouterBaseURL, when non-empty, puts the emit path and node
	// subscriptions into enhanced mode (§4.7, §4.9).
	RouterBaseURL string

	Bus      bus.Config
	Emit     emit.Config
	Metadata map[string]any

	Logger *slog.Logger
}

// System is the per-namespace runtime: one storage gateway, one handler
// registry, one consumer, one scheduler facade. Each node created via
// NewNode gets its own emitter, since the emit path stamps the producer
// node id into every envelope (§4.7).
type System struct {
	cfg       Config
	gw        *storage.Gateway
	reg       *registry.Registry
	consumer  *bus.Consumer
	scheduler *scheduler.Facade
	router    *router.Client
	logger    *slog.Logger
}

// New bootstraps namespace's schema, queues, and partitions, then returns a
// System ready to host nodes.
func New(ctx context.Context, conn *storage.Connection, cfg Config) (*System, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	gw := storage.NewGateway(conn)

	init := bootstrap.New(gw, cfg.Namespace, cfg.Logger)
	if err := init.Run(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap namespace %s: %w", cfg.Namespace, err)
	}

	reg := registry.New()

	var routerClient *router.Client
	if cfg.RouterBaseURL != "" {
		routerClient = router.New(cfg.RouterBaseURL)
		cfg.Emit.EnableWorkers = true
	}

	sched := scheduler.New(gw, cfg.Namespace)
	consumer := bus.New(gw, reg, cfg.Namespace, cfg.Bus, cfg.Logger)

	return &System{
		cfg:       cfg,
		gw:        gw,
		reg:       reg,
		consumer:  consumer,
		scheduler: sched,
		router:    routerClient,
		logger:    cfg.Logger,
	}, nil
}

// emitRouter narrows *router.Client to emit.RouterClient, keeping the nil
// case meaningful (standalone mode) rather than a typed-nil interface.
func emitRouter(c *router.Client) emit.RouterClient {
	if c == nil {
		return nil
	}

	return c
}

// StartConsumer starts the process-wide polling dispatch loop.
func (s *System) StartConsumer(ctx context.Context) {
	s.consumer.Start(ctx)
}

// Close stops the consumer and waits for its loop to exit.
func (s *System) Close() {
	s.consumer.Close()
}

// NewNode registers and returns a node participating in this System's
// namespace. Multiple nodes may share one System (§9); each gets its own
// emitter so emitted envelopes carry that node's own id as producer.
func (s *System) NewNode(ctx context.Context, registration node.Registration) (*node.Node, error) {
	emitter := emit.New(s.gw, emitRouter(s.router), s.cfg.Namespace, registration.NodeID, s.cfg.Emit, s.logger)

	return node.New(ctx, s.gw, s.reg, emitter, s.scheduler, nodeSubscriber(s.router), s.cfg.Namespace, registration, s.logger)
}

// nodeSubscriber narrows *router.Client to node.Subscriber, keeping the nil
// case meaningful (no remote router configured) rather than a typed-nil
// interface that would compare unequal to nil.
func nodeSubscriber(c *router.Client) node.Subscriber {
	if c == nil {
		return nil
	}

	return c
}

// Gateway exposes the underlying storage gateway, for callers that need
// direct access (e.g. the admission server's readiness probe).
func (s *System) Gateway() *storage.Gateway {
	return s.gw
}
