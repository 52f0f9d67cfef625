// Package main provides the event bus process entrypoint: it bootstraps one
// namespace, starts the polling consumer, registers a default node, and
// serves the admission HTTP façade until SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/corebus/eventbus"
	"github.com/corebus/eventbus/internal/admission"
	"github.com/corebus/eventbus/internal/config"
	"github.com/corebus/eventbus/internal/node"
	"github.com/corebus/eventbus/internal/storage"
)

const (
	version = "1.0.0-dev"
	name    = "eventbus"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	serverConfig := admission.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("starting event bus", slog.String("service", name), slog.String("version", version))

	dbConfig := storage.LoadConfig()
	if err := dbConfig.Validate(); err != nil {
		logger.Error("invalid database configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	conn, err := storage.NewConnection(dbConfig)
	if err != nil {
		logger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = conn.Close() }()

	namespace := config.GetEnvStr("EVENTBUS_NAMESPACE", "default")
	nodeID := config.GetEnvStr("EVENTBUS_NODE_ID", "default-node")
	routerURL := config.GetEnvStr("EVENTBUS_ROUTER_URL", "")

	ctx := context.Background()

	sys, err := eventbus.New(ctx, conn, eventbus.Config{
		Namespace:     namespace,
		RouterBaseURL: routerURL,
		Logger:        logger,
	})
	if err != nil {
		logger.Error("failed to bootstrap namespace",
			slog.String("namespace", namespace), slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer sys.Close()

	n, err := sys.NewNode(ctx, node.Registration{NodeID: nodeID, DisplayName: nodeID})
	if err != nil {
		logger.Error("failed to register node", slog.String("node_id", nodeID), slog.String("error", err.Error()))
		os.Exit(1)
	}

	n.Start()
	defer n.Close()

	sys.StartConsumer(ctx)

	var keyStore storage.APIKeyStore

	if store, keyErr := storage.NewPersistentKeyStore(conn); keyErr != nil {
		logger.Warn("API key store unavailable - authentication disabled", slog.String("error", keyErr.Error()))
	} else {
		keyStore = store
	}

	server := admission.NewServer(&serverConfig, keyStore, nil, n)

	logger.Info("loaded server configuration",
		slog.String("namespace", namespace),
		slog.String("node_id", nodeID),
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
	)

	if err := server.Start(); err != nil {
		logger.Error("server failed to start", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("event bus stopped")
}
