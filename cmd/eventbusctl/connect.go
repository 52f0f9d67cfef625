package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corebus/eventbus/internal/storage"
)

// connect opens a gateway against the database named by --database-url (or
// DATABASE_URL), and returns it alongside the resolved namespace and a
// closer the caller must defer.
func connect(cmd *cobra.Command) (gw *storage.Gateway, namespace string, closer func() error, err error) {
	namespace, _ = cmd.Flags().GetString("namespace")
	dbURL, _ := cmd.Flags().GetString("database-url")

	cfg := storage.LoadConfig()
	if dbURL != "" {
		cfg = cfg.WithDatabaseURL(dbURL)
	}

	if verr := cfg.Validate(); verr != nil {
		return nil, "", nil, fmt.Errorf("database configuration: %w", verr)
	}

	conn, err := storage.NewConnection(cfg)
	if err != nil {
		return nil, "", nil, fmt.Errorf("connect to database: %w", err)
	}

	return storage.NewGateway(conn), namespace, conn.Close, nil
}
