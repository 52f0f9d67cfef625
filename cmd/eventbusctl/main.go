// Package main provides eventbusctl, an operator CLI wrapping schedule_task,
// unschedule_task, and queue-depth inspection — the "out-of-band tooling"
// §4.8 assumes sits alongside the bus itself.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "eventbusctl",
	Short:   "Operate a namespace's event bus: schedule tasks, inspect queues",
	Version: version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("eventbusctl version %s\nCommit: %s\n", version, commit))

	rootCmd.PersistentFlags().String("namespace", "default", "Namespace to operate against")
	rootCmd.PersistentFlags().String("database-url", "", "Postgres connection string (defaults to DATABASE_URL)")

	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(unscheduleCmd)
	rootCmd.AddCommand(queueCmd)
}
