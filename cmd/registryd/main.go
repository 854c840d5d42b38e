// registryd serves the device registry store.
//
// Named registries own named devices carrying metadata and data pairs.
// registryd keeps them in SQLite, exposes them over HTTP and WebSocket, and
// optionally mirrors every change to MQTT and InfluxDB.
//
// Usage:
//
//	registryd [serve]                 run the service
//	registryd token --identity A      mint a bearer token
//	registryd apikey create|list|revoke
//	registryd migrate up|down|status
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancelled on Ctrl+C or SIGTERM; serve treats that as shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Running the root with no subcommand
// is the same as "serve".
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "registryd",
		Short:         "Authorization-gated device registry service",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", getConfigPath(), "Path to config.yaml (or set REGISTRY_CONFIG)")

	root.AddCommand(
		newServeCmd(&configPath),
		newTokenCmd(&configPath),
		newAPIKeyCmd(&configPath),
		newMigrateCmd(&configPath),
	)
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the registry service until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), *configPath)
		},
	}
}

// getConfigPath returns the configuration file path.
// Uses REGISTRY_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("REGISTRY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
