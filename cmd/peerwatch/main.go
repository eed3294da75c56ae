// Package main is the entry point for the peerwatch CLI.
//
// peerwatch can be embedded as a library (SDK) or run as standalone
// binaries with YAML configuration. This CLI provides the standalone
// binaries: the console and the status endpoint it polls.
//
// Usage:
//
//	peerwatch serve -c config.yaml    # Start the console
//	peerwatch statusd -c config.yaml  # Start the status endpoint
//	peerwatch token -c config.yaml    # Issue a session token
//	peerwatch validate -c config.yaml # Validate configuration
//	peerwatch version                 # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "peerwatch",
	Short: "Live device status for an admin console",
	Long: `peerwatch keeps the online status of a console's device rows fresh.

The console polls a status endpoint while its devices panel is shown,
backing off after failures and pausing while the page is hidden. The
status endpoint answers from device heartbeats kept in memory, Redis
or Postgres.

Quick start:
  1. Create a config file (peerwatch.yaml)
  2. Run: peerwatch statusd -c peerwatch.yaml
  3. Run: peerwatch serve -c peerwatch.yaml
  4. Open http://localhost:8080 in your browser

Example config:
  port: 8080
  status_url: http://localhost:8081/web/device/statuses
  session_cookie: ${PEERWATCH_SESSION}
  devices:
    - id: "123456789"
      alias: front desk
  statusapi:
    port: 8081
    session_secret: ${PEERWATCH_SESSION_SECRET}`,
	// No Run/RunE means this just shows help when called without subcommands
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// newLogger creates a JSON logger for CLI use.
func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this peerwatch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "peerwatch %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", commit)
		fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", date)
	},
}

func init() {
	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}
