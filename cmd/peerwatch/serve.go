package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/peerwatch"
	"github.com/jpalmerr/peerwatch/config"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts the console.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the console",
	Long: `Start the peerwatch console.

The console will:
  - Load configuration from the specified YAML file
  - Render the configured device rows
  - Poll the status endpoint while the devices panel is active
  - Serve the console page on the configured port

The console runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  peerwatch serve -c config.yaml
  peerwatch serve --config /etc/peerwatch/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded",
		"devices", len(cfg.Devices),
		"status_url", cfg.StatusURL,
	)

	opts, err := config.BuildOptions(cfg)
	if err != nil {
		return fmt.Errorf("failed to build options: %w", err)
	}
	opts = append(opts, peerwatch.WithLogger(logger))

	console, err := peerwatch.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create console: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start console - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- console.Start(ctx)
	}()

	// wait for console to finish
	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
