package main

import (
	"fmt"

	"github.com/jpalmerr/peerwatch/config"
	"github.com/spf13/cobra"
)

// validateCmd validates a config file without starting anything.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a peerwatch configuration file without starting anything.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  peerwatch validate -c config.yaml
  peerwatch validate --config /etc/peerwatch/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	if cfg.StatusURL != "" {
		fmt.Fprintf(out, "  Console port:  %d\n", cfg.Port)
		fmt.Fprintf(out, "  Status URL:    %s\n", cfg.StatusURL)
		fmt.Fprintf(out, "  Intervals:     %s base, %s max\n", cfg.BaseInterval.Duration(), cfg.MaxInterval.Duration())
		fmt.Fprintf(out, "  Devices:       %d\n", len(cfg.Devices))
	}
	if s := cfg.StatusAPI; s != nil {
		fmt.Fprintf(out, "  Status API:    port %d, %s heartbeats, %s window\n",
			s.Port, s.Heartbeats.Backend, s.OnlineWindow.Duration())
	}

	return nil
}
