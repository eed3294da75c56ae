package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/peerwatch/config"
	"github.com/jpalmerr/peerwatch/internal/statusapi"
)

// tokenCmd issues a session token signed with the statusapi secret.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a session token",
	Long: `Issue a session token for the status endpoint.

The token is signed with statusapi.session_secret and is meant for the
console's session_cookie setting. It expires after session_ttl unless
renewed by a request without the X-Session-No-Renew header.

Example:
  export PEERWATCH_SESSION=$(peerwatch token -c config.yaml --subject ops)`,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	tokenCmd.Flags().String("subject", "console", "subject recorded in the token")
	_ = tokenCmd.MarkFlagRequired("config")
}

func runToken(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	subject, _ := cmd.Flags().GetString("subject")

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.StatusAPI == nil {
		return errors.New("config has no statusapi section")
	}
	if subject == "" {
		return errors.New("subject cannot be empty")
	}

	sessions, err := statusapi.NewSessions([]byte(cfg.StatusAPI.SessionSecret), cfg.StatusAPI.SessionTTL.Duration())
	if err != nil {
		return fmt.Errorf("failed to create sessions: %w", err)
	}

	token, expires, err := sessions.Issue(subject)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.Format(time.RFC3339))
	return nil
}
