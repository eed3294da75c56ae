package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/peerwatch/config"
	"github.com/jpalmerr/peerwatch/internal/statusapi"
)

// statusdCmd starts the status endpoint.
var statusdCmd = &cobra.Command{
	Use:   "statusd",
	Short: "Start the status endpoint",
	Long: `Start the status endpoint the console polls.

The server answers GET /web/device/statuses?ids=... for holders of a
session cookie and records device heartbeats posted to /api/heartbeat.
Heartbeats are kept in memory, Redis or Postgres as configured in the
statusapi section.

Example:
  peerwatch statusd -c config.yaml`,
	RunE: runStatusd,
}

func init() {
	rootCmd.AddCommand(statusdCmd)

	statusdCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = statusdCmd.MarkFlagRequired("config")
}

func runStatusd(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.StatusAPI == nil {
		return errors.New("config has no statusapi section")
	}
	apiCfg := cfg.StatusAPI

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	heartbeats, closeHeartbeats, err := openHeartbeats(ctx, apiCfg.Heartbeats, apiCfg.OnlineWindow.Duration(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeHeartbeats(); err != nil {
			logger.Warn("failed to close heartbeat store", "error", err)
		}
	}()

	sessions, err := statusapi.NewSessions([]byte(apiCfg.SessionSecret), apiCfg.SessionTTL.Duration())
	if err != nil {
		return fmt.Errorf("failed to create sessions: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv, err := statusapi.NewServer(apiCfg.ServerConfig(), heartbeats, sessions, logger, reg)
	if err != nil {
		return fmt.Errorf("failed to create status api: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start status api: %w", err)
	}

	<-ctx.Done()

	// let the server drain before the store goes away
	time.Sleep(time.Second)
	logger.Info("shutdown complete")
	return nil
}

// openHeartbeats builds the configured heartbeat store. The returned close
// function releases its connections.
func openHeartbeats(ctx context.Context, hb config.HeartbeatsConfig, window time.Duration, logger *slog.Logger) (statusapi.HeartbeatStore, func() error, error) {
	switch hb.Backend {
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     hb.RedisAddr,
			Password: hb.RedisPassword,
			DB:       hb.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis: ping %s: %w", hb.RedisAddr, err)
		}
		logger.Info("heartbeat store ready", "backend", hb.Backend, "addr", hb.RedisAddr)
		return statusapi.NewRedisHeartbeats(rdb, window), rdb.Close, nil

	case config.BackendPostgres:
		store, err := statusapi.OpenPostgresHeartbeats(hb.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		logger.Info("heartbeat store ready", "backend", hb.Backend)
		return store, store.Close, nil

	default:
		logger.Info("heartbeat store ready", "backend", config.BackendMemory)
		return statusapi.NewMemoryHeartbeats(), func() error { return nil }, nil
	}
}
