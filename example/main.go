package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/peerwatch"
	"github.com/jpalmerr/peerwatch/internal/statusapi"
)

const onlineWindow = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// status endpoint with in-memory heartbeats
	sessions, err := statusapi.NewSessions([]byte("demo-secret"), time.Hour)
	if err != nil {
		slog.Error("failed to create sessions", "error", err)
		os.Exit(1)
	}
	api, err := statusapi.NewServer(statusapi.Config{Port: 9999, OnlineWindow: onlineWindow},
		statusapi.NewMemoryHeartbeats(), sessions, slog.Default(), nil)
	if err != nil {
		slog.Error("failed to create status api", "error", err)
		os.Exit(1)
	}
	if err := api.Start(ctx); err != nil {
		slog.Error("failed to start status api", "error", err)
		os.Exit(1)
	}

	ids := []string{"100000001", "100000002", "100000003", "100000004"}
	go RunAgents(ctx, "http://localhost:9999", ids, onlineWindow)

	token, _, err := sessions.Issue("demo")
	if err != nil {
		slog.Error("failed to issue session", "error", err)
		os.Exit(1)
	}

	var devices []peerwatch.Device
	for i, id := range ids {
		d, err := peerwatch.NewDevice(id,
			peerwatch.WithAlias(fmt.Sprintf("desk %d", i+1)),
			peerwatch.WithLabels("site", "demo"),
		)
		if err != nil {
			slog.Error("failed to create device", "error", err)
			os.Exit(1)
		}
		devices = append(devices, d)
	}

	console, err := peerwatch.New(
		peerwatch.WithStatusURL("http://localhost:9999"+statusapi.StatusesPath),
		peerwatch.WithSessionCookie(token),
		peerwatch.WithDevices(devices...),
		peerwatch.WithInitialPanel(peerwatch.PanelDevices),
		peerwatch.WithPort(8080),
		peerwatch.WithStatusCallback(func(ch peerwatch.StatusChange) {
			slog.Info("device status changed", "device", ch.DeviceID, "from", ch.Previous, "to", ch.Status)
		}),
	)
	if err != nil {
		slog.Error("failed to create console", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  peerwatch demo")
	fmt.Println()
	fmt.Println("  Console:    http://localhost:8080")
	fmt.Println("  Status API: http://localhost:9999" + statusapi.StatusesPath)
	fmt.Println("  Devices:    4 simulated agents, 30s online window")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	if err := console.Start(ctx); err != nil {
		slog.Error("console error", "error", err)
		os.Exit(1)
	}
}
