// Standalone heartbeat simulator for trying the CLI.
//
// Usage:
//
//	go run ./cmd/peerwatch statusd -c example/config.yaml
//	go run ./example/cmd/agents -url http://localhost:8081 100000001 100000002
//
// Then in another terminal:
//
//	go run ./cmd/peerwatch serve -c example/config.yaml
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8081", "status endpoint base URL")
	interval := flag.Duration("interval", 10*time.Second, "heartbeat interval")
	flag.Parse()

	ids := flag.Args()
	if len(ids) == 0 {
		fmt.Fprintln(os.Stderr, "usage: agents [-url URL] [-interval D] ID...")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Posting heartbeats for %d devices to %s every %s\n", len(ids), *baseURL, *interval)
	fmt.Println("Press Ctrl+C to stop")

	client := &http.Client{Timeout: 5 * time.Second}
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		for _, id := range ids {
			body, _ := json.Marshal(map[string]string{"id": id, "ver": "agents"})
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, *baseURL+"/api/heartbeat", bytes.NewReader(body))
			if err != nil {
				slog.Error("bad request", "error", err)
				os.Exit(1)
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := client.Do(req)
			if err != nil {
				slog.Warn("heartbeat failed", "device", id, "error", err)
				continue
			}
			resp.Body.Close()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
