package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"time"
)

// RunAgents simulates one remote-desktop agent per id posting heartbeats
// to baseURL/api/heartbeat every 10 seconds. Each agent goes silent for a
// while every 20-60 seconds, so rows flip between online and offline once
// the online window passes. Blocks until ctx is cancelled.
func RunAgents(ctx context.Context, baseURL string, ids []string, window time.Duration) {
	client := &http.Client{Timeout: 5 * time.Second}

	for _, id := range ids {
		go runAgent(ctx, client, baseURL, id, window)
	}
	<-ctx.Done()
}

func runAgent(ctx context.Context, client *http.Client, baseURL, id string, window time.Duration) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	online := true
	nextFlip := time.Now().Add(time.Duration(20+rand.Intn(41)) * time.Second)

	for {
		if time.Now().After(nextFlip) {
			online = !online
			if online {
				nextFlip = time.Now().Add(time.Duration(20+rand.Intn(41)) * time.Second)
			} else {
				// stay silent long enough for the row to go offline
				nextFlip = time.Now().Add(window + time.Duration(rand.Intn(20))*time.Second)
			}
			slog.Info("agent state change", "device", id, "online", online)
		}

		if online {
			beat(ctx, client, baseURL, id)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func beat(ctx context.Context, client *http.Client, baseURL, id string) {
	body, _ := json.Marshal(map[string]string{"id": id, "uuid": "demo-" + id, "ver": "1.0.0"})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/heartbeat", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("heartbeat failed", "device", id, "error", err)
		}
		return
	}
	resp.Body.Close()
}
