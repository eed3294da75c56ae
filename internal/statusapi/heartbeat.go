package statusapi

import (
	"context"
	"sync"
	"time"
)

// Heartbeat is a single liveness report from a device.
type Heartbeat struct {
	// ID is the device (peer) identifier.
	ID string `json:"id"`

	// UUID identifies the device installation.
	UUID string `json:"uuid"`

	// Version is the client version string reported by the device.
	Version string `json:"ver"`

	// At is when the heartbeat was received. Set by the server.
	At time.Time `json:"-"`
}

// HeartbeatStore records heartbeats and answers online queries.
//
// Implementations must be safe for concurrent access.
type HeartbeatStore interface {
	// Beat records hb, replacing any previous heartbeat for hb.ID.
	Beat(ctx context.Context, hb Heartbeat) error

	// OnlineSince reports, for every id in ids, whether its last heartbeat
	// is at or after since. Every id is present in the returned map.
	OnlineSince(ctx context.Context, ids []string, since time.Time) (map[string]bool, error)
}

// MemoryHeartbeats is an in-memory [HeartbeatStore].
//
// Heartbeats are never evicted; a stale heartbeat simply reads as offline.
type MemoryHeartbeats struct {
	mu    sync.RWMutex
	beats map[string]Heartbeat
}

// NewMemoryHeartbeats creates an empty in-memory heartbeat store.
func NewMemoryHeartbeats() *MemoryHeartbeats {
	return &MemoryHeartbeats{beats: make(map[string]Heartbeat)}
}

// Beat records hb.
func (m *MemoryHeartbeats) Beat(_ context.Context, hb Heartbeat) error {
	m.mu.Lock()
	m.beats[hb.ID] = hb
	m.mu.Unlock()
	return nil
}

// OnlineSince reports which ids have a heartbeat at or after since.
func (m *MemoryHeartbeats) OnlineSince(_ context.Context, ids []string, since time.Time) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	online := make(map[string]bool, len(ids))
	for _, id := range ids {
		hb, ok := m.beats[id]
		online[id] = ok && !hb.At.Before(since)
	}
	return online, nil
}
