package statusapi

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisNamespace prefixes every key written by [RedisHeartbeats].
const RedisNamespace = "peerwatch"

// RedisKeyHeartbeat returns the key holding the last heartbeat of id.
func RedisKeyHeartbeat(id string) string {
	return fmt.Sprintf("%s:hb:%s", RedisNamespace, id)
}

// RedisHeartbeats is a [HeartbeatStore] backed by Redis.
//
// Each device has one key holding the RFC 3339 timestamp of its last
// heartbeat. Keys expire after the online window, so a device that stops
// beating drops out on its own.
type RedisHeartbeats struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewRedisHeartbeats creates a Redis-backed heartbeat store. ttl is normally
// the online window; zero keeps keys forever.
func NewRedisHeartbeats(rdb redis.UniversalClient, ttl time.Duration) *RedisHeartbeats {
	return &RedisHeartbeats{rdb: rdb, ttl: ttl}
}

// Beat stores the heartbeat timestamp with the configured expiry.
func (s *RedisHeartbeats) Beat(ctx context.Context, hb Heartbeat) error {
	value := hb.At.UTC().Format(time.RFC3339Nano)
	if err := s.rdb.Set(ctx, RedisKeyHeartbeat(hb.ID), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis: failed to record heartbeat: %w", err)
	}
	return nil
}

// OnlineSince loads every heartbeat key with a single MGET.
func (s *RedisHeartbeats) OnlineSince(ctx context.Context, ids []string, since time.Time) (map[string]bool, error) {
	online := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return online, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = RedisKeyHeartbeat(id)
	}

	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to load heartbeats: %w", err)
	}

	for i, id := range ids {
		online[id] = false
		raw, ok := values[i].(string)
		if !ok {
			continue
		}
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			// unreadable value counts as no heartbeat
			continue
		}
		online[id] = !at.Before(since)
	}
	return online, nil
}
