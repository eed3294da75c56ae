// Package statusapi serves the batch device-status endpoint polled by the
// console.
//
// The main components are:
//
//   - [Server]: chi router with the status, heartbeat and health routes
//   - [HeartbeatStore]: where device heartbeats are recorded and queried,
//     with [MemoryHeartbeats], [RedisHeartbeats] and [PostgresHeartbeats]
//   - [Sessions]: HS256 session cookies with sliding renewal that
//     background polling opts out of via the X-Session-No-Renew header
//
// A device is online when its last heartbeat falls within the configured
// online window (five minutes by default).
package statusapi
