// Package store holds the rendered device rows and publishes their changes.
//
// The main components are:
//
//   - [Store]: interface for the rendered row set and its subscriptions
//   - [MemoryStore]: in-memory implementation with pub/sub
//   - [Row]: one rendered device row and its online state
//   - [Event]: notification sent to subscribers on re-render or status change
//
// The store is the console's stand-in for the page's device table: the
// poller reads the rendered IDs from it each cycle and paints fetched
// statuses back onto it. Subscribers receive events via channels with
// non-blocking sends (slow subscribers miss events rather than block).
package store
