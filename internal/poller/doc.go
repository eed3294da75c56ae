// Package poller refreshes the online state of rendered device rows.
//
// The main components are:
//
//   - [Controller]: event-loop state machine that runs one status request
//     at a time, backs off exponentially on failure and pauses while the
//     page is hidden
//   - [Client]: HTTP [Fetcher] for the batch status endpoint
//   - [Backoff]: delay policy, min(base * 2^min(failures, cap), max)
//   - [Result]: outcome of a single fetch, classified by [Kind]
//
// Users of the peerwatch package should not need to interact with this
// package directly. Configuration is done through the root package options.
package poller
