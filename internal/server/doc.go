// Package server provides the console's HTTP surface.
//
// It exposes the rendered device rows over REST, Server-Sent Events and a
// WebSocket, and forwards the page signals (panel activation, visibility)
// to a [Host]. The dashboard HTML is served from embedded assets.
//
// Users of the peerwatch package should not need to interact with this
// package directly.
package server
