// Package dashboard provides the embedded console page.
//
// The page is served by the console server at "/". It keeps its rows in
// sync over the /api/ws WebSocket and reports panel switches and page
// visibility back over the same socket.
package dashboard

import "embed"

// Assets holds assets/index.html. The "{{.Title}}" placeholder is replaced
// with the HTML-escaped console title when served.
//
//go:embed assets/*
var Assets embed.FS
