// Package peerwatch keeps the online status of the device rows of an admin
// console page fresh while the devices panel is shown.
//
// A [Console] owns the page state: which panel is active, whether the page
// is hidden, and which device rows are rendered. While the devices panel is
// active and the page is visible it polls a status endpoint for the
// rendered IDs, paints the answer onto the rows and schedules the next poll:
// 10 seconds after a success, doubling after each consecutive failure up to
// 60 seconds. Hiding the page aborts the request in flight and defers the
// next poll until the page is visible again.
//
// # Quick Start
//
//	dev, _ := peerwatch.NewDevice("123456789", peerwatch.WithAlias("front desk"))
//	c, _ := peerwatch.New(
//	    peerwatch.WithStatusURL("https://console.example.com/web/device/statuses"),
//	    peerwatch.WithSessionCookie(token),
//	    peerwatch.WithDevices(dev),
//	    peerwatch.WithInitialPanel(peerwatch.PanelDevices),
//	)
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	c.Start(ctx) // blocks until context is cancelled
//
// # Driving the page
//
// The browser page served by the console reports panel switches and
// visibility over REST or a WebSocket. The same signals are available from
// Go through [Console.Navigate] and [Console.SetHidden]. Status changes are
// delivered to callbacks registered with [WithStatusCallback].
//
// # Architecture
//
//   - internal/poller: the polling controller, its HTTP client and backoff
//   - internal/store: rendered rows with pub/sub for live updates
//   - internal/server: the console HTTP surface (REST, SSE, WebSocket, metrics)
//   - internal/statusapi: the status endpoint and its heartbeat stores
//   - dashboard: embedded page assets
//
// The internal packages are not part of the public API and may change
// without notice.
package peerwatch
