package store

import "time"

// RowStatus is the rendered online state of a device row.
type RowStatus string

const (
	// StatusUnknown is the state of a row no status result has touched yet.
	StatusUnknown RowStatus = "unknown"

	// StatusOnline marks a device whose last heartbeat is recent.
	StatusOnline RowStatus = "online"

	// StatusOffline marks a device the status endpoint reported as offline.
	StatusOffline RowStatus = "offline"
)

// Row is one rendered device row.
//
// Row is the storage representation used by the REST API, SSE and the
// WebSocket channel. It is decoupled from the poller's wire types.
type Row struct {
	// ID is the device identifier sent to the status endpoint.
	ID string `json:"id"`

	// Alias is the human-readable name shown next to the ID.
	Alias string `json:"alias"`

	// Labels contains key-value metadata shown in the row.
	Labels map[string]string `json:"labels,omitempty"`

	// Status is the last applied online state.
	Status RowStatus `json:"status"`

	// UpdatedAt is when Status last changed. Zero until the first change.
	UpdatedAt time.Time `json:"updated_at"`
}

// EventType distinguishes the two kinds of store notifications.
type EventType string

const (
	// EventReset is published when the rendered row set is replaced.
	// Rows holds the complete new set.
	EventReset EventType = "rows"

	// EventChanged is published when applied statuses change rows.
	// Rows holds only the rows whose status changed.
	EventChanged EventType = "status"
)

// Event is a store notification delivered to subscribers.
type Event struct {
	Type EventType `json:"type"`
	Rows []Row     `json:"rows"`
}

// Store holds the currently rendered device rows.
//
// Store implementations must be safe for concurrent access. The pub/sub
// mechanism pushes row changes to connected clients (SSE and WebSocket).
type Store interface {
	// SetRows replaces the rendered rows, as a re-render of the device
	// table would. Row order is preserved.
	SetRows(rows []Row)

	// Rows returns a snapshot of the rendered rows in render order.
	Rows() []Row

	// IDs returns the IDs of the rendered rows in render order.
	// It is read fresh on every poll cycle and may be empty.
	IDs() []string

	// Apply paints online states onto the matching rows and returns the
	// rows whose status changed. IDs without a rendered row are ignored
	// and rows absent from online are left untouched.
	Apply(online map[string]bool) []Row

	// Subscribe returns a channel that receives store events.
	// The returned channel has a buffer; slow consumers may miss events.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan Event

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Event)
}
