package peerwatch

import "time"

// Status represents the last known reachability of a device.
//
// Status is a string type that holds one of three predefined values:
// [StatusOnline], [StatusOffline] or [StatusUnknown]. Using a string type
// keeps JSON output and log lines human-readable.
type Status string

const (
	// StatusOnline indicates the device sent a heartbeat within the
	// status endpoint's online window.
	StatusOnline Status = "online"

	// StatusOffline indicates the status endpoint reported the device as
	// not online.
	StatusOffline Status = "offline"

	// StatusUnknown indicates no successful poll has reported on the
	// device since its row was rendered.
	StatusUnknown Status = "unknown"
)

// String returns the string representation of the status.
// This implements the fmt.Stringer interface.
func (s Status) String() string {
	return string(s)
}

// StatusChange describes one rendered row whose status changed after a
// successful poll.
//
// StatusChange is a copy; modifying it does not affect the [Console].
type StatusChange struct {
	// DeviceID is the row's device identifier.
	DeviceID string

	// Alias is the row's display name, possibly empty.
	Alias string

	// Labels contains the metadata configured for the device.
	Labels map[string]string

	// Previous is the status before the poll.
	Previous Status

	// Status is the status after the poll.
	Status Status

	// ChangedAt is when the new status was applied.
	ChangedAt time.Time
}
