package peerwatch

import (
	"errors"
	"strings"
)

// Device is one row the console renders and keeps fresh.
//
// Device is immutable after creation via [NewDevice]. All fields are
// private with getter methods that return copies of mutable data (maps),
// so a device cannot be modified after construction.
type Device struct {
	id     string
	alias  string
	labels map[string]string
}

// ID returns the device identifier sent to the status endpoint.
func (d Device) ID() string {
	return d.id
}

// Alias returns the device's display name. Empty when none was set.
func (d Device) Alias() string {
	return d.alias
}

// Labels returns a copy of the device's labels.
// Returns nil if no labels are set.
func (d Device) Labels() map[string]string {
	return copyMap(d.labels)
}

// NewDevice creates a [Device] with the given identifier and options.
//
// The id is trimmed of surrounding whitespace and must not be empty.
// Options are applied in order. See [WithAlias] and [WithLabels].
//
// Example:
//
//	dev, err := peerwatch.NewDevice("123456789",
//	    peerwatch.WithAlias("front desk"),
//	    peerwatch.WithLabels("site", "hq"),
//	)
func NewDevice(id string, opts ...DeviceOption) (Device, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Device{}, errors.New("device id cannot be empty")
	}

	cfg := &deviceConfig{
		labels: make(map[string]string),
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Device{}, err
		}
	}

	var labels map[string]string
	if len(cfg.labels) > 0 {
		labels = cfg.labels
	}

	return Device{
		id:     id,
		alias:  cfg.alias,
		labels: labels,
	}, nil
}

// copyMap returns a shallow copy of the map.
func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
