package peerwatch

import "errors"

// deviceConfig holds mutable state during device construction.
type deviceConfig struct {
	alias  string
	labels map[string]string
}

// DeviceOption is a function that configures a [Device] during construction.
//
// Options return an error if validation fails.
//
// Built-in options: [WithAlias], [WithLabels].
type DeviceOption func(*deviceConfig) error

// WithAlias sets the display name shown next to the device id.
func WithAlias(alias string) DeviceOption {
	return func(cfg *deviceConfig) error {
		cfg.alias = alias
		return nil
	}
}

// WithLabels adds metadata labels to the device.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
//
// Example:
//
//	dev, err := peerwatch.NewDevice("123456789",
//	    peerwatch.WithLabels("site", "hq", "team", "support"),
//	)
//
// Returns an error if an odd number of arguments is provided.
func WithLabels(keyValues ...string) DeviceOption {
	return func(cfg *deviceConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithLabels requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.labels[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}
