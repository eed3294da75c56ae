package config

import (
	"errors"
	"sort"

	"github.com/jpalmerr/peerwatch"
	"github.com/jpalmerr/peerwatch/internal/statusapi"
)

// BuildDevices converts the configured rows into SDK Device values, in
// file order.
func BuildDevices(cfg *Config) ([]peerwatch.Device, error) {
	devices := make([]peerwatch.Device, 0, len(cfg.Devices))
	for _, dc := range cfg.Devices {
		var opts []peerwatch.DeviceOption
		if dc.Alias != "" {
			opts = append(opts, peerwatch.WithAlias(dc.Alias))
		}
		if len(dc.Labels) > 0 {
			opts = append(opts, peerwatch.WithLabels(mapToKeyValuePairs(dc.Labels)...))
		}

		d, err := peerwatch.NewDevice(dc.ID, opts...)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// BuildOptions converts the console part of the configuration into
// [peerwatch.Option] values for [peerwatch.New].
//
// Returns an error if status_url is not set.
func BuildOptions(cfg *Config) ([]peerwatch.Option, error) {
	if cfg.StatusURL == "" {
		return nil, errors.New("status_url is required to run the console")
	}

	devices, err := BuildDevices(cfg)
	if err != nil {
		return nil, err
	}

	opts := []peerwatch.Option{
		peerwatch.WithStatusURL(cfg.StatusURL),
		peerwatch.WithPort(cfg.Port),
		peerwatch.WithBaseInterval(cfg.BaseInterval.Duration()),
		peerwatch.WithMaxInterval(cfg.MaxInterval.Duration()),
		peerwatch.WithRequestTimeout(cfg.RequestTimeout.Duration()),
		peerwatch.WithInitialPanel(peerwatch.PanelKey(cfg.InitialPanel)),
		peerwatch.WithDevices(devices...),
	}

	if cfg.Title != "" {
		opts = append(opts, peerwatch.WithTitle(cfg.Title))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, peerwatch.WithHeaders(mapToKeyValuePairs(cfg.Headers)...))
	}
	if cfg.SessionCookie != "" {
		opts = append(opts, peerwatch.WithSessionCookie(cfg.SessionCookie))
	}

	return opts, nil
}

// ServerConfig converts the section into a status API server configuration.
func (s *StatusAPIConfig) ServerConfig() statusapi.Config {
	return statusapi.Config{
		Port:         s.Port,
		OnlineWindow: s.OnlineWindow.Duration(),
		MaxIDs:       s.MaxIDs,
		RateLimit:    s.RateLimit,
		Burst:        s.Burst,
	}
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	// sort keys for deterministic ordering
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}
