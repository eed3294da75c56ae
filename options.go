package peerwatch

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// consoleConfig holds mutable state during Console construction.
type consoleConfig struct {
	title           string
	statusURL       string
	baseInterval    time.Duration
	maxInterval     time.Duration
	requestTimeout  time.Duration
	headers         map[string]string
	sessionCookie   string
	devices         []Device
	initialPanel    PanelKey
	port            int
	logger          *slog.Logger
	statusCallbacks []func(StatusChange)
	registry        *prometheus.Registry
}

// Option is a function that configures a [Console] during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*consoleConfig) error

// WithStatusURL sets the status endpoint the console polls. Required.
//
// The URL must be absolute with an http or https scheme. Any query it
// already carries is kept and the ids parameter is added to it.
//
// Example:
//
//	c, err := peerwatch.New(
//	    peerwatch.WithStatusURL("https://console.example.com/web/device/statuses"),
//	)
func WithStatusURL(rawURL string) Option {
	return func(cfg *consoleConfig) error {
		u, err := url.Parse(rawURL)
		if err != nil {
			return fmt.Errorf("invalid status URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.New("status URL must have an http:// or https:// scheme")
		}
		if u.Host == "" {
			return errors.New("status URL must have a host")
		}
		cfg.statusURL = rawURL
		return nil
	}
}

// WithBaseInterval sets the delay after a successful poll. The failure
// backoff doubles from this value. Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithBaseInterval(d time.Duration) Option {
	return func(cfg *consoleConfig) error {
		if d <= 0 {
			return errors.New("base interval must be positive")
		}
		cfg.baseInterval = d
		return nil
	}
}

// WithMaxInterval caps the delay after consecutive failures.
// Defaults to 60 seconds and must not be below the base interval.
//
// Returns an error if the duration is zero or negative.
func WithMaxInterval(d time.Duration) Option {
	return func(cfg *consoleConfig) error {
		if d <= 0 {
			return errors.New("max interval must be positive")
		}
		cfg.maxInterval = d
		return nil
	}
}

// WithRequestTimeout sets the per-request timeout of a status poll.
// Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *consoleConfig) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		cfg.requestTimeout = d
		return nil
	}
}

// WithHeaders adds custom HTTP headers to every status poll.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
//
// Example:
//
//	c, err := peerwatch.New(
//	    peerwatch.WithStatusURL(statusURL),
//	    peerwatch.WithHeaders("Authorization", "Bearer token"),
//	)
//
// Returns an error if an odd number of arguments is provided.
func WithHeaders(keyValues ...string) Option {
	return func(cfg *consoleConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithSessionCookie sets the session token sent as the sessionid cookie.
//
// Polls carry X-Session-No-Renew, so they never extend the session.
//
// Returns an error if the token is empty.
func WithSessionCookie(token string) Option {
	return func(cfg *consoleConfig) error {
		if token == "" {
			return errors.New("session cookie cannot be empty")
		}
		cfg.sessionCookie = token
		return nil
	}
}

// WithDevices adds rows rendered when the console starts.
//
// Can be called multiple times. Device IDs must be unique.
func WithDevices(devices ...Device) Option {
	return func(cfg *consoleConfig) error {
		cfg.devices = append(cfg.devices, devices...)
		return nil
	}
}

// WithInitialPanel sets the panel activated when the console starts.
// Defaults to [PanelHome].
//
// Returns an error if the key is not a known panel.
func WithInitialPanel(key PanelKey) Option {
	return func(cfg *consoleConfig) error {
		if !key.Valid() {
			return fmt.Errorf("unknown panel %q", key)
		}
		cfg.initialPanel = key
		return nil
	}
}

// WithPort sets the HTTP port of the console server.
// Defaults to 8080.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *consoleConfig) error {
		if port < 1 || port > 65535 {
			return fmt.Errorf("port must be between 1 and 65535, got %d", port)
		}
		cfg.port = port
		return nil
	}
}

// WithTitle sets the page title. If not specified, defaults to "peerwatch".
func WithTitle(title string) Option {
	return func(cfg *consoleConfig) error {
		cfg.title = title
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the console.
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *consoleConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithStatusCallback registers a function called for every row whose
// status changes after a successful poll.
//
// Multiple callbacks may be registered; they execute in registration order.
//
// Callbacks run on a dispatcher goroutine of their own, never on the
// polling loop, so they may call back into the [Console] (for example
// [Console.Navigate] or [Console.PollerState]). A slow callback delays
// later callbacks but not polling.
// Panics within callbacks are recovered and logged; they do not stop polling.
//
// Example:
//
//	c, err := peerwatch.New(
//	    peerwatch.WithStatusURL(statusURL),
//	    peerwatch.WithStatusCallback(func(ch peerwatch.StatusChange) {
//	        if ch.Status == peerwatch.StatusOffline {
//	            log.Printf("%s went offline", ch.DeviceID)
//	        }
//	    }),
//	)
//
// Nil callbacks are silently ignored.
func WithStatusCallback(cb func(StatusChange)) Option {
	return func(cfg *consoleConfig) error {
		if cb == nil {
			return nil
		}
		cfg.statusCallbacks = append(cfg.statusCallbacks, cb)
		return nil
	}
}

// WithRegistry sets the Prometheus registry the console registers its
// collectors on and serves at /metrics.
//
// By default each console gets a private registry with the Go and process
// collectors. A registry can back only one console.
//
// Returns an error if the registry is nil.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(cfg *consoleConfig) error {
		if reg == nil {
			return errors.New("registry cannot be nil")
		}
		cfg.registry = reg
		return nil
	}
}
