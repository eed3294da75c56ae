// Package config provides YAML configuration parsing for peerwatch.
//
// This package enables running the console and the status endpoint as
// standalone binaries with a configuration file, as an alternative to the
// programmatic SDK approach.
//
// Example configuration:
//
//	title: Front Office
//	port: 8080
//	status_url: ${PEERWATCH_STATUS_URL:-http://localhost:8081/web/device/statuses}
//	session_cookie: ${PEERWATCH_SESSION}
//	initial_panel: nav-2
//
//	devices:
//	  - id: "123456789"
//	    alias: front desk
//	    labels:
//	      site: hq
//
//	statusapi:
//	  port: 8081
//	  session_secret: ${PEERWATCH_SESSION_SECRET}
//	  heartbeats:
//	    backend: redis
//	    redis_addr: localhost:6379
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/peerwatch/internal/statusapi"
)

// minInterval is the minimum allowed base interval for production configs.
// This prevents accidental overload of the status endpoint.
const minInterval = 1 * time.Second

const (
	defaultPort          = 8080
	defaultStatusAPIPort = 8081
)

// Heartbeat store backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// panelKeys mirrors the console's navigation panels.
var panelKeys = map[string]bool{"nav-1": true, "nav-2": true, "nav-3": true, "nav-4": true}

// Config is the root configuration structure.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the page title. Defaults to "peerwatch" if not set.
	Title string `yaml:"title"`

	// Port is the console HTTP port. Defaults to 8080.
	Port int `yaml:"port"`

	// StatusURL is the status endpoint the console polls.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	StatusURL string `yaml:"status_url"`

	// BaseInterval is the delay after a successful poll. Defaults to 10s.
	BaseInterval Duration `yaml:"base_interval"`

	// MaxInterval caps the failure backoff. Defaults to 60s.
	MaxInterval Duration `yaml:"max_interval"`

	// RequestTimeout is the per-poll timeout. Defaults to 10s.
	RequestTimeout Duration `yaml:"request_timeout"`

	// Headers are custom HTTP headers sent with each poll.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`

	// SessionCookie is the session token sent as the sessionid cookie.
	// Supports environment variable substitution.
	SessionCookie string `yaml:"session_cookie"`

	// InitialPanel is the panel activated on start. Defaults to nav-1.
	InitialPanel string `yaml:"initial_panel"`

	// Devices are the rows rendered on start.
	Devices []DeviceConfig `yaml:"devices"`

	// StatusAPI configures the status endpoint. Nil when the section is absent.
	StatusAPI *StatusAPIConfig `yaml:"statusapi"`
}

// DeviceConfig defines a single device row.
type DeviceConfig struct {
	// ID is the device identifier sent to the status endpoint.
	ID string `yaml:"id"`

	// Alias is the display name.
	Alias string `yaml:"alias"`

	// Labels are metadata key-value pairs.
	Labels map[string]string `yaml:"labels"`
}

// StatusAPIConfig configures the status endpoint server.
type StatusAPIConfig struct {
	// Port is the HTTP port. Defaults to 8081.
	Port int `yaml:"port"`

	// OnlineWindow is how recent a heartbeat must be for a device to be
	// online. Defaults to 5m.
	OnlineWindow Duration `yaml:"online_window"`

	// MaxIDs caps the ids of one status request. Defaults to 500.
	MaxIDs int `yaml:"max_ids"`

	// RateLimit is the sustained requests per second. Defaults to 50.
	RateLimit float64 `yaml:"rate_limit"`

	// Burst is the token bucket size. Defaults to 100.
	Burst int `yaml:"burst"`

	// SessionSecret signs session tokens. Required.
	// Supports environment variable substitution.
	SessionSecret string `yaml:"session_secret"`

	// SessionTTL is the sliding session lifetime. Defaults to 30m.
	SessionTTL Duration `yaml:"session_ttl"`

	// Heartbeats selects the heartbeat store.
	Heartbeats HeartbeatsConfig `yaml:"heartbeats"`
}

// HeartbeatsConfig selects and configures the heartbeat store backend.
type HeartbeatsConfig struct {
	// Backend is "memory", "redis" or "postgres". Defaults to memory.
	Backend string `yaml:"backend"`

	// RedisAddr is the host:port of the Redis server.
	RedisAddr string `yaml:"redis_addr"`

	// RedisPassword is optional.
	RedisPassword string `yaml:"redis_password"`

	// RedisDB is the Redis database number.
	RedisDB int `yaml:"redis_db"`

	// PostgresDSN is the connection string of the Postgres database.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// already have an error, skip processing
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		// submatches[2] is ":-..." (non-empty if default syntax was used)
		// submatches[3] is the actual default value (may be empty for ${VAR:-})
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in StatusURL, SessionCookie, header
// values and the statusapi secrets and addresses. Defaults are applied to
// every unset field.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.BaseInterval == 0 {
		c.BaseInterval = Duration(10 * time.Second)
	}
	if c.MaxInterval == 0 {
		c.MaxInterval = Duration(60 * time.Second)
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = Duration(10 * time.Second)
	}
	if c.InitialPanel == "" {
		c.InitialPanel = "nav-1"
	}

	if s := c.StatusAPI; s != nil {
		if s.Port == 0 {
			s.Port = defaultStatusAPIPort
		}
		if s.OnlineWindow == 0 {
			s.OnlineWindow = Duration(statusapi.DefaultOnlineWindow)
		}
		if s.MaxIDs == 0 {
			s.MaxIDs = statusapi.DefaultMaxIDs
		}
		if s.RateLimit == 0 {
			s.RateLimit = statusapi.DefaultRateLimit
		}
		if s.Burst == 0 {
			s.Burst = statusapi.DefaultBurst
		}
		if s.SessionTTL == 0 {
			s.SessionTTL = Duration(statusapi.DefaultSessionTTL)
		}
		if s.Heartbeats.Backend == "" {
			s.Heartbeats.Backend = BackendMemory
		}
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.StatusURL == "" && c.StatusAPI == nil {
		return errors.New("status_url or a statusapi section must be defined")
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if c.StatusURL != "" {
		expanded, err := expandEnvVars(c.StatusURL)
		if err != nil {
			return fmt.Errorf("status_url: %w", err)
		}
		c.StatusURL = expanded

		parsedURL, err := url.Parse(c.StatusURL)
		if err != nil {
			return fmt.Errorf("invalid status_url: %w", err)
		}
		if parsedURL.Scheme == "" {
			return errors.New("status_url must have a scheme (http:// or https://)")
		}
		if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			return fmt.Errorf("status_url scheme must be http or https, got %q", parsedURL.Scheme)
		}
	}

	if c.BaseInterval.Duration() < minInterval {
		return fmt.Errorf("base_interval must be at least %s, got %s", minInterval, c.BaseInterval.Duration())
	}
	if c.MaxInterval.Duration() < c.BaseInterval.Duration() {
		return fmt.Errorf("max_interval must not be below base_interval, got %s < %s",
			c.MaxInterval.Duration(), c.BaseInterval.Duration())
	}
	if c.RequestTimeout.Duration() < time.Second {
		return fmt.Errorf("request_timeout must be at least 1s, got %s", c.RequestTimeout.Duration())
	}

	for k, v := range c.Headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("headers[%s]: %w", k, err)
		}
		c.Headers[k] = expanded
	}

	if c.SessionCookie != "" {
		expanded, err := expandEnvVars(c.SessionCookie)
		if err != nil {
			return fmt.Errorf("session_cookie: %w", err)
		}
		c.SessionCookie = expanded
	}

	if !panelKeys[c.InitialPanel] {
		return fmt.Errorf("initial_panel must be one of nav-1, nav-2, nav-3, nav-4, got %q", c.InitialPanel)
	}

	seen := make(map[string]struct{}, len(c.Devices))
	for i := range c.Devices {
		d := &c.Devices[i]
		d.ID = strings.TrimSpace(d.ID)
		if d.ID == "" {
			return fmt.Errorf("devices[%d]: id is required", i)
		}
		if _, exists := seen[d.ID]; exists {
			return fmt.Errorf("devices[%d]: duplicate id %q", i, d.ID)
		}
		seen[d.ID] = struct{}{}
	}

	if c.StatusAPI != nil {
		if err := c.StatusAPI.expandAndValidate(); err != nil {
			return fmt.Errorf("statusapi: %w", err)
		}
	}

	return nil
}

func (s *StatusAPIConfig) expandAndValidate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}
	if s.OnlineWindow.Duration() < time.Second {
		return fmt.Errorf("online_window must be at least 1s, got %s", s.OnlineWindow.Duration())
	}
	if s.MaxIDs < 0 {
		return fmt.Errorf("max_ids cannot be negative, got %d", s.MaxIDs)
	}
	if s.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative, got %v", s.RateLimit)
	}
	if s.Burst < 0 {
		return fmt.Errorf("burst cannot be negative, got %d", s.Burst)
	}
	if s.SessionTTL.Duration() < time.Minute {
		return fmt.Errorf("session_ttl must be at least 1m, got %s", s.SessionTTL.Duration())
	}

	secret, err := expandEnvVars(s.SessionSecret)
	if err != nil {
		return fmt.Errorf("session_secret: %w", err)
	}
	if secret == "" {
		return errors.New("session_secret is required")
	}
	s.SessionSecret = secret

	hb := &s.Heartbeats
	backend, err := expandEnvVars(hb.Backend)
	if err != nil {
		return fmt.Errorf("heartbeats.backend: %w", err)
	}
	if backend == "" {
		backend = BackendMemory
	}
	hb.Backend = backend

	switch hb.Backend {
	case BackendMemory:
	case BackendRedis:
		addr, err := expandEnvVars(hb.RedisAddr)
		if err != nil {
			return fmt.Errorf("heartbeats.redis_addr: %w", err)
		}
		if addr == "" {
			return errors.New("heartbeats.redis_addr is required for the redis backend")
		}
		hb.RedisAddr = addr

		password, err := expandEnvVars(hb.RedisPassword)
		if err != nil {
			return fmt.Errorf("heartbeats.redis_password: %w", err)
		}
		hb.RedisPassword = password
	case BackendPostgres:
		dsn, err := expandEnvVars(hb.PostgresDSN)
		if err != nil {
			return fmt.Errorf("heartbeats.postgres_dsn: %w", err)
		}
		if dsn == "" {
			return errors.New("heartbeats.postgres_dsn is required for the postgres backend")
		}
		hb.PostgresDSN = dsn
	default:
		return fmt.Errorf("heartbeats.backend must be memory, redis or postgres, got %q", hb.Backend)
	}

	return nil
}
