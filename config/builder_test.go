package config

import (
	"reflect"
	"testing"
	"time"

	"github.com/jpalmerr/peerwatch"
)

func TestBuildDevices(t *testing.T) {
	cfg := &Config{
		Devices: []DeviceConfig{
			{ID: "123456789", Alias: "front desk", Labels: map[string]string{"site": "hq", "floor": "2"}},
			{ID: "987654321"},
		},
	}

	devices, err := BuildDevices(cfg)
	if err != nil {
		t.Fatalf("BuildDevices() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("len(devices) = %d, want 2", len(devices))
	}

	d := devices[0]
	if d.ID() != "123456789" || d.Alias() != "front desk" {
		t.Errorf("devices[0] = %s/%s, want 123456789/front desk", d.ID(), d.Alias())
	}
	if !reflect.DeepEqual(d.Labels(), map[string]string{"site": "hq", "floor": "2"}) {
		t.Errorf("devices[0].Labels() = %v", d.Labels())
	}
	if devices[1].Alias() != "" || devices[1].Labels() != nil {
		t.Errorf("devices[1] = %+v, want no alias or labels", devices[1])
	}
}

func TestBuildDevices_Empty(t *testing.T) {
	devices, err := BuildDevices(&Config{})
	if err != nil {
		t.Fatalf("BuildDevices() error = %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("len(devices) = %d, want 0", len(devices))
	}
}

func TestBuildOptions(t *testing.T) {
	cfg, err := Parse([]byte(`
title: Front Office
port: 9090
status_url: https://console.example.com/web/device/statuses
session_cookie: abc
initial_panel: nav-2
headers:
  X-Console: ops
devices:
  - id: A
  - id: B
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	opts, err := BuildOptions(cfg)
	if err != nil {
		t.Fatalf("BuildOptions() error = %v", err)
	}

	c, err := peerwatch.New(opts...)
	if err != nil {
		t.Fatalf("peerwatch.New() error = %v", err)
	}
	defer c.Close()

	if c.Port() != 9090 {
		t.Errorf("Port() = %d, want 9090", c.Port())
	}
	if c.ActivePanel() != peerwatch.PanelDevices {
		t.Errorf("ActivePanel() = %v, want %v", c.ActivePanel(), peerwatch.PanelDevices)
	}
	statuses := c.Statuses()
	if len(statuses) != 2 || statuses["A"] != peerwatch.StatusUnknown {
		t.Errorf("Statuses() = %v, want A and B unknown", statuses)
	}
}

func TestBuildOptions_RequiresStatusURL(t *testing.T) {
	cfg, err := Parse([]byte(`
statusapi:
  session_secret: s
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if _, err := BuildOptions(cfg); err == nil {
		t.Error("BuildOptions() expected error without status_url, got nil")
	}
}

func TestStatusAPIConfig_ServerConfig(t *testing.T) {
	s := &StatusAPIConfig{
		Port:         9091,
		OnlineWindow: Duration(2 * time.Minute),
		MaxIDs:       10,
		RateLimit:    5,
		Burst:        7,
	}

	got := s.ServerConfig()
	if got.Port != 9091 || got.OnlineWindow != 2*time.Minute || got.MaxIDs != 10 || got.RateLimit != 5 || got.Burst != 7 {
		t.Errorf("ServerConfig() = %+v", got)
	}
}

func TestMapToKeyValuePairs(t *testing.T) {
	tests := []struct {
		name  string
		input map[string]string
		want  []string
	}{
		{"nil map", nil, []string{}},
		{"single", map[string]string{"a": "1"}, []string{"a", "1"}},
		{"sorted", map[string]string{"b": "2", "a": "1", "c": "3"}, []string{"a", "1", "b", "2", "c", "3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapToKeyValuePairs(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("mapToKeyValuePairs() = %v, want %v", got, tt.want)
			}
		})
	}
}
