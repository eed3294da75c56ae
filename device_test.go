package peerwatch

import "testing"

func TestNewDevice(t *testing.T) {
	d, err := NewDevice("  123456789 ",
		WithAlias("front desk"),
		WithLabels("site", "hq", "team", "support"),
	)
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}

	if d.ID() != "123456789" {
		t.Errorf("ID() = %q, want %q", d.ID(), "123456789")
	}
	if d.Alias() != "front desk" {
		t.Errorf("Alias() = %q, want %q", d.Alias(), "front desk")
	}
	if labels := d.Labels(); labels["site"] != "hq" || labels["team"] != "support" {
		t.Errorf("Labels() = %v, want site=hq team=support", labels)
	}
}

func TestNewDevice_Errors(t *testing.T) {
	tests := []struct {
		name string
		id   string
		opts []DeviceOption
	}{
		{"empty id", "", nil},
		{"blank id", "   ", nil},
		{"odd labels", "A", []DeviceOption{WithLabels("site")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewDevice(tt.id, tt.opts...); err == nil {
				t.Error("NewDevice() expected error, got nil")
			}
		})
	}
}

func TestDevice_LabelsAreCopied(t *testing.T) {
	d, err := NewDevice("A", WithLabels("site", "hq"))
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}

	labels := d.Labels()
	labels["site"] = "mutated"

	if got := d.Labels()["site"]; got != "hq" {
		t.Errorf("Labels()[site] = %q, want %q", got, "hq")
	}
}

func TestDevice_NoLabels(t *testing.T) {
	d, err := NewDevice("A")
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	if d.Labels() != nil {
		t.Errorf("Labels() = %v, want nil", d.Labels())
	}
}
