package device

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		addr    string
		wantErr bool
	}{
		{"10.0.0.1", false},
		{"::1", false},
		{"fe80::1", false},
		{"router.local", false},
		{"gw-01.example.com", false},
		{"example.com.", false},
		{"", true},
		{"-c", true},
		{"--help", true},
		{"host name", true},
		{"10.0.0.1; rm -rf /", true},
		{strings.Repeat("a", 64) + ".com", true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			err := ValidateAddress(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAddress(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidDevice) {
				t.Errorf("ValidateAddress(%q) error = %v, want ErrInvalidDevice", tt.addr, err)
			}
		})
	}
}

func TestValidateDevice(t *testing.T) {
	valid := func() *Device {
		return &Device{ID: "d1", Address: "10.0.0.1", Name: "edge"}
	}

	tests := []struct {
		name    string
		mutate  func(d *Device)
		wantErr bool
	}{
		{"valid", func(*Device) {}, false},
		{"missing id", func(d *Device) { d.ID = "" }, true},
		{"long id", func(d *Device) { d.ID = strings.Repeat("x", maxIDLength+1) }, true},
		{"missing name", func(d *Device) { d.Name = "  " }, true},
		{"long name", func(d *Device) { d.Name = strings.Repeat("n", maxNameLength+1) }, true},
		{"bad address", func(d *Device) { d.Address = "-W" }, true},
		{"long description", func(d *Device) { d.Description = strings.Repeat("d", maxDescriptionLength+1) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid()
			tt.mutate(d)
			err := ValidateDevice(d)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDevice() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if err := ValidateDevice(nil); !errors.Is(err, ErrInvalidDevice) {
		t.Errorf("ValidateDevice(nil) = %v, want ErrInvalidDevice", err)
	}
}

func TestValidateUpdate(t *testing.T) {
	empty := ""
	bad := "-c"
	good := "10.0.0.2"

	if err := ValidateUpdate(Update{Address: &empty, Name: &empty}); err != nil {
		t.Errorf("empty address and name should be ignored, got %v", err)
	}
	if err := ValidateUpdate(Update{Address: &bad}); err == nil {
		t.Error("ValidateUpdate() accepted a flag-like address")
	}
	if err := ValidateUpdate(Update{Address: &good}); err != nil {
		t.Errorf("ValidateUpdate() error = %v", err)
	}
}

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()
	if a == b {
		t.Error("GenerateID() returned the same value twice")
	}
	if len(a) != 36 {
		t.Errorf("len(GenerateID()) = %d, want 36", len(a))
	}
}
