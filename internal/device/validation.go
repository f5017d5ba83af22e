package device

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxIDLength          = 64
	maxNameLength        = 100
	maxDescriptionLength = 1024

	// maxHostnameLength is the DNS limit for a fully qualified name.
	maxHostnameLength = 253
)

// hostnameRegex matches RFC 1123 host names. A leading hyphen is rejected,
// which also keeps addresses from being read as ping flags.
var hostnameRegex = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9-]{0,61}[A-Za-z0-9])?(?:\.[A-Za-z0-9](?:[A-Za-z0-9-]{0,61}[A-Za-z0-9])?)*\.?$`)

// ValidateDevice checks the fields required to register a device.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}
	if err := ValidateID(d.ID); err != nil {
		return err
	}
	if err := ValidateAddress(d.Address); err != nil {
		return err
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	return ValidateDescription(d.Description)
}

// ValidateUpdate checks only the fields an Update would actually change.
func ValidateUpdate(u Update) error {
	if u.Address != nil && *u.Address != "" {
		if err := ValidateAddress(*u.Address); err != nil {
			return err
		}
	}
	if u.Name != nil && *u.Name != "" {
		if err := ValidateName(*u.Name); err != nil {
			return err
		}
	}
	if u.Description != nil {
		return ValidateDescription(*u.Description)
	}
	return nil
}

// ValidateID checks if a device ID is usable as a key.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: id cannot be empty", ErrInvalidDevice)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: id exceeds %d characters", ErrInvalidDevice, maxIDLength)
	}
	return nil
}

// ValidateName checks if a device name is valid.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidDevice)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidDevice, maxNameLength)
	}
	return nil
}

// ValidateDescription checks the free-text description length.
func ValidateDescription(desc string) error {
	if len(desc) > maxDescriptionLength {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidDevice, maxDescriptionLength)
	}
	return nil
}

// ValidateAddress accepts an IPv4/IPv6 literal or a host name.
func ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("%w: address cannot be empty", ErrInvalidDevice)
	}
	if net.ParseIP(addr) != nil {
		return nil
	}
	if len(addr) > maxHostnameLength || !hostnameRegex.MatchString(addr) {
		return fmt.Errorf("%w: %q is not an IP address or host name", ErrInvalidDevice, addr)
	}
	return nil
}

// GenerateID creates a new UUID for a device.
func GenerateID() string {
	return uuid.New().String()
}
