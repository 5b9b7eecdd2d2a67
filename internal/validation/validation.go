// Package validation provides input validation for roster entries.
package validation

import (
	"fmt"
	"net"
	"regexp"
	"strings"
)

// =============================================================================
// Name Validation
// =============================================================================

// NameRules defines the validation rules for display names.
type NameRules struct {
	MinLength int
	MaxLength int
}

// DefaultNameRules returns the rules for server display names.
func DefaultNameRules() NameRules {
	return NameRules{
		MinLength: 1,
		MaxLength: 64,
	}
}

// ValidateName validates a display name according to the given rules.
// Names are shown verbatim to viewers, so any printable text is allowed.
func ValidateName(name string, rules NameRules) error {
	n := len([]rune(name))
	if n < rules.MinLength {
		return fmt.Errorf("name too short: minimum %d characters required", rules.MinLength)
	}
	if n > rules.MaxLength {
		return fmt.Errorf("name too long: maximum %d characters allowed", rules.MaxLength)
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("name cannot contain control characters at position %d", i)
		}
	}
	return nil
}

// ValidateServerName validates a server name with default rules.
func ValidateServerName(name string) error {
	return ValidateName(name, DefaultNameRules())
}

// =============================================================================
// Address Validation
// =============================================================================

var hostLabel = regexp.MustCompile(`^[A-Za-z0-9_]([A-Za-z0-9_-]{0,61}[A-Za-z0-9_])?$`)

// ValidateHost validates a server address: an IP literal or a DNS name.
// The address doubles as the storage key, so it may not carry a port.
func ValidateHost(host string) error {
	if host == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	if len(host) > 253 {
		return fmt.Errorf("address too long: maximum 253 characters")
	}
	if strings.Contains(host, ":") {
		return fmt.Errorf("address cannot contain a port; use the port field")
	}

	for i, label := range strings.Split(strings.TrimSuffix(host, "."), ".") {
		if !hostLabel.MatchString(label) {
			return fmt.Errorf("invalid address label %d %q", i, label)
		}
	}
	return nil
}

// ValidatePort validates an optional port. Zero means the default port.
func ValidatePort(port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("port %d out of range 0..65535", port)
	}
	return nil
}

// =============================================================================
// Color Validation
// =============================================================================

var hexColor = regexp.MustCompile(`^#([0-9A-Fa-f]{3}|[0-9A-Fa-f]{6})$`)

// ValidateColor validates a CSS hex color such as #3fa or #33ffaa.
func ValidateColor(color string) error {
	if !hexColor.MatchString(color) {
		return fmt.Errorf("color %q must be #rgb or #rrggbb", color)
	}
	return nil
}
