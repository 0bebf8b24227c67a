// Package types defines the severity scale shared by audit findings and
// monitor alerts.
package types

import (
	"fmt"
	"strings"
)

// Severity is the ordinal risk level of a finding or alert.
type Severity string

const (
	// SeverityCritical marks an issue that allows immediate compromise.
	SeverityCritical Severity = "critical"

	// SeverityHigh marks an issue that exposes credentials or control surfaces.
	SeverityHigh Severity = "high"

	// SeverityMedium marks weakened defaults that widen the attack surface.
	SeverityMedium Severity = "medium"

	// SeverityLow marks hygiene issues and incomplete checks.
	SeverityLow Severity = "low"
)

// Severities lists every severity from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// Rank returns the ordinal rank of s (critical=4 ... low=1, unknown=0).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// AtLeast reports whether s is as severe as other or more.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// String implements fmt.Stringer.
func (s Severity) String() string {
	return string(s)
}

// ParseSeverity parses a case-insensitive severity name.
func ParseSeverity(v string) (Severity, error) {
	s := Severity(strings.ToLower(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSeverity, v)
	}
	return s, nil
}
