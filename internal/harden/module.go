package harden

import (
	"github.com/secureclaw/secureclaw/internal/audit"
)

// Risk classifies how disruptive a fix is.
type Risk string

const (
	// RiskLow fixes never change how the host behaves for its owner.
	RiskLow Risk = "low"

	// RiskHigh fixes can break a deliberate setup and need Full.
	RiskHigh Risk = "high"
)

// Fix is one planned change to one file.
type Fix struct {
	FindingID   string
	Target      string
	Risk        Risk
	Description string
	Apply       func() error
}

// Module turns findings it owns into fixes. Plan must not mutate anything.
// Fixes returned alongside an error are still considered.
type Module interface {
	Name() string
	Plan(actx *audit.Context, findings []audit.Finding) ([]Fix, error)
}

// DefaultModules returns the remediation modules in priority order.
func DefaultModules() []Module {
	return []Module{
		PermissionsModule{},
		ConfigModule{},
	}
}
