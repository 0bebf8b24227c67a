// Package monitor runs the background samplers that watch an OpenClaw state
// directory between audits: leaked credentials in logs and transcripts,
// tampering with persisted memory, and runaway model spend.
//
// Each monitor is a Runner around a sampler. A Runner owns one goroutine,
// samples immediately on Start and then on every tick, and keeps a bounded
// history of alerts that Status copies out without waiting on a sample in
// progress. Runners share nothing with each other; the Supervisor only
// starts and stops them together.
package monitor

import (
	"time"

	"github.com/secureclaw/secureclaw/internal/types"
)

// Monitor names, also used as the alert Source and the metrics label.
const (
	NameCredential = "credential"
	NameMemory     = "memory"
	NameCost       = "cost"
)

// Alert is one observation reported by a monitor.
type Alert struct {
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	Severity  types.Severity `json:"severity"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
}

// Status is a point-in-time view of a monitor.
type Status struct {
	Name    string  `json:"name"`
	Running bool    `json:"running"`
	Alerts  []Alert `json:"alerts"`
}

// Monitor is the lifecycle every background sampler exposes.
type Monitor interface {
	Name() string
	Start(stateDir string) error
	Stop()
	Status() Status
}
