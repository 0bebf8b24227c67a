package audit

import (
	"time"

	"github.com/secureclaw/secureclaw/internal/types"
)

// Finding categories.
const (
	CategoryPermission = "permission"
	CategoryCredential = "credential-exposure"
	CategoryConfig     = "config"
	CategorySkill      = "skill"
	CategoryMonitoring = "monitoring"
	CategoryAudit      = "audit"
)

// Remediation keys name the hardening module able to fix a finding.
const (
	RemediationPermissions = "permissions"
	RemediationConfig      = "config"
)

// Finding is one detected issue.
type Finding struct {
	ID          string         `json:"id"`
	Category    string         `json:"category"`
	Severity    types.Severity `json:"severity"`
	Message     string         `json:"message"`
	AutoFixable bool           `json:"autoFixable"`
	Remediation string         `json:"remediation,omitempty"`
	Path        string         `json:"path,omitempty"`
}

// Summary counts findings by severity.
type Summary struct {
	Critical    int `json:"critical"`
	High        int `json:"high"`
	Medium      int `json:"medium"`
	Low         int `json:"low"`
	AutoFixable int `json:"autoFixable"`
}

// Report is the scored result of one audit run.
type Report struct {
	Score     int       `json:"score"`
	Summary   Summary   `json:"summary"`
	Findings  []Finding `json:"findings"`
	Timestamp time.Time `json:"timestamp"`
}

// Penalties subtracted from 100 per finding.
var Penalties = map[types.Severity]int{
	types.SeverityCritical: 25,
	types.SeverityHigh:     15,
	types.SeverityMedium:   8,
	types.SeverityLow:      3,
}

// Score computes the 0-100 score for a set of findings.
func Score(findings []Finding) int {
	score := 100
	for _, f := range findings {
		score -= Penalties[f.Severity]
	}
	return max(0, min(100, score))
}

// Summarize counts findings by severity.
func Summarize(findings []Finding) Summary {
	var s Summary
	for _, f := range findings {
		switch f.Severity {
		case types.SeverityCritical:
			s.Critical++
		case types.SeverityHigh:
			s.High++
		case types.SeverityMedium:
			s.Medium++
		case types.SeverityLow:
			s.Low++
		}
		if f.AutoFixable {
			s.AutoFixable++
		}
	}
	return s
}

// Fixable returns the auto-fixable findings grouped by remediation key.
func (r *Report) Fixable() map[string][]Finding {
	out := map[string][]Finding{}
	for _, f := range r.Findings {
		if f.AutoFixable && f.Remediation != "" {
			out[f.Remediation] = append(out[f.Remediation], f)
		}
	}
	return out
}
