package formatter

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/secureclaw/secureclaw/internal/audit"
	"github.com/secureclaw/secureclaw/internal/harden"
	"github.com/secureclaw/secureclaw/internal/monitor"
	"github.com/secureclaw/secureclaw/internal/skillscan"
)

// Output formats accepted by the CLI.
const (
	FormatTable    = "table"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// Formats lists the supported output formats.
var Formats = []string{FormatTable, FormatJSON, FormatMarkdown}

// WriteReport writes r in the named format.
func WriteReport(w io.Writer, format, stateDir string, r *audit.Report) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, r)
	case FormatMarkdown:
		return WriteMarkdown(w, stateDir, r)
	case FormatTable, "":
		return WriteReportTable(w, r)
	default:
		return fmt.Errorf("unknown format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

// WriteReportTable writes the score line, then findings from most to least
// severe. Ties keep check order.
func WriteReportTable(w io.Writer, r *audit.Report) error {
	s := r.Summary
	if _, err := fmt.Fprintf(w, "Score: %d/100  (critical %d, high %d, medium %d, low %d; %d auto-fixable)\n\n",
		r.Score, s.Critical, s.High, s.Medium, s.Low, s.AutoFixable); err != nil {
		return err
	}
	if len(r.Findings) == 0 {
		_, err := fmt.Fprintln(w, "No findings.")
		return err
	}

	findings := make([]audit.Finding, len(r.Findings))
	copy(findings, r.Findings)
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Severity.Rank() > findings[j].Severity.Rank()
	})

	tbl := NewTable(w, "SEVERITY", "ID", "MESSAGE", "FIX")
	tbl.SetMaxWidth(1, 48).SetMaxWidth(2, 80)
	for _, f := range findings {
		fix := "-"
		if f.AutoFixable {
			fix = f.Remediation
		}
		tbl.AddRow(strings.ToUpper(f.Severity.String()), f.ID, f.Message, fix)
	}
	return tbl.Render()
}

// WriteHardenResult lists applied, skipped and failed actions per module.
func WriteHardenResult(w io.Writer, r *harden.Result) error {
	if _, err := fmt.Fprintf(w, "Backup: %s\n", r.BackupDir); err != nil {
		return err
	}
	if len(r.Results) == 0 {
		_, err := fmt.Fprintln(w, "Nothing to harden.")
		return err
	}
	tbl := NewTable(w, "MODULE", "STATUS", "ACTION")
	for _, m := range r.Results {
		for _, a := range m.Applied {
			tbl.AddRow(m.Module, "applied", a)
		}
		for _, a := range m.Skipped {
			tbl.AddRow(m.Module, "skipped", a)
		}
		for _, e := range m.Errors {
			tbl.AddRow(m.Module, "failed", e)
		}
	}
	return tbl.Render()
}

// WriteSkillResult writes a scan verdict and its findings.
func WriteSkillResult(w io.Writer, r *skillscan.Result) error {
	verdict := "SAFE"
	if !r.Safe {
		verdict = "UNSAFE"
	}
	if _, err := fmt.Fprintf(w, "Skill %s: %s\n", r.Name, verdict); err != nil {
		return err
	}
	for _, f := range r.Findings {
		if _, err := fmt.Fprintf(w, "  - %s\n", f); err != nil {
			return err
		}
	}
	return nil
}

// WriteAlerts writes alerts newest first.
func WriteAlerts(w io.Writer, alerts []monitor.Alert) error {
	if len(alerts) == 0 {
		_, err := fmt.Fprintln(w, "No alerts.")
		return err
	}
	tbl := NewTable(w, "TIME", "MONITOR", "SEVERITY", "MESSAGE")
	tbl.SetMaxWidth(3, 100)
	for i := len(alerts) - 1; i >= 0; i-- {
		a := alerts[i]
		tbl.AddRow(a.Timestamp.Format("2006-01-02 15:04:05"), a.Source, a.Severity.String(), a.Message)
	}
	return tbl.Render()
}

// WriteStatuses writes one line per monitor.
func WriteStatuses(w io.Writer, statuses []monitor.Status) error {
	tbl := NewTable(w, "MONITOR", "STATE", "ALERTS")
	for _, st := range statuses {
		state := "stopped"
		if st.Running {
			state = "running"
		}
		tbl.AddRow(st.Name, state, fmt.Sprint(len(st.Alerts)))
	}
	return tbl.Render()
}
