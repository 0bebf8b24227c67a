package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pterm/pterm"

	"github.com/secureclaw/secureclaw/internal/audit"
	"github.com/secureclaw/secureclaw/internal/monitor"
	"github.com/secureclaw/secureclaw/internal/types"
)

func init() {
	if fi, err := os.Stdout.Stat(); err == nil && fi.Mode()&os.ModeCharDevice == 0 {
		pterm.DisableStyling()
	}
}

// printScore writes a one-line colored verdict for a report.
func printScore(w io.Writer, r *audit.Report) {
	msg := fmt.Sprintf("Security score %d/100", r.Score)
	switch {
	case r.Summary.Critical > 0:
		pterm.Error.WithWriter(w).Printfln("%s: %d critical finding(s)", msg, r.Summary.Critical)
	case r.Score < 80:
		pterm.Warning.WithWriter(w).Println(msg)
	default:
		pterm.Success.WithWriter(w).Println(msg)
	}
}

// severityStyle colors a severity label.
func severityStyle(s types.Severity) string {
	switch s {
	case types.SeverityCritical:
		return pterm.FgRed.Sprint("CRITICAL")
	case types.SeverityHigh:
		return pterm.FgRed.Sprint("HIGH")
	case types.SeverityMedium:
		return pterm.FgYellow.Sprint("MEDIUM")
	default:
		return pterm.FgBlue.Sprint("LOW")
	}
}

// printAlert writes one live alert line.
func printAlert(w io.Writer, a monitor.Alert) {
	fmt.Fprintf(w, "%s %-10s %s %s\n",
		a.Timestamp.Local().Format("15:04:05"), pterm.FgCyan.Sprint(a.Source), severityStyle(a.Severity), a.Message)
}

func isInteractive() bool {
	fi, err := os.Stdin.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
