package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/secureclaw/secureclaw/internal/audit"
	"github.com/secureclaw/secureclaw/internal/formatter"
	"github.com/secureclaw/secureclaw/internal/monitor"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show security score and monitor alerts",
	Long: `Run a quick audit and one sample of each monitor, then print the score,
each monitor's state and how many alerts its sample raised.

Monitors only run continuously under "secureclaw monitor"; here they show
as stopped.

Examples:
  secureclaw status
  secureclaw status -o json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.GroupID = "core"
	rootCmd.AddCommand(statusCmd)
}

type statusOutput struct {
	StateDir string           `json:"stateDir"`
	Score    int              `json:"score"`
	Summary  audit.Summary    `json:"summary"`
	Monitors []monitor.Status `json:"monitors"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	actx := newAuditContext()
	report, err := newAuditor(actx).Run(ctx, actx, audit.Options{})
	if err != nil {
		return err
	}

	sup := monitor.NewSupervisor(settings, monitor.WithLogger(logger))
	for _, m := range sup.Monitors() {
		if _, err := m.Check(ctx, stateDir); err != nil {
			logger.Warn("monitor sample failed", zap.String("monitor", m.Name()), zap.Error(err))
		}
	}

	st := statusOutput{StateDir: stateDir, Score: report.Score, Summary: report.Summary, Monitors: sup.Statuses()}
	out := cmd.OutOrStdout()
	if outputFormat(cmd) == "json" {
		return formatter.WriteJSON(out, st)
	}

	fmt.Fprintf(out, "State directory: %s\n", stateDir)
	printScore(out, report)
	fmt.Fprintln(out)
	if err := formatter.WriteStatuses(out, st.Monitors); err != nil {
		return err
	}

	total := 0
	for _, m := range st.Monitors {
		total += len(m.Alerts)
	}
	fmt.Fprintf(out, "\nRecent alerts: %d\n", total)
	return nil
}
