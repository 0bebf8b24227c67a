package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/secureclaw/secureclaw/internal/formatter"
	"github.com/secureclaw/secureclaw/internal/monitor"
)

// costReportAlerts is how many of the newest cost alerts are shown.
const costReportAlerts = 5

var costReportCmd = &cobra.Command{
	Use:   "cost-report",
	Short: "Show spend alerts from the usage logs",
	Long: `Read usage/*.jsonl once and print the newest cost alerts: hourly or daily
spend over the limit and single requests far above the running mean.

Examples:
  secureclaw cost-report
  secureclaw cost-report -o json`,
	Args: cobra.NoArgs,
	RunE: runCostReport,
}

func init() {
	costReportCmd.GroupID = "core"
	rootCmd.AddCommand(costReportCmd)
}

func runCostReport(cmd *cobra.Command, _ []string) error {
	m := monitor.NewCostMonitor(settings.Cost, monitor.WithLogger(logger))
	alerts, err := m.Check(cmd.Context(), stateDir)
	if err != nil {
		return err
	}
	if len(alerts) > costReportAlerts {
		alerts = alerts[len(alerts)-costReportAlerts:]
	}

	out := cmd.OutOrStdout()
	if outputFormat(cmd) == "json" {
		return formatter.WriteJSON(out, alerts)
	}
	fmt.Fprintf(out, "Cost monitor: limits $%.2f/hour, $%.2f/day (openclaw.json secureclaw.cost overrides)\n\n",
		settings.Cost.HourlyLimitUSD, settings.Cost.DailyLimitUSD)
	return formatter.WriteAlerts(out, alerts)
}
