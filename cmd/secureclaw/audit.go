package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/secureclaw/secureclaw/internal/audit"
	"github.com/secureclaw/secureclaw/internal/formatter"
	"github.com/secureclaw/secureclaw/internal/harden"
	"github.com/secureclaw/secureclaw/internal/skillscan"
)

var (
	auditJSON bool
	auditDeep bool
	auditFix  bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit the OpenClaw installation",
	Long: `Run every check against the state directory and print a scored report.

--deep adds the slow checks: content scanning of logs and transcripts and a
full scan of every installed skill. --fix runs full hardening afterwards when
any finding is auto-fixable.

Examples:
  secureclaw audit
  secureclaw audit --deep --json
  secureclaw audit --fix`,
	Args: cobra.NoArgs,
	RunE: runAudit,
}

func init() {
	auditCmd.GroupID = "core"
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "Print the report as JSON")
	auditCmd.Flags().BoolVar(&auditDeep, "deep", false, "Include expensive checks")
	auditCmd.Flags().BoolVar(&auditFix, "fix", false, "Apply fixes after the audit")
	rootCmd.AddCommand(auditCmd)
}

// newSkillScanner allows the hosts from the settings and from the
// secureclaw section of openclaw.json.
func newSkillScanner(actx *audit.Context) *skillscan.Scanner {
	return skillscan.New(
		skillscan.WithAllowedHosts(settings.AllowedHosts(actx.Config)),
		skillscan.WithLogger(logger),
	)
}

func newAuditor(actx *audit.Context) *audit.Auditor {
	return audit.New(audit.WithLogger(logger), audit.WithSkillScanner(newSkillScanner(actx)))
}

func runAudit(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	actx := newAuditContext()

	report, err := newAuditor(actx).Run(ctx, actx, audit.Options{Deep: auditDeep, Fix: auditFix})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	format := outputFormat(cmd)
	if format == "table" {
		printScore(out, report)
		fmt.Fprintln(out)
	}
	if err := formatter.WriteReport(out, format, stateDir, report); err != nil {
		return err
	}

	if !auditFix || report.Summary.AutoFixable == 0 {
		return nil
	}

	logger.Info("applying fixes", zap.Int("fixable", report.Summary.AutoFixable))
	res, err := harden.New(harden.WithLogger(logger)).Harden(ctx, harden.Options{
		Full:    true,
		Context: actx,
		Report:  report,
	})
	if err != nil {
		return err
	}
	if format == "json" {
		return formatter.WriteJSON(out, res)
	}
	fmt.Fprintln(out)
	return formatter.WriteHardenResult(out, res)
}
