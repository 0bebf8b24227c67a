package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/secureclaw/secureclaw/internal/formatter"
	"github.com/secureclaw/secureclaw/internal/harden"
)

var (
	hardenFull     bool
	hardenRollback bool
)

var hardenCmd = &cobra.Command{
	Use:   "harden [--full] [--rollback [timestamp]]",
	Short: "Apply security fixes, or roll back a previous run",
	Long: `Fix the auto-fixable findings of a fresh audit. Every file a fix touches
is copied to backups/<timestamp>/ first; if the copy fails nothing changes.

Without --full only low-risk fixes apply (file modes, log redaction, spend
limits). --full also rebinds the gateway to loopback, requires command
approvals and disables elevated tools.

--rollback restores the newest backup, or the one named by timestamp.

Examples:
  secureclaw harden
  secureclaw harden --full
  secureclaw harden --rollback
  secureclaw harden --rollback 2026-03-01T12-00-00.000000000Z`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHarden,
}

func init() {
	hardenCmd.GroupID = "core"
	hardenCmd.Flags().BoolVar(&hardenFull, "full", false, "Apply high-risk fixes too")
	hardenCmd.Flags().BoolVar(&hardenRollback, "rollback", false, "Restore a backup instead of hardening")
	rootCmd.AddCommand(hardenCmd)
}

func runHarden(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	actx := newAuditContext()
	engine := harden.New(harden.WithLogger(logger), harden.WithAuditor(newAuditor(actx)))

	if hardenRollback {
		ts := ""
		if len(args) == 1 {
			ts = args[0]
		}
		snap, err := engine.Rollback(ctx, stateDir, ts)
		if err != nil {
			return err
		}
		if outputFormat(cmd) == "json" {
			return formatter.WriteJSON(out, snap)
		}
		pterm.Success.WithWriter(out).Printfln("Restored %d path(s) from %s", len(snap.Entries), snap.Timestamp)
		return nil
	}
	if len(args) > 0 {
		return errors.New("a timestamp is only accepted with --rollback")
	}

	res, err := engine.Harden(ctx, harden.Options{
		Full:        hardenFull,
		Interactive: isInteractive(),
		Context:     actx,
	})
	if err != nil {
		return err
	}
	if outputFormat(cmd) == "json" {
		return formatter.WriteJSON(out, res)
	}
	if err := formatter.WriteHardenResult(out, res); err != nil {
		return err
	}
	if res.BackupDir != harden.NoBackup {
		fmt.Fprintf(out, "\nUndo with: secureclaw harden --rollback %s\n", filepath.Base(res.BackupDir))
	}
	return nil
}
