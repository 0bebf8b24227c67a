package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/secureclaw/secureclaw/internal/formatter"
	"github.com/secureclaw/secureclaw/pkg/statedir"
)

var scanSkillCmd = &cobra.Command{
	Use:   "scan-skill <name>",
	Short: "Statically vet an installed skill",
	Long: `Scan skills/<name> for destructive commands, unrestricted shell execution,
writes outside the skill, calls to hosts off the allow-list, known malware
signatures, hardcoded secrets and escaping symlinks.

Exits with status 3 when the skill is unsafe.

Examples:
  secureclaw scan-skill weather
  secureclaw scan-skill weather -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runScanSkill,
}

func init() {
	scanSkillCmd.GroupID = "skills"
	rootCmd.AddCommand(scanSkillCmd)
}

func runScanSkill(cmd *cobra.Command, args []string) error {
	name := args[0]
	res, err := newSkillScanner(newAuditContext()).Scan(cmd.Context(), statedir.SkillDir(stateDir, name), name)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputFormat(cmd) == "json" {
		err = formatter.WriteJSON(out, res)
	} else {
		err = formatter.WriteSkillResult(out, res)
	}
	if err != nil {
		return err
	}
	if !res.Safe {
		return &exitError{code: 3, err: fmt.Errorf("skill %s is unsafe: %d finding(s)", name, len(res.Findings))}
	}
	return nil
}
