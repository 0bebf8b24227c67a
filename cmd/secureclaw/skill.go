package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/secureclaw/secureclaw/embedded"
	"github.com/secureclaw/secureclaw/internal/formatter"
	"github.com/secureclaw/secureclaw/pkg/statedir"
)

// quickAuditTimeout bounds the bundled script.
const quickAuditTimeout = 60 * time.Second

var skillCmd = &cobra.Command{
	Use:   "skill",
	Short: "Manage the bundled secureclaw agent skill",
	Long: `The secureclaw skill teaches the agent to audit its own installation. It
ships inside this binary.

Commands:
  install     Write the skill to skills/secureclaw and vet it (alias: update)
  audit       Run the skill's read-only quick-audit script
  uninstall   Remove skills/secureclaw`,
}

var skillInstallCmd = &cobra.Command{
	Use:     "install",
	Aliases: []string{"update"},
	Short:   "Install the bundled skill, replacing any installed copy",
	Args:  cobra.NoArgs,
	RunE:  runSkillInstall,
}

var skillAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Run the bundled quick-audit script",
	Long: `Run scripts/quick-audit.sh from the installed skill with sh. The script's
exit status becomes this command's: 0 ok, 1 warnings, 2 critical.`,
	Args: cobra.NoArgs,
	RunE: runSkillAudit,
}

var skillUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the installed skill",
	Args:  cobra.NoArgs,
	RunE:  runSkillUninstall,
}

func init() {
	skillCmd.GroupID = "skills"
	skillCmd.AddCommand(skillInstallCmd, skillAuditCmd, skillUninstallCmd)
	rootCmd.AddCommand(skillCmd)
}

func skillDir() string {
	return statedir.SkillDir(stateDir, embedded.SkillName)
}

func runSkillInstall(cmd *cobra.Command, _ []string) error {
	dst := skillDir()
	n, err := embedded.Install(dst)
	if err != nil {
		return fmt.Errorf("install skill: %w", err)
	}
	logger.Info("skill installed", zap.String("dir", dst), zap.Int("files", n))

	res, err := newSkillScanner(newAuditContext()).Scan(cmd.Context(), dst, embedded.SkillName)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if !res.Safe {
		_ = formatter.WriteSkillResult(out, res)
		return fmt.Errorf("installed skill failed its own scan")
	}
	pterm.Success.WithWriter(out).Printfln("Installed %s (%d files) to %s", embedded.SkillName, n, dst)
	return nil
}

func runSkillAudit(cmd *cobra.Command, _ []string) error {
	script := filepath.Join(skillDir(), filepath.FromSlash(embedded.AuditScript))
	if _, err := os.Stat(script); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errors.New("skill not installed; run secureclaw skill install")
		}
		return err
	}

	code, output, err := runQuickAudit(cmd, script)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), output)
	logger.Debug("quick audit finished", zap.Int("exit_code", code))
	if code != 0 {
		return &exitError{code: code, err: errors.New("")}
	}
	return nil
}

// runQuickAudit runs the script as its own process with the state directory
// as the only argument and returns its exit status and combined output.
func runQuickAudit(cmd *cobra.Command, script string) (int, string, error) {
	ctx, cancel := context.WithTimeout(cmd.Context(), quickAuditTimeout)
	defer cancel()

	c := exec.CommandContext(ctx, "sh", script, stateDir)
	c.Dir = filepath.Dir(filepath.Dir(script))
	var buf bytes.Buffer
	c.Stdout = &buf
	c.Stderr = &buf

	err := c.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, buf.String(), nil
	case errors.As(err, &exitErr) && ctx.Err() == nil:
		return exitErr.ExitCode(), buf.String(), nil
	default:
		return -1, buf.String(), fmt.Errorf("run %s: %w", embedded.AuditScript, err)
	}
}

func runSkillUninstall(cmd *cobra.Command, _ []string) error {
	dir := skillDir()
	info, err := os.Lstat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		pterm.Info.WithWriter(cmd.OutOrStdout()).Println("Skill is not installed")
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory; remove it by hand", dir)
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	pterm.Success.WithWriter(cmd.OutOrStdout()).Printfln("Removed %s", dir)
	return nil
}
