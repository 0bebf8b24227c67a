package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/secureclaw/secureclaw/internal/audit"
	"github.com/secureclaw/secureclaw/internal/config"
	"github.com/secureclaw/secureclaw/internal/logging"
	"github.com/secureclaw/secureclaw/pkg/statedir"
)

var (
	// Set by PersistentPreRunE for every subcommand.
	stateDir string
	settings *config.Settings
	logger   = zap.NewNop()
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "secureclaw",
	Short: "Security auditor and hardener for OpenClaw agents",
	Long: `secureclaw audits an OpenClaw state directory, applies fixes with a
backup taken first, watches for leaked credentials, memory tampering and
runaway spend, and vets third-party skills before they are trusted.

Core Commands:
  audit        Score the installation and list findings
  harden       Apply fixes (low-risk by default), or roll them back
  status       Show score and monitor alerts
  monitor      Run the background monitors until interrupted

Skills:
  scan-skill   Statically vet an installed skill
  skill        Install, run or remove the bundled secureclaw skill

The state directory is taken from --state-dir, $OPENCLAW_STATE_DIR, the
nearest .openclaw above the working directory, or ~/.openclaw.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// exitError carries a specific process exit status.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	_ = logger.Sync() //nolint:errcheck // stderr sync fails on some terminals
	if err == nil {
		return
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil && ee.err.Error() != "" {
			fmt.Fprintln(os.Stderr, "Error:", ee.err)
		}
		os.Exit(ee.code)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "core", Title: "Core Commands:"},
		&cobra.Group{ID: "skills", Title: "Skill Commands:"},
	)

	pf := rootCmd.PersistentFlags()
	pf.String("state-dir", "", "OpenClaw state directory")
	pf.String("config", "", "Settings file (default: ~/.secureclaw/config.yaml)")
	pf.StringP("output", "o", "table", "Output format (table, json, markdown)")
	pf.BoolP("verbose", "v", false, "Enable debug logging")
	for _, name := range []string{"state-dir", "config", "output", "verbose"} {
		_ = viper.BindPFlag(name, pf.Lookup(name))
	}

	// SECURECLAW_STATE_DIR, SECURECLAW_OUTPUT, ...
	viper.SetEnvPrefix("SECURECLAW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

func setup(cmd *cobra.Command, _ []string) error {
	if path := strings.TrimSpace(viper.GetString("config")); path != "" {
		_ = os.Setenv("SECURECLAW_CONFIG", path)
	}

	dir, source, err := statedir.Resolve(viper.GetString("state-dir"))
	if err != nil {
		return err
	}
	stateDir = dir

	settings, err = config.Load(stateDir)
	if err != nil {
		return err
	}

	level := settings.Log.Level
	if viper.GetBool("verbose") {
		level = "debug"
	}
	l, err := logging.New(logging.Options{Level: level, Format: settings.Log.Format, Component: cmd.Name()})
	if err != nil {
		return err
	}
	logger = l
	logger.Debug("state directory", zap.String("path", stateDir), zap.String("source", string(source)))
	return nil
}

// outputFormat is the -o value, with --json as a shortcut.
func outputFormat(cmd *cobra.Command) string {
	if f := cmd.Flags().Lookup("json"); f != nil && f.Changed && f.Value.String() == "true" {
		return "json"
	}
	return viper.GetString("output")
}

// newAuditContext binds an audit context to the resolved state directory.
func newAuditContext() *audit.Context {
	actx := audit.NewContext(stateDir)
	if actx.ConfigErr != nil {
		logger.Warn("openclaw.json could not be loaded", zap.Error(actx.ConfigErr))
	}
	return actx
}
