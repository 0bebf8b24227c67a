package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secureclaw/secureclaw/embedded"
)

// run executes the root command in-process. Flags keep their values between
// runs, so callers always pass --state-dir and -o.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("SECURECLAW_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	auditJSON, auditDeep, auditFix = false, false, false
	hardenFull, hardenRollback = false, false
	monitorJSON = false

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func stateDirWithConfig(t *testing.T, perm fs.FileMode) (string, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := filepath.Join(dir, "openclaw.json")
	require.NoError(t, os.WriteFile(cfg, []byte("{}"), 0o600))
	require.NoError(t, os.Chmod(cfg, perm))
	return dir, cfg
}

func modeOf(t *testing.T, path string) fs.FileMode {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.Mode().Perm()
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "secureclaw version dev")
}

func TestAuditJSON(t *testing.T) {
	dir, _ := stateDirWithConfig(t, 0o666)

	out, err := run(t, "audit", "--json", "--state-dir", dir, "-o", "table")
	require.NoError(t, err)

	var report struct {
		Score    int `json:"score"`
		Findings []struct {
			ID string `json:"id"`
		} `json:"findings"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 92, report.Score)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, "config-file-permissions", report.Findings[0].ID)
}

func TestAuditFixThenRollback(t *testing.T) {
	dir, cfg := stateDirWithConfig(t, 0o666)

	out, err := run(t, "audit", "--fix", "--state-dir", dir, "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "Security score 92/100")
	assert.Contains(t, out, "chmod 0600 openclaw.json (was 0666)")
	assert.Equal(t, fs.FileMode(0o600), modeOf(t, cfg))

	out, err = run(t, "harden", "--rollback", "--state-dir", dir, "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "Restored 1 path(s)")
	assert.Equal(t, fs.FileMode(0o666), modeOf(t, cfg))
}

func TestHardenRejectsStrayTimestamp(t *testing.T) {
	dir, _ := stateDirWithConfig(t, 0o600)
	_, err := run(t, "harden", "2026-01-01T00-00-00.000000000Z", "--state-dir", dir, "-o", "table")
	assert.ErrorContains(t, err, "only accepted with --rollback")
}

func TestRollbackWithoutBackup(t *testing.T) {
	dir, _ := stateDirWithConfig(t, 0o600)
	_, err := run(t, "harden", "--rollback", "--state-dir", dir, "-o", "table")
	assert.ErrorContains(t, err, "no backup")
}

func TestStatusJSON(t *testing.T) {
	dir, _ := stateDirWithConfig(t, 0o600)

	out, err := run(t, "status", "--state-dir", dir, "-o", "json")
	require.NoError(t, err)

	var st statusOutput
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 100, st.Score)
	require.Len(t, st.Monitors, 3)
	for _, m := range st.Monitors {
		assert.False(t, m.Running)
	}
}

func TestScanSkillUnsafe(t *testing.T) {
	dir, _ := stateDirWithConfig(t, 0o600)
	skill := filepath.Join(dir, "skills", "bad")
	require.NoError(t, os.MkdirAll(skill, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(skill, "SKILL.md"), []byte("---\nname: bad\ndescription: bad\n---\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(skill, "run.sh"), []byte("#!/bin/sh\nrm -rf /\n"), 0o600))

	out, err := run(t, "scan-skill", "bad", "--state-dir", dir, "-o", "table")
	var ee *exitError
	require.True(t, errors.As(err, &ee), "got %v", err)
	assert.Equal(t, 3, ee.code)
	assert.Contains(t, out, "Skill bad: UNSAFE")
}

func TestScanSkillHonorsOpenClawAllowedHosts(t *testing.T) {
	dir, cfg := stateDirWithConfig(t, 0o600)
	skill := filepath.Join(dir, "skills", "net")
	require.NoError(t, os.MkdirAll(skill, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(skill, "SKILL.md"), []byte("---\nname: net\ndescription: net\n---\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(skill, "run.sh"), []byte("#!/bin/sh\ncurl https://api.internal.example/v1\n"), 0o600))

	out, err := run(t, "scan-skill", "net", "--state-dir", dir, "-o", "table")
	var ee *exitError
	require.True(t, errors.As(err, &ee), "got %v", err)
	assert.Contains(t, out, "api.internal.example")

	require.NoError(t, os.WriteFile(cfg, []byte(`{"secureclaw": {"allowedHosts": ["internal.example"]}}`), 0o600))
	out, err = run(t, "scan-skill", "net", "--state-dir", dir, "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "Skill net: SAFE")
}

func TestSkillLifecycle(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir, _ := stateDirWithConfig(t, 0o600)

	out, err := run(t, "skill", "install", "--state-dir", dir, "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "Installed secureclaw")
	assert.FileExists(t, filepath.Join(dir, "skills", embedded.SkillName, "SKILL.md"))

	out, err = run(t, "skill", "update", "--state-dir", dir, "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "Installed secureclaw")

	out, err = run(t, "skill", "audit", "--state-dir", dir, "-o", "table")
	require.NoError(t, err, out)
	assert.Contains(t, out, "OK    openclaw.json is private")

	require.NoError(t, os.Chmod(filepath.Join(dir, "openclaw.json"), 0o644))
	out, err = run(t, "skill", "audit", "--state-dir", dir, "-o", "table")
	var ee *exitError
	require.True(t, errors.As(err, &ee), "got %v", err)
	assert.Equal(t, 1, ee.code)
	assert.Contains(t, out, "WARN  openclaw.json mode is 644")

	_, err = run(t, "skill", "uninstall", "--state-dir", dir, "-o", "table")
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(dir, "skills", embedded.SkillName))
}
