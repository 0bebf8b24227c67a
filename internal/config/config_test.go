package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateHome(t *testing.T) {
	t.Helper()
	t.Setenv("SECURECLAW_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	for _, k := range []string{
		"SECURECLAW_LOG_LEVEL",
		"SECURECLAW_LOG_FORMAT",
		"SECURECLAW_HOURLY_LIMIT_USD",
		"SECURECLAW_DAILY_LIMIT_USD",
		"SECURECLAW_ALLOWED_HOSTS",
	} {
		t.Setenv(k, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 100, cfg.Monitors.AlertCapacity)
	assert.Equal(t, 30*time.Second, cfg.Monitors.CredentialInterval.Std())
	assert.Equal(t, 5.0, cfg.Cost.HourlyLimitUSD)
	assert.Equal(t, 50.0, cfg.Cost.DailyLimitUSD)
	assert.Contains(t, cfg.Skills.AllowedHosts, "github.com")

	// Mutating the default list must not leak into later callers.
	cfg.Skills.AllowedHosts[0] = "evil.example"
	assert.Equal(t, "localhost", DefaultAllowedHosts[0])
}

func TestLoad_NoFiles(t *testing.T) {
	isolateHome(t)

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Layering(t *testing.T) {
	isolateHome(t)

	home := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(home, []byte(`
log:
  level: debug
cost:
  hourly_limit_usd: 2
  daily_limit_usd: 20
`), 0o600))
	t.Setenv("SECURECLAW_CONFIG", home)

	stateDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(stateDir, SettingsFile), []byte(`
cost:
  daily_limit_usd: 30
monitors:
  cost_interval: 5s
  alert_capacity: 10
skills:
  allowed_hosts: [api.internal]
`), 0o600))

	t.Setenv("SECURECLAW_LOG_FORMAT", "json")

	cfg, err := Load(stateDir)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level, "home layer")
	assert.Equal(t, "json", cfg.Log.Format, "env layer")
	assert.Equal(t, 2.0, cfg.Cost.HourlyLimitUSD, "home layer")
	assert.Equal(t, 30.0, cfg.Cost.DailyLimitUSD, "state dir beats home")
	assert.Equal(t, 5*time.Second, cfg.Monitors.CostInterval.Std())
	assert.Equal(t, 60*time.Second, cfg.Monitors.MemoryInterval.Std(), "default survives")
	assert.Equal(t, 10, cfg.Monitors.AlertCapacity)
	assert.Equal(t, []string{"api.internal"}, cfg.Skills.AllowedHosts)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
	}{
		{name: "malformed yaml", content: "log: [unclosed"},
		{name: "bad duration", content: "monitors:\n  cost_interval: soon\n"},
		{name: "bad env float", env: map[string]string{"SECURECLAW_HOURLY_LIMIT_USD": "lots"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateHome(t)
			stateDir := t.TempDir()
			if tt.content != "" {
				require.NoError(t, os.WriteFile(filepath.Join(stateDir, SettingsFile), []byte(tt.content), 0o600))
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(stateDir)
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv_AllowedHosts(t *testing.T) {
	isolateHome(t)
	t.Setenv("SECURECLAW_ALLOWED_HOSTS", " a.example , ,b.example")

	cfg := Default()
	require.NoError(t, applyEnv(cfg))
	assert.Equal(t, []string{"a.example", "b.example"}, cfg.Skills.AllowedHosts)
}

func TestAllowedHosts_MergesOpenClaw(t *testing.T) {
	s := Default()
	s.Skills.AllowedHosts = []string{"github.com", "pypi.org"}

	tests := []struct {
		name string
		oc   *OpenClaw
		want []string
	}{
		{"nil config", nil, []string{"github.com", "pypi.org"}},
		{"empty section", &OpenClaw{}, []string{"github.com", "pypi.org"}},
		{
			"extra hosts appended, duplicates dropped",
			&OpenClaw{SecureClaw: SecureClawSection{AllowedHosts: []string{"api.internal", " GitHub.com ", ""}}},
			[]string{"github.com", "pypi.org", "api.internal"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.AllowedHosts(tt.oc))
		})
	}
	assert.Equal(t, []string{"github.com", "pypi.org"}, s.Skills.AllowedHosts)
}
