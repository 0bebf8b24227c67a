package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secureclaw/secureclaw/internal/fsys"
)

func TestParseOpenClaw(t *testing.T) {
	cfg, err := ParseOpenClaw([]byte(`{
		"gateway": {"bind": "LAN", "port": 18789, "auth": {"mode": "token", "token": "abc"}},
		"exec": {"approvals": "off"},
		"tools": {"elevated": {"enabled": true}},
		"logging": {"redactSensitive": "off"},
		"secureclaw": {"cost": {"dailyLimitUsd": 12.5}, "allowedHosts": ["api.example"]},
		"channels": {"telegram": {"enabled": true}}
	}`))
	require.NoError(t, err)

	assert.Equal(t, "lan", cfg.BindMode())
	assert.Equal(t, 18789, cfg.Gateway.Port)
	assert.Equal(t, AuthModeToken, cfg.Gateway.Auth.Mode)
	assert.Equal(t, ApprovalsOff, cfg.Exec.Approvals)
	assert.True(t, cfg.ElevatedEnabled())
	assert.Equal(t, RedactOff, cfg.Logging.RedactSensitive)
	require.NotNil(t, cfg.SecureClaw.Cost.DailyLimitUSD)
	assert.Equal(t, 12.5, *cfg.SecureClaw.Cost.DailyLimitUSD)
	assert.Nil(t, cfg.SecureClaw.Cost.HourlyLimitUSD)
	assert.Equal(t, []string{"api.example"}, cfg.SecureClaw.AllowedHosts)

	v, ok := cfg.GetPath("channels.telegram.enabled")
	assert.True(t, ok)
	assert.Equal(t, true, v)
}

func TestParseOpenClaw_EmptyAndDefaults(t *testing.T) {
	for _, in := range []string{"", "  \n", "{}"} {
		cfg, err := ParseOpenClaw([]byte(in))
		require.NoError(t, err)
		assert.Equal(t, BindLoopback, cfg.BindMode())
		assert.False(t, cfg.ElevatedEnabled())
		assert.NotNil(t, cfg.Raw)
	}
}

func TestLoadOpenClaw(t *testing.T) {
	mem := afero.NewMemMapFs()
	f := fsys.New(mem)

	t.Run("missing file is empty config", func(t *testing.T) {
		cfg, err := LoadOpenClaw(f, "/state")
		require.NoError(t, err)
		assert.Empty(t, cfg.Raw)
	})

	t.Run("malformed file is ConfigError", func(t *testing.T) {
		require.NoError(t, afero.WriteFile(mem, "/bad/openclaw.json", []byte("{nope"), 0o600))

		cfg, err := LoadOpenClaw(f, "/bad")
		require.Error(t, err)
		var cerr *ConfigError
		require.True(t, errors.As(err, &cerr))
		assert.Equal(t, filepath.Join("/bad", OpenClawFile), cerr.Path)
		assert.NotNil(t, cfg)
		assert.Empty(t, cfg.Raw)
	})
}

func TestLoadOpenClaw_Unreadable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permissions")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, OpenClawFile)
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o000))

	_, err := LoadOpenClaw(fsys.OS(), dir)
	var cerr *ConfigError
	assert.True(t, errors.As(err, &cerr))
}

func TestSetPath(t *testing.T) {
	cfg, err := ParseOpenClaw([]byte(`{"gateway": {"port": 1}, "exec": "legacy"}`))
	require.NoError(t, err)

	require.NoError(t, cfg.SetPath("gateway.bind", BindLoopback))
	require.NoError(t, cfg.SetPath("tools.elevated.enabled", false))

	v, ok := cfg.GetPath("gateway.port")
	assert.True(t, ok)
	assert.Equal(t, float64(1), v, "sibling keys survive")

	v, ok = cfg.GetPath("tools.elevated.enabled")
	assert.True(t, ok)
	assert.Equal(t, false, v)

	err = cfg.SetPath("exec.approvals", ApprovalsAlways)
	assert.ErrorIs(t, err, ErrNotObject)
}

func TestMarshal_RoundTrip(t *testing.T) {
	cfg, err := ParseOpenClaw([]byte(`{"b": 1, "a": {"x": "y"}}`))
	require.NoError(t, err)
	require.NoError(t, cfg.SetPath("logging.redactSensitive", RedactTools))

	data, err := cfg.Marshal()
	require.NoError(t, err)

	again, err := ParseOpenClaw(data)
	require.NoError(t, err)
	assert.Equal(t, RedactTools, again.Logging.RedactSensitive)
	assert.Equal(t, cfg.Raw, again.Raw)
}
