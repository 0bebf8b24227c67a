// Package config provides configuration management for SecureClaw.
//
// Settings are loaded from (highest to lowest priority):
// 1. Environment variables (SECURECLAW_*)
// 2. State directory config (<stateDir>/secureclaw.yaml)
// 3. Home config (~/.secureclaw/config.yaml)
// 4. Defaults
//
// The host's own configuration (openclaw.json) is handled separately in
// openclaw.go because SecureClaw both audits and rewrites it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SettingsFile is the per-state-directory settings file name.
const SettingsFile = "secureclaw.yaml"

// Settings holds all SecureClaw tunables.
type Settings struct {
	Log      LogSettings     `yaml:"log" json:"log"`
	Monitors MonitorSettings `yaml:"monitors" json:"monitors"`
	Cost     CostSettings    `yaml:"cost" json:"cost"`
	Memory   MemorySettings  `yaml:"memory" json:"memory"`
	Skills   SkillSettings   `yaml:"skills" json:"skills"`
}

// LogSettings controls logger construction.
type LogSettings struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" json:"level"`

	// Format is console or json.
	Format string `yaml:"format" json:"format"`
}

// MonitorSettings holds the shared monitor knobs.
type MonitorSettings struct {
	// CredentialInterval is the credential monitor sampling period.
	CredentialInterval Duration `yaml:"credential_interval" json:"credential_interval"`

	// MemoryInterval is the memory-integrity monitor sampling period.
	MemoryInterval Duration `yaml:"memory_interval" json:"memory_interval"`

	// CostInterval is the cost monitor sampling period.
	CostInterval Duration `yaml:"cost_interval" json:"cost_interval"`

	// AlertCapacity bounds each monitor's alert history.
	AlertCapacity int `yaml:"alert_capacity" json:"alert_capacity"`
}

// CostSettings holds spend thresholds.
type CostSettings struct {
	HourlyLimitUSD float64 `yaml:"hourly_limit_usd" json:"hourly_limit_usd"`
	DailyLimitUSD  float64 `yaml:"daily_limit_usd" json:"daily_limit_usd"`

	// SpikeFactor flags a single usage entry costing more than this multiple
	// of the running mean.
	SpikeFactor float64 `yaml:"spike_factor" json:"spike_factor"`
}

// MemorySettings bounds the expected growth of memory files between samples.
type MemorySettings struct {
	GrowthFactor   float64 `yaml:"growth_factor" json:"growth_factor"`
	MaxGrowthBytes int64   `yaml:"max_growth_bytes" json:"max_growth_bytes"`
}

// SkillSettings configures the skill scanner.
type SkillSettings struct {
	// AllowedHosts are hosts skills may contact. Subdomains are allowed.
	AllowedHosts []string `yaml:"allowed_hosts" json:"allowed_hosts"`
}

// AllowedHosts merges the settings allow-list with the hosts listed in the
// secureclaw section of openclaw.json. Order is kept; duplicates are dropped.
func (s *Settings) AllowedHosts(oc *OpenClaw) []string {
	var extra []string
	if oc != nil {
		extra = oc.SecureClaw.AllowedHosts
	}
	seen := make(map[string]bool)
	out := make([]string, 0, len(s.Skills.AllowedHosts)+len(extra))
	for _, h := range append(append([]string(nil), s.Skills.AllowedHosts...), extra...) {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return out
}

// Duration is a time.Duration that reads "30s"-style strings from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default config values.
const (
	defaultLogLevel      = "info"
	defaultLogFormat     = "console"
	defaultAlertCapacity = 100
)

// DefaultAllowedHosts are the hosts skills may reach without a finding.
var DefaultAllowedHosts = []string{
	"localhost",
	"127.0.0.1",
	"github.com",
	"raw.githubusercontent.com",
	"registry.npmjs.org",
	"pypi.org",
	"files.pythonhosted.org",
}

// Default returns the default settings.
func Default() *Settings {
	return &Settings{
		Log: LogSettings{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		Monitors: MonitorSettings{
			CredentialInterval: Duration(30 * time.Second),
			MemoryInterval:     Duration(60 * time.Second),
			CostInterval:       Duration(60 * time.Second),
			AlertCapacity:      defaultAlertCapacity,
		},
		Cost: CostSettings{
			HourlyLimitUSD: 5,
			DailyLimitUSD:  50,
			SpikeFactor:    5,
		},
		Memory: MemorySettings{
			GrowthFactor:   3,
			MaxGrowthBytes: 256 * 1024,
		},
		Skills: SkillSettings{
			AllowedHosts: append([]string(nil), DefaultAllowedHosts...),
		},
	}
}

// Load resolves settings for stateDir with defaults < home < state dir < env.
// A missing file is skipped; an unreadable or malformed one is an error.
func Load(stateDir string) (*Settings, error) {
	cfg := Default()

	for _, path := range []string{homeSettingsPath(), stateSettingsPath(stateDir)} {
		layer, err := loadFromPath(path)
		if err != nil {
			return nil, err
		}
		if layer != nil {
			cfg = merge(cfg, layer)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// homeSettingsPath returns the home settings path.
func homeSettingsPath() string {
	if override := strings.TrimSpace(os.Getenv("SECURECLAW_CONFIG")); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".secureclaw", "config.yaml")
}

func stateSettingsPath(stateDir string) string {
	if stateDir == "" {
		return ""
	}
	return filepath.Join(stateDir, SettingsFile)
}

// loadFromPath loads settings from a YAML file. Missing files yield nil, nil.
func loadFromPath(path string) (*Settings, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings %s: %w", path, err)
	}

	var cfg Settings
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return &cfg, nil
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Settings) error {
	if v := os.Getenv("SECURECLAW_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SECURECLAW_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("SECURECLAW_HOURLY_LIMIT_USD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SECURECLAW_HOURLY_LIMIT_USD: %w", err)
		}
		cfg.Cost.HourlyLimitUSD = f
	}
	if v := os.Getenv("SECURECLAW_DAILY_LIMIT_USD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SECURECLAW_DAILY_LIMIT_USD: %w", err)
		}
		cfg.Cost.DailyLimitUSD = f
	}
	if v := os.Getenv("SECURECLAW_ALLOWED_HOSTS"); v != "" {
		var hosts []string
		for _, h := range strings.Split(v, ",") {
			if h = strings.TrimSpace(h); h != "" {
				hosts = append(hosts, h)
			}
		}
		cfg.Skills.AllowedHosts = hosts
	}
	return nil
}

func mergeStr(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

func mergeFloat(dst *float64, src float64) {
	if src != 0 {
		*dst = src
	}
}

func mergeDuration(dst *Duration, src Duration) {
	if src != 0 {
		*dst = src
	}
}

// merge merges src into dst, with non-zero src values taking precedence.
func merge(dst, src *Settings) *Settings {
	mergeStr(&dst.Log.Level, src.Log.Level)
	mergeStr(&dst.Log.Format, src.Log.Format)

	mergeDuration(&dst.Monitors.CredentialInterval, src.Monitors.CredentialInterval)
	mergeDuration(&dst.Monitors.MemoryInterval, src.Monitors.MemoryInterval)
	mergeDuration(&dst.Monitors.CostInterval, src.Monitors.CostInterval)
	if src.Monitors.AlertCapacity > 0 {
		dst.Monitors.AlertCapacity = src.Monitors.AlertCapacity
	}

	mergeFloat(&dst.Cost.HourlyLimitUSD, src.Cost.HourlyLimitUSD)
	mergeFloat(&dst.Cost.DailyLimitUSD, src.Cost.DailyLimitUSD)
	mergeFloat(&dst.Cost.SpikeFactor, src.Cost.SpikeFactor)

	mergeFloat(&dst.Memory.GrowthFactor, src.Memory.GrowthFactor)
	if src.Memory.MaxGrowthBytes > 0 {
		dst.Memory.MaxGrowthBytes = src.Memory.MaxGrowthBytes
	}

	if len(src.Skills.AllowedHosts) > 0 {
		dst.Skills.AllowedHosts = src.Skills.AllowedHosts
	}
	return dst
}
