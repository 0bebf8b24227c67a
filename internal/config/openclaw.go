package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/secureclaw/secureclaw/internal/fsys"
)

// OpenClawFile is the host configuration file inside the state directory.
const OpenClawFile = "openclaw.json"

// Gateway bind modes.
const (
	BindLoopback = "loopback"
	BindLAN      = "lan"
	BindAll      = "all"
)

// Exec approval policies.
const (
	ApprovalsAlways = "always"
	ApprovalsOnMiss = "on-miss"
	ApprovalsOff    = "off"
)

// Log redaction modes.
const (
	RedactTools = "tools"
	RedactOff   = "off"
)

// Gateway auth modes.
const (
	AuthModeToken    = "token"
	AuthModePassword = "password"
	AuthModeNone     = "none"
)

// OpenClaw is the typed view of openclaw.json that audit checks read.
// Raw keeps the full decoded document so rewrites preserve unknown keys.
type OpenClaw struct {
	Gateway    Gateway           `json:"gateway"`
	Exec       Exec              `json:"exec"`
	Tools      Tools             `json:"tools"`
	Logging    Logging           `json:"logging"`
	SecureClaw SecureClawSection `json:"secureclaw"`

	Raw map[string]any `json:"-"`
}

// Gateway describes how the agent gateway listens.
type Gateway struct {
	Bind string      `json:"bind"`
	Port int         `json:"port"`
	Auth GatewayAuth `json:"auth"`
}

// GatewayAuth is the gateway authentication block.
type GatewayAuth struct {
	Mode  string `json:"mode"`
	Token string `json:"token"`
}

// Exec is the command execution policy.
type Exec struct {
	Approvals string `json:"approvals"`
}

// Tools holds tool policy.
type Tools struct {
	Elevated Elevated `json:"elevated"`
}

// Elevated controls elevated (host-level) tools.
type Elevated struct {
	Enabled *bool `json:"enabled"`
}

// Logging controls the host's log redaction.
type Logging struct {
	RedactSensitive string `json:"redactSensitive"`
}

// SecureClawSection is the plugin's own section of openclaw.json.
type SecureClawSection struct {
	Cost         CostLimits `json:"cost"`
	AllowedHosts []string   `json:"allowedHosts"`
}

// CostLimits overrides the settings cost thresholds when set.
type CostLimits struct {
	HourlyLimitUSD *float64 `json:"hourlyLimitUsd"`
	DailyLimitUSD  *float64 `json:"dailyLimitUsd"`
}

// ConfigError reports a configuration file that exists but could not be
// read or parsed. Callers treat the configuration as empty.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// EmptyOpenClaw returns a configuration with no keys set.
func EmptyOpenClaw() *OpenClaw {
	return &OpenClaw{Raw: map[string]any{}}
}

// ParseOpenClaw decodes openclaw.json content.
func ParseOpenClaw(data []byte) (*OpenClaw, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return EmptyOpenClaw(), nil
	}

	raw := map[string]any{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	var cfg OpenClaw
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Raw = raw
	return &cfg, nil
}

// LoadOpenClaw reads <stateDir>/openclaw.json through fsys.
// A missing file yields an empty config and a nil error. Any other failure
// yields an empty config and a *ConfigError.
func LoadOpenClaw(f fsys.FS, stateDir string) (*OpenClaw, error) {
	path := filepath.Join(stateDir, OpenClawFile)

	data, err := f.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return EmptyOpenClaw(), nil
	}
	if err != nil {
		return EmptyOpenClaw(), &ConfigError{Path: path, Err: err}
	}

	cfg, err := ParseOpenClaw(data)
	if err != nil {
		return EmptyOpenClaw(), &ConfigError{Path: path, Err: err}
	}
	return cfg, nil
}

// BindMode returns the effective gateway bind, defaulting to loopback.
func (c *OpenClaw) BindMode() string {
	if c.Gateway.Bind == "" {
		return BindLoopback
	}
	return strings.ToLower(c.Gateway.Bind)
}

// ElevatedEnabled reports whether elevated tools are explicitly enabled.
func (c *OpenClaw) ElevatedEnabled() bool {
	return c.Tools.Elevated.Enabled != nil && *c.Tools.Elevated.Enabled
}

// Marshal encodes the raw document with stable two-space indentation.
func (c *OpenClaw) Marshal() ([]byte, error) {
	raw := c.Raw
	if raw == nil {
		raw = map[string]any{}
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// GetPath returns the value at a dotted key path in the raw document.
func (c *OpenClaw) GetPath(path string) (any, bool) {
	var cur any = c.Raw
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// SetPath sets a dotted key path in the raw document, creating intermediate
// objects. It fails if an intermediate key holds a non-object value.
func (c *OpenClaw) SetPath(path string, value any) error {
	if c.Raw == nil {
		c.Raw = map[string]any{}
	}
	keys := strings.Split(path, ".")
	cur := c.Raw
	for i, key := range keys[:len(keys)-1] {
		next, ok := cur[key]
		if !ok || next == nil {
			child := map[string]any{}
			cur[key] = child
			cur = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: %s is not an object", ErrNotObject, strings.Join(keys[:i+1], "."))
		}
		cur = child
	}
	cur[keys[len(keys)-1]] = value
	return nil
}
