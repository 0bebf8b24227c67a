package harden

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/secureclaw/secureclaw/internal/audit"
	"github.com/secureclaw/secureclaw/internal/backup"
	"github.com/secureclaw/secureclaw/internal/config"
)

// configEdit sets one dotted key in openclaw.json.
type configEdit struct {
	key         string
	value       any
	risk        Risk
	description string
}

var bindLoopback = configEdit{
	key:         "gateway.bind",
	value:       config.BindLoopback,
	risk:        RiskHigh,
	description: "bind the gateway to loopback",
}

// configEdits maps finding IDs to the edits that resolve them.
var configEdits = map[string][]configEdit{
	"gateway-exposed":                 {bindLoopback},
	"gateway-exposed-unauthenticated": {bindLoopback},
	"exec-approvals-disabled": {{
		key:         "exec.approvals",
		value:       config.ApprovalsAlways,
		risk:        RiskHigh,
		description: "require approval for every command execution",
	}},
	"elevated-tools-enabled": {{
		key:         "tools.elevated.enabled",
		value:       false,
		risk:        RiskHigh,
		description: "disable elevated tools",
	}},
	"log-redaction-disabled": {{
		key:         "logging.redactSensitive",
		value:       config.RedactTools,
		risk:        RiskLow,
		description: "redact sensitive tool output in logs",
	}},
	"cost-limits-unset": {
		{
			key:         "secureclaw.cost.hourlyLimitUsd",
			value:       config.Default().Cost.HourlyLimitUSD,
			risk:        RiskLow,
			description: fmt.Sprintf("set an hourly spend limit of $%.2f", config.Default().Cost.HourlyLimitUSD),
		},
		{
			key:         "secureclaw.cost.dailyLimitUsd",
			value:       config.Default().Cost.DailyLimitUSD,
			risk:        RiskLow,
			description: fmt.Sprintf("set a daily spend limit of $%.2f", config.Default().Cost.DailyLimitUSD),
		},
	},
}

// ConfigModule rewrites openclaw.json keys, preserving every key it does not own.
type ConfigModule struct{}

// Name implements Module.
func (ConfigModule) Name() string { return audit.RemediationConfig }

// Plan implements Module.
func (ConfigModule) Plan(actx *audit.Context, findings []audit.Finding) ([]Fix, error) {
	if len(findings) == 0 {
		return nil, nil
	}

	path := filepath.Join(actx.StateDir, config.OpenClawFile)
	if actx.ConfigErr != nil {
		return nil, fmt.Errorf("refusing to rewrite unreadable %s: %w", config.OpenClawFile, actx.ConfigErr)
	}
	exists, err := actx.FS.FileExists(path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%s does not exist; create it to apply configuration fixes", config.OpenClawFile)
	}

	var (
		fixes []Fix
		errs  []error
		seen  = map[string]bool{}
	)
	for _, f := range findings {
		edits, ok := configEdits[f.ID]
		if !ok {
			errs = append(errs, fmt.Errorf("no configuration fix for finding %s", f.ID))
			continue
		}
		for _, edit := range edits {
			if seen[edit.key] {
				continue
			}
			seen[edit.key] = true

			fixes = append(fixes, Fix{
				FindingID:   f.ID,
				Target:      path,
				Risk:        edit.risk,
				Description: fmt.Sprintf("%s (%s = %v)", edit.description, edit.key, edit.value),
				Apply:       func() error { return editConfig(path, edit.key, edit.value) },
			})
		}
	}
	return fixes, errors.Join(errs...)
}

// editConfig applies one key change to openclaw.json, keeping its mode.
func editConfig(path, key string, value any) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	cfg, err := config.ParseOpenClaw(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", config.OpenClawFile, err)
	}
	if err := cfg.SetPath(key, value); err != nil {
		return err
	}
	out, err := cfg.Marshal()
	if err != nil {
		return err
	}
	return backup.WriteFile(path, out, info.Mode().Perm())
}
