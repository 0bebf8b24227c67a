package audit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/secureclaw/secureclaw/internal/config"
	"github.com/secureclaw/secureclaw/internal/secrets"
	"github.com/secureclaw/secureclaw/internal/skillscan"
	"github.com/secureclaw/secureclaw/internal/types"
	"github.com/secureclaw/secureclaw/internal/worker"
)

// Check names in execution order.
const (
	CheckStateDirPermissions = "state-dir-permissions"
	CheckConfigFile          = "config-file"
	CheckCredentialFiles     = "credential-files"
	CheckConfigSecrets       = "config-secrets"
	CheckGatewayExposure     = "gateway-exposure"
	CheckExecPolicy          = "exec-policy"
	CheckSkills              = "skills"
	CheckMonitoring          = "monitoring"
	CheckLogSecrets          = "log-secrets"
)

// maxWalkDepth bounds recursive directory walks.
const maxWalkDepth = 8

// maxScanSize is the largest log file content-scanned in deep mode.
const maxScanSize = 32 << 20

// SkillScanner scans one installed skill.
type SkillScanner interface {
	Scan(ctx context.Context, skillDir, name string) (*skillscan.Result, error)
}

// Env is what a check sees while it runs.
type Env struct {
	Ctx    *Context
	Deep   bool
	Skills SkillScanner
	Logger *zap.Logger
}

// Check is one audit module. A returned error means the check could not
// finish; findings returned alongside it are kept.
type Check struct {
	Name      string
	Expensive bool
	Run       func(ctx context.Context, env *Env) ([]Finding, error)
}

// DefaultChecks returns the audit modules in their fixed execution order.
func DefaultChecks() []Check {
	return []Check{
		{Name: CheckStateDirPermissions, Run: checkStateDir},
		{Name: CheckConfigFile, Run: checkConfigFile},
		{Name: CheckCredentialFiles, Run: checkCredentialFiles},
		{Name: CheckConfigSecrets, Run: checkConfigSecrets},
		{Name: CheckGatewayExposure, Run: checkGateway},
		{Name: CheckExecPolicy, Run: checkExecPolicy},
		{Name: CheckSkills, Run: checkSkills},
		{Name: CheckMonitoring, Run: checkMonitoring},
		{Name: CheckLogSecrets, Expensive: true, Run: checkLogSecrets},
	}
}

func (e *Env) path(elem ...string) string {
	return filepath.Join(append([]string{e.Ctx.StateDir}, elem...)...)
}

func (e *Env) rel(path string) string {
	r, err := filepath.Rel(e.Ctx.StateDir, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(r)
}

// openToOthers reports whether group or other have any access.
func openToOthers(perm fs.FileMode) bool {
	return perm&0o077 != 0
}

func checkStateDir(_ context.Context, env *Env) ([]Finding, error) {
	info, err := env.Ctx.FS.FileInfo(env.Ctx.StateDir)
	if err != nil {
		return nil, err
	}
	if !info.Exists {
		return []Finding{{
			ID:       "state-dir-missing",
			Category: CategoryAudit,
			Severity: types.SeverityLow,
			Message:  fmt.Sprintf("state directory %s does not exist", env.Ctx.StateDir),
		}}, nil
	}

	perm := info.Permissions
	switch {
	case perm&0o002 != 0:
		return []Finding{{
			ID:          "state-dir-world-writable",
			Category:    CategoryPermission,
			Severity:    types.SeverityCritical,
			Message:     fmt.Sprintf("state directory is world-writable (mode %04o); expected 0700", perm),
			AutoFixable: true,
			Remediation: RemediationPermissions,
			Path:        env.Ctx.StateDir,
		}}, nil
	case openToOthers(perm):
		return []Finding{{
			ID:          "state-dir-permissions",
			Category:    CategoryPermission,
			Severity:    types.SeverityHigh,
			Message:     fmt.Sprintf("state directory is accessible by group or others (mode %04o); expected 0700", perm),
			AutoFixable: true,
			Remediation: RemediationPermissions,
			Path:        env.Ctx.StateDir,
		}}, nil
	}
	return nil, nil
}

func checkConfigFile(_ context.Context, env *Env) ([]Finding, error) {
	var findings []Finding
	if env.Ctx.ConfigErr != nil {
		findings = append(findings, Finding{
			ID:       "config-unreadable",
			Category: CategoryConfig,
			Severity: types.SeverityMedium,
			Message:  fmt.Sprintf("configuration could not be loaded, audited as empty: %v", env.Ctx.ConfigErr),
		})
	}

	path := env.path(config.OpenClawFile)
	info, err := env.Ctx.FS.FileInfo(path)
	if err != nil {
		return findings, err
	}
	if info.Exists && openToOthers(info.Permissions) {
		findings = append(findings, Finding{
			ID:          "config-file-permissions",
			Category:    CategoryPermission,
			Severity:    types.SeverityMedium,
			Message:     fmt.Sprintf("%s is accessible by group or others (mode %04o); expected 0600", config.OpenClawFile, info.Permissions),
			AutoFixable: true,
			Remediation: RemediationPermissions,
			Path:        path,
		})
	}
	return findings, nil
}

func checkCredentialFiles(_ context.Context, env *Env) ([]Finding, error) {
	f := env.Ctx.FS
	var (
		findings []Finding
		targets  []string
	)

	credDir := env.path("credentials")
	info, err := f.FileInfo(credDir)
	if err != nil {
		return nil, err
	}
	if info.Exists && info.IsDir {
		if openToOthers(info.Permissions) {
			findings = append(findings, permissionFinding(env, "credential-dir-permissions", credDir, info.Permissions, types.SeverityHigh))
		}
		files, err := walkFiles(env, credDir, 0)
		if err != nil {
			return findings, err
		}
		targets = append(targets, files...)
	}

	agents, err := listDirIfExists(env, env.path("agents"))
	if err != nil {
		return findings, err
	}
	for _, agent := range agents {
		targets = append(targets, env.path("agents", agent, "agent", "auth-profiles.json"))
	}
	targets = append(targets, env.path(".env"))

	for _, target := range targets {
		fi, err := f.FileInfo(target)
		if err != nil {
			return findings, err
		}
		if !fi.Exists || fi.IsDir || !openToOthers(fi.Permissions) {
			continue
		}
		sev := types.SeverityHigh
		if fi.Permissions&0o004 != 0 {
			sev = types.SeverityCritical
		}
		findings = append(findings, permissionFinding(env, "credential-file-permissions", target, fi.Permissions, sev))
	}
	return findings, nil
}

func permissionFinding(env *Env, id, path string, perm fs.FileMode, sev types.Severity) Finding {
	rel := env.rel(path)
	return Finding{
		ID:          id + ":" + rel,
		Category:    CategoryPermission,
		Severity:    sev,
		Message:     fmt.Sprintf("%s is accessible by group or others (mode %04o)", rel, perm),
		AutoFixable: true,
		Remediation: RemediationPermissions,
		Path:        path,
	}
}

func checkConfigSecrets(_ context.Context, env *Env) ([]Finding, error) {
	data, err := env.Ctx.FS.ReadFile(env.path(config.OpenClawFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var findings []Finding
	seen := map[string]bool{}
	for _, m := range secrets.Scan(data) {
		if m.Rule.Confidence != secrets.ConfidenceHigh || seen[m.Rule.ID] {
			continue
		}
		seen[m.Rule.ID] = true
		findings = append(findings, Finding{
			ID:       "config-plaintext-secret:" + m.Rule.ID,
			Category: CategoryCredential,
			Severity: types.SeverityCritical,
			Message: fmt.Sprintf("%s line %d holds a plaintext %s (%s); move it to an environment variable",
				config.OpenClawFile, m.Line, m.Rule.Description, m.Redacted),
			Path: env.path(config.OpenClawFile),
		})
	}
	return findings, nil
}

func isLoopback(bind string) bool {
	switch bind {
	case config.BindLoopback, "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func checkGateway(_ context.Context, env *Env) ([]Finding, error) {
	cfg := env.Ctx.Config
	auth := cfg.Gateway.Auth
	var findings []Finding

	bind := cfg.BindMode()
	unauthenticated := auth.Mode == config.AuthModeNone || (auth.Mode == "" && auth.Token == "")
	switch {
	case !isLoopback(bind) && unauthenticated:
		findings = append(findings, Finding{
			ID:          "gateway-exposed-unauthenticated",
			Category:    CategoryConfig,
			Severity:    types.SeverityCritical,
			Message:     fmt.Sprintf("gateway binds to %q without authentication", bind),
			AutoFixable: true,
			Remediation: RemediationConfig,
		})
	case !isLoopback(bind):
		findings = append(findings, Finding{
			ID:          "gateway-exposed",
			Category:    CategoryConfig,
			Severity:    types.SeverityHigh,
			Message:     fmt.Sprintf("gateway binds to %q instead of loopback", bind),
			AutoFixable: true,
			Remediation: RemediationConfig,
		})
	case auth.Mode == config.AuthModeNone:
		findings = append(findings, Finding{
			ID:       "gateway-auth-disabled",
			Category: CategoryConfig,
			Severity: types.SeverityMedium,
			Message:  "gateway authentication is disabled; any local process can drive the agent",
		})
	}

	if auth.Mode == config.AuthModeToken && auth.Token != "" && len(auth.Token) < 24 {
		findings = append(findings, Finding{
			ID:       "gateway-weak-token",
			Category: CategoryConfig,
			Severity: types.SeverityMedium,
			Message:  fmt.Sprintf("gateway token is only %d characters; use at least 24", len(auth.Token)),
		})
	}
	return findings, nil
}

func checkExecPolicy(_ context.Context, env *Env) ([]Finding, error) {
	cfg := env.Ctx.Config
	var findings []Finding

	if cfg.Exec.Approvals == config.ApprovalsOff {
		findings = append(findings, Finding{
			ID:          "exec-approvals-disabled",
			Category:    CategoryConfig,
			Severity:    types.SeverityHigh,
			Message:     "command execution approvals are turned off",
			AutoFixable: true,
			Remediation: RemediationConfig,
		})
	}
	if cfg.ElevatedEnabled() {
		findings = append(findings, Finding{
			ID:          "elevated-tools-enabled",
			Category:    CategoryConfig,
			Severity:    types.SeverityHigh,
			Message:     "elevated host tools are enabled",
			AutoFixable: true,
			Remediation: RemediationConfig,
		})
	}
	if cfg.Logging.RedactSensitive == config.RedactOff {
		findings = append(findings, Finding{
			ID:          "log-redaction-disabled",
			Category:    CategoryConfig,
			Severity:    types.SeverityMedium,
			Message:     "sensitive values are written to logs unredacted",
			AutoFixable: true,
			Remediation: RemediationConfig,
		})
	}
	return findings, nil
}

func checkSkills(ctx context.Context, env *Env) ([]Finding, error) {
	skillsDir := env.path("skills")
	info, err := env.Ctx.FS.FileInfo(skillsDir)
	if err != nil || !info.Exists || !info.IsDir {
		return nil, err
	}

	var findings []Finding
	if info.Permissions&0o022 != 0 {
		findings = append(findings, Finding{
			ID:          "skills-dir-writable",
			Category:    CategoryPermission,
			Severity:    types.SeverityHigh,
			Message:     fmt.Sprintf("skills directory is writable by group or others (mode %04o)", info.Permissions),
			AutoFixable: true,
			Remediation: RemediationPermissions,
			Path:        skillsDir,
		})
	}

	names, err := env.Ctx.FS.ListDir(skillsDir)
	if err != nil {
		return findings, err
	}
	unscanned := 0
	for _, name := range names {
		dir := filepath.Join(skillsDir, name)
		fi, err := env.Ctx.FS.FileInfo(dir)
		if err != nil {
			return findings, err
		}
		if !fi.IsDir {
			continue
		}

		if !env.Deep || env.Skills == nil {
			if env.Deep {
				unscanned++
			}
			ok, err := env.Ctx.FS.FileExists(filepath.Join(dir, skillscan.ManifestFile))
			if err != nil {
				return findings, err
			}
			if !ok {
				findings = append(findings, Finding{
					ID:       "skill-missing-manifest:" + name,
					Category: CategorySkill,
					Severity: types.SeverityLow,
					Message:  fmt.Sprintf("skill %q has no %s", name, skillscan.ManifestFile),
					Path:     dir,
				})
			}
			continue
		}

		res, err := env.Skills.Scan(ctx, dir, name)
		if err != nil {
			if ctx.Err() != nil {
				return findings, ctx.Err()
			}
			findings = append(findings, Finding{
				ID:       "skill-scan-failed:" + name,
				Category: CategorySkill,
				Severity: types.SeverityLow,
				Message:  fmt.Sprintf("skill %q could not be scanned: %v", name, err),
				Path:     dir,
			})
			continue
		}
		if !res.Safe {
			findings = append(findings, Finding{
				ID:       "skill-unsafe:" + name,
				Category: CategorySkill,
				Severity: types.SeverityHigh,
				Message:  fmt.Sprintf("skill %q failed static scan: %s", name, summarizeConcerns(res.Findings)),
				Path:     dir,
			})
		}
	}
	if unscanned > 0 {
		return findings, fmt.Errorf("%d skill(s) not scanned: %w", unscanned, ErrNoSkillScanner)
	}
	return findings, nil
}

func summarizeConcerns(items []string) string {
	const shown = 3
	if len(items) <= shown {
		return strings.Join(items, "; ")
	}
	return fmt.Sprintf("%s (+%d more)", strings.Join(items[:shown], "; "), len(items)-shown)
}

func checkMonitoring(_ context.Context, env *Env) ([]Finding, error) {
	var findings []Finding

	usage, err := env.Ctx.FS.FileInfo(env.path("usage"))
	if err != nil {
		return nil, err
	}
	limits := env.Ctx.Config.SecureClaw.Cost
	if usage.Exists && limits.HourlyLimitUSD == nil && limits.DailyLimitUSD == nil {
		findings = append(findings, Finding{
			ID:          "cost-limits-unset",
			Category:    CategoryMonitoring,
			Severity:    types.SeverityLow,
			Message:     "usage is recorded but no spend limits are configured for the cost monitor",
			AutoFixable: true,
			Remediation: RemediationConfig,
		})
	}

	memDir := env.path("memory")
	mem, err := env.Ctx.FS.FileInfo(memDir)
	if err != nil {
		return findings, err
	}
	if mem.Exists && mem.IsDir && mem.Permissions&0o022 != 0 {
		findings = append(findings, Finding{
			ID:          "memory-dir-writable",
			Category:    CategoryPermission,
			Severity:    types.SeverityMedium,
			Message:     fmt.Sprintf("memory directory is writable by group or others (mode %04o); memory can be tampered with", mem.Permissions),
			AutoFixable: true,
			Remediation: RemediationPermissions,
			Path:        memDir,
		})
	}
	return findings, nil
}

func checkLogSecrets(ctx context.Context, env *Env) ([]Finding, error) {
	files, err := walkFiles(env, env.path("logs"), 0)
	if err != nil {
		return nil, err
	}

	agents, err := listDirIfExists(env, env.path("agents"))
	if err != nil {
		return nil, err
	}
	for _, agent := range agents {
		sessions, err := listDirIfExists(env, env.path("agents", agent, "sessions"))
		if err != nil {
			return nil, err
		}
		for _, s := range sessions {
			if strings.HasSuffix(s, ".jsonl") {
				files = append(files, env.path("agents", agent, "sessions", s))
			}
		}
	}

	pool := worker.NewPool[[]Finding](0)
	results := pool.Process(ctx, files, func(_ context.Context, path string) ([]Finding, error) {
		return scanLogFile(env, path)
	})

	var findings []Finding
	for _, r := range results {
		if r.Err != nil {
			return findings, r.Err
		}
		findings = append(findings, r.Value...)
	}
	return findings, nil
}

func scanLogFile(env *Env, path string) ([]Finding, error) {
	info, err := env.Ctx.FS.FileInfo(path)
	if err != nil {
		return nil, err
	}
	if !info.Exists || info.Size > maxScanSize {
		env.Logger.Debug("skipping log file", zap.String("path", path), zap.Int64("size", info.Size))
		return nil, nil
	}
	data, err := env.Ctx.FS.ReadFile(path)
	if err != nil {
		return nil, err
	}

	rel := env.rel(path)
	var findings []Finding
	seen := map[string]bool{}
	for _, m := range secrets.Scan(data) {
		if m.Rule.Confidence != secrets.ConfidenceHigh || seen[m.Rule.ID] {
			continue
		}
		seen[m.Rule.ID] = true
		findings = append(findings, Finding{
			ID:       "log-secret:" + rel + ":" + m.Rule.ID,
			Category: CategoryCredential,
			Severity: types.SeverityCritical,
			Message:  fmt.Sprintf("%s line %d leaks a %s (%s); rotate it", rel, m.Line, m.Rule.Description, m.Redacted),
			Path:     path,
		})
	}
	return findings, nil
}

// listDirIfExists lists dir, returning nil for a missing directory.
func listDirIfExists(env *Env, dir string) ([]string, error) {
	info, err := env.Ctx.FS.FileInfo(dir)
	if err != nil || !info.Exists || !info.IsDir {
		return nil, err
	}
	return env.Ctx.FS.ListDir(dir)
}

// walkFiles returns every regular file under dir in lexical order.
func walkFiles(env *Env, dir string, depth int) ([]string, error) {
	if depth > maxWalkDepth {
		return nil, nil
	}
	names, err := listDirIfExists(env, dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, name := range names {
		path := filepath.Join(dir, name)
		info, err := env.Ctx.FS.FileInfo(path)
		if err != nil {
			return files, err
		}
		if info.IsDir {
			sub, err := walkFiles(env, path, depth+1)
			if err != nil {
				return files, err
			}
			files = append(files, sub...)
			continue
		}
		files = append(files, path)
	}
	return files, nil
}
