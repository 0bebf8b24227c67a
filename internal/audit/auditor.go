// Package audit runs the ordered set of security checks against a state
// directory and turns their findings into a scored report. Audits only read.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/secureclaw/secureclaw/internal/fsys"
	"github.com/secureclaw/secureclaw/internal/skillscan"
	"github.com/secureclaw/secureclaw/internal/types"
)

// ErrNoSkillScanner is reported by the skills check when a deep audit runs
// over a filesystem the skill scanner cannot read.
var ErrNoSkillScanner = errors.New("no skill scanner for this filesystem")

// Options controls one audit run.
type Options struct {
	// Deep enables expensive checks and per-skill static scans.
	Deep bool

	// Fix is recorded for the caller, which decides whether to harden after
	// reporting. Run never mutates anything.
	Fix bool
}

// Auditor runs checks.
type Auditor struct {
	checks []Check
	logger *zap.Logger
	now    func() time.Time
	skills SkillScanner
	gauge  prometheus.Gauge
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Auditor) { a.logger = l }
}

// WithClock overrides the report timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Auditor) { a.now = now }
}

// WithSkillScanner sets the scanner used by deep audits.
func WithSkillScanner(s SkillScanner) Option {
	return func(a *Auditor) { a.skills = s }
}

// WithScoreGauge publishes each report's score.
func WithScoreGauge(g prometheus.Gauge) Option {
	return func(a *Auditor) { a.gauge = g }
}

// WithChecks replaces the check list.
func WithChecks(checks []Check) Option {
	return func(a *Auditor) { a.checks = checks }
}

// New creates an Auditor with the default checks.
func New(opts ...Option) *Auditor {
	a := &Auditor{
		checks: DefaultChecks(),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// RunAudit audits actx with a default Auditor.
func RunAudit(ctx context.Context, actx *Context, opts Options) (*Report, error) {
	return New().Run(ctx, actx, opts)
}

// Run executes every enabled check in order. A check that fails contributes
// whatever it found plus a low finding describing the failure; it never
// stops later checks. The only error returned is ctx's.
func (a *Auditor) Run(ctx context.Context, actx *Context, opts Options) (*Report, error) {
	env := &Env{
		Ctx:    actx,
		Deep:   opts.Deep,
		Skills: a.skills,
		Logger: a.logger,
	}
	if env.Deep && env.Skills == nil {
		if afs, ok := aferoOf(actx.FS); ok {
			env.Skills = skillscan.New(skillscan.WithFs(afs), skillscan.WithLogger(a.logger))
		}
	}
	if actx.ConfigErr != nil {
		a.logger.Warn("configuration treated as empty", zap.Error(actx.ConfigErr))
	}

	findings := []Finding{}
	for _, check := range a.checks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if check.Expensive && !opts.Deep {
			a.logger.Debug("check skipped", zap.String("check", check.Name))
			continue
		}

		got, err := check.Run(ctx, env)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			a.logger.Warn("check incomplete", zap.String("check", check.Name), zap.Error(err))
			got = append(got, Finding{
				ID:       check.Name + "-incomplete",
				Category: CategoryAudit,
				Severity: types.SeverityLow,
				Message:  fmt.Sprintf("check %s could not complete: %v", check.Name, err),
			})
		}
		a.logger.Debug("check done", zap.String("check", check.Name), zap.Int("findings", len(got)))
		findings = append(findings, got...)
	}

	report := &Report{
		Score:     Score(findings),
		Summary:   Summarize(findings),
		Findings:  findings,
		Timestamp: a.now().UTC(),
	}
	if a.gauge != nil {
		a.gauge.Set(float64(report.Score))
	}
	a.logger.Info("audit complete",
		zap.String("state_dir", actx.StateDir),
		zap.Int("score", report.Score),
		zap.Int("findings", len(findings)),
		zap.Bool("deep", opts.Deep))
	return report, nil
}

// aferoOf recovers the afero filesystem behind an FS.
func aferoOf(f fsys.FS) (afero.Fs, bool) {
	if a, ok := f.(interface{ Fs() afero.Fs }); ok {
		return a.Fs(), true
	}
	return nil, false
}
