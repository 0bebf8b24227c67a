package harden

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/secureclaw/secureclaw/internal/audit"
	"github.com/secureclaw/secureclaw/internal/backup"
)

// NoBackup is reported as BackupDir when a run changed nothing.
const NoBackup = "none"

// Options controls one harden run.
type Options struct {
	// Full applies every fix. Otherwise only low-risk fixes apply.
	Full bool

	// Interactive marks a run started from an interactive session. The
	// engine never prompts; a non-Full run applies low-risk fixes only.
	Interactive bool

	// Context is the audit context of the state directory. Required.
	Context *audit.Context

	// Report, when set, supplies the findings instead of a fresh audit.
	Report *audit.Report
}

// ModuleResult is one module's outcome.
type ModuleResult struct {
	Module  string   `json:"module"`
	Applied []string `json:"applied"`
	Skipped []string `json:"skipped,omitempty"`
	Errors  []string `json:"errors"`
}

// Result is the outcome of a harden run.
type Result struct {
	RunID     string         `json:"runId"`
	BackupDir string         `json:"backupDir"`
	Results   []ModuleResult `json:"results"`
}

// Applied counts applied actions across modules.
func (r *Result) Applied() int {
	n := 0
	for _, m := range r.Results {
		n += len(m.Applied)
	}
	return n
}

// Engine runs remediation modules.
type Engine struct {
	modules []Module
	auditor *audit.Auditor
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithModules replaces the module list. Order is priority order.
func WithModules(modules ...Module) Option {
	return func(e *Engine) { e.modules = modules }
}

// WithAuditor sets the auditor used when no report is supplied.
func WithAuditor(a *audit.Auditor) Option {
	return func(e *Engine) { e.auditor = a }
}

// WithClock overrides the snapshot timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine with the default modules.
func New(opts ...Option) *Engine {
	e := &Engine{
		modules: DefaultModules(),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	if e.auditor == nil {
		e.auditor = audit.New(audit.WithLogger(e.logger))
	}
	return e
}

// Harden runs with a default Engine.
func Harden(ctx context.Context, opts Options) (*Result, error) {
	return New().Harden(ctx, opts)
}

// Rollback restores with a default Engine.
func Rollback(ctx context.Context, stateDir, timestamp string) (*backup.Snapshot, error) {
	return New().Rollback(ctx, stateDir, timestamp)
}

type planned struct {
	result *ModuleResult
	module string
	fixes  []Fix
}

// Harden plans fixes for the auto-fixable findings, snapshots every target,
// then applies the fixes module by module. It fails without touching
// anything if the lock is held, the audit is cancelled, or the snapshot
// cannot be written. Once the first fix applies the run is not cancellable.
func (e *Engine) Harden(ctx context.Context, opts Options) (*Result, error) {
	actx := opts.Context
	if actx == nil {
		return nil, ErrNoContext
	}

	lock, err := backup.AcquireLock(actx.StateDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = lock.Release() //nolint:errcheck // released on close anyway
	}()

	runID := uuid.NewString()
	log := e.logger.With(zap.String("run_id", runID), zap.String("state_dir", actx.StateDir),
		zap.Bool("full", opts.Full), zap.Bool("interactive", opts.Interactive))

	report := opts.Report
	if report == nil {
		report, err = e.auditor.Run(ctx, actx, audit.Options{})
		if err != nil {
			return nil, fmt.Errorf("audit before harden: %w", err)
		}
	}
	fixable := report.Fixable()

	var (
		plans   []planned
		targets []string
	)
	for _, m := range e.modules {
		res := &ModuleResult{Module: m.Name(), Applied: []string{}, Errors: []string{}}
		fixes, err := m.Plan(actx, fixable[m.Name()])
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
		}

		var selected []Fix
		for _, fix := range fixes {
			if !opts.Full && fix.Risk != RiskLow {
				res.Skipped = append(res.Skipped, fmt.Sprintf("%s: %s risk, rerun with full hardening", fix.Description, fix.Risk))
				continue
			}
			selected = append(selected, fix)
			targets = append(targets, fix.Target)
		}
		plans = append(plans, planned{result: res, module: m.Name(), fixes: selected})
	}

	result := &Result{RunID: runID, BackupDir: NoBackup, Results: []ModuleResult{}}

	if len(targets) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		snap, err := backup.NewStore(actx.StateDir, backup.WithClock(e.now), backup.WithLogger(log)).Create(targets)
		if err != nil {
			log.Error("backup failed, nothing changed", zap.Error(err))
			return nil, err
		}
		result.BackupDir = snap.Dir
	}

	for _, p := range plans {
		for _, fix := range p.fixes {
			if err := safeApply(fix); err != nil {
				rerr := &RemediationError{Module: p.module, Target: fix.Target, Err: err}
				p.result.Errors = append(p.result.Errors, rerr.Error())
				log.Warn("fix failed", zap.String("module", p.module), zap.String("finding", fix.FindingID), zap.Error(err))
				continue
			}
			p.result.Applied = append(p.result.Applied, fix.Description)
			log.Debug("fix applied", zap.String("module", p.module), zap.String("finding", fix.FindingID))
		}
		if len(p.fixes)+len(p.result.Skipped)+len(p.result.Errors) > 0 {
			result.Results = append(result.Results, *p.result)
		}
	}

	log.Info("harden complete",
		zap.String("backup", result.BackupDir),
		zap.Int("applied", result.Applied()),
		zap.Bool("full", opts.Full))
	return result, nil
}

// safeApply runs a fix, turning a panic into an error.
func safeApply(fix Fix) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if fix.Apply == nil {
		return errors.New("fix has no apply step")
	}
	return fix.Apply()
}

// Rollback restores the named snapshot, or the newest when timestamp is empty.
func (e *Engine) Rollback(ctx context.Context, stateDir, timestamp string) (*backup.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lock, err := backup.AcquireLock(stateDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = lock.Release() //nolint:errcheck // released on close anyway
	}()

	store := backup.NewStore(stateDir, backup.WithLogger(e.logger))
	if timestamp == "" {
		timestamp, err = store.Latest()
		if err != nil {
			return nil, &backup.RollbackError{Err: err}
		}
	}
	return store.Restore(timestamp)
}
