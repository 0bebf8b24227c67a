package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/secureclaw/secureclaw/internal/types"
)

// emitFunc records one alert from inside a sample.
type emitFunc func(sev types.Severity, format string, args ...any)

// sampler is the per-domain half of a monitor. All methods run on the
// Runner's goroutine except open, which Start calls before launching it.
type sampler interface {
	// open resets state for stateDir. wake requests an early sample.
	open(ctx context.Context, stateDir string, wake func()) error
	sample(ctx context.Context, emit emitFunc) error
	close()
}

type options struct {
	fs       afero.Fs
	logger   *zap.Logger
	metrics  *Metrics
	now      func() time.Time
	interval time.Duration
	capacity int
}

// Option configures a monitor.
type Option func(*options)

// WithFs sets the filesystem the monitor reads. Defaults to the OS.
func WithFs(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock overrides the alert and window clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithInterval sets the sampling period.
func WithInterval(d time.Duration) Option {
	return func(o *options) { o.interval = d }
}

// WithCapacity bounds the alert history.
func WithCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

func buildOptions(defaultInterval time.Duration, opts []Option) options {
	o := options{
		fs:       afero.NewOsFs(),
		logger:   zap.NewNop(),
		now:      time.Now,
		interval: defaultInterval,
		capacity: DefaultCapacity,
	}
	for _, fn := range opts {
		fn(&o)
	}
	if o.interval <= 0 {
		o.interval = defaultInterval
	}
	return o
}

// Runner drives one sampler on its own goroutine.
type Runner struct {
	name     string
	interval time.Duration
	sampler  sampler
	logger   *zap.Logger
	metrics  *Metrics
	now      func() time.Time
	alerts   *ring
	wake     chan struct{}

	// mu serializes Start and Stop. Status never takes it.
	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	// lastErr is only touched by the sampling goroutine.
	lastErr string
}

func newRunner(name string, s sampler, o options) *Runner {
	return &Runner{
		name:     name,
		interval: o.interval,
		sampler:  s,
		logger:   o.logger.With(zap.String("monitor", name)),
		metrics:  o.metrics,
		now:      o.now,
		alerts:   newRing(o.capacity),
		wake:     make(chan struct{}, 1),
	}
}

// Name implements Monitor.
func (r *Runner) Name() string { return r.name }

// Start begins sampling stateDir: once immediately, then every interval.
// Starting a running monitor is a no-op.
func (r *Runner) Start(stateDir string) error {
	if stateDir == "" {
		return ErrNoStateDir
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running.Load() {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := r.sampler.open(ctx, stateDir, r.nudge); err != nil {
		cancel()
		return fmt.Errorf("start %s monitor: %w", r.name, err)
	}

	r.cancel = cancel
	r.done = make(chan struct{})
	r.lastErr = ""
	r.running.Store(true)
	go r.loop(ctx, r.done)

	r.logger.Info("monitor started", zap.String("state_dir", stateDir), zap.Duration("interval", r.interval))
	return nil
}

// Stop halts sampling and waits for an in-flight sample to finish.
// Stopping a stopped monitor is a no-op.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running.Load() {
		return
	}
	r.cancel()
	<-r.done
	r.running.Store(false)
	r.logger.Info("monitor stopped")
}

// Status implements Monitor. It does not wait for a running sample.
func (r *Runner) Status() Status {
	return Status{Name: r.name, Running: r.running.Load(), Alerts: r.alerts.snapshot()}
}

// Check runs a single sample against stateDir without starting the loop and
// returns the alerts it raised. It fails if the monitor is running.
func (r *Runner) Check(ctx context.Context, stateDir string) ([]Alert, error) {
	if stateDir == "" {
		return nil, ErrNoStateDir
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running.Load() {
		return nil, fmt.Errorf("%s monitor is running", r.name)
	}

	if err := r.sampler.open(ctx, stateDir, func() {}); err != nil {
		return nil, err
	}
	defer r.sampler.close()

	var raised []Alert
	err := r.sampler.sample(ctx, func(sev types.Severity, format string, args ...any) {
		raised = append(raised, r.record(sev, fmt.Sprintf(format, args...)))
	})
	if r.metrics != nil {
		r.metrics.Samples.WithLabelValues(r.name).Inc()
	}
	return raised, err
}

func (r *Runner) nudge() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Runner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer r.sampler.close()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.runSample(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.wake:
		}
		r.runSample(ctx)
	}
}

// runSample isolates one cycle. Errors and panics become a low alert the
// first time they are seen and are retried on the next cycle.
func (r *Runner) runSample(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic: %v", p)
			}
		}()
		return r.sampler.sample(ctx, func(sev types.Severity, format string, args ...any) {
			r.record(sev, fmt.Sprintf(format, args...))
		})
	}()

	switch {
	case err == nil:
		r.lastErr = ""
		if r.metrics != nil {
			r.metrics.Samples.WithLabelValues(r.name).Inc()
		}
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		// stopped mid-sample
	default:
		if r.metrics != nil {
			r.metrics.SampleErrors.WithLabelValues(r.name).Inc()
		}
		r.logger.Warn("sample failed", zap.Error(err))
		if msg := err.Error(); msg != r.lastErr {
			r.lastErr = msg
			r.record(types.SeverityLow, "sampling failed: "+msg)
		}
	}
}

func (r *Runner) record(sev types.Severity, msg string) Alert {
	a := Alert{
		ID:        uuid.NewString(),
		Source:    r.name,
		Severity:  sev,
		Message:   msg,
		Timestamp: r.now().UTC(),
	}
	r.alerts.push(a)
	if r.metrics != nil {
		r.metrics.Alerts.WithLabelValues(r.name, sev.String()).Inc()
	}
	r.logger.Warn("monitor alert", zap.String("severity", sev.String()), zap.String("message", msg))
	return a
}
