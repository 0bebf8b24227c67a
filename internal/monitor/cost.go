package monitor

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/secureclaw/secureclaw/internal/config"
	"github.com/secureclaw/secureclaw/internal/fsys"
	"github.com/secureclaw/secureclaw/internal/types"
)

// DefaultCostInterval is the cost monitor sampling period.
const DefaultCostInterval = 60 * time.Second

const (
	costWindow = 24 * time.Hour

	// spikeMinSamples is how many entries form a mean worth comparing to.
	spikeMinSamples = 5
)

// UsageEntry is one line of usage/*.jsonl written by the host.
type UsageEntry struct {
	Timestamp time.Time `json:"timestamp"`
	CostUSD   float64   `json:"costUsd"`
	Model     string    `json:"model"`
	SessionID string    `json:"sessionId"`
}

// NewCostMonitor tracks spend from usage logs over a sliding day. It raises
// a high alert when the last hour exceeds the hourly limit, a critical alert
// when the day exceeds the daily limit, and a medium alert for a single
// entry far above the running mean. Limits in openclaw.json win over
// settings. Each limit breach is reported once until spend falls back.
func NewCostMonitor(settings config.CostSettings, opts ...Option) *Runner {
	o := buildOptions(DefaultCostInterval, opts)
	if settings.SpikeFactor <= 1 {
		settings.SpikeFactor = config.Default().Cost.SpikeFactor
	}
	return newRunner(NameCost, &costSampler{fs: o.fs, settings: settings, now: o.now, logger: o.logger}, o)
}

type costSampler struct {
	fs       afero.Fs
	settings config.CostSettings
	now      func() time.Time
	logger   *zap.Logger

	stateDir       string
	tail           *tailer
	window         []UsageEntry
	count          int
	total          float64
	hourlyBreached bool
	dailyBreached  bool
}

func (s *costSampler) open(_ context.Context, stateDir string, _ func()) error {
	s.stateDir = stateDir
	s.tail = newTailer(s.fs)
	s.window = nil
	s.count, s.total = 0, 0
	s.hourlyBreached, s.dailyBreached = false, false
	return nil
}

func (s *costSampler) close() {}

func (s *costSampler) limits() (hourly, daily float64) {
	hourly, daily = s.settings.HourlyLimitUSD, s.settings.DailyLimitUSD
	cfg, err := config.LoadOpenClaw(fsys.New(s.fs), s.stateDir)
	if err != nil {
		s.logger.Debug("using configured cost limits", zap.Error(err))
		return hourly, daily
	}
	if v := cfg.SecureClaw.Cost.HourlyLimitUSD; v != nil {
		hourly = *v
	}
	if v := cfg.SecureClaw.Cost.DailyLimitUSD; v != nil {
		daily = *v
	}
	return hourly, daily
}

func (s *costSampler) sample(ctx context.Context, emit emitFunc) error {
	files, err := globFiles(s.fs, s.stateDir, "usage/*.jsonl")
	if err != nil {
		return err
	}

	now := s.now()
	live := map[string]bool{}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		live[path] = true
		lines, err := s.tail.readNew(path)
		if err != nil {
			continue
		}
		for _, l := range lines {
			if strings.TrimSpace(l.text) == "" {
				continue
			}
			var e UsageEntry
			if err := json.Unmarshal([]byte(l.text), &e); err != nil {
				s.logger.Debug("skipping malformed usage line", zap.String("file", path), zap.Int("line", l.n))
				continue
			}
			if e.Timestamp.IsZero() || e.Timestamp.After(now) {
				e.Timestamp = now
			}
			s.add(e, emit)
		}
	}
	s.tail.forget(live)

	cutoff := now.Add(-costWindow)
	kept := s.window[:0]
	var hourSpend, daySpend float64
	for _, e := range s.window {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		kept = append(kept, e)
		daySpend += e.CostUSD
		if e.Timestamp.After(now.Add(-time.Hour)) {
			hourSpend += e.CostUSD
		}
	}
	s.window = kept

	hourly, daily := s.limits()
	s.hourlyBreached = checkLimit(hourly, hourSpend, s.hourlyBreached, func() {
		emit(types.SeverityHigh, "hourly spend $%.2f exceeds limit $%.2f", hourSpend, hourly)
	})
	s.dailyBreached = checkLimit(daily, daySpend, s.dailyBreached, func() {
		emit(types.SeverityCritical, "daily spend $%.2f exceeds limit $%.2f", daySpend, daily)
	})
	return nil
}

// add records one entry, flagging it against the mean of earlier entries.
func (s *costSampler) add(e UsageEntry, emit emitFunc) {
	if s.count >= spikeMinSamples {
		mean := s.total / float64(s.count)
		if mean > 0 && e.CostUSD > mean*s.settings.SpikeFactor {
			emit(types.SeverityMedium, "cost spike: $%.4f for %s (session %s) is %.1fx the mean $%.4f",
				e.CostUSD, orUnknown(e.Model), orUnknown(e.SessionID), e.CostUSD/mean, mean)
		}
	}
	s.count++
	s.total += e.CostUSD
	s.window = append(s.window, e)
}

// checkLimit fires alert when spend first exceeds limit and returns the new
// breach state. A non-positive limit disables the check.
func checkLimit(limit, spend float64, breached bool, alert func()) bool {
	if limit <= 0 || spend <= limit {
		return false
	}
	if !breached {
		alert()
	}
	return true
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
