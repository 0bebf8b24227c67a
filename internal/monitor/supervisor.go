package monitor

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/secureclaw/secureclaw/internal/config"
)

// Supervisor owns one instance of each monitor for a process.
type Supervisor struct {
	Credential *Runner
	Memory     *Runner
	Cost       *Runner
}

// NewSupervisor builds the three monitors from settings. opts apply to all
// of them after the per-monitor interval and capacity.
func NewSupervisor(s *config.Settings, opts ...Option) *Supervisor {
	with := func(interval config.Duration) []Option {
		base := []Option{WithInterval(interval.Std()), WithCapacity(s.Monitors.AlertCapacity)}
		return append(base, opts...)
	}
	return &Supervisor{
		Credential: NewCredentialMonitor(with(s.Monitors.CredentialInterval)...),
		Memory:     NewMemoryMonitor(s.Memory, with(s.Monitors.MemoryInterval)...),
		Cost:       NewCostMonitor(s.Cost, with(s.Monitors.CostInterval)...),
	}
}

// Monitors returns the monitors in a stable order.
func (s *Supervisor) Monitors() []*Runner {
	return []*Runner{s.Credential, s.Memory, s.Cost}
}

// StartAll starts every monitor. A monitor that fails to start does not
// stop the others; the first error is returned.
func (s *Supervisor) StartAll(ctx context.Context, stateDir string) error {
	var g errgroup.Group
	for _, m := range s.Monitors() {
		m := m
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return m.Start(stateDir)
		})
	}
	return g.Wait()
}

// StopAll stops every monitor and waits for them, or for ctx.
func (s *Supervisor) StopAll(ctx context.Context) error {
	var g errgroup.Group
	for _, m := range s.Monitors() {
		m := m
		g.Go(func() error {
			m.Stop()
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Statuses reports every monitor.
func (s *Supervisor) Statuses() []Status {
	out := make([]Status, 0, 3)
	for _, m := range s.Monitors() {
		out = append(out, m.Status())
	}
	return out
}
