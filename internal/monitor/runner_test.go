package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secureclaw/secureclaw/internal/types"
)

type fakeSampler struct {
	mu      sync.Mutex
	opened  int
	closed  int
	samples atomic.Int32
	emit    []string
	err     error
	panics  bool
	block   bool
	started chan struct{}
}

func (f *fakeSampler) open(context.Context, string, func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened++
	return nil
}

func (f *fakeSampler) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func (f *fakeSampler) sample(ctx context.Context, emit emitFunc) error {
	f.samples.Add(1)
	if f.block {
		if f.started != nil {
			close(f.started)
			f.started = nil
		}
		<-ctx.Done()
		return ctx.Err()
	}
	if f.panics {
		panic("boom")
	}
	for _, msg := range f.emit {
		emit(types.SeverityMedium, "%s", msg)
	}
	return f.err
}

func (f *fakeSampler) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened, f.closed
}

func newTestRunner(s sampler, opts ...Option) *Runner {
	return newRunner("fake", s, buildOptions(time.Hour, opts))
}

func TestRunner_StartStopIdempotent(t *testing.T) {
	fs := &fakeSampler{emit: []string{"hello"}}
	r := newTestRunner(fs)

	require.NoError(t, r.Start(t.TempDir()))
	require.NoError(t, r.Start(t.TempDir()))
	assert.True(t, r.Status().Running)

	// The first sample runs immediately.
	assert.Eventually(t, func() bool { return fs.samples.Load() == 1 }, time.Second, 5*time.Millisecond)

	r.Stop()
	r.Stop()
	assert.False(t, r.Status().Running)

	opened, closed := fs.counts()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, closed)

	st := r.Status()
	require.Len(t, st.Alerts, 1)
	assert.Equal(t, "fake", st.Alerts[0].Source)
	assert.Equal(t, "hello", st.Alerts[0].Message)
	assert.NotEmpty(t, st.Alerts[0].ID)
}

func TestRunner_RequiresStateDir(t *testing.T) {
	r := newTestRunner(&fakeSampler{})
	assert.ErrorIs(t, r.Start(""), ErrNoStateDir)
	assert.False(t, r.Status().Running)
}

func TestRunner_RestartAfterStop(t *testing.T) {
	fs := &fakeSampler{}
	r := newTestRunner(fs)
	dir := t.TempDir()

	for i := 0; i < 3; i++ {
		require.NoError(t, r.Start(dir))
		r.Stop()
	}
	opened, closed := fs.counts()
	assert.Equal(t, 3, opened)
	assert.Equal(t, 3, closed)
}

func TestRunner_StatusDoesNotWaitForSample(t *testing.T) {
	started := make(chan struct{})
	fs := &fakeSampler{block: true, started: started}
	r := newTestRunner(fs)
	require.NoError(t, r.Start(t.TempDir()))
	<-started

	done := make(chan Status)
	go func() { done <- r.Status() }()
	select {
	case st := <-done:
		assert.True(t, st.Running)
		assert.Empty(t, st.Alerts)
	case <-time.After(time.Second):
		t.Fatal("Status blocked on an in-flight sample")
	}

	r.Stop()
	assert.False(t, r.Status().Running)
}

func TestRunner_SampleErrorsAreIsolated(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	fs := &fakeSampler{err: errors.New("disk on fire")}
	r := newTestRunner(fs, WithInterval(5*time.Millisecond), WithMetrics(m))

	require.NoError(t, r.Start(t.TempDir()))
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.SampleErrors.WithLabelValues("fake")) >= 3
	}, 2*time.Second, 5*time.Millisecond)
	r.Stop()

	// The same error is reported once.
	alerts := r.Status().Alerts
	require.Len(t, alerts, 1)
	assert.Equal(t, types.SeverityLow, alerts[0].Severity)
	assert.Equal(t, "sampling failed: disk on fire", alerts[0].Message)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Alerts.WithLabelValues("fake", "low")))
	assert.Zero(t, testutil.ToFloat64(m.Samples.WithLabelValues("fake")))
}

func TestRunner_PanicBecomesAlert(t *testing.T) {
	fs := &fakeSampler{panics: true}
	r := newTestRunner(fs, WithInterval(5*time.Millisecond))

	require.NoError(t, r.Start(t.TempDir()))
	assert.Eventually(t, func() bool { return fs.samples.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	r.Stop()

	alerts := r.Status().Alerts
	require.Len(t, alerts, 1)
	assert.Equal(t, "sampling failed: panic: boom", alerts[0].Message)
}

func TestRunner_CapacityEvictsOldest(t *testing.T) {
	fs := &fakeSampler{}
	for i := 0; i < 5; i++ {
		fs.emit = append(fs.emit, fmt.Sprintf("alert-%d", i))
	}
	r := newTestRunner(fs, WithCapacity(3))

	alerts, err := r.Check(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Len(t, alerts, 5)

	st := r.Status()
	require.Len(t, st.Alerts, 3)
	assert.Equal(t, "alert-2", st.Alerts[0].Message)
	assert.Equal(t, "alert-4", st.Alerts[2].Message)
}

func TestRunner_CheckWhileRunning(t *testing.T) {
	r := newTestRunner(&fakeSampler{})
	require.NoError(t, r.Start(t.TempDir()))
	defer r.Stop()

	_, err := r.Check(context.Background(), t.TempDir())
	assert.Error(t, err)
}

func TestRunner_ConcurrentStatus(t *testing.T) {
	fs := &fakeSampler{emit: []string{"a", "b"}}
	r := newTestRunner(fs, WithInterval(time.Millisecond), WithCapacity(10))
	require.NoError(t, r.Start(t.TempDir()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				st := r.Status()
				assert.LessOrEqual(t, len(st.Alerts), 10)
			}
		}()
	}
	wg.Wait()
	r.Stop()
}

func TestRing(t *testing.T) {
	r := newRing(2)
	assert.Empty(t, r.snapshot())

	r.push(Alert{Message: "1"})
	r.push(Alert{Message: "2"})
	r.push(Alert{Message: "3"})
	got := r.snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].Message)
	assert.Equal(t, "3", got[1].Message)

	assert.Len(t, newRing(0).buf, DefaultCapacity)
}
