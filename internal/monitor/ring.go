package monitor

import "sync"

// DefaultCapacity bounds a monitor's alert history.
const DefaultCapacity = 100

// ring is a fixed-size alert history. The oldest alert is evicted first.
type ring struct {
	mu    sync.Mutex
	buf   []Alert
	start int
	n     int
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &ring{buf: make([]Alert, capacity)}
}

func (r *ring) push(a Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = a
		r.n++
		return
	}
	r.buf[r.start] = a
	r.start = (r.start + 1) % len(r.buf)
}

// snapshot copies the history, oldest first.
func (r *ring) snapshot() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Alert, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}
