// Package timer measures the wall time of a single job run.
package timer

import (
	"sync"
	"time"
)

// Timer records the elapsed time between Start and Stop. Starting again
// discards the previous measurement.
type Timer struct {
	mu      sync.Mutex
	now     func() time.Time
	begin   time.Time
	elapsed time.Duration
	running bool
}

func New() *Timer {
	return &Timer{now: time.Now}
}

// NewWithClock is used by tests that need a deterministic clock.
func NewWithClock(now func() time.Time) *Timer {
	return &Timer{now: now}
}

func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.begin = t.now()
	t.elapsed = 0
	t.running = true
}

func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.elapsed = t.now().Sub(t.begin)
	t.running = false
}

func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.begin = time.Time{}
	t.elapsed = 0
	t.running = false
}

// Elapsed returns the last measurement, or the live duration while running.
func (t *Timer) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return t.now().Sub(t.begin)
	}
	return t.elapsed
}

func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}
