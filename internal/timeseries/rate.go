// Package timeseries tracks a cumulative counter and derives rolling rates
// from periodic samples.
//
// Add is lock-free; Sample and Rates take the ring buffer lock. Memory is
// bounded by the ring size regardless of session length.
package timeseries

import (
	"sync"
	"sync/atomic"
	"time"
)

// ringSize is the number of samples retained (two minutes at 1 sample/sec).
const ringSize = 120

// Rolling windows reported by Rates.
const (
	WindowShort  = 1 * time.Second
	WindowMedium = 10 * time.Second
	WindowLong   = 60 * time.Second
)

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type sample struct {
	at    time.Time
	total int64
}

// RateTracker counts events (bytes, runs) and reports per-second rates over
// the rolling windows.
//
//	t := NewRateTracker()
//	t.Add(n)     // from any goroutine
//	t.Sample()   // from a 1s ticker
//	r := t.Rates()
type RateTracker struct {
	total atomic.Int64

	mu    sync.RWMutex
	ring  []sample
	next  int
	start time.Time
	clock Clock
}

// Rates is the tracker state at one instant. All rates are per second.
type Rates struct {
	Total   int64
	Short   float64
	Medium  float64
	Long    float64
	Overall float64
}

// NewRateTracker creates a tracker on the wall clock.
func NewRateTracker() *RateTracker {
	return NewRateTrackerWithClock(realClock{})
}

// NewRateTrackerWithClock creates a tracker on clock.
func NewRateTrackerWithClock(clock Clock) *RateTracker {
	now := clock.Now()
	t := &RateTracker{
		ring:  make([]sample, 0, ringSize),
		start: now,
		clock: clock,
	}
	t.ring = append(t.ring, sample{at: now})
	return t
}

// Add increases the counter. Non-positive n is ignored.
func (t *RateTracker) Add(n int64) {
	if n > 0 {
		t.total.Add(n)
	}
}

// Total returns the counter value.
func (t *RateTracker) Total() int64 {
	return t.total.Load()
}

// Sample records the counter value at the current time.
func (t *RateTracker) Sample() {
	s := sample{at: t.clock.Now(), total: t.total.Load()}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.ring) < ringSize {
		t.ring = append(t.ring, s)
		return
	}
	t.ring[t.next] = s
	t.next = (t.next + 1) % ringSize
}

// Rates computes the rolling rates against the latest counter value.
func (t *RateTracker) Rates() Rates {
	now := t.clock.Now()
	total := t.total.Load()

	t.mu.RLock()
	defer t.mu.RUnlock()

	r := Rates{
		Total:  total,
		Short:  t.rateOver(now, total, WindowShort),
		Medium: t.rateOver(now, total, WindowMedium),
		Long:   t.rateOver(now, total, WindowLong),
	}
	if secs := now.Sub(t.start).Seconds(); secs > 0 {
		r.Overall = float64(total) / secs
	}
	return r
}

// rateOver measures from the newest sample at or before now-window, or from
// the oldest retained sample when history is shorter than window.
// Caller holds mu.
func (t *RateTracker) rateOver(now time.Time, total int64, window time.Duration) float64 {
	cutoff := now.Add(-window)

	var base *sample
	for i := range t.ring {
		s := &t.ring[i]
		if s.at.After(cutoff) {
			continue
		}
		if base == nil || s.at.After(base.at) {
			base = s
		}
	}
	if base == nil {
		base = t.oldest()
	}

	secs := now.Sub(base.at).Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(total-base.total) / secs
}

// oldest returns the oldest retained sample. Caller holds mu.
func (t *RateTracker) oldest() *sample {
	if len(t.ring) < ringSize {
		return &t.ring[0]
	}
	return &t.ring[t.next]
}

// Len returns the number of retained samples.
func (t *RateTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.ring)
}
