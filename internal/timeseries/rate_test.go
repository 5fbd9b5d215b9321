package timeseries

import (
	"sync"
	"testing"
	"time"

	"github.com/shoenig/test/must"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestRateTracker_Empty(t *testing.T) {
	clock := newFakeClock()
	tr := NewRateTrackerWithClock(clock)

	r := tr.Rates()
	must.Eq(t, Rates{}, r)
	must.Eq(t, 1, tr.Len())
}

func TestRateTracker_IgnoresNonPositive(t *testing.T) {
	tr := NewRateTrackerWithClock(newFakeClock())
	tr.Add(0)
	tr.Add(-5)
	tr.Add(7)
	must.Eq(t, int64(7), tr.Total())
}

func TestRateTracker_SteadyRate(t *testing.T) {
	clock := newFakeClock()
	tr := NewRateTrackerWithClock(clock)

	for range 90 {
		clock.Advance(time.Second)
		tr.Add(100)
		tr.Sample()
	}

	r := tr.Rates()
	must.Eq(t, int64(9000), r.Total)
	must.Eq(t, 100.0, r.Short)
	must.Eq(t, 100.0, r.Medium)
	must.Eq(t, 100.0, r.Long)
	must.Eq(t, 100.0, r.Overall)
}

func TestRateTracker_BurstFadesFromShortWindow(t *testing.T) {
	clock := newFakeClock()
	tr := NewRateTrackerWithClock(clock)

	clock.Advance(time.Second)
	tr.Add(1000)
	tr.Sample()

	for range 20 {
		clock.Advance(time.Second)
		tr.Sample()
	}

	r := tr.Rates()
	must.Eq(t, 0.0, r.Short)
	must.Eq(t, 0.0, r.Medium)
	// The long window predates history, so it measures from the first sample.
	must.Eq(t, 1000.0/21, r.Long)
}

func TestRateTracker_ShortHistoryUsesOldest(t *testing.T) {
	clock := newFakeClock()
	tr := NewRateTrackerWithClock(clock)

	clock.Advance(2 * time.Second)
	tr.Add(500)
	tr.Sample()

	r := tr.Rates()
	must.Eq(t, 250.0, r.Medium)
	must.Eq(t, 250.0, r.Long)
}

func TestRateTracker_UnsampledAddsCount(t *testing.T) {
	clock := newFakeClock()
	tr := NewRateTrackerWithClock(clock)

	clock.Advance(time.Second)
	tr.Sample()
	clock.Advance(time.Second)
	tr.Add(40)

	// Rates measure against the live total, not the last sample.
	must.Eq(t, 40.0, tr.Rates().Short)
}

func TestRateTracker_RingWraps(t *testing.T) {
	clock := newFakeClock()
	tr := NewRateTrackerWithClock(clock)

	for range ringSize * 2 {
		clock.Advance(time.Second)
		tr.Add(10)
		tr.Sample()
	}

	must.Eq(t, ringSize, tr.Len())
	must.Eq(t, 10.0, tr.Rates().Long)
}

func TestRateTracker_Concurrent(t *testing.T) {
	tr := NewRateTracker()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				tr.Add(1)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 50 {
			tr.Sample()
			_ = tr.Rates()
		}
	}()
	wg.Wait()

	must.Eq(t, int64(8000), tr.Total())
}

func BenchmarkRateTracker_Add(b *testing.B) {
	tr := NewRateTracker()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			tr.Add(1024)
		}
	})
}
