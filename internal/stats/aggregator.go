// Package stats aggregates results across repeated drain runs.
//
// Counters are atomic so the TUI can snapshot while workers record.
// Duration percentiles come from T-Digests (~10KB each regardless of run
// count).
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/influxdata/tdigest"

	"github.com/randomizedcoder/go-pipe-drain/internal/coordinator"
	"github.com/randomizedcoder/go-pipe-drain/internal/drain"
	"github.com/randomizedcoder/go-pipe-drain/internal/timeseries"
)

// MaxFailures bounds how many failure reports are kept.
const MaxFailures = 5

// Failure describes one failed run for the exit summary.
type Failure struct {
	Iteration  int
	Outcome    Outcome
	Detail     string
	Exit       string
	StdoutTail string
	StderrTail string
}

// Snapshot is a point-in-time view of the aggregate.
type Snapshot struct {
	Timestamp time.Time
	Elapsed   time.Duration

	Target    int
	Started   int64
	Completed int64
	Active    int64

	Outcomes map[Outcome]int64

	StdoutBytes int64
	StderrBytes int64
	Chunks      int64

	DurationP50 time.Duration
	DurationP95 time.Duration
	DurationP99 time.Duration
	DurationMax time.Duration

	EOFLagP50 time.Duration
	EOFLagP99 time.Duration
	EOFLagMax time.Duration

	RunsPerSec            float64
	ThroughputBytesPerSec float64

	// Rolling rates over timeseries.WindowMedium; zero until Sample runs.
	RecentRunsPerSec  float64
	RecentBytesPerSec float64
}

// Count returns the number of runs with outcome o.
func (s Snapshot) Count(o Outcome) int64 {
	return s.Outcomes[o]
}

// Failed returns the number of runs whose outcome fails the session.
func (s Snapshot) Failed() int64 {
	var n int64
	for o, c := range s.Outcomes {
		if o.Failed() {
			n += c
		}
	}
	return n
}

// Aggregator accumulates finished runs.
type Aggregator struct {
	start  time.Time
	target int

	started   atomic.Int64
	completed atomic.Int64
	stdout    atomic.Int64
	stderr    atomic.Int64
	chunks    atomic.Int64

	runRate  *timeseries.RateTracker
	byteRate *timeseries.RateTracker

	mu          sync.Mutex
	outcomes    map[Outcome]int64
	durations   *tdigest.TDigest
	eofLags     *tdigest.TDigest
	maxDuration time.Duration
	maxEOFLag   time.Duration
	failures    []Failure
}

// NewAggregator creates an aggregator expecting target runs.
func NewAggregator(target int) *Aggregator {
	return &Aggregator{
		start:     time.Now(),
		target:    target,
		runRate:   timeseries.NewRateTracker(),
		byteRate:  timeseries.NewRateTracker(),
		outcomes:  make(map[Outcome]int64),
		durations: tdigest.NewWithCompression(100),
		eofLags:   tdigest.NewWithCompression(100),
	}
}

// RunStarted counts a run as in flight.
func (a *Aggregator) RunStarted() {
	a.started.Add(1)
}

// Record adds a finished run.
func (a *Aggregator) Record(iteration int, res *coordinator.Result, outcome Outcome, detail string) {
	a.completed.Add(1)
	a.stdout.Add(res.StdoutStats.Bytes)
	a.stderr.Add(res.StderrStats.Bytes)
	a.chunks.Add(res.StdoutStats.Chunks + res.StderrStats.Chunks)
	a.runRate.Add(1)
	a.byteRate.Add(res.StdoutStats.Bytes + res.StderrStats.Bytes)

	lag := max(res.StdoutStats.EOFLag, res.StderrStats.EOFLag)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.outcomes[outcome]++
	a.durations.Add(float64(res.Duration.Nanoseconds()), 1)
	a.maxDuration = max(a.maxDuration, res.Duration)
	if res.Exit != nil {
		a.eofLags.Add(float64(lag.Nanoseconds()), 1)
		a.maxEOFLag = max(a.maxEOFLag, lag)
	}

	if outcome.Failed() && len(a.failures) < MaxFailures {
		f := Failure{Iteration: iteration, Outcome: outcome, Detail: detail, Exit: "none"}
		if res.Exit != nil {
			f.Exit = res.Exit.String()
		}
		if res.Tail != nil {
			f.StdoutTail = string(res.Tail.Bytes(drain.Stdout))
			f.StderrTail = string(res.Tail.Bytes(drain.Stderr))
		}
		a.failures = append(a.failures, f)
	}
}

// Sample records the rolling-rate samples. Call it from a 1s ticker.
func (a *Aggregator) Sample() {
	a.runRate.Sample()
	a.byteRate.Sample()
}

// Failures returns the first MaxFailures failed runs.
func (a *Aggregator) Failures() []Failure {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Failure, len(a.failures))
	copy(out, a.failures)
	return out
}

// Snapshot computes the current aggregate.
func (a *Aggregator) Snapshot() Snapshot {
	now := time.Now()
	s := Snapshot{
		Timestamp:   now,
		Elapsed:     now.Sub(a.start),
		Target:      a.target,
		Started:     a.started.Load(),
		Completed:   a.completed.Load(),
		StdoutBytes: a.stdout.Load(),
		StderrBytes: a.stderr.Load(),
		Chunks:      a.chunks.Load(),
	}
	s.Active = s.Started - s.Completed

	a.mu.Lock()
	s.Outcomes = make(map[Outcome]int64, len(a.outcomes))
	for o, n := range a.outcomes {
		s.Outcomes[o] = n
	}
	if a.durations.Count() > 0 {
		s.DurationP50 = time.Duration(a.durations.Quantile(0.50))
		s.DurationP95 = time.Duration(a.durations.Quantile(0.95))
		s.DurationP99 = time.Duration(a.durations.Quantile(0.99))
	}
	if a.eofLags.Count() > 0 {
		s.EOFLagP50 = time.Duration(a.eofLags.Quantile(0.50))
		s.EOFLagP99 = time.Duration(a.eofLags.Quantile(0.99))
	}
	s.DurationMax = a.maxDuration
	s.EOFLagMax = a.maxEOFLag
	a.mu.Unlock()

	if secs := s.Elapsed.Seconds(); secs > 0 {
		s.RunsPerSec = float64(s.Completed) / secs
		s.ThroughputBytesPerSec = float64(s.StdoutBytes+s.StderrBytes) / secs
	}
	s.RecentRunsPerSec = a.runRate.Rates().Medium
	s.RecentBytesPerSec = a.byteRate.Rates().Medium
	return s
}
