// Package metrics provides Prometheus metrics for go-pipe-drain.
//
// Metrics are aggregate only: per-run labels would grow without bound in
// long repeat runs. Streams and outcomes are the only label dimensions.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pipe_drain"

// Outcome labels for runs_total.
const (
	OutcomeOK          = "ok"
	OutcomeNonZeroExit = "nonzero_exit"
	OutcomeSpawnError  = "spawn_error"
	OutcomeDrainError  = "drain_error"
	OutcomeWaitError   = "wait_error"
	OutcomeHang        = "hang"
	OutcomeCancelled   = "cancelled"
	OutcomeMismatch    = "mismatch"
)

// Collector owns every metric for one drain session.
type Collector struct {
	info             *prometheus.GaugeVec
	targetRuns       prometheus.Gauge
	concurrency      prometheus.Gauge
	activeRuns       prometheus.Gauge
	runsTotal        *prometheus.CounterVec
	exitsTotal       *prometheus.CounterVec
	bytesTotal       *prometheus.CounterVec
	chunksTotal      *prometheus.CounterVec
	abandonedTotal   *prometheus.CounterVec
	runDuration      prometheus.Histogram
	eofLag           prometheus.Histogram
	durationQuantile *prometheus.GaugeVec

	startTime time.Time

	mu         sync.Mutex
	targets    int
	active     int
	peakActive int
	totalRuns  int64
	outcomes   map[string]int64
	exitCodes  map[int]int64
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version     string
	Command     string
	Mode        string // "single" or "repeat"
	TargetRuns  int
	Concurrency int
}

// NewCollector creates a collector registered with the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Information about the drain session (value always 1)",
		}, []string{"version", "command", "mode"}),
		targetRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_runs",
			Help:      "Number of runs requested",
		}),
		concurrency: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "concurrency",
			Help:      "Maximum runs in flight",
		}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Runs currently in flight",
		}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed runs by outcome",
		}, []string{"outcome"}),
		exitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exits_total",
			Help:      "Child exits by category (success, error, signal)",
		}, []string{"category"}),
		bytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Bytes drained per stream",
		}, []string{"stream"}),
		chunksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "Chunks delivered per stream",
		}, []string{"stream"}),
		abandonedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_abandoned_total",
			Help:      "Streams closed before end-of-stream after the linger timeout",
		}, []string{"stream"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Launch to cleanup duration per run",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		eofLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "eof_lag_seconds",
			Help:      "Time from observed exit to end-of-stream on the slower stream",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		durationQuantile: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_quantile_seconds",
			Help:      "Run duration percentiles from the stats digest",
		}, []string{"quantile"}),

		startTime: time.Now(),
		targets:   cfg.TargetRuns,
		outcomes:  make(map[string]int64),
		exitCodes: make(map[int]int64),
	}

	registry.MustRegister(
		c.info,
		c.targetRuns,
		c.concurrency,
		c.activeRuns,
		c.runsTotal,
		c.exitsTotal,
		c.bytesTotal,
		c.chunksTotal,
		c.abandonedTotal,
		c.runDuration,
		c.eofLag,
		c.durationQuantile,
	)

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	c.info.WithLabelValues(version, cfg.Command, cfg.Mode).Set(1)
	c.targetRuns.Set(float64(cfg.TargetRuns))
	c.concurrency.Set(float64(cfg.Concurrency))

	return c
}

// =============================================================================
// Event Recording Methods
// =============================================================================

// RunRecord is what the collector needs from a finished run. It mirrors a
// subset of coordinator.Result so this package stays free of run logic.
type RunRecord struct {
	Outcome      string
	Exited       bool // an exit status was obtained
	ExitCode     int  // shell-style: 128+signal for signaled exits
	Signaled     bool
	Duration     time.Duration
	StdoutBytes  int64
	StderrBytes  int64
	StdoutChunks int64
	StderrChunks int64
	EOFLag       time.Duration
	Abandoned    []string // streams
}

// RunStarted marks a run as in flight.
func (c *Collector) RunStarted() {
	c.activeRuns.Inc()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRuns++
	c.active++
	if c.active > c.peakActive {
		c.peakActive = c.active
	}
}

// RecordRun records a finished run.
func (c *Collector) RecordRun(r RunRecord) {
	c.activeRuns.Dec()
	c.runsTotal.WithLabelValues(r.Outcome).Inc()
	c.runDuration.Observe(r.Duration.Seconds())
	c.eofLag.Observe(r.EOFLag.Seconds())

	c.bytesTotal.WithLabelValues("stdout").Add(float64(r.StdoutBytes))
	c.bytesTotal.WithLabelValues("stderr").Add(float64(r.StderrBytes))
	c.chunksTotal.WithLabelValues("stdout").Add(float64(r.StdoutChunks))
	c.chunksTotal.WithLabelValues("stderr").Add(float64(r.StderrChunks))
	for _, s := range r.Abandoned {
		c.abandonedTotal.WithLabelValues(s).Inc()
	}

	if r.Exited {
		category := "error"
		switch {
		case r.Signaled:
			category = "signal"
		case r.ExitCode == 0:
			category = "success"
		}
		c.exitsTotal.WithLabelValues(category).Inc()
	}

	c.mu.Lock()
	c.active--
	c.outcomes[r.Outcome]++
	if r.Exited {
		c.exitCodes[r.ExitCode]++
	}
	c.mu.Unlock()
}

// SetDurationPercentiles publishes digest percentiles.
func (c *Collector) SetDurationPercentiles(p50, p95, p99 time.Duration) {
	c.durationQuantile.WithLabelValues("0.5").Set(p50.Seconds())
	c.durationQuantile.WithLabelValues("0.95").Set(p95.Seconds())
	c.durationQuantile.WithLabelValues("0.99").Set(p99.Seconds())
}

// =============================================================================
// Summary Generation
// =============================================================================

// Summary holds the data for generating an exit summary.
type Summary struct {
	Duration   time.Duration
	TargetRuns int
	PeakActive int
	TotalRuns  int64
	Outcomes   map[string]int64
	ExitCodes  map[int]int64
}

// GenerateSummary creates a summary of the session so far.
func (c *Collector) GenerateSummary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		Duration:   time.Since(c.startTime),
		TargetRuns: c.targets,
		PeakActive: c.peakActive,
		TotalRuns:  c.totalRuns,
		Outcomes:   make(map[string]int64, len(c.outcomes)),
		ExitCodes:  make(map[int]int64, len(c.exitCodes)),
	}
	for k, v := range c.outcomes {
		s.Outcomes[k] = v
	}
	for k, v := range c.exitCodes {
		s.ExitCodes[k] = v
	}
	return s
}

// PeakActive returns the most runs seen in flight at once.
func (c *Collector) PeakActive() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peakActive
}
