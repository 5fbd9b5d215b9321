package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// =============================================================================
// Test Helpers
// =============================================================================

func newTestCollector(cfg CollectorConfig) (*Collector, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	return NewCollectorWithRegistry(cfg, registry), registry
}

// =============================================================================
// Tests: NewCollector
// =============================================================================

func TestNewCollector(t *testing.T) {
	tests := []struct {
		name string
		cfg  CollectorConfig
	}{
		{"single", CollectorConfig{Command: "echo Hello", Mode: "single", TargetRuns: 1, Concurrency: 1}},
		{"repeat", CollectorConfig{Version: "1.2.3", Command: "emit", Mode: "repeat", TargetRuns: 200, Concurrency: 8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCollector(tt.cfg)

			if got := testutil.ToFloat64(c.targetRuns); got != float64(tt.cfg.TargetRuns) {
				t.Errorf("target_runs = %v, want %d", got, tt.cfg.TargetRuns)
			}
			if got := testutil.ToFloat64(c.concurrency); got != float64(tt.cfg.Concurrency) {
				t.Errorf("concurrency = %v, want %d", got, tt.cfg.Concurrency)
			}
		})
	}
}

func TestNewCollector_InfoDefaultsVersion(t *testing.T) {
	c, _ := newTestCollector(CollectorConfig{Command: "true", Mode: "single"})
	if got := testutil.ToFloat64(c.info.WithLabelValues("dev", "true", "single")); got != 1 {
		t.Errorf("info{version=dev} = %v, want 1", got)
	}
}

func TestNewCollector_SeparateRegistries(t *testing.T) {
	// Each collector owns its metrics, so two registries never collide.
	a, _ := newTestCollector(CollectorConfig{})
	b, _ := newTestCollector(CollectorConfig{})
	a.RunStarted()
	if got := testutil.ToFloat64(b.activeRuns); got != 0 {
		t.Errorf("second collector active_runs = %v, want 0", got)
	}
}

// =============================================================================
// Tests: Recording
// =============================================================================

func TestCollector_RecordRun(t *testing.T) {
	c, _ := newTestCollector(CollectorConfig{TargetRuns: 3})

	c.RunStarted()
	c.RunStarted()
	if got := testutil.ToFloat64(c.activeRuns); got != 2 {
		t.Errorf("active_runs = %v, want 2", got)
	}

	c.RecordRun(RunRecord{
		Outcome:      OutcomeOK,
		Exited:       true,
		Duration:     20 * time.Millisecond,
		StdoutBytes:  1 << 20,
		StderrBytes:  100,
		StdoutChunks: 16,
		StderrChunks: 1,
	})
	c.RecordRun(RunRecord{
		Outcome:   OutcomeHang,
		Exited:    true,
		ExitCode:  143,
		Signaled:  true,
		Duration:  10 * time.Second,
		Abandoned: []string{"stderr"},
	})

	checks := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"active", c.activeRuns, 0},
		{"runs ok", c.runsTotal.WithLabelValues(OutcomeOK), 1},
		{"runs hang", c.runsTotal.WithLabelValues(OutcomeHang), 1},
		{"exits success", c.exitsTotal.WithLabelValues("success"), 1},
		{"exits signal", c.exitsTotal.WithLabelValues("signal"), 1},
		{"stdout bytes", c.bytesTotal.WithLabelValues("stdout"), 1 << 20},
		{"stderr bytes", c.bytesTotal.WithLabelValues("stderr"), 100},
		{"stdout chunks", c.chunksTotal.WithLabelValues("stdout"), 16},
		{"abandoned stderr", c.abandonedTotal.WithLabelValues("stderr"), 1},
	}
	for _, ch := range checks {
		if got := testutil.ToFloat64(ch.c); got != ch.want {
			t.Errorf("%s = %v, want %v", ch.name, got, ch.want)
		}
	}

	if n := testutil.CollectAndCount(c.runDuration); n != 1 {
		t.Errorf("run_duration_seconds series = %d, want 1", n)
	}
}

func TestCollector_RecordRun_ExitCategories(t *testing.T) {
	tests := []struct {
		name     string
		rec      RunRecord
		category string
	}{
		{"success", RunRecord{Outcome: OutcomeOK, Exited: true}, "success"},
		{"error", RunRecord{Outcome: OutcomeNonZeroExit, Exited: true, ExitCode: 2}, "error"},
		{"signal", RunRecord{Outcome: OutcomeHang, Exited: true, ExitCode: 137, Signaled: true}, "signal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCollector(CollectorConfig{})
			c.RunStarted()
			c.RecordRun(tt.rec)
			if got := testutil.ToFloat64(c.exitsTotal.WithLabelValues(tt.category)); got != 1 {
				t.Errorf("exits_total{%s} = %v, want 1", tt.category, got)
			}
		})
	}
}

func TestCollector_SpawnErrorHasNoExit(t *testing.T) {
	c, _ := newTestCollector(CollectorConfig{})
	c.RunStarted()
	c.RecordRun(RunRecord{Outcome: OutcomeSpawnError})

	if n := testutil.CollectAndCount(c.exitsTotal); n != 0 {
		t.Errorf("exits_total series = %d, want 0", n)
	}
	if len(c.GenerateSummary().ExitCodes) != 0 {
		t.Error("spawn error should not record an exit code")
	}
}

func TestCollector_SetDurationPercentiles(t *testing.T) {
	c, _ := newTestCollector(CollectorConfig{})
	c.SetDurationPercentiles(10*time.Millisecond, 50*time.Millisecond, 2*time.Second)

	if got := testutil.ToFloat64(c.durationQuantile.WithLabelValues("0.99")); got != 2 {
		t.Errorf("p99 = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.durationQuantile.WithLabelValues("0.5")); got != 0.01 {
		t.Errorf("p50 = %v, want 0.01", got)
	}
}

// =============================================================================
// Tests: Summary
// =============================================================================

func TestCollector_GenerateSummary(t *testing.T) {
	c, _ := newTestCollector(CollectorConfig{TargetRuns: 4})

	c.RunStarted()
	c.RunStarted()
	c.RunStarted()
	c.RecordRun(RunRecord{Outcome: OutcomeOK, Exited: true})
	c.RecordRun(RunRecord{Outcome: OutcomeNonZeroExit, Exited: true, ExitCode: 3})
	c.RunStarted()
	c.RecordRun(RunRecord{Outcome: OutcomeOK, Exited: true})

	s := c.GenerateSummary()
	if s.TargetRuns != 4 || s.TotalRuns != 4 {
		t.Errorf("TargetRuns=%d TotalRuns=%d, want 4/4", s.TargetRuns, s.TotalRuns)
	}
	if s.PeakActive != 3 {
		t.Errorf("PeakActive = %d, want 3", s.PeakActive)
	}
	if s.Outcomes[OutcomeOK] != 2 || s.Outcomes[OutcomeNonZeroExit] != 1 {
		t.Errorf("Outcomes = %v", s.Outcomes)
	}
	if s.ExitCodes[0] != 2 || s.ExitCodes[3] != 1 {
		t.Errorf("ExitCodes = %v", s.ExitCodes)
	}

	// The summary is a copy.
	s.Outcomes[OutcomeOK] = 100
	if c.GenerateSummary().Outcomes[OutcomeOK] != 2 {
		t.Error("GenerateSummary should return copies")
	}
}

func TestCollector_ThreadSafety(t *testing.T) {
	c, _ := newTestCollector(CollectorConfig{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.RunStarted()
				c.RecordRun(RunRecord{Outcome: OutcomeOK, Exited: true, StdoutBytes: 1})
				_ = c.GenerateSummary()
			}
		}()
	}
	wg.Wait()

	if got := testutil.ToFloat64(c.bytesTotal.WithLabelValues("stdout")); got != 1000 {
		t.Errorf("stdout bytes = %v, want 1000", got)
	}
	if c.GenerateSummary().TotalRuns != 1000 {
		t.Errorf("TotalRuns = %d, want 1000", c.GenerateSummary().TotalRuns)
	}
}

// =============================================================================
// Tests: Server
// =============================================================================

func TestServer_Endpoints(t *testing.T) {
	c, registry := newTestCollector(CollectorConfig{Command: "echo", Mode: "single"})
	c.RunStarted()
	c.RecordRun(RunRecord{Outcome: OutcomeOK, Exited: true, StdoutBytes: 14})

	srv := httptest.NewServer(NewServer("127.0.0.1:0", registry, nil).Handler())
	defer srv.Close()

	tests := []struct {
		path string
		want string
	}{
		{"/metrics", `pipe_drain_runs_total{outcome="ok"} 1`},
		{"/metrics", `pipe_drain_bytes_total{stream="stdout"} 14`},
		{"/health", "ok"},
		{"/readyz", "ok"},
	}
	for _, tt := range tests {
		resp, err := http.Get(srv.URL + tt.path)
		if err != nil {
			t.Fatalf("GET %s: %v", tt.path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d", tt.path, resp.StatusCode)
		}
		if !strings.Contains(string(body), tt.want) {
			t.Errorf("GET %s body missing %q", tt.path, tt.want)
		}
	}
}

func TestServer_StartShutdown(t *testing.T) {
	s := NewServer("127.0.0.1:0", prometheus.NewRegistry(), nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if strings.HasSuffix(s.Addr(), ":0") {
		t.Errorf("Addr() = %q, want the bound port", s.Addr())
	}

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestServer_StartBindError(t *testing.T) {
	first := NewServer("127.0.0.1:0", prometheus.NewRegistry(), nil)
	if err := first.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer first.Shutdown(context.Background())

	second := NewServer(first.Addr(), prometheus.NewRegistry(), nil)
	if err := second.Start(); err == nil {
		second.Shutdown(context.Background())
		t.Fatal("second Start on the same address should fail")
	}
}
