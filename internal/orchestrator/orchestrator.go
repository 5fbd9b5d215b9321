// Package orchestrator wires configuration, preflight, metrics and the
// coordinator into a single run or a repeated regression session.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/randomizedcoder/go-pipe-drain/internal/config"
	"github.com/randomizedcoder/go-pipe-drain/internal/coordinator"
	"github.com/randomizedcoder/go-pipe-drain/internal/drain"
	"github.com/randomizedcoder/go-pipe-drain/internal/emit"
	"github.com/randomizedcoder/go-pipe-drain/internal/logging"
	"github.com/randomizedcoder/go-pipe-drain/internal/metrics"
	"github.com/randomizedcoder/go-pipe-drain/internal/parser"
	"github.com/randomizedcoder/go-pipe-drain/internal/preflight"
	"github.com/randomizedcoder/go-pipe-drain/internal/process"
	"github.com/randomizedcoder/go-pipe-drain/internal/stats"
	"github.com/randomizedcoder/go-pipe-drain/internal/tui"
)

// ExitInterrupted is returned by Run when a repeat session with no failures
// was stopped before every run finished.
const ExitInterrupted = 130

// percentileInterval is how often digest percentiles are pushed to metrics
// during a repeat session.
const percentileInterval = time.Second

// Orchestrator coordinates all components for one invocation of the CLI.
type Orchestrator struct {
	config  *config.Config
	logger  *slog.Logger
	version string

	stdout io.Writer
	stderr io.Writer

	registry      *prometheus.Registry
	metrics       *metrics.Collector
	metricsServer *metrics.Server
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithOutput sets where child output, preflight results and the exit
// summary are written. The defaults are os.Stdout and os.Stderr.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(o *Orchestrator) {
		o.stdout = stdout
		o.stderr = stderr
	}
}

// WithVersion sets the version reported by the info metric.
func WithVersion(version string) Option {
	return func(o *Orchestrator) {
		o.version = version
	}
}

// New creates a new Orchestrator with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	o := &Orchestrator{
		config: cfg,
		logger: logger,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(o)
	}

	mode := "single"
	if o.repeatMode() {
		mode = "repeat"
	}
	command := cfg.Executable
	if cfg.EmitMode() {
		command = emit.Subcommand
	}

	// Own registry so several orchestrators (tests) never collide.
	o.registry = prometheus.NewRegistry()
	o.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	o.metrics = metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Version:     o.version,
		Command:     command,
		Mode:        mode,
		TargetRuns:  cfg.Repeat,
		Concurrency: cfg.Concurrency,
	}, o.registry)

	if cfg.MetricsAddr != "" {
		o.metricsServer = metrics.NewServer(cfg.MetricsAddr, o.registry, logger)
	}
	return o
}

func (o *Orchestrator) repeatMode() bool {
	return o.config.Repeat > 1
}

// Run executes the configured session and returns the process exit code.
// The error is non-nil only when the session could not start.
func (o *Orchestrator) Run(ctx context.Context) (int, error) {
	spec, err := o.Spec()
	if err != nil {
		return 1, err
	}

	// Run preflight checks
	if !o.config.SkipPreflight {
		result := preflight.RunAll(preflight.Request{
			Executable:  spec.Path,
			Concurrency: o.config.Concurrency,
			Payload:     max(o.config.EmitStdout, o.config.EmitStderr),
		})
		if o.repeatMode() || o.config.Verbose || !result.Passed {
			preflight.PrintResults(o.stderr, result)
		}
		if !result.Passed {
			return 1, errors.New("preflight checks failed (use -skip-preflight to override)")
		}
	}

	// Start metrics server
	if o.metricsServer != nil {
		if err := o.metricsServer.Start(); err != nil {
			return 1, fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := o.metricsServer.Shutdown(shutdownCtx); err != nil {
				o.logger.Warn("metrics_server_shutdown_error", "error", err)
			}
		}()
	}

	// Setup signal handling
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			o.logger.Info("received_signal", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	var code int
	if o.repeatMode() {
		code = o.runRepeat(ctx, spec)
	} else {
		code = o.runSingle(ctx, spec)
	}

	if path := o.config.MetricsDump; path != "" {
		if err := metrics.DumpFile(path, o.registry); err != nil {
			return code, fmt.Errorf("writing metrics dump: %w", err)
		}
		o.logger.Debug("metrics_dumped", "path", path)
	}
	return code, nil
}

// Spec returns the child to run. In emit mode the child is this binary.
func (o *Orchestrator) Spec() (process.Spec, error) {
	self := ""
	if o.config.EmitMode() {
		exe, err := os.Executable()
		if err != nil {
			return process.Spec{}, fmt.Errorf("locating own executable for emit mode: %w", err)
		}
		self = exe
	}
	return o.config.Spec(self), nil
}

// coordinatorOptions maps the configuration onto coordinator options.
func (o *Orchestrator) coordinatorOptions() coordinator.Options {
	opts := coordinator.DefaultOptions()
	opts.SeparateStderr = o.config.SeparateStderr
	opts.Verbose = o.config.Verbose
	opts.Timeout = o.config.Timeout
	opts.GracePeriod = o.config.GracePeriod
	opts.LingerTimeout = o.config.LingerTimeout
	opts.ReadBufferSize = o.config.ReadBufferSize
	opts.TailBytes = o.config.TailBytes
	opts.LineBuffer = o.config.LineBuffer
	opts.SpawnRetries = o.config.SpawnRetries
	opts.Backoff = o.config.BackoffConfig()
	opts.Logger = o.logger
	return opts
}

// expectation returns the exact output of the emitter child, or nil when
// the child is an external command.
func (o *Orchestrator) expectation() *stats.Expectation {
	if !o.config.EmitMode() {
		return nil
	}
	plan := o.config.EmitPlan()
	if !o.config.SeparateStderr {
		return &stats.Expectation{Stdout: plan.ExpectMerged(), Stderr: []byte{}}
	}
	stdout, stderr := plan.Expect()
	return &stats.Expectation{Stdout: stdout, Stderr: stderr}
}

// runSingle runs the child once, echoing its output unless quiet.
func (o *Orchestrator) runSingle(ctx context.Context, spec process.Spec) int {
	opts := o.coordinatorOptions()

	var echo *drain.WriterSink
	if !o.config.Quiet {
		echo = drain.NewWriterSink(o.stdout, o.stderr)
		opts.Sink = echo
	}
	if o.config.Verbose {
		opts.LineObserver = func(s drain.Stream) parser.LineParser {
			return logging.NewOutputHandler(s.String(), 0, o.logger, true)
		}
	}

	o.metrics.RunStarted()
	res := coordinator.New(opts).Run(ctx, spec)
	outcome, detail := stats.Classify(res, o.expectation())
	o.metrics.RecordRun(runRecord(res, outcome))

	if echo != nil && echo.Err() != nil {
		o.logger.Warn("echo_failed", "error", echo.Err())
	}

	if err := res.Err(); err != nil {
		o.logger.Error("run_failed",
			"command", FormatCommand(spec),
			"outcome", string(outcome),
			"error", err,
		)
	} else {
		o.logger.Debug("run_complete",
			"pid", res.PID,
			"exit", res.Exit.String(),
			"stdout_bytes", res.StdoutStats.Bytes,
			"stderr_bytes", res.StderrStats.Bytes,
			"duration", res.Duration.String(),
		)
	}

	if outcome == stats.OutcomeMismatch {
		o.logger.Error("output_mismatch", "detail", detail)
		return 1
	}
	return res.ExitCode()
}

// runRepeat runs the harness, optionally under the TUI, and prints the
// exit summary.
func (o *Orchestrator) runRepeat(ctx context.Context, spec process.Spec) int {
	opts := o.coordinatorOptions()
	opts.Timeout = o.config.HangTimeout
	// Per-chunk tracing of every run is far too noisy here.
	opts.Verbose = false

	h := NewHarness(HarnessConfig{
		Runs:        o.config.Repeat,
		Concurrency: o.config.Concurrency,
		Spec:        spec,
		Options:     opts,
		Expect:      o.expectation(),
		TraceOutput: o.config.Verbose && !o.config.TUIEnabled,
		Logger:      o.logger,
		Callbacks: HarnessCallbacks{
			OnRunStart: func(int) {
				o.metrics.RunStarted()
			},
			OnRunFinish: func(_ int, res *coordinator.Result, outcome stats.Outcome, _ string) {
				o.metrics.RecordRun(runRecord(res, outcome))
			},
		},
	})
	agg := h.Aggregator()

	o.logger.Info("repeat_starting",
		"command", FormatCommand(spec),
		"runs", o.config.Repeat,
		"concurrency", o.config.Concurrency,
		"hang_timeout", o.config.HangTimeout.String(),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var program *tea.Program
	tuiDone := make(chan struct{})
	if o.config.TUIEnabled {
		program = tea.NewProgram(tui.New(tui.Config{
			Command:     FormatCommand(spec),
			TargetRuns:  o.config.Repeat,
			Concurrency: o.config.Concurrency,
			MetricsAddr: o.config.MetricsAddr,
			Source:      agg,
		}), tea.WithAltScreen())
		go func() {
			defer close(tuiDone)
			if _, err := program.Run(); err != nil {
				o.logger.Warn("tui_error", "error", err)
			}
			// Quitting the dashboard stops the session.
			cancel()
		}()
	} else {
		close(tuiDone)
	}

	publishDone := make(chan struct{})
	go func() {
		defer close(publishDone)
		ticker := time.NewTicker(percentileInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				agg.Sample()
				o.publishPercentiles(agg.Snapshot())
			case <-runCtx.Done():
				return
			}
		}
	}()

	if err := h.Run(runCtx); err != nil {
		o.logger.Warn("harness_error", "error", err)
	}
	cancel()
	<-publishDone
	if program != nil {
		tui.SendQuit(program)
	}
	<-tuiDone

	snap := agg.Snapshot()
	o.publishPercentiles(snap)

	metricsAddr := ""
	if o.metricsServer != nil {
		metricsAddr = o.metricsServer.Addr()
	}
	fmt.Fprint(o.stdout, stats.FormatExitSummary(snap, agg.Failures(), stats.SummaryConfig{
		Command:     FormatCommand(spec),
		Concurrency: o.config.Concurrency,
		MetricsAddr: metricsAddr,
		ExitCodes:   o.metrics.GenerateSummary().ExitCodes,
		PeakActive:  o.metrics.PeakActive(),
	}))

	switch {
	case snap.Failed() > 0:
		return 1
	case ctx.Err() != nil, snap.Completed < int64(snap.Target), snap.Count(stats.OutcomeCancelled) > 0:
		// A signal, or quitting the dashboard, cut the session short.
		return ExitInterrupted
	default:
		return 0
	}
}

func (o *Orchestrator) publishPercentiles(s stats.Snapshot) {
	if s.Completed == 0 {
		return
	}
	o.metrics.SetDurationPercentiles(s.DurationP50, s.DurationP95, s.DurationP99)
}

// runRecord converts a result for the metrics collector.
func runRecord(res *coordinator.Result, outcome stats.Outcome) metrics.RunRecord {
	r := metrics.RunRecord{
		Outcome:      string(outcome),
		Duration:     res.Duration,
		StdoutBytes:  res.StdoutStats.Bytes,
		StderrBytes:  res.StderrStats.Bytes,
		StdoutChunks: res.StdoutStats.Chunks,
		StderrChunks: res.StderrStats.Chunks,
		EOFLag:       max(res.StdoutStats.EOFLag, res.StderrStats.EOFLag),
	}
	if res.Exit != nil {
		r.Exited = true
		r.ExitCode = res.Exit.ShellCode()
		r.Signaled = res.Exit.Signaled
	}
	if errors.Is(res.StdoutErr, drain.ErrOutputAbandoned) {
		r.Abandoned = append(r.Abandoned, drain.Stdout.String())
	}
	if errors.Is(res.StderrErr, drain.ErrOutputAbandoned) {
		r.Abandoned = append(r.Abandoned, drain.Stderr.String())
	}
	return r
}

// FormatCommand renders spec as a shell command line.
func FormatCommand(spec process.Spec) string {
	parts := make([]string, 0, len(spec.Args)+1)
	parts = append(parts, quoteArg(spec.Path))
	for _, a := range spec.Args {
		parts = append(parts, quoteArg(a))
	}
	return strings.Join(parts, " ")
}

// FormatInvocation renders spec as an env -i command line carrying its
// complete environment.
func FormatInvocation(spec process.Spec) string {
	var b strings.Builder
	if spec.Dir != "" {
		fmt.Fprintf(&b, "cd %s && ", quoteArg(spec.Dir))
	}
	b.WriteString("env -i")

	keys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(" " + quoteArg(k+"="+spec.Env[k]))
	}

	b.WriteString(" " + FormatCommand(spec))
	return b.String()
}

// quoteArg quotes s for a POSIX shell. Words made only of safe characters
// are left bare; anything else is single-quoted, which the shell takes
// literally.
func quoteArg(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, unsafeShellRune) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func unsafeShellRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case strings.ContainsRune("_@%+=:,./-", r):
		return false
	}
	return true
}

// Metrics returns the metrics collector for external access.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}

// Registry returns the Prometheus registry the collector is registered in.
func (o *Orchestrator) Registry() *prometheus.Registry {
	return o.registry
}
