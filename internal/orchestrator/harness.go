package orchestrator

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/randomizedcoder/go-pipe-drain/internal/coordinator"
	"github.com/randomizedcoder/go-pipe-drain/internal/drain"
	"github.com/randomizedcoder/go-pipe-drain/internal/logging"
	"github.com/randomizedcoder/go-pipe-drain/internal/parser"
	"github.com/randomizedcoder/go-pipe-drain/internal/process"
	"github.com/randomizedcoder/go-pipe-drain/internal/stats"
)

// HarnessCallbacks contains optional callbacks for harness events. They are
// called from worker goroutines and must be safe for concurrent use.
type HarnessCallbacks struct {
	// OnRunStart is called just before iteration launches its child.
	OnRunStart func(iteration int)

	// OnRunFinish is called once iteration has been classified.
	OnRunFinish func(iteration int, res *coordinator.Result, outcome stats.Outcome, detail string)
}

// HarnessConfig holds configuration for the Harness.
type HarnessConfig struct {
	Runs        int
	Concurrency int

	Spec    process.Spec
	Options coordinator.Options

	// Expect, when set, is compared byte for byte against every run.
	Expect *stats.Expectation

	// TraceOutput logs child output lines through logging.OutputHandler.
	TraceOutput bool

	Logger    *slog.Logger
	Callbacks HarnessCallbacks
}

// Harness runs the same child many times with bounded concurrency and
// classifies every run.
type Harness struct {
	cfg        HarnessConfig
	logger     *slog.Logger
	aggregator *stats.Aggregator

	activeCount  atomic.Int64
	startedCount atomic.Int64
}

// NewHarness creates a new Harness.
func NewHarness(cfg HarnessConfig) *Harness {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Harness{
		cfg:        cfg,
		logger:     logger,
		aggregator: stats.NewAggregator(cfg.Runs),
	}
}

// Run executes every iteration and blocks until all have finished. Once
// ctx is done no new iterations start; in-flight ones are cancelled by the
// coordinator and still recorded.
func (h *Harness) Run(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(h.cfg.Concurrency)

	for i := 0; i < h.cfg.Runs; i++ {
		if ctx.Err() != nil {
			h.logger.Info("harness_stopped", "started", i, "target", h.cfg.Runs)
			break
		}
		g.Go(func() error {
			h.runOne(ctx, i)
			return nil
		})
	}

	err := g.Wait()
	h.logger.Info("harness_complete",
		"started", h.startedCount.Load(),
		"target", h.cfg.Runs,
	)
	return err
}

func (h *Harness) runOne(ctx context.Context, iteration int) {
	h.startedCount.Add(1)
	h.activeCount.Add(1)
	defer h.activeCount.Add(-1)

	h.aggregator.RunStarted()
	if h.cfg.Callbacks.OnRunStart != nil {
		h.cfg.Callbacks.OnRunStart(iteration)
	}

	opts := h.cfg.Options
	opts.Logger = h.logger.With("run", iteration)
	if h.cfg.TraceOutput {
		opts.LineObserver = func(s drain.Stream) parser.LineParser {
			return logging.NewOutputHandler(s.String(), iteration, h.logger, true)
		}
	}

	res := coordinator.New(opts).Run(ctx, h.cfg.Spec)
	outcome, detail := stats.Classify(res, h.cfg.Expect)
	h.aggregator.Record(iteration, res, outcome, detail)

	if outcome.Failed() {
		h.logger.Warn("run_failed",
			"run", iteration,
			"pid", res.PID,
			"outcome", string(outcome),
			"detail", detail,
		)
	}

	if h.cfg.Callbacks.OnRunFinish != nil {
		h.cfg.Callbacks.OnRunFinish(iteration, res, outcome, detail)
	}
}

// Aggregator returns the stats aggregator.
func (h *Harness) Aggregator() *stats.Aggregator {
	return h.aggregator
}

// ActiveCount returns the number of runs in flight.
func (h *Harness) ActiveCount() int {
	return int(h.activeCount.Load())
}

// StartedCount returns the number of runs started so far.
func (h *Harness) StartedCount() int {
	return int(h.startedCount.Load())
}
