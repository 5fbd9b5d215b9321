// Package coordinator runs one child process to completion: launch, drain
// both output streams concurrently with the exit wait, then clean up.
//
// The drainers are started before the waiter, and the waiter never touches
// the read ends, so a child that fills its pipes before exiting cannot
// deadlock against the wait.
package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/randomizedcoder/go-pipe-drain/internal/drain"
	"github.com/randomizedcoder/go-pipe-drain/internal/parser"
	"github.com/randomizedcoder/go-pipe-drain/internal/process"
)

// Options configures a Coordinator.
type Options struct {
	// SeparateStderr drains stderr on its own pipe. When false it is
	// merged into stdout.
	SeparateStderr bool

	// Verbose traces every chunk at debug level.
	Verbose bool

	// Timeout bounds the exit wait. Zero waits forever.
	Timeout time.Duration

	// GracePeriod is the SIGTERM-to-SIGKILL delay on timeout or cancel.
	GracePeriod time.Duration

	// LingerTimeout bounds how long drainers may run after the exit was
	// observed. Zero waits for end-of-stream forever.
	LingerTimeout time.Duration

	ReadBufferSize int
	TailBytes      int64

	SpawnRetries int
	Backoff      process.BackoffConfig

	// Sink receives every chunk in addition to the capture buffers.
	Sink drain.Sink

	// LineObserver, when set, is given each stream's output line by line
	// through a lossy pipeline.
	LineObserver func(drain.Stream) parser.LineParser
	LineBuffer   int

	// OnTransition is called on every state change, from the goroutine
	// running the invocation.
	OnTransition func(from, to State)

	Logger *slog.Logger
}

// DefaultOptions returns options with separate stderr and bounded
// termination and linger.
func DefaultOptions() Options {
	return Options{
		SeparateStderr: true,
		GracePeriod:    2 * time.Second,
		LingerTimeout:  5 * time.Second,
		ReadBufferSize: drain.DefaultBufferSize,
		TailBytes:      drain.DefaultTailBytes,
		SpawnRetries:   3,
		Backoff:        process.DefaultBackoffConfig(),
		LineBuffer:     1000,
	}
}

// Coordinator runs invocations. It holds no per-invocation state, so one
// Coordinator may run any number of invocations concurrently.
type Coordinator struct {
	opts   Options
	logger *slog.Logger
}

// New creates a Coordinator.
func New(opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{opts: opts, logger: logger}
}

// Start runs the invocation on its own goroutine. The channel receives
// exactly one Result and is never closed.
func (c *Coordinator) Start(ctx context.Context, spec process.Spec) <-chan *Result {
	ch := make(chan *Result, 1)
	go func() {
		ch <- c.Run(ctx, spec)
	}()
	return ch
}

// invocation is the state of one Run.
type invocation struct {
	c     *Coordinator
	res   *Result
	state State
}

func (inv *invocation) to(next State) {
	prev := inv.state
	inv.state = next
	inv.res.Transitions = append(inv.res.Transitions, next)
	if !CanTransition(prev, next) {
		// Only reachable through a bug in Run.
		inv.c.logger.Error("invalid_transition", "from", prev.String(), "to", next.String())
	}
	if inv.c.opts.OnTransition != nil {
		inv.c.opts.OnTransition(prev, next)
	}
}

type waitOutcome struct {
	exit process.ExitResult
	err  error
	at   time.Time
}

// Run launches spec and blocks until the invocation reaches Done. It always
// returns a Result; failures are recorded in it.
func (c *Coordinator) Run(ctx context.Context, spec process.Spec) *Result {
	res := &Result{
		Spec:        spec,
		Started:     time.Now(),
		Transitions: []State{Idle},
	}
	inv := &invocation{c: c, res: res, state: Idle}
	defer func() {
		res.Duration = time.Since(res.Started)
	}()

	h, err := process.Launch(ctx, spec, process.LaunchOptions{
		SeparateStderr: c.opts.SeparateStderr,
		SpawnRetries:   c.opts.SpawnRetries,
		Backoff:        c.opts.Backoff,
		Logger:         c.logger,
	})
	if err != nil {
		res.SpawnErr = err
		c.logger.Debug("spawn_failed", "path", spec.Path, "error", err)
		inv.to(Done)
		return res
	}
	res.PID = h.PID()
	inv.to(Launched)

	streams := []drain.Stream{drain.Stdout}
	if h.Stderr != nil {
		streams = append(streams, drain.Stderr)
	}

	capture := drain.NewCapture()
	sinks := drain.Multi{capture}
	if c.opts.TailBytes > 0 {
		if tail, err := drain.NewTail(c.opts.TailBytes); err == nil {
			res.Tail = tail
			sinks = append(sinks, tail)
		}
	}
	if c.opts.Sink != nil {
		sinks = append(sinks, c.opts.Sink)
	}
	var lines *drain.LineSink
	if c.opts.LineObserver != nil {
		lines = drain.NewLineSink(c.opts.LineObserver, c.opts.LineBuffer, streams...)
		sinks = append(sinks, lines)
	}

	drainOpts := []drain.Option{drain.WithBufferSize(c.opts.ReadBufferSize)}
	if c.opts.Verbose {
		drainOpts = append(drainOpts, drain.WithLogger(c.logger.With("pid", res.PID)))
	}

	stdout := drain.NewDrainer(drain.Stdout, h.Stdout, sinks, drainOpts...)
	drainers := []*drain.Drainer{stdout}
	var stderr *drain.Drainer
	if h.Stderr != nil {
		stderr = drain.NewDrainer(drain.Stderr, h.Stderr, sinks, drainOpts...)
		drainers = append(drainers, stderr)
	}

	// Drainers first, then the waiter.
	for _, d := range drainers {
		go func() { _ = d.Run() }()
	}
	waitCh := make(chan waitOutcome, 1)
	go func() {
		exit, err := h.Wait()
		waitCh <- waitOutcome{exit: exit, err: err, at: time.Now()}
	}()
	inv.to(DrainingWaiting)

	w := c.awaitExit(ctx, h, res, waitCh)
	if w.err != nil {
		res.WaitErr = w.err
	} else {
		exit := w.exit
		res.Exit = &exit
	}

	abandoned := c.awaitDrainers(ctx, h, res, drainers)
	if lines != nil {
		lines.Close()
	}
	inv.to(Joined)

	res.StdoutErr = streamErr(stdout, abandoned)
	res.StdoutStats = streamStats(stdout, w.at)
	res.Stdout = capture.Bytes(drain.Stdout)
	if stderr != nil {
		res.StderrErr = streamErr(stderr, abandoned)
		res.StderrStats = streamStats(stderr, w.at)
		res.Stderr = capture.Bytes(drain.Stderr)
	} else {
		res.Stderr = []byte{}
	}

	if err := h.Release(); err != nil {
		c.logger.Debug("release_error", "pid", res.PID, "error", err)
	}
	inv.to(Done)

	c.logger.Debug("run_finished",
		"pid", res.PID,
		"exit", exitString(res.Exit),
		"stdout_bytes", res.StdoutStats.Bytes,
		"stderr_bytes", res.StderrStats.Bytes,
		"duration", time.Since(res.Started).String(),
		"error", res.Err(),
	)
	return res
}

// awaitExit waits for the waiter, terminating the child's process group on
// timeout or cancellation. The drainers keep running throughout.
func (c *Coordinator) awaitExit(ctx context.Context, h *process.Handle, res *Result, waitCh <-chan waitOutcome) waitOutcome {
	var timeout <-chan time.Time
	if c.opts.Timeout > 0 {
		timer := time.NewTimer(c.opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case w := <-waitCh:
		return w
	case <-timeout:
		killed := c.terminate(h, "timeout")
		res.TimeoutErr = &TimeoutError{Timeout: c.opts.Timeout, Killed: killed}
	case <-ctx.Done():
		c.terminate(h, "cancelled")
		res.CancelErr = ctx.Err()
	}
	return <-waitCh
}

func (c *Coordinator) terminate(h *process.Handle, reason string) bool {
	c.logger.Warn("terminating_process",
		"pid", h.PID(),
		"reason", reason,
		"grace", c.opts.GracePeriod.String(),
	)
	killed, err := h.Terminate(c.opts.GracePeriod)
	if err != nil {
		c.logger.Warn("terminate_failed", "pid", h.PID(), "error", err)
	}
	return killed
}

// awaitDrainers waits for every drainer to reach end-of-stream, bounded by
// LingerTimeout. The child has exited by now, so cancellation alone does not
// cut draining short; with no linger bound it starts a GracePeriod bound
// instead. On expiry the read ends are closed, which ends the remaining
// drainers; those are returned as abandoned.
func (c *Coordinator) awaitDrainers(ctx context.Context, h *process.Handle, res *Result, drainers []*drain.Drainer) map[*drain.Drainer]bool {
	var linger <-chan time.Time
	var cancelled <-chan struct{}
	if c.opts.LingerTimeout > 0 {
		timer := time.NewTimer(c.opts.LingerTimeout)
		defer timer.Stop()
		linger = timer.C
	} else {
		cancelled = ctx.Done()
	}

	expired := false
wait:
	for _, d := range drainers {
		for done := false; !done; {
			select {
			case <-d.Done():
				done = true
			case <-linger:
				expired = true
				break wait
			case <-cancelled:
				cancelled = nil
				timer := time.NewTimer(c.opts.GracePeriod)
				defer timer.Stop()
				linger = timer.C
			}
		}
	}
	if expired && ctx.Err() != nil && res.CancelErr == nil {
		res.CancelErr = ctx.Err()
	}
	if !expired {
		return nil
	}

	abandoned := make(map[*drain.Drainer]bool)
	for _, d := range drainers {
		select {
		case <-d.Done():
		default:
			abandoned[d] = true
			c.logger.Warn("output_abandoned",
				"pid", res.PID,
				"stream", d.Stream().String(),
				"linger", c.opts.LingerTimeout.String(),
			)
		}
	}
	if err := h.Release(); err != nil {
		c.logger.Debug("release_error", "pid", res.PID, "error", err)
	}
	for _, d := range drainers {
		<-d.Done()
	}
	return abandoned
}

func streamErr(d *drain.Drainer, abandoned map[*drain.Drainer]bool) error {
	if err := d.Err(); err != nil {
		return err
	}
	if abandoned[d] {
		return &drain.DrainError{Stream: d.Stream(), Err: drain.ErrOutputAbandoned}
	}
	return nil
}

func streamStats(d *drain.Drainer, exitAt time.Time) StreamStats {
	bytes, chunks := d.Stats()
	st := StreamStats{Bytes: bytes, Chunks: chunks}
	if !exitAt.IsZero() {
		if lag := d.FinishedAt().Sub(exitAt); lag > 0 {
			st.EOFLag = lag
		}
	}
	return st
}

func exitString(e *process.ExitResult) string {
	if e == nil {
		return "unknown"
	}
	return e.String()
}
