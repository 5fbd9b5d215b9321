package process

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// LaunchOptions controls how Launch wires the child.
type LaunchOptions struct {
	// SeparateStderr gives stderr its own pipe. When false the child's
	// stderr shares the stdout pipe.
	SeparateStderr bool

	// SpawnRetries is how many extra attempts are made when the OS reports
	// a transient failure (EAGAIN, ENOMEM).
	SpawnRetries int
	Backoff      BackoffConfig

	Logger *slog.Logger
}

// DefaultLaunchOptions returns options with separate stderr and a small
// retry budget.
func DefaultLaunchOptions() LaunchOptions {
	return LaunchOptions{
		SeparateStderr: true,
		SpawnRetries:   3,
		Backoff:        DefaultBackoffConfig(),
	}
}

// Launch starts the child described by spec with stdin attached to the null
// device and stdout/stderr attached to pipes owned by the returned Handle.
//
// The parent's copies of the write ends are closed before Launch returns, so
// the read ends reach end-of-stream once every process holding them exits.
// On error no process is running and every pipe created has been closed.
func Launch(ctx context.Context, spec Spec, opts LaunchOptions) (*Handle, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if err := ctx.Err(); err != nil {
		return nil, &SpawnError{Path: spec.Path, Stage: StageStart, Err: err}
	}
	if spec.Path == "" {
		return nil, &SpawnError{Path: spec.Path, Stage: StageLookup, Err: exec.ErrNotFound}
	}

	// Resolve up front so a missing binary fails before any pipe exists.
	if _, err := exec.LookPath(spec.Path); err != nil {
		return nil, &SpawnError{Path: spec.Path, Stage: StageLookup, Err: err}
	}

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, &SpawnError{Path: spec.Path, Stage: StagePipe, Err: err}
	}

	var errR, errW *os.File
	if opts.SeparateStderr {
		errR, errW, err = os.Pipe()
		if err != nil {
			closeFiles(outR, outW)
			return nil, &SpawnError{Path: spec.Path, Stage: StagePipe, Err: err}
		}
	}

	build := func() *exec.Cmd {
		cmd := exec.Command(spec.Path, spec.Args...)
		cmd.Env = spec.environ()
		cmd.Dir = spec.Dir
		cmd.Stdout = outW
		if errW != nil {
			cmd.Stderr = errW
		} else {
			cmd.Stderr = outW
		}
		// Own process group so timeouts can reach every descendant
		// holding the pipes.
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		return cmd
	}

	cmd, err := startWithRetry(ctx, build, opts, logger)
	if err != nil {
		closeFiles(outR, outW, errR, errW)
		return nil, &SpawnError{Path: spec.Path, Stage: StageStart, Err: err}
	}

	// The child has its own copies now.
	closeFiles(outW, errW)

	var stderr *ReadEnd
	if errR != nil {
		stderr = newReadEnd(errR, "stderr")
	}
	h := newHandle(cmd, newReadEnd(outR, "stdout"), stderr)

	logger.Debug("process_started",
		"path", spec.Path,
		"pid", h.PID(),
		"separate_stderr", opts.SeparateStderr,
	)
	return h, nil
}

// startWithRetry starts a fresh command per attempt; an exec.Cmd cannot be
// started twice.
func startWithRetry(ctx context.Context, build func() *exec.Cmd, opts LaunchOptions, logger *slog.Logger) (*exec.Cmd, error) {
	backoff := NewBackoff(time.Now().UnixNano(), opts.Backoff)

	for {
		cmd := build()
		err := cmd.Start()
		if err == nil {
			return cmd, nil
		}
		if !isTransient(err) || backoff.Attempts() >= opts.SpawnRetries {
			return nil, err
		}

		delay := backoff.Next()
		logger.Warn("spawn_retry",
			"path", cmd.Path,
			"attempt", backoff.Attempts(),
			"delay", delay.String(),
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}

// isTransient reports errors worth retrying: the process table or memory
// was momentarily exhausted.
func isTransient(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.ENOMEM)
}

func closeFiles(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			f.Close()
		}
	}
}
