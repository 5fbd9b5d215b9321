package process

import (
	"errors"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
)

// HandleState is the lifecycle of a launched child.
type HandleState int32

const (
	HandleNotStarted HandleState = iota
	HandleRunning
	HandleExited
)

func (s HandleState) String() string {
	switch s {
	case HandleNotStarted:
		return "not_started"
	case HandleRunning:
		return "running"
	case HandleExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Handle is a running (or exited) child and the parent's ends of its
// output pipes.
type Handle struct {
	cmd     *exec.Cmd
	pid     int
	pgid    int
	started time.Time

	// Stdout carries the child's standard output. When stderr was not
	// requested separately it carries standard error too.
	Stdout *ReadEnd

	// Stderr is nil when stderr is merged into Stdout.
	Stderr *ReadEnd

	state    atomic.Int32
	released atomic.Bool

	// sigMu orders signals against reaping: once exited is set no signal
	// is sent, and the pid stays reserved until then.
	sigMu  sync.Mutex
	exited bool

	waitOnce sync.Once
	done     chan struct{}
	exit     ExitResult
	waitErr  error
}

func newHandle(cmd *exec.Cmd, stdout, stderr *ReadEnd) *Handle {
	h := &Handle{
		cmd:     cmd,
		pid:     cmd.Process.Pid,
		pgid:    cmd.Process.Pid, // Setpgid makes the child its group leader
		started: time.Now(),
		Stdout:  stdout,
		Stderr:  stderr,
		done:    make(chan struct{}),
	}
	h.state.Store(int32(HandleRunning))
	return h
}

// PID returns the child's process ID.
func (h *Handle) PID() int {
	return h.pid
}

// State returns the current lifecycle state.
func (h *Handle) State() HandleState {
	return HandleState(h.state.Load())
}

// StartTime returns when the child was started.
func (h *Handle) StartTime() time.Time {
	return h.started
}

// Wait blocks until the child has exited and returns its exit result.
// A non-zero exit or a signal is reported in ExitResult, not as an error.
// The result is computed once; later calls return it immediately.
//
// Wait never touches the read ends, so it is safe to call while drainers
// are still reading.
func (h *Handle) Wait() (ExitResult, error) {
	h.waitOnce.Do(h.reap)
	return h.exit, h.waitErr
}

// Done is closed once a Wait call has reaped the child.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) reap() {
	defer close(h.done)
	defer h.state.Store(int32(HandleExited))

	// The child stays a zombie until cmd.Wait, so its pid and group id
	// cannot be reused before signalling is shut off.
	awaitExit(h.pid)
	h.sigMu.Lock()
	h.exited = true
	h.sigMu.Unlock()

	err := h.cmd.Wait()
	ps := h.cmd.ProcessState
	if ps == nil {
		if err == nil {
			err = errors.New("no process state after wait")
		}
		h.waitErr = &WaitError{PID: h.pid, Err: err}
		return
	}

	h.exit = exitResultFromState(ps)

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		h.waitErr = &WaitError{PID: h.pid, Err: err}
	}
}

// Signal sends sig to the child's process group, falling back to the child
// alone when the group is already empty. It returns os.ErrProcessDone once
// reaping has begun.
func (h *Handle) Signal(sig syscall.Signal) error {
	h.sigMu.Lock()
	defer h.sigMu.Unlock()

	if h.exited {
		return os.ErrProcessDone
	}
	err := syscall.Kill(-h.pgid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return h.cmd.Process.Signal(sig)
	}
	return err
}

// Terminate sends SIGTERM to the process group and SIGKILL if the child has
// not been reaped within grace. Someone must be blocked in Wait for the
// graceful path to be observed. It reports whether SIGKILL was needed.
func (h *Handle) Terminate(grace time.Duration) (killed bool, err error) {
	if err := h.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return false, nil
		}
		return false, err
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-h.done:
		return false, nil
	case <-timer.C:
	}

	if err := h.Signal(syscall.SIGKILL); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return true, err
	}
	return true, nil
}

// Release closes both read ends. It is idempotent and safe to call while a
// drainer is still reading; the drainer then observes end-of-stream.
func (h *Handle) Release() error {
	h.released.Store(true)

	var result *multierror.Error
	if h.Stdout != nil {
		if err := h.Stdout.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if h.Stderr != nil {
		if err := h.Stderr.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Released reports whether Release has been called.
func (h *Handle) Released() bool {
	return h.released.Load()
}
