package coordinator

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/randomizedcoder/go-pipe-drain/internal/drain"
	"github.com/randomizedcoder/go-pipe-drain/internal/process"
)

// ErrTimeout matches every *TimeoutError via errors.Is.
var ErrTimeout = errors.New("timed out waiting for process exit")

// TimeoutError reports that the child outlived Options.Timeout and was
// terminated.
type TimeoutError struct {
	Timeout time.Duration
	Killed  bool // SIGKILL was needed after the grace period
}

func (e *TimeoutError) Error() string {
	how := "terminated"
	if e.Killed {
		how = "killed"
	}
	return fmt.Sprintf("process did not exit within %s (%s)", e.Timeout, how)
}

// Is reports ErrTimeout as a match.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// StreamStats summarises one drained stream.
type StreamStats struct {
	Bytes  int64
	Chunks int64
	// EOFLag is how long after the exit was observed the stream reached
	// end-of-stream. Zero when it ended first.
	EOFLag time.Duration
}

// Result is everything one invocation produced. Output drained before an
// error is always kept.
type Result struct {
	Spec process.Spec
	PID  int

	Stdout []byte
	Stderr []byte // empty in merged mode
	Exit   *process.ExitResult

	SpawnErr   error
	StdoutErr  error
	StderrErr  error
	WaitErr    error
	TimeoutErr error
	CancelErr  error

	Transitions []State
	Started     time.Time
	Duration    time.Duration

	StdoutStats StreamStats
	StderrStats StreamStats

	// Tail holds the last bytes of each stream; nil when disabled.
	Tail *drain.Tail
}

// Err aggregates every recorded error, or returns nil.
func (r *Result) Err() error {
	var result *multierror.Error
	for _, err := range []error{r.SpawnErr, r.StdoutErr, r.StderrErr, r.WaitErr, r.TimeoutErr, r.CancelErr} {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Success reports a clean invocation whose child exited with status 0.
func (r *Result) Success() bool {
	return r.Err() == nil && r.Exit != nil && r.Exit.Success()
}

// ExitCode maps the result to a process exit status: 1 for any recorded
// error, the child's shell code for a non-zero exit, 0 otherwise.
func (r *Result) ExitCode() int {
	if r.Err() != nil {
		return 1
	}
	if r.Exit != nil && !r.Exit.Success() {
		return r.Exit.ShellCode()
	}
	return 0
}

// Final returns the last state reached.
func (r *Result) Final() State {
	if len(r.Transitions) == 0 {
		return Idle
	}
	return r.Transitions[len(r.Transitions)-1]
}
