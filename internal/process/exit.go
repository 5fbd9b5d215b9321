package process

import (
	"fmt"
	"os"
	"syscall"
)

// ExitResult describes how a child terminated.
type ExitResult struct {
	// Code is the exit status, or -1 when the child was killed by a signal.
	Code int

	// Signal is the terminating signal when Signaled is true.
	Signal   syscall.Signal
	Signaled bool
}

// Success reports a normal exit with status 0.
func (e ExitResult) Success() bool {
	return !e.Signaled && e.Code == 0
}

// ShellCode returns the status a POSIX shell would report:
// 128 + signal number for signaled exits.
func (e ExitResult) ShellCode() int {
	if e.Signaled {
		return 128 + int(e.Signal)
	}
	return e.Code
}

func (e ExitResult) String() string {
	if e.Signaled {
		return fmt.Sprintf("signal: %s", e.Signal)
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// exitResultFromState converts a reaped process state.
func exitResultFromState(ps *os.ProcessState) ExitResult {
	if status, ok := ps.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return ExitResult{
			Code:     -1,
			Signal:   status.Signal(),
			Signaled: true,
		}
	}
	return ExitResult{Code: ps.ExitCode()}
}
