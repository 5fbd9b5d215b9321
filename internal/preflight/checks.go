// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/randomizedcoder/go-pipe-drain/internal/process"
)

// Note: syscall.RLIMIT_NPROC is not exported in Go's syscall package,
// so we read process limits from /proc/self/limits instead.

// fdsPerRun is what one in-flight run holds: two pipes, each with a read
// and a write end, until the write ends are closed after start.
const fdsPerRun = 4

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Request describes the session being checked.
type Request struct {
	Executable  string
	Concurrency int

	// Payload is the largest number of bytes expected on one stream of
	// one run, or 0 when unknown.
	Payload int
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// Warnings reports whether any check passed with a warning.
func (r *Result) Warnings() bool {
	for _, c := range r.Checks {
		if c.Warning {
			return true
		}
	}
	return false
}

// RunAll executes all preflight checks.
func RunAll(req Request) *Result {
	concurrency := max(req.Concurrency, 1)
	result := &Result{
		Checks: make([]Check, 0, 4),
		Passed: true,
	}

	for _, check := range []Check{
		checkFileDescriptors(concurrency),
		checkProcessLimit(concurrency),
		checkExecutable(req.Executable),
		checkPipeCapacity(req.Payload, process.DefaultPipeCapacity()),
	} {
		result.Checks = append(result.Checks, check)
		if !check.Passed {
			result.Passed = false
		}
	}

	return result
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(concurrency int) Check {
	var limit syscall.Rlimit
	syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit)

	// Plus our own overhead (metrics server, logging, stdio)
	required := concurrency*fdsPerRun + 64
	actual := int(limit.Cur)

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d concurrent runs)", actual, required, concurrency),
	}
}

// checkProcessLimit verifies sufficient process slots are available.
func checkProcessLimit(concurrency int) Check {
	required := concurrency + 50

	data, err := os.ReadFile("/proc/self/limits")
	if err != nil {
		// Non-Linux or restricted access, assume OK
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to check (non-Linux or restricted)",
		}
	}

	actual := parseMaxProcesses(string(data))
	if actual == 0 {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to determine (assuming OK)",
		}
	}

	return Check{
		Name:     "process_limit",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -u %d (need %d)", actual, required),
	}
}

// parseMaxProcesses extracts the soft "Max processes" limit from the
// contents of /proc/self/limits. It returns 0 when the line is missing.
func parseMaxProcesses(limits string) int {
	for _, line := range strings.Split(limits, "\n") {
		if !strings.HasPrefix(line, "Max processes") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return 0
		}
		if fields[2] == "unlimited" {
			return 1000000
		}
		var n int
		fmt.Sscanf(fields[2], "%d", &n)
		return n
	}
	return 0
}

// checkExecutable verifies the child can be resolved before any run starts.
func checkExecutable(path string) Check {
	if path == "" {
		return Check{
			Name:    "executable",
			Passed:  false,
			Message: "no executable given",
		}
	}

	resolved, err := exec.LookPath(path)
	if err != nil {
		return Check{
			Name:    "executable",
			Passed:  false,
			Message: fmt.Sprintf("not found: %v", err),
		}
	}

	return Check{
		Name:    "executable",
		Passed:  true,
		Message: fmt.Sprintf("found at %s", resolved),
	}
}

// checkPipeCapacity reports the kernel pipe buffer. It never fails; a
// payload larger than the buffer only means the child will block on write
// until it is drained.
func checkPipeCapacity(payload, capacity int) Check {
	c := Check{
		Name:    "pipe_capacity",
		Passed:  true,
		Message: fmt.Sprintf("%d bytes", capacity),
	}
	if payload > capacity {
		c.Warning = true
		c.Message = fmt.Sprintf("%d bytes; payload of %d bytes per stream will fill it before exit", capacity, payload)
	}
	return c
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 8192 (or edit /etc/security/limits.conf)"
	case "process_limit":
		return "ulimit -u 4096 (or edit /etc/security/limits.conf)"
	case "executable":
		return "check the command name and PATH (or pass an absolute path)"
	default:
		return "see documentation"
	}
}
