package stats

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/randomizedcoder/go-pipe-drain/internal/coordinator"
)

// Outcome classifies a finished run.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeNonZeroExit Outcome = "nonzero_exit"
	OutcomeSpawnError  Outcome = "spawn_error"
	OutcomeDrainError  Outcome = "drain_error"
	OutcomeWaitError   Outcome = "wait_error"
	OutcomeHang        Outcome = "hang"
	OutcomeCancelled   Outcome = "cancelled"
	OutcomeMismatch    Outcome = "mismatch"
)

// Failed reports whether the outcome fails a regression run. A non-zero
// child exit is the child's business, not a drain failure.
func (o Outcome) Failed() bool {
	switch o {
	case OutcomeOK, OutcomeNonZeroExit, OutcomeCancelled:
		return false
	default:
		return true
	}
}

// Expectation is the exact output a run must produce. Nil means output is
// not checked.
type Expectation struct {
	Stdout []byte
	Stderr []byte
}

// Check compares res against the expectation and describes the first
// difference.
func (e *Expectation) Check(res *coordinator.Result) (ok bool, detail string) {
	if e == nil {
		return true, ""
	}
	if d := diff("stdout", e.Stdout, res.Stdout); d != "" {
		return false, d
	}
	if d := diff("stderr", e.Stderr, res.Stderr); d != "" {
		return false, d
	}
	return true, ""
}

func diff(stream string, want, got []byte) string {
	if bytes.Equal(want, got) {
		return ""
	}
	n := min(len(want), len(got))
	at := n
	for i := 0; i < n; i++ {
		if want[i] != got[i] {
			at = i
			break
		}
	}
	return fmt.Sprintf("%s: got %d bytes, want %d; first difference at offset %d", stream, len(got), len(want), at)
}

// Classify maps a result to its outcome. Errors take precedence in the
// order spawn, hang, cancel, wait, drain; then output mismatch; then exit
// status. A launch refused because the context was already cancelled counts
// as cancelled, not as a spawn failure.
func Classify(res *coordinator.Result, expect *Expectation) (Outcome, string) {
	switch {
	case errors.Is(res.SpawnErr, context.Canceled):
		return OutcomeCancelled, res.SpawnErr.Error()
	case res.SpawnErr != nil:
		return OutcomeSpawnError, res.SpawnErr.Error()
	case res.TimeoutErr != nil:
		return OutcomeHang, res.TimeoutErr.Error()
	case res.CancelErr != nil:
		return OutcomeCancelled, res.CancelErr.Error()
	case res.WaitErr != nil:
		return OutcomeWaitError, res.WaitErr.Error()
	case res.StdoutErr != nil:
		return OutcomeDrainError, res.StdoutErr.Error()
	case res.StderrErr != nil:
		return OutcomeDrainError, res.StderrErr.Error()
	}
	if ok, detail := expect.Check(res); !ok {
		return OutcomeMismatch, detail
	}
	if res.Exit != nil && !res.Exit.Success() {
		return OutcomeNonZeroExit, res.Exit.String()
	}
	return OutcomeOK, ""
}
