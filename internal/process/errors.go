package process

import (
	"errors"
	"fmt"
)

var (
	// ErrSpawn matches every *SpawnError via errors.Is.
	ErrSpawn = errors.New("spawn failed")

	// ErrWait matches every *WaitError via errors.Is.
	ErrWait = errors.New("wait failed")
)

// SpawnStage identifies where a launch failed.
type SpawnStage string

const (
	StageLookup SpawnStage = "lookup"
	StagePipe   SpawnStage = "pipe"
	StageStart  SpawnStage = "start"
)

// SpawnError is returned by Launch when no process was started.
type SpawnError struct {
	Path  string
	Stage SpawnStage
	Err   error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %s: %v", e.Path, e.Stage, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Is reports ErrSpawn as a match.
func (e *SpawnError) Is(target error) bool { return target == ErrSpawn }

// WaitError is returned when the exit status of a started child could not be
// obtained.
type WaitError struct {
	PID int
	Err error
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("wait pid %d: %v", e.PID, e.Err)
}

func (e *WaitError) Unwrap() error { return e.Err }

// Is reports ErrWait as a match.
func (e *WaitError) Is(target error) bool { return target == ErrWait }
