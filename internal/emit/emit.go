// Package emit produces deterministic output for regression runs.
//
// The drain binary re-executes itself with the hidden Subcommand to become a
// child that writes an exactly known number of bytes to stdout and stderr,
// interleaved in fixed-size chunks. The parent then checks the drained bytes
// against Expect.
package emit

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// Subcommand is the hidden argv[1] that switches the binary into emit mode.
const Subcommand = "__emit"

// DefaultChunk is the write size used when Plan.Chunk is zero.
const DefaultChunk = 4 * 1024

// Plan describes what the child writes.
type Plan struct {
	Stdout   int           // bytes written to stdout
	Stderr   int           // bytes written to stderr
	Chunk    int           // bytes per write; streams alternate per chunk
	ExitCode int           // exit status after writing
	Hold     time.Duration // sleep after writing, before exiting
}

// Empty reports whether the plan writes nothing.
func (p Plan) Empty() bool {
	return p.Stdout == 0 && p.Stderr == 0
}

// Args returns the argv (after the executable) that reproduces p.
func (p Plan) Args() []string {
	args := []string{
		Subcommand,
		"-stdout", strconv.Itoa(p.Stdout),
		"-stderr", strconv.Itoa(p.Stderr),
		"-chunk", strconv.Itoa(p.chunk()),
	}
	if p.ExitCode != 0 {
		args = append(args, "-exit", strconv.Itoa(p.ExitCode))
	}
	if p.Hold > 0 {
		args = append(args, "-hold", p.Hold.String())
	}
	return args
}

func (p Plan) chunk() int {
	if p.Chunk <= 0 {
		return DefaultChunk
	}
	return p.Chunk
}

// Expect returns the bytes a child running p writes to each stream.
func (p Plan) Expect() (stdout, stderr []byte) {
	return Pattern("stdout", p.Stdout), Pattern("stderr", p.Stderr)
}

// ExpectMerged returns the bytes a child running p writes when both streams
// share one pipe. The child writes from a single goroutine, so the merged
// order is exactly the alternation Interleave performs.
func (p Plan) ExpectMerged() []byte {
	var buf bytes.Buffer
	out, errOut := p.Expect()
	_ = interleave(&buf, &buf, out, errOut, p.chunk())
	return buf.Bytes()
}

// ParseArgs parses the flags following Subcommand.
func ParseArgs(args []string) (Plan, error) {
	fs := flag.NewFlagSet(Subcommand, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var p Plan
	fs.IntVar(&p.Stdout, "stdout", 0, "bytes to write to stdout")
	fs.IntVar(&p.Stderr, "stderr", 0, "bytes to write to stderr")
	fs.IntVar(&p.Chunk, "chunk", DefaultChunk, "bytes per write")
	fs.IntVar(&p.ExitCode, "exit", 0, "exit status")
	fs.DurationVar(&p.Hold, "hold", 0, "sleep before exiting")

	if err := fs.Parse(args); err != nil {
		return Plan{}, err
	}
	if p.Stdout < 0 || p.Stderr < 0 {
		return Plan{}, errors.New("byte counts must be non-negative")
	}
	if p.Chunk <= 0 {
		return Plan{}, fmt.Errorf("chunk must be positive, got %d", p.Chunk)
	}
	return p, nil
}

// Pattern returns n bytes of line-structured text tagged with label, e.g.
// "stdout 00000000\n". Truncated at n, so the last line may be partial.
func Pattern(label string, n int) []byte {
	if n <= 0 {
		return []byte{}
	}
	out := make([]byte, 0, n+32)
	for i := 0; len(out) < n; i++ {
		out = fmt.Appendf(out, "%s %08d\n", label, i)
	}
	return out[:n]
}

// Interleave writes p's payload, alternating one chunk of stdout with one
// chunk of stderr until both are exhausted.
func Interleave(stdout, stderr io.Writer, p Plan) error {
	out, errOut := p.Expect()
	return interleave(stdout, stderr, out, errOut, p.chunk())
}

func interleave(stdout, stderr io.Writer, out, errOut []byte, chunk int) error {
	for len(out) > 0 || len(errOut) > 0 {
		if len(out) > 0 {
			n := min(chunk, len(out))
			if _, err := stdout.Write(out[:n]); err != nil {
				return fmt.Errorf("write stdout: %w", err)
			}
			out = out[n:]
		}
		if len(errOut) > 0 {
			n := min(chunk, len(errOut))
			if _, err := stderr.Write(errOut[:n]); err != nil {
				return fmt.Errorf("write stderr: %w", err)
			}
			errOut = errOut[n:]
		}
	}
	return nil
}

// Main runs emit mode with the arguments following Subcommand and returns
// the process exit status.
func Main(args []string) int {
	p, err := ParseArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", Subcommand, err)
		return 2
	}
	if err := Interleave(os.Stdout, os.Stderr, p); err != nil {
		return 1
	}
	if p.Hold > 0 {
		time.Sleep(p.Hold)
	}
	return p.ExitCode
}
