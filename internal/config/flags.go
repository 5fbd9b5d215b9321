package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// envList is a custom flag type for repeatable -env KEY=VALUE flags.
type envList map[string]string

func (e envList) String() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+e[k])
	}
	return strings.Join(pairs, ", ")
}

func (e envList) Set(value string) error {
	k, v, ok := strings.Cut(value, "=")
	if !ok || k == "" {
		return fmt.Errorf("expected KEY=VALUE, got %q", value)
	}
	e[k] = v
	return nil
}

// ParseFlags parses the process command line.
func ParseFlags() (*Config, error) {
	return ParseArgs(os.Args[1:], os.Stderr)
}

// ParseArgs parses args (without the program name). Usage and parse errors
// go to out.
func ParseArgs(args []string, out io.Writer) (*Config, error) {
	cfg := DefaultConfig()
	env := envList{}

	fs := flag.NewFlagSet("go-pipe-drain", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprintf(out, `go-pipe-drain - run a child process and drain its output without deadlocking

Usage:
  go-pipe-drain [flags] [-- command [args...]]

With no command, runs: echo "Hello, World!" (empty environment).

Child Process:
`)
		printFlagCategory(fs, out, []string{"env", "inherit-env", "dir", "separate-stderr", "quiet"})

		fmt.Fprintf(out, "\nTiming:\n")
		printFlagCategory(fs, out, []string{"timeout", "grace", "linger"})

		fmt.Fprintf(out, "\nDraining:\n")
		printFlagCategory(fs, out, []string{"read-buffer", "tail-bytes", "line-buffer"})

		fmt.Fprintf(out, "\nSpawn Retry:\n")
		printFlagCategory(fs, out, []string{"spawn-retries", "backoff-initial", "backoff-max", "backoff-multiply"})

		fmt.Fprintf(out, "\nRegression Harness:\n")
		printFlagCategory(fs, out, []string{"repeat", "concurrency", "hang-timeout", "emit-stdout", "emit-stderr", "emit-chunk"})

		fmt.Fprintf(out, "\nObservability:\n")
		printFlagCategory(fs, out, []string{"metrics", "metrics-dump", "v", "log-format", "log-level", "tui"})

		fmt.Fprintf(out, "\nSafety & Diagnostics:\n")
		printFlagCategory(fs, out, []string{"print-cmd", "check", "skip-preflight"})

		fmt.Fprintf(out, `
Examples:
  # The default smoke run
  go-pipe-drain

  # 1 MiB on each stream, 200 times, 8 at a time; any hang fails the run
  go-pipe-drain -emit-stdout 1048576 -emit-stderr 1048576 -repeat 200 -concurrency 8

  # An arbitrary command with a wait bound
  go-pipe-drain -timeout 30s -inherit-env -- make test

`)
	}

	// Child process
	fs.Var(env, "env", "Set a child environment variable KEY=VALUE (can repeat)")
	fs.BoolVar(&cfg.InheritEnv, "inherit-env", cfg.InheritEnv, "Start from the parent's environment instead of an empty one")
	fs.StringVar(&cfg.Dir, "dir", cfg.Dir, "Working directory for the child")
	fs.BoolVar(&cfg.SeparateStderr, "separate-stderr", cfg.SeparateStderr, "Drain stderr on its own pipe (false merges it into stdout)")
	fs.BoolVar(&cfg.Quiet, "quiet", cfg.Quiet, "Don't echo child output")

	// Timing
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Terminate the child if it runs longer (0 = no limit)")
	fs.DurationVar(&cfg.GracePeriod, "grace", cfg.GracePeriod, "SIGTERM to SIGKILL delay")
	fs.DurationVar(&cfg.LingerTimeout, "linger", cfg.LingerTimeout, "How long to keep draining after exit (0 = until EOF)")

	// Draining
	fs.IntVar(&cfg.ReadBufferSize, "read-buffer", cfg.ReadBufferSize, "Bytes per pipe read")
	fs.Int64Var(&cfg.TailBytes, "tail-bytes", cfg.TailBytes, "Output tail kept per stream for failure reports")
	fs.IntVar(&cfg.LineBuffer, "line-buffer", cfg.LineBuffer, "Lines buffered for verbose tracing before dropping")

	// Spawn retry
	fs.IntVar(&cfg.SpawnRetries, "spawn-retries", cfg.SpawnRetries, "Retries on EAGAIN/ENOMEM at spawn")
	fs.DurationVar(&cfg.BackoffInitial, "backoff-initial", cfg.BackoffInitial, "First spawn retry delay")
	fs.DurationVar(&cfg.BackoffMax, "backoff-max", cfg.BackoffMax, "Maximum spawn retry delay")
	fs.Float64Var(&cfg.BackoffMultiply, "backoff-multiply", cfg.BackoffMultiply, "Spawn retry delay multiplier")

	// Regression harness
	fs.IntVar(&cfg.Repeat, "repeat", cfg.Repeat, "Run the child this many times")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Runs in flight at once")
	fs.DurationVar(&cfg.HangTimeout, "hang-timeout", cfg.HangTimeout, "A repeated run exceeding this counts as a hang")
	fs.IntVar(&cfg.EmitStdout, "emit-stdout", cfg.EmitStdout, "Use the built-in emitter: bytes written to stdout")
	fs.IntVar(&cfg.EmitStderr, "emit-stderr", cfg.EmitStderr, "Use the built-in emitter: bytes written to stderr")
	fs.IntVar(&cfg.EmitChunk, "emit-chunk", cfg.EmitChunk, "Emitter write size")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address (empty = disabled)")
	fs.StringVar(&cfg.MetricsDump, "metrics-dump", cfg.MetricsDump, "Write the final metrics to this file in Prometheus text format")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging: trace every chunk and output line")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, `Log level: "debug", "info", "warn", "error"`)
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Live terminal dashboard in repeat mode")

	// Diagnostics
	fs.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print the child command line and exit")
	fs.BoolVar(&cfg.Check, "check", cfg.Check, "Self-test: repeated 1 MiB emitter runs on both streams")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	for k, v := range env {
		cfg.Env[k] = v
	}

	if rest := fs.Args(); len(rest) > 0 {
		cfg.Executable = rest[0]
		cfg.Args = rest[1:]
		cfg.commandSet = true
	}

	if cfg.Check {
		ApplyCheckMode(cfg)
	}
	return cfg, nil
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, out io.Writer, names []string) {
	for _, name := range names {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		fmt.Fprintf(out, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
			fmt.Fprintf(out, " (default %s)", f.DefValue)
		}
		fmt.Fprintln(out)
	}
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	type boolFlag interface{ IsBoolFlag() bool }
	if b, ok := f.Value.(boolFlag); ok && b.IsBoolFlag() {
		return ""
	}
	if _, ok := f.Value.(envList); ok {
		return "KEY=VALUE"
	}

	switch f.DefValue {
	case "":
		return "string"
	}
	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		return "duration"
	}
	if _, err := fmt.Sscanf(f.DefValue, "%f", new(float64)); err == nil {
		if strings.Contains(f.DefValue, ".") {
			return "float"
		}
		return "int"
	}
	return "string"
}
