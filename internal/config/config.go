// Package config provides configuration management for go-pipe-drain.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/randomizedcoder/go-pipe-drain/internal/emit"
	"github.com/randomizedcoder/go-pipe-drain/internal/process"
)

// Config holds all configuration options for a drain run.
type Config struct {
	// Child
	Executable     string            `json:"executable"`
	Args           []string          `json:"args"`
	Env            map[string]string `json:"env"`
	InheritEnv     bool              `json:"inherit_env"`
	Dir            string            `json:"dir"`
	SeparateStderr bool              `json:"separate_stderr"`

	// Timing
	Timeout       time.Duration `json:"timeout"` // 0 = wait forever
	GracePeriod   time.Duration `json:"grace_period"`
	LingerTimeout time.Duration `json:"linger_timeout"` // 0 = wait for EOF forever

	// Draining
	ReadBufferSize int   `json:"read_buffer_size"`
	TailBytes      int64 `json:"tail_bytes"`
	LineBuffer     int   `json:"line_buffer"`

	// Spawn retry policy
	SpawnRetries    int           `json:"spawn_retries"`
	BackoffInitial  time.Duration `json:"backoff_initial"`
	BackoffMax      time.Duration `json:"backoff_max"`
	BackoffMultiply float64       `json:"backoff_multiply"`

	// Regression harness
	Repeat      int           `json:"repeat"`
	Concurrency int           `json:"concurrency"`
	HangTimeout time.Duration `json:"hang_timeout"`
	EmitStdout  int           `json:"emit_stdout"`
	EmitStderr  int           `json:"emit_stderr"`
	EmitChunk   int           `json:"emit_chunk"`

	// Observability
	MetricsAddr string `json:"metrics_addr"` // empty = disabled
	MetricsDump string `json:"metrics_dump"` // file for the final metrics, empty = none
	Verbose     bool   `json:"verbose"`
	LogFormat   string `json:"log_format"` // json, text
	LogLevel    string `json:"log_level"`
	TUIEnabled  bool   `json:"tui_enabled"`
	Quiet       bool   `json:"quiet"` // don't echo child output

	// Diagnostic modes
	PrintCmd      bool `json:"print_cmd"`
	Check         bool `json:"check"`
	SkipPreflight bool `json:"skip_preflight"`

	// commandSet is true when the command came from positional arguments.
	commandSet bool
}

// DefaultConfig returns a Config with sensible defaults. The default child
// is echo "Hello, World!" with an empty environment.
func DefaultConfig() *Config {
	return &Config{
		Executable:     "echo",
		Args:           []string{"Hello, World!"},
		Env:            map[string]string{},
		SeparateStderr: true,

		GracePeriod:   2 * time.Second,
		LingerTimeout: 5 * time.Second,

		ReadBufferSize: 32 * 1024,
		TailBytes:      4 * 1024,
		LineBuffer:     1000,

		SpawnRetries:    3,
		BackoffInitial:  10 * time.Millisecond,
		BackoffMax:      500 * time.Millisecond,
		BackoffMultiply: 2.0,

		Repeat:      1,
		Concurrency: 1,
		HangTimeout: 10 * time.Second,
		EmitChunk:   emit.DefaultChunk,

		LogFormat: "text",
		LogLevel:  "info",
	}
}

// EmitMode reports whether the child is the built-in payload emitter
// rather than an external command.
func (c *Config) EmitMode() bool {
	return c.EmitStdout > 0 || c.EmitStderr > 0
}

// EmitPlan returns the payload the emitter child writes.
func (c *Config) EmitPlan() emit.Plan {
	return emit.Plan{Stdout: c.EmitStdout, Stderr: c.EmitStderr, Chunk: c.EmitChunk}
}

// Environment returns the child's full environment: the parent's when
// InheritEnv is set, overlaid with Env.
func (c *Config) Environment() map[string]string {
	env := make(map[string]string)
	if c.InheritEnv {
		for _, kv := range os.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok {
				env[k] = v
			}
		}
	}
	for k, v := range c.Env {
		env[k] = v
	}
	return env
}

// Spec builds the process spec for the configured child. self is the path
// of the running binary, used in emit mode.
func (c *Config) Spec(self string) process.Spec {
	if c.EmitMode() {
		return process.Spec{Path: self, Args: c.EmitPlan().Args(), Env: c.Environment(), Dir: c.Dir}
	}
	return process.Spec{Path: c.Executable, Args: c.Args, Env: c.Environment(), Dir: c.Dir}
}

// BackoffConfig returns the spawn retry backoff.
func (c *Config) BackoffConfig() process.BackoffConfig {
	cfg := process.DefaultBackoffConfig()
	cfg.Initial = c.BackoffInitial
	cfg.Max = c.BackoffMax
	cfg.Multiplier = c.BackoffMultiply
	return cfg
}

// ApplyCheckMode turns the run into a self-test: a repeated emitter payload
// well above pipe capacity on both streams, with hang detection.
func ApplyCheckMode(cfg *Config) {
	cfg.EmitStdout = 1 << 20
	cfg.EmitStderr = 1 << 20
	cfg.Repeat = 20
	cfg.Concurrency = 4
	cfg.Quiet = true
	cfg.Verbose = true
}
