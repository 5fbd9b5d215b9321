package config

import (
	"bytes"
	"errors"
	"flag"
	"strings"
	"testing"
	"time"

	"github.com/randomizedcoder/go-pipe-drain/internal/emit"
)

func TestEnvList(t *testing.T) {
	e := envList{}
	if err := e.Set("B=2"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := e.Set("A=1=one"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := e.Set("EMPTY="); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if got := e.String(); got != "A=1=one, B=2, EMPTY=" {
		t.Errorf("String() = %q", got)
	}

	for _, bad := range []string{"NOEQUALS", "=value", ""} {
		if err := e.Set(bad); err == nil {
			t.Errorf("Set(%q) should fail", bad)
		}
	}
}

func TestFlagType(t *testing.T) {
	testCases := []struct {
		name     string
		defValue string
		expected string
	}{
		{"int", "42", "int"},
		{"float", "2.5", "float"},
		{"string", "hello", "string"},
		{"duration seconds", "5s", "duration"},
		{"duration minutes", "5m", "duration"},
		{"empty", "", "string"},
		{"negative int", "-1", "int"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := &flag.Flag{Name: "test", DefValue: tc.defValue}
			if got := flagType(f); got != tc.expected {
				t.Errorf("flagType(%q) = %q, want %q", tc.defValue, got, tc.expected)
			}
		})
	}

	fs := flag.NewFlagSet("t", flag.ContinueOnError)
	fs.Bool("b", false, "")
	fs.Var(envList{}, "env", "")
	if got := flagType(fs.Lookup("b")); got != "" {
		t.Errorf("bool flag type = %q, want empty", got)
	}
	if got := flagType(fs.Lookup("env")); got != "KEY=VALUE" {
		t.Errorf("env flag type = %q", got)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Executable != "echo" || len(cfg.Args) != 1 || cfg.Args[0] != "Hello, World!" {
		t.Errorf("default command = %q %q", cfg.Executable, cfg.Args)
	}
	if len(cfg.Environment()) != 0 {
		t.Errorf("default environment should be empty, got %v", cfg.Environment())
	}
	if !cfg.SeparateStderr {
		t.Error("SeparateStderr should default to true")
	}
	if cfg.GracePeriod != 2*time.Second {
		t.Errorf("GracePeriod = %v, want 2s", cfg.GracePeriod)
	}
	if cfg.LingerTimeout != 5*time.Second {
		t.Errorf("LingerTimeout = %v, want 5s", cfg.LingerTimeout)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %q, want text", cfg.LogFormat)
	}
	if cfg.EmitMode() {
		t.Error("default config should not be in emit mode")
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestParseArgs(t *testing.T) {
	testCases := []struct {
		name  string
		args  []string
		check func(t *testing.T, cfg *Config)
	}{
		{
			name: "no args",
			args: nil,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Executable != "echo" {
					t.Errorf("Executable = %q", cfg.Executable)
				}
			},
		},
		{
			name: "positional command",
			args: []string{"-timeout", "3s", "--", "ls", "-la", "/tmp"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Executable != "ls" || strings.Join(cfg.Args, " ") != "-la /tmp" {
					t.Errorf("command = %q %q", cfg.Executable, cfg.Args)
				}
				if cfg.Timeout != 3*time.Second {
					t.Errorf("Timeout = %v", cfg.Timeout)
				}
				if !cfg.commandSet {
					t.Error("commandSet should be true")
				}
			},
		},
		{
			name: "metrics dump",
			args: []string{"-metrics-dump", "/tmp/final.prom"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.MetricsDump != "/tmp/final.prom" {
					t.Errorf("MetricsDump = %q", cfg.MetricsDump)
				}
			},
		},
		{
			name: "repeatable env",
			args: []string{"-env", "A=1", "-env", "B=two"},
			check: func(t *testing.T, cfg *Config) {
				env := cfg.Environment()
				if len(env) != 2 || env["A"] != "1" || env["B"] != "two" {
					t.Errorf("Environment() = %v", env)
				}
			},
		},
		{
			name: "emitter",
			args: []string{"-emit-stdout", "1024", "-emit-stderr", "10", "-emit-chunk", "100", "-repeat", "5"},
			check: func(t *testing.T, cfg *Config) {
				want := emit.Plan{Stdout: 1024, Stderr: 10, Chunk: 100}
				if cfg.EmitPlan() != want {
					t.Errorf("EmitPlan() = %+v, want %+v", cfg.EmitPlan(), want)
				}
				spec := cfg.Spec("/proc/self/exe")
				if spec.Path != "/proc/self/exe" || spec.Args[0] != emit.Subcommand {
					t.Errorf("Spec = %+v", spec)
				}
			},
		},
		{
			name: "merged stderr",
			args: []string{"-separate-stderr=false"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.SeparateStderr {
					t.Error("SeparateStderr should be false")
				}
			},
		},
		{
			name: "check mode",
			args: []string{"-check"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.EmitStdout != 1<<20 || cfg.EmitStderr != 1<<20 || cfg.Repeat != 20 {
					t.Errorf("check mode not applied: %+v", cfg)
				}
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			cfg, err := ParseArgs(tc.args, &out)
			if err != nil {
				t.Fatalf("ParseArgs: %v (output %q)", err, out.String())
			}
			tc.check(t, cfg)
		})
	}
}

func TestParseArgs_Errors(t *testing.T) {
	for _, args := range [][]string{
		{"-env", "NOEQUALS"},
		{"-repeat", "many"},
		{"-unknown"},
	} {
		var out bytes.Buffer
		if _, err := ParseArgs(args, &out); err == nil {
			t.Errorf("ParseArgs(%q) should fail", args)
		}
	}
}

func TestParseArgs_Usage(t *testing.T) {
	var out bytes.Buffer
	_, err := ParseArgs([]string{"-h"}, &out)
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("err = %v, want flag.ErrHelp", err)
	}
	for _, want := range []string{"Regression Harness:", "-emit-stdout int", "-env KEY=VALUE", "(default 2s)"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("usage missing %q", want)
		}
	}
}

func TestEnvironment_Inherit(t *testing.T) {
	t.Setenv("GO_PIPE_DRAIN_TEST_VAR", "parent")

	cfg := DefaultConfig()
	cfg.InheritEnv = true
	cfg.Env["GO_PIPE_DRAIN_TEST_OVERRIDE"] = "child"

	env := cfg.Environment()
	if env["GO_PIPE_DRAIN_TEST_VAR"] != "parent" {
		t.Error("inherited variable missing")
	}
	if env["GO_PIPE_DRAIN_TEST_OVERRIDE"] != "child" {
		t.Error("override missing")
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"empty executable", func(c *Config) { c.Executable = " " }, "executable"},
		{"command with emitter", func(c *Config) { c.commandSet = true; c.EmitStdout = 10 }, "executable"},
		{"negative emit", func(c *Config) { c.EmitStderr = -1 }, "emit_stderr"},
		{"zero emit chunk", func(c *Config) { c.EmitChunk = 0 }, "emit_chunk"},
		{"bad env key", func(c *Config) { c.Env["A=B"] = "x" }, "env"},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }, "timeout"},
		{"zero grace", func(c *Config) { c.GracePeriod = 0 }, "grace_period"},
		{"negative linger", func(c *Config) { c.LingerTimeout = -1 }, "linger_timeout"},
		{"tiny read buffer", func(c *Config) { c.ReadBufferSize = 16 }, "read_buffer_size"},
		{"negative tail", func(c *Config) { c.TailBytes = -1 }, "tail_bytes"},
		{"zero line buffer", func(c *Config) { c.LineBuffer = 0 }, "line_buffer"},
		{"negative retries", func(c *Config) { c.SpawnRetries = -1 }, "spawn_retries"},
		{"backoff max below initial", func(c *Config) { c.BackoffMax = time.Millisecond }, "backoff_max"},
		{"shrinking backoff", func(c *Config) { c.BackoffMultiply = 0.5 }, "backoff_multiply"},
		{"zero repeat", func(c *Config) { c.Repeat = 0 }, "repeat"},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, "concurrency"},
		{"no hang timeout", func(c *Config) { c.Repeat = 3; c.HangTimeout = 0 }, "hang_timeout"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"bad metrics addr", func(c *Config) { c.MetricsAddr = "localhost" }, "metrics_addr"},
		{"tui without repeat", func(c *Config) { c.TUIEnabled = true }, "tui"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			var ve ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error %v is not a ValidationError", err)
			}
			if !strings.Contains(err.Error(), tc.field+":") {
				t.Errorf("error %q does not mention %s", err, tc.field)
			}
		})
	}
}

func TestValidate_CollectsAll(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Repeat = 0
	cfg.Concurrency = 0
	cfg.LogFormat = "xml"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}
	if n := strings.Count(err.Error(), "\n") + 1; n != 3 {
		t.Errorf("got %d errors, want 3: %v", n, err)
	}
}

func TestValidate_EmitterWithoutCommand(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Executable = ""
	cfg.EmitStdout = 100
	if err := Validate(cfg); err != nil {
		t.Errorf("emitter config should validate: %v", err)
	}
}

func TestBackoffConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BackoffInitial = 5 * time.Millisecond
	b := cfg.BackoffConfig()
	if b.Initial != 5*time.Millisecond || b.Max != cfg.BackoffMax || b.Multiplier != cfg.BackoffMultiply {
		t.Errorf("BackoffConfig() = %+v", b)
	}
}
