package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or every problem joined with errors.Join.
func Validate(cfg *Config) error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if cfg.EmitMode() {
		if cfg.commandSet {
			add("executable", "a command cannot be combined with -emit-stdout/-emit-stderr")
		}
	} else if strings.TrimSpace(cfg.Executable) == "" {
		add("executable", "command is required")
	}
	if cfg.EmitStdout < 0 {
		add("emit_stdout", "must not be negative")
	}
	if cfg.EmitStderr < 0 {
		add("emit_stderr", "must not be negative")
	}
	if cfg.EmitChunk < 1 {
		add("emit_chunk", "must be at least 1")
	}

	for k := range cfg.Env {
		if k == "" || strings.ContainsAny(k, "=\x00") {
			add("env", "invalid variable name %q", k)
		}
	}

	if cfg.Timeout < 0 {
		add("timeout", "must not be negative")
	}
	if cfg.GracePeriod <= 0 {
		add("grace_period", "must be positive")
	}
	if cfg.LingerTimeout < 0 {
		add("linger_timeout", "must not be negative")
	}

	if cfg.ReadBufferSize < 512 {
		add("read_buffer_size", "must be at least 512 (got %d)", cfg.ReadBufferSize)
	}
	if cfg.TailBytes < 0 {
		add("tail_bytes", "must not be negative")
	}
	if cfg.LineBuffer < 1 {
		add("line_buffer", "must be at least 1")
	}

	if cfg.SpawnRetries < 0 {
		add("spawn_retries", "must not be negative")
	}
	if cfg.BackoffInitial <= 0 {
		add("backoff_initial", "must be positive")
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		add("backoff_max", "must be >= backoff_initial")
	}
	if cfg.BackoffMultiply < 1.0 {
		add("backoff_multiply", "must be >= 1.0")
	}

	if cfg.Repeat < 1 {
		add("repeat", "must be at least 1")
	}
	if cfg.Concurrency < 1 {
		add("concurrency", "must be at least 1")
	}
	if cfg.Repeat > 1 && cfg.HangTimeout <= 0 {
		add("hang_timeout", "must be positive when repeating")
	}

	switch strings.ToLower(cfg.LogFormat) {
	case "json", "text":
	default:
		add("log_format", `must be "json" or "text" (got %q)`, cfg.LogFormat)
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("log_level", "unknown level %q", cfg.LogLevel)
	}

	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			add("metrics_addr", "%v", err)
		}
	}

	if cfg.TUIEnabled && cfg.Repeat == 1 {
		add("tui", "the dashboard needs -repeat > 1")
	}

	return errors.Join(errs...)
}
