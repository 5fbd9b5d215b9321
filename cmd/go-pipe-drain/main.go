// Package main provides the go-pipe-drain CLI entry point.
//
// go-pipe-drain runs a child process with both output streams drained
// concurrently, so a child that fills a pipe never blocks the parent's wait.
// With -repeat it becomes a regression harness for that guarantee.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/randomizedcoder/go-pipe-drain/internal/config"
	"github.com/randomizedcoder/go-pipe-drain/internal/emit"
	"github.com/randomizedcoder/go-pipe-drain/internal/logging"
	"github.com/randomizedcoder/go-pipe-drain/internal/orchestrator"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-pipe-drain
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) > 1 {
		switch arg := os.Args[1]; arg {
		case emit.Subcommand:
			// Child side of emit mode: this binary re-executed as the payload writer.
			return emit.Main(os.Args[2:])
		case "-version", "--version", "version":
			fmt.Printf("go-pipe-drain %s\n", version)
			return 0
		}
	}

	cfg, err := config.ParseFlags()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 2
	}

	// When TUI is enabled, suppress logs to avoid interfering with TUI rendering
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.NewLoggerWithWriter(io.Discard, "json", "info")
	} else {
		logger = logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	}
	logging.SetDefault(logger)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 2
	}

	orch := orchestrator.New(cfg, logger, orchestrator.WithVersion(version))

	if cfg.PrintCmd {
		spec, err := orch.Spec()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Println(orchestrator.FormatInvocation(spec))
		return 0
	}

	if cfg.Check {
		logger.Info("check_mode_enabled",
			"emit_stdout", cfg.EmitStdout,
			"emit_stderr", cfg.EmitStderr,
			"repeat", cfg.Repeat,
			"concurrency", cfg.Concurrency,
		)
	}

	logger.Debug("starting",
		"version", version,
		"command", cfg.Executable,
		"repeat", cfg.Repeat,
		"concurrency", cfg.Concurrency,
		"metrics_addr", cfg.MetricsAddr,
	)

	code, err := orch.Run(context.Background())
	if err != nil {
		logger.Error("run_failed", "error", err)
	}
	return code
}
