package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the longest child output line logged verbatim.
	MaxLineLength = 4096

	// MaxBufferedLines is how many recent lines each handler keeps.
	MaxBufferedLines = 100
)

// ErrorPatterns are substrings counted by CountErrors, matched
// case-insensitively.
var ErrorPatterns = []string{
	"error",
	"fatal",
	"panic",
	"permission denied",
	"no such file",
	"broken pipe",
	"timeout",
}

// OutputHandler logs one stream of child output line by line and keeps the
// most recent lines for failure reports. It implements parser.LineParser.
type OutputHandler struct {
	stream  string
	run     int
	logger  *slog.Logger
	verbose bool

	mu     sync.Mutex
	buffer []string
	bufIdx int
	lines  int64
}

// NewOutputHandler creates a handler for stream ("stdout" or "stderr") of
// iteration run of the child. When verbose is false only lines that look
// like errors are logged.
func NewOutputHandler(stream string, run int, logger *slog.Logger, verbose bool) *OutputHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &OutputHandler{
		stream:  stream,
		run:     run,
		logger:  logger,
		verbose: verbose,
		buffer:  make([]string, MaxBufferedLines),
	}
}

// ParseLine records and logs one line.
func (h *OutputHandler) ParseLine(line string) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	h.mu.Lock()
	h.buffer[h.bufIdx] = line
	h.bufIdx = (h.bufIdx + 1) % MaxBufferedLines
	h.lines++
	h.mu.Unlock()

	level := classifyLine(line)
	if !h.verbose && level < slog.LevelWarn {
		return
	}
	h.logger.Log(context.Background(), level, "child_output",
		"stream", h.stream,
		"run", h.run,
		"line", line,
	)
}

// classifyLine picks a log level from the line's content.
func classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "panic"),
		strings.Contains(lower, "fatal"),
		strings.Contains(lower, "error"):
		return slog.LevelWarn
	case strings.Contains(lower, "warn"):
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// Lines returns how many lines were handled.
func (h *OutputHandler) Lines() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lines
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (h *OutputHandler) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	n = min(n, MaxBufferedLines)
	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		if h.buffer[idx] != "" {
			lines = append(lines, h.buffer[idx])
		}
	}
	return lines
}

// CountErrors counts buffered lines matching each of ErrorPatterns.
func (h *OutputHandler) CountErrors() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	counts := make(map[string]int)
	for _, line := range h.buffer {
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		for _, pattern := range ErrorPatterns {
			if strings.Contains(lower, pattern) {
				counts[pattern]++
			}
		}
	}
	return counts
}
