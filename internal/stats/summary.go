package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	heavyRule = "═══════════════════════════════════════════════════════════════════════════════\n"
	lightRule = "───────────────────────────────────────────────────────────────────────────────\n"
)

// SummaryConfig holds configuration for summary formatting.
type SummaryConfig struct {
	// Command is the child command line
	Command string

	// Concurrency is the number of runs allowed in flight
	Concurrency int

	// MetricsAddr is the Prometheus metrics endpoint address
	MetricsAddr string

	// ExitCodes maps shell-style exit codes to counts (from metrics.Collector)
	ExitCodes map[int]int64

	// PeakActive is the most runs seen in flight at once
	PeakActive int
}

// FormatExitSummary formats a repeat session for display at program exit.
func FormatExitSummary(s Snapshot, failures []Failure, cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(heavyRule)
	b.WriteString("                          go-pipe-drain Exit Summary\n")
	b.WriteString(heavyRule + "\n")

	if hangs := s.Count(OutcomeHang); hangs > 0 {
		fmt.Fprintf(&b, "!! HANGS DETECTED: %d of %d runs did not finish in time\n\n", hangs, s.Completed)
	}

	fmt.Fprintf(&b, "Command:                %s\n", cfg.Command)
	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(s.Elapsed))
	fmt.Fprintf(&b, "Runs:                   %d / %d\n", s.Completed, s.Target)
	fmt.Fprintf(&b, "Concurrency:            %d (peak %d)\n\n", cfg.Concurrency, cfg.PeakActive)

	section(&b, "Outcomes")
	for _, o := range []Outcome{
		OutcomeOK, OutcomeNonZeroExit, OutcomeHang, OutcomeMismatch,
		OutcomeDrainError, OutcomeWaitError, OutcomeSpawnError, OutcomeCancelled,
	} {
		n := s.Count(o)
		if n == 0 && o != OutcomeOK {
			continue
		}
		fmt.Fprintf(&b, "  %-20s %10s  (%s)\n", o, FormatNumber(n), percent(n, s.Completed))
	}
	b.WriteString("\n")

	section(&b, "Throughput")
	fmt.Fprintf(&b, "  Stdout:               %s\n", FormatBytes(s.StdoutBytes))
	fmt.Fprintf(&b, "  Stderr:               %s\n", FormatBytes(s.StderrBytes))
	fmt.Fprintf(&b, "  Chunks:               %s\n", FormatNumber(s.Chunks))
	fmt.Fprintf(&b, "  Rate:                 %s  (%s/s)\n\n",
		FormatRate(s.RunsPerSec),
		FormatBytes(int64(s.ThroughputBytesPerSec)),
	)

	if s.Completed > 0 {
		section(&b, "Latency")
		fmt.Fprintf(&b, "  %-20s %10s %10s %10s %10s\n", "", "P50", "P95", "P99", "Max")
		b.WriteString("  " + strings.Repeat("─", 64) + "\n")
		fmt.Fprintf(&b, "  %-20s %10s %10s %10s %10s\n", "Run duration",
			FormatMs(s.DurationP50), FormatMs(s.DurationP95), FormatMs(s.DurationP99), FormatMs(s.DurationMax))
		fmt.Fprintf(&b, "  %-20s %10s %10s %10s %10s\n", "Exit to EOF",
			FormatMs(s.EOFLagP50), "-", FormatMs(s.EOFLagP99), FormatMs(s.EOFLagMax))
		b.WriteString("\n")
	}

	if len(cfg.ExitCodes) > 0 {
		section(&b, "Exit Codes")
		codes := make([]int, 0, len(cfg.ExitCodes))
		for code := range cfg.ExitCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		for _, code := range codes {
			fmt.Fprintf(&b, "  %3d %-16s %d\n", code, exitCodeLabel(code), cfg.ExitCodes[code])
		}
		b.WriteString("\n")
	}

	if len(failures) > 0 {
		section(&b, "First Failures")
		for _, f := range failures {
			fmt.Fprintf(&b, "  #%d %s (%s)\n", f.Iteration, f.Outcome, f.Exit)
			if f.Detail != "" {
				fmt.Fprintf(&b, "     %s\n", f.Detail)
			}
			writeTail(&b, "stdout", f.StdoutTail)
			writeTail(&b, "stderr", f.StderrTail)
		}
		b.WriteString("\n")
	}

	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}
	b.WriteString(heavyRule)

	return b.String()
}

func section(b *strings.Builder, title string) {
	b.WriteString(lightRule)
	pad := max(0, (79-len(title))/2)
	b.WriteString(strings.Repeat(" ", pad) + title + "\n")
	b.WriteString(lightRule + "\n")
}

// writeTail prints the last few lines of a stream tail, indented.
func writeTail(b *strings.Builder, stream, tail string) {
	tail = strings.TrimRight(tail, "\n")
	if tail == "" {
		return
	}
	lines := strings.Split(tail, "\n")
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	for _, l := range lines {
		fmt.Fprintf(b, "     %s| %s\n", stream, l)
	}
}

func percent(n, total int64) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(n)*100/float64(total))
}

func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatBytes formats bytes with KB/MB/GB suffixes.
func FormatBytes(n int64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.2f GB", float64(n)/1_000_000_000)
	}
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2f MB", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.2f KB", float64(n)/1_000)
	}
	return fmt.Sprintf("%d B", n)
}

// FormatMs formats a duration as milliseconds, or microseconds below 1ms.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

// FormatRate formats a runs-per-second rate.
func FormatRate(rate float64) string {
	if rate >= 1000 {
		return fmt.Sprintf("%.1fK/s", rate/1000)
	}
	if rate >= 1 {
		return fmt.Sprintf("%.1f/s", rate)
	}
	return fmt.Sprintf("%.2f/s", rate)
}
