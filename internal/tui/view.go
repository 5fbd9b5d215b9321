package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-pipe-drain/internal/stats"
)

// outcomeOrder is the display order of the outcomes section.
var outcomeOrder = []stats.Outcome{
	stats.OutcomeOK,
	stats.OutcomeNonZeroExit,
	stats.OutcomeHang,
	stats.OutcomeMismatch,
	stats.OutcomeDrainError,
	stats.OutcomeWaitError,
	stats.OutcomeSpawnError,
	stats.OutcomeCancelled,
}

// =============================================================================
// Main View Rendering
// =============================================================================

// renderSummaryView renders the main summary dashboard.
func (m Model) renderSummaryView() string {
	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderProgress())

	// Stats sections (only once a snapshot arrived)
	if m.snapshot != nil {
		sections = append(sections, m.renderOutcomes())
		sections = append(sections, m.renderThroughput())
		if m.snapshot.Completed > 0 {
			sections = append(sections, m.renderLatency())
		}
	}

	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderFailuresView renders the first failure reports.
func (m Model) renderFailuresView() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderFailureTable(),
		m.renderFooter(),
	)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	health := HealthOK
	if m.snapshot != nil {
		health = GetHealth(*m.snapshot)
	}

	header := fmt.Sprintf(
		" go-pipe-drain │ %s │ Runs: %d/%d │ Active: %d/%d │ Elapsed: %s ",
		GetHealthLabel(health),
		m.Completed(),
		m.targetRuns,
		m.Active(),
		m.concurrency,
		stats.FormatDuration(m.Elapsed()),
	)

	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Progress Section
// =============================================================================

func (m Model) renderProgress() string {
	progress := m.Progress()

	barWidth := max(m.width-30, 20)
	progressBar := RenderProgressBar(progress, barWidth)

	var status string
	if progress >= 1.0 {
		status = statusOK.Render("✓ All runs complete")
	} else {
		status = statusInfo.Render(fmt.Sprintf("Running... %d/%d (%d in flight)", m.Completed(), m.targetRuns, m.Active()))
	}

	rows := []string{
		sectionHeaderStyle.Render("Progress"),
		progressBar,
		status,
	}
	if m.metricsAddr != "" {
		rows = append(rows, RenderKeyValue("Metrics", "http://"+m.metricsAddr+"/metrics"))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, rows...)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Outcomes
// =============================================================================

func (m Model) renderOutcomes() string {
	s := m.snapshot

	rows := make([]string, 0, len(outcomeOrder)+1)
	for _, o := range outcomeOrder {
		n := s.Count(o)
		if n == 0 && o != stats.OutcomeOK && o != stats.OutcomeHang {
			continue
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			labelWideStyle.Render(string(o)+":"),
			GetOutcomeStyle(o, n).Width(12).Render(stats.FormatNumber(n)),
			mutedStyle.Render(" ("+formatPercent(n, s.Completed)+")"),
		))
	}

	rate := m.FailureRate()
	rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
		labelWideStyle.Render("Failure rate:"),
		GetFailureRateStyle(rate).Render(fmt.Sprintf("%.2f%%", rate*100)),
	))

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Outcomes")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Throughput
// =============================================================================

func (m Model) renderThroughput() string {
	s := m.snapshot

	rows := []string{
		renderStatRow("Stdout", stats.FormatBytes(s.StdoutBytes), ""),
		renderStatRow("Stderr", stats.FormatBytes(s.StderrBytes), ""),
		renderStatRow("Chunks", stats.FormatNumber(s.Chunks), ""),
		renderStatRow("Runs", stats.FormatNumber(s.Completed), stats.FormatRate(s.RunsPerSec)),
		renderStatRow("Bytes", stats.FormatBytes(s.StdoutBytes+s.StderrBytes), stats.FormatBytes(int64(s.ThroughputBytesPerSec))+"/s"),
		renderStatRow("Last 10s", stats.FormatRate(s.RecentRunsPerSec), stats.FormatBytes(int64(s.RecentBytesPerSec))+"/s"),
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Throughput")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

func renderStatRow(label, value, rate string) string {
	if rate == "" {
		return RenderKeyValueWide(label, value)
	}
	parts := []string{
		labelWideStyle.Render(label + ":"),
		valueStyle.Width(12).Render(value),
	}
	parts = append(parts,
		mutedStyle.Render(" ("),
		valueStyle.Render(rate),
		mutedStyle.Render(")"),
	)
	return lipgloss.JoinHorizontal(lipgloss.Left, parts...)
}

// =============================================================================
// Latency
// =============================================================================

func (m Model) renderLatency() string {
	s := m.snapshot

	left := []string{
		subtitleStyle.Render("Run duration"),
		renderLatencyRow("P50 (median)", s.DurationP50),
		renderLatencyRow("P95", s.DurationP95),
		renderLatencyRow("P99", s.DurationP99),
		renderLatencyRow("Max", s.DurationMax),
	}
	right := []string{
		subtitleStyle.Render("Exit to EOF"),
		renderLatencyRow("P50 (median)", s.EOFLagP50),
		renderLatencyRow("P99", s.EOFLagP99),
		renderLatencyRow("Max", s.EOFLagMax),
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Latency"),
		renderTwoColumns(left, right),
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

func renderLatencyRow(label string, d time.Duration) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		valueStyle.Render(stats.FormatMs(d)),
	)
}

// renderTwoColumns renders two columns side-by-side with a separator.
func renderTwoColumns(left, right []string) string {
	leftContent := lipgloss.JoinVertical(lipgloss.Left, left...)
	rightContent := lipgloss.JoinVertical(lipgloss.Left, right...)

	separator := mutedStyle.Render(" │ ")
	return lipgloss.JoinHorizontal(lipgloss.Top, leftContent, separator, rightContent)
}

// =============================================================================
// Failures
// =============================================================================

func (m Model) renderFailureTable() string {
	if len(m.failures) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			sectionHeaderStyle.Render("Failures"),
			statusOK.Render("No failures"),
		)
		return boxStyle.Width(m.width - 2).Render(content)
	}

	header := tableHeaderStyle.Render(fmt.Sprintf("%-6s %-14s %-22s %s", "Run", "Outcome", "Exit", "Detail"))
	rows := []string{sectionHeaderStyle.Render("Failures"), header}

	detailWidth := max(m.width-50, 10)
	for i, f := range m.failures {
		style := tableRowEvenStyle
		if i%2 == 1 {
			style = tableRowOddStyle
		}
		rows = append(rows, style.Render(fmt.Sprintf("#%-5d %-14s %-22s %s",
			f.Iteration, f.Outcome, truncate(f.Exit, 22), truncate(f.Detail, detailWidth))))
		if tail := lastLine(f.StderrTail); tail != "" {
			rows = append(rows, dimStyle.Render("       stderr| "+truncate(tail, m.width-20)))
		} else if tail := lastLine(f.StdoutTail); tail != "" {
			rows = append(rows, dimStyle.Render("       stdout| "+truncate(tail, m.width-20)))
		}
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	shortcuts := []string{
		"q: quit",
		"f: toggle failures",
		"r: refresh",
	}

	left := dimStyle.Render(strings.Join(shortcuts, " │ "))
	right := dimStyle.Render("Cmd: " + truncate(m.command, m.width-60))

	// Pad to fill width
	padding := max(m.width-lipgloss.Width(left)-lipgloss.Width(right)-2, 1)

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			right,
		),
	)
}

// =============================================================================
// Helpers
// =============================================================================

// formatPercent formats n as a percentage of total.
func formatPercent(n, total int64) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(n)*100/float64(total))
}

// truncate shortens s to at most n runes, marking the cut with "...".
// Widths of 10 or less leave s untouched.
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 10 || len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
