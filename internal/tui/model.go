package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-pipe-drain/internal/stats"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// SnapshotMsg carries an updated snapshot.
type SnapshotMsg struct {
	Snapshot stats.Snapshot
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// Model represents the TUI state.
type Model struct {
	// Configuration
	command     string
	targetRuns  int
	concurrency int
	metricsAddr string

	// Current state
	snapshot     *stats.Snapshot
	failures     []stats.Failure
	startTime    time.Time
	lastUpdate   time.Time
	showFailures bool

	// Display options
	width  int
	height int

	source StatsSource

	// Quit flag
	quitting bool
}

// StatsSource provides session snapshots. *stats.Aggregator implements it.
type StatsSource interface {
	Snapshot() stats.Snapshot
}

// FailureSource optionally provides failure reports for the failures view.
type FailureSource interface {
	Failures() []stats.Failure
}

// Config holds TUI configuration.
type Config struct {
	Command     string
	TargetRuns  int
	Concurrency int
	MetricsAddr string
	Source      StatsSource
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		command:     cfg.Command,
		targetRuns:  cfg.TargetRuns,
		concurrency: cfg.Concurrency,
		metricsAddr: cfg.MetricsAddr,
		source:      cfg.Source,
		startTime:   time.Now(),
		lastUpdate:  time.Now(),
		width:       80,
		height:      24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "f":
			m.showFailures = !m.showFailures
			return m, nil
		case "r":
			// Force refresh
			return m, tickCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m = m.refresh()
		return m, tickCmd()

	case SnapshotMsg:
		s := msg.Snapshot
		m.snapshot = &s
		m.lastUpdate = time.Now()
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// refresh pulls the latest snapshot and failures from the source.
func (m Model) refresh() Model {
	if m.source == nil {
		return m
	}
	s := m.source.Snapshot()
	m.snapshot = &s
	if fs, ok := m.source.(FailureSource); ok {
		m.failures = fs.Failures()
	}
	m.lastUpdate = time.Now()
	return m
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.showFailures {
		return m.renderFailuresView()
	}
	return m.renderSummaryView()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the session started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// Completed returns the number of finished runs.
func (m Model) Completed() int64 {
	if m.snapshot == nil {
		return 0
	}
	return m.snapshot.Completed
}

// Active returns the number of runs in flight.
func (m Model) Active() int64 {
	if m.snapshot == nil {
		return 0
	}
	return m.snapshot.Active
}

// TargetRuns returns the target run count.
func (m Model) TargetRuns() int {
	return m.targetRuns
}

// Progress returns completed runs as a fraction of the target (0.0 to 1.0).
func (m Model) Progress() float64 {
	if m.targetRuns == 0 {
		return 0
	}
	return float64(m.Completed()) / float64(m.targetRuns)
}

// FailureRate returns the fraction of finished runs that failed.
func (m Model) FailureRate() float64 {
	if m.snapshot == nil || m.snapshot.Completed == 0 {
		return 0
	}
	return float64(m.snapshot.Failed()) / float64(m.snapshot.Completed)
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendSnapshot sends a snapshot to the TUI.
func SendSnapshot(p *tea.Program, s stats.Snapshot) {
	if p != nil {
		p.Send(SnapshotMsg{Snapshot: s})
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}
