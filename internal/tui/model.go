package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-chain-player/internal/logging"
	"github.com/randomizedcoder/go-chain-player/internal/stats"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// SnapshotMsg carries an updated snapshot.
type SnapshotMsg struct {
	Snapshot Snapshot
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Snapshot
// =============================================================================

// Snapshot is everything the dashboard shows at one instant.
type Snapshot struct {
	// Session
	State      string
	Source     string
	ExitReason string
	Err        error

	// Playlist
	Index  int
	Length int
	Played int
	Loop   int // -1 = forever

	// Worker
	Wakes    int64
	Pumped   int64
	Switches int64
	Wake     stats.Percentiles
	Switch   stats.Percentiles

	// Engine
	FramesRendered int64
	BytesRead      int64
	FPS            float64
	ReadRate       float64 // bytes/s

	Events []logging.Entry
}

// SnapshotSource provides dashboard snapshots.
type SnapshotSource interface {
	Snapshot() Snapshot
}

// =============================================================================
// Model
// =============================================================================

// Model represents the TUI state.
type Model struct {
	// Configuration
	strategy    string
	metricsAddr string
	layer       int
	rotation    int
	source      SnapshotSource

	// Current state
	snap       Snapshot
	haveSnap   bool
	startTime  time.Time
	lastUpdate time.Time
	showEvents bool

	// Display options
	width  int
	height int

	quitting bool
}

// Config holds TUI configuration.
type Config struct {
	Strategy    string
	MetricsAddr string
	Layer       int
	Rotation    int
	Source      SnapshotSource
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		strategy:    cfg.Strategy,
		metricsAddr: cfg.MetricsAddr,
		layer:       cfg.Layer,
		rotation:    cfg.Rotation,
		source:      cfg.Source,
		startTime:   time.Now(),
		lastUpdate:  time.Now(),
		showEvents:  true,
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
		case "e":
			m.showEvents = !m.showEvents
			return m, nil
		case "r":
			m.refresh()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m.refresh()
		return m, tickCmd()

	case SnapshotMsg:
		m.snap = msg.Snapshot
		m.haveSnap = true
		m.lastUpdate = time.Now()
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) refresh() {
	if m.source == nil {
		return
	}
	m.snap = m.source.Snapshot()
	m.haveSnap = true
	m.lastUpdate = time.Now()
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderDashboard()
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

// Elapsed returns the time since the dashboard started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// Snapshot returns the last snapshot shown.
func (m Model) Snapshot() Snapshot {
	return m.snap
}

// PlaylistProgress returns how far through the playlist playback is
// (0.0 to 1.0).
func (m Model) PlaylistProgress() float64 {
	if m.snap.Length == 0 {
		return 0
	}
	return float64(m.snap.Index+1) / float64(m.snap.Length)
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendSnapshot pushes a snapshot to a running program.
func SendSnapshot(p *tea.Program, s Snapshot) {
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
