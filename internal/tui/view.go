package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-chain-player/internal/stats"
)

// maxEvents caps the recent events box.
const maxEvents = 8

// =============================================================================
// Main Dashboard Renderer
// =============================================================================

// renderDashboard renders the complete dashboard.
func (m Model) renderDashboard() string {
	sections := []string{
		m.renderHeader(),
		m.renderPlaylist(),
		lipgloss.JoinHorizontal(lipgloss.Top,
			m.renderThroughput(),
			" ",
			m.renderWorker(),
		),
	}
	if m.showEvents {
		sections = append(sections, m.renderEvents())
	}
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header Section
// =============================================================================

func (m Model) renderHeader() string {
	title := headerStyle.Render("chain-player")

	info := []string{GetStateLabel(m.snap.State)}
	if m.strategy != "" {
		info = append(info, mutedStyle.Render("strategy: ")+m.strategy)
	}
	info = append(info,
		mutedStyle.Render("layer: ")+fmt.Sprintf("%d", m.layer),
		mutedStyle.Render("elapsed: ")+stats.FormatDuration(m.Elapsed()),
	)
	if m.rotation != 0 {
		info = append(info, mutedStyle.Render("rotate: ")+fmt.Sprintf("%d°", m.rotation))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		strings.Join(info, dimStyle.Render("  │  ")),
	)
}

// =============================================================================
// Playlist Section
// =============================================================================

func (m Model) renderPlaylist() string {
	lines := []string{sectionHeaderStyle.Render("Playlist")}

	source := m.snap.Source
	if source == "" {
		source = "-"
	}
	lines = append(lines, RenderKeyValue("Source", filepath.Base(source)))

	if m.snap.Length > 0 {
		lines = append(lines,
			RenderKeyValue("Item", fmt.Sprintf("%d / %d", m.snap.Index+1, m.snap.Length)),
			RenderProgressBar(m.PlaylistProgress(), m.barWidth()),
		)
	}

	loop := "off"
	switch {
	case m.snap.Loop < 0:
		loop = "forever"
	case m.snap.Loop > 0:
		loop = fmt.Sprintf("%d", m.snap.Loop)
	}
	lines = append(lines,
		RenderKeyValue("Played", fmt.Sprintf("%d", m.snap.Played)),
		RenderKeyValue("Repeat", loop),
	)

	if m.snap.Err != nil {
		lines = append(lines, statusError.Render("error: "+m.snap.Err.Error()))
	}

	return boxStyle.Width(m.boxWidth(1)).Render(strings.Join(lines, "\n"))
}

// =============================================================================
// Throughput and Worker Sections
// =============================================================================

func (m Model) renderThroughput() string {
	lines := []string{
		sectionHeaderStyle.Render("Throughput"),
		RenderKeyValue("Frame rate", fmt.Sprintf("%.1f fps", m.snap.FPS)),
		RenderKeyValue("Read rate", stats.FormatBytes(int64(m.snap.ReadRate))+"/s"),
		RenderKeyValue("Frames rendered", stats.FormatNumber(m.snap.FramesRendered)),
		RenderKeyValue("Bytes read", stats.FormatBytes(m.snap.BytesRead)),
	}
	return boxStyle.Width(m.boxWidth(2)).Render(strings.Join(lines, "\n"))
}

func (m Model) renderWorker() string {
	lines := []string{
		sectionHeaderStyle.Render("Worker"),
		RenderKeyValue("Wake-ups", stats.FormatNumber(m.snap.Wakes)),
		RenderKeyValue("Buffers pumped", stats.FormatNumber(m.snap.Pumped)),
		RenderKeyValue("Switches", fmt.Sprintf("%d", m.snap.Switches)),
		renderPercentiles("Wake p50/p99", m.snap.Wake),
		renderPercentiles("Switch p50/p99", m.snap.Switch),
	}
	return boxStyle.Width(m.boxWidth(2)).Render(strings.Join(lines, "\n"))
}

func renderPercentiles(label string, p stats.Percentiles) string {
	if p.Count == 0 {
		return RenderKeyValue(label, dimStyle.Render("-"))
	}
	return RenderKeyValue(label, stats.FormatMs(p.P50)+" / "+stats.FormatMs(p.P99))
}

// =============================================================================
// Events Section
// =============================================================================

func (m Model) renderEvents() string {
	lines := []string{sectionHeaderStyle.Render("Recent Events")}

	events := m.snap.Events
	if len(events) > maxEvents {
		events = events[len(events)-maxEvents:]
	}
	if len(events) == 0 {
		lines = append(lines, dimStyle.Render("no events yet"))
	}
	limit := max(m.boxWidth(1)-4, 20)
	for _, e := range events {
		line := e.String()
		if len(line) > limit {
			line = line[:limit-1] + "…"
		}
		lines = append(lines, GetLevelStyle(e.Level).Render(line))
	}

	return boxStyle.Width(m.boxWidth(1)).Render(strings.Join(lines, "\n"))
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	keys := "q quit  •  e toggle events  •  r refresh"
	if m.metricsAddr != "" {
		keys += "  •  metrics http://" + m.metricsAddr + "/metrics"
	}
	return footerStyle.Render(keys)
}

// =============================================================================
// Layout helpers
// =============================================================================

// boxWidth splits the terminal width into n columns.
func (m Model) boxWidth(n int) int {
	w := max(m.width, 40)
	if n <= 1 {
		return w - 2
	}
	return max((w-2)/n-2, 20)
}

func (m Model) barWidth() int {
	return max(m.boxWidth(1)-12, 10)
}
