package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	ruleHeavy = "═══════════════════════════════════════════════════════════════════════════════\n"
	ruleLight = "───────────────────────────────────────────────────────────────────────────────\n"
)

// SummaryConfig holds everything the exit summary prints.
type SummaryConfig struct {
	// Duration is the total run duration
	Duration time.Duration

	// Source is the last source played; Played counts items started
	Source string
	Played int

	// Strategy is the source switch strategy in use
	Strategy string

	// ExitReason is the final session's exit reason
	ExitReason string

	// Err is the error the player stopped with, if any
	Err error

	// MetricsAddr is the Prometheus metrics endpoint address
	MetricsAddr string

	// LogWarnings and LogErrors count warn and error records logged
	LogWarnings int
	LogErrors   int

	// Worker counters
	Wakes         int64
	BuffersPumped int64

	// Source switches
	Switches       int64
	SwitchFailures int64
	EOS            int64
	Restarts       int64

	// Engine counters
	BytesRead      int64
	FramesDecoded  int64
	FramesRendered int64
	FramesDropped  int64
	DecoderResets  int64

	// ExitReasons and EngineErrors are counts by label (from metrics.Collector)
	ExitReasons  map[string]int64
	EngineErrors map[string]int64

	// Timing distributions (from Playback); zero values are omitted
	WakeLatency   Percentiles
	SwitchLatency Percentiles
}

// FormatExitSummary formats the run statistics for display at program exit.
func FormatExitSummary(cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(ruleHeavy)
	b.WriteString("                          chain-player Exit Summary\n")
	b.WriteString(ruleHeavy + "\n")

	// Run info
	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	if cfg.Source != "" {
		fmt.Fprintf(&b, "Last Source:            %s\n", cfg.Source)
	}
	fmt.Fprintf(&b, "Items Played:           %d\n", cfg.Played)
	if cfg.Strategy != "" {
		fmt.Fprintf(&b, "Switch Strategy:        %s\n", cfg.Strategy)
	}
	if cfg.ExitReason != "" {
		fmt.Fprintf(&b, "Exit Reason:            %s\n", cfg.ExitReason)
	}
	if cfg.Err != nil {
		fmt.Fprintf(&b, "Error:                  %v\n", cfg.Err)
	}
	if cfg.LogWarnings > 0 || cfg.LogErrors > 0 {
		fmt.Fprintf(&b, "Logged Problems:        %d warnings, %d errors\n", cfg.LogWarnings, cfg.LogErrors)
	}
	b.WriteString("\n")

	// Playback
	section(&b, "Playback")
	fmt.Fprintf(&b, "  Bytes Read:           %s", FormatBytes(cfg.BytesRead))
	if secs := cfg.Duration.Seconds(); secs > 0 {
		fmt.Fprintf(&b, "  (%s/s)", FormatBytes(int64(float64(cfg.BytesRead)/secs)))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "  Frames Decoded:       %s\n", FormatNumber(cfg.FramesDecoded))
	fmt.Fprintf(&b, "  Frames Rendered:      %s\n", FormatNumber(cfg.FramesRendered))
	if cfg.FramesDropped > 0 {
		fmt.Fprintf(&b, "  Frames Dropped:       %s\n", FormatNumber(cfg.FramesDropped))
	}
	if cfg.DecoderResets > 0 {
		fmt.Fprintf(&b, "  Decoder Resets:       %d\n", cfg.DecoderResets)
	}
	b.WriteString("\n")

	// Worker
	section(&b, "Worker Loop")
	fmt.Fprintf(&b, "  Wake-ups:             %s\n", FormatNumber(cfg.Wakes))
	fmt.Fprintf(&b, "  Buffers Pumped:       %s\n", FormatNumber(cfg.BuffersPumped))
	writePercentiles(&b, cfg.WakeLatency)
	b.WriteString("\n")

	// Source switches
	if cfg.Switches > 0 || cfg.EOS > 0 || cfg.Restarts > 0 {
		section(&b, "Source Switches")
		fmt.Fprintf(&b, "  End of Stream:        %d\n", cfg.EOS)
		fmt.Fprintf(&b, "  Switches:             %d\n", cfg.Switches)
		if cfg.SwitchFailures > 0 {
			fmt.Fprintf(&b, "  Failed Switches:      %d\n", cfg.SwitchFailures)
		}
		if cfg.Restarts > 0 {
			fmt.Fprintf(&b, "  Error Restarts:       %d\n", cfg.Restarts)
		}
		writePercentiles(&b, cfg.SwitchLatency)
		b.WriteString("\n")
	}

	// Engine errors
	if len(cfg.EngineErrors) > 0 {
		section(&b, "Engine Errors")
		for _, stage := range sortedKeys(cfg.EngineErrors) {
			fmt.Fprintf(&b, "  %-20s  %d\n", stage+":", cfg.EngineErrors[stage])
		}
		b.WriteString("\n")
	}

	// Exit reasons
	if len(cfg.ExitReasons) > 0 {
		section(&b, "Session Exits")
		for _, reason := range sortedKeys(cfg.ExitReasons) {
			fmt.Fprintf(&b, "  %-12s %-9s %d\n", reason, exitReasonLabel(reason), cfg.ExitReasons[reason])
		}
		b.WriteString("\n")
	}

	// Metrics endpoint
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}

	b.WriteString(ruleHeavy)

	return b.String()
}

func section(b *strings.Builder, title string) {
	b.WriteString(ruleLight)
	pad := max((79-len(title))/2, 0)
	b.WriteString(strings.Repeat(" ", pad) + title + "\n")
	b.WriteString(ruleLight + "\n")
}

func writePercentiles(b *strings.Builder, p Percentiles) {
	if p.Count == 0 {
		return
	}
	fmt.Fprintf(b, "  P50 (median):         %s\n", FormatMs(p.P50))
	fmt.Fprintf(b, "  P95:                  %s\n", FormatMs(p.P95))
	fmt.Fprintf(b, "  P99:                  %s\n", FormatMs(p.P99))
	fmt.Fprintf(b, "  Max:                  %s\n", FormatMs(p.Max))
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// exitReasonLabel returns a human-readable label for exit reasons.
func exitReasonLabel(reason string) string {
	switch reason {
	case "eos":
		return "(clean)"
	case "terminated":
		return "(stopped)"
	case "error":
		return "(error)"
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

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		// Sub-millisecond, show microseconds
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

// FormatRate formats a rate with appropriate precision.
func FormatRate(rate float64) string {
	if rate >= 1000 {
		return fmt.Sprintf("%.1fK/s", rate/1000)
	}
	if rate >= 1 {
		return fmt.Sprintf("%.1f/s", rate)
	}
	return fmt.Sprintf("%.2f/s", rate)
}
