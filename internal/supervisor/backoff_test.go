package supervisor

import (
	"testing"
	"time"

	"github.com/randomizedcoder/go-chain-player/internal/player"
)

// =============================================================================
// Table-Driven Tests: DefaultBackoffConfig
// =============================================================================

func TestDefaultBackoffConfig(t *testing.T) {
	cfg := DefaultBackoffConfig()

	if cfg.Initial != 250*time.Millisecond {
		t.Errorf("Initial = %v, want 250ms", cfg.Initial)
	}
	if cfg.Max != 5*time.Second {
		t.Errorf("Max = %v, want 5s", cfg.Max)
	}
	if cfg.Multiplier != 1.7 {
		t.Errorf("Multiplier = %v, want 1.7", cfg.Multiplier)
	}
	if cfg.JitterPct != 0.2 {
		t.Errorf("JitterPct = %v, want 0.2", cfg.JitterPct)
	}
}

// =============================================================================
// Table-Driven Tests: Backoff.Calculate
// =============================================================================

func TestBackoff_Calculate_NoJitter(t *testing.T) {
	cfg := BackoffConfig{
		Initial:    100 * time.Millisecond,
		Max:        time.Second,
		Multiplier: 2.0,
	}

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second}, // capped
		{10, time.Second},
	}

	for _, tt := range tests {
		b := NewBackoff(0, cfg)
		for range tt.attempts {
			b.Next()
		}
		if got := b.Calculate(); got != tt.want {
			t.Errorf("Calculate() after %d attempts = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestBackoff_Next(t *testing.T) {
	b := NewBackoff(0, BackoffConfig{Initial: 10 * time.Millisecond, Max: time.Second, Multiplier: 3})

	want := []time.Duration{10 * time.Millisecond, 30 * time.Millisecond, 90 * time.Millisecond}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("Next() #%d = %v, want %v", i, got, w)
		}
	}
	if b.Attempts() != 3 {
		t.Errorf("Attempts() = %d, want 3", b.Attempts())
	}
}

func TestBackoff_Reset(t *testing.T) {
	b := NewBackoff(0, BackoffConfig{Initial: 10 * time.Millisecond, Max: time.Second, Multiplier: 2})
	b.Next()
	b.Next()
	b.Reset()

	if b.Attempts() != 0 {
		t.Errorf("Attempts() after Reset = %d, want 0", b.Attempts())
	}
	if got := b.Next(); got != 10*time.Millisecond {
		t.Errorf("Next() after Reset = %v, want 10ms", got)
	}
}

// =============================================================================
// Tests: Jitter
// =============================================================================

func TestBackoff_JitterBounds(t *testing.T) {
	cfg := BackoffConfig{Initial: time.Second, Max: time.Minute, Multiplier: 1, JitterPct: 0.2}
	b := NewBackoff(12345, cfg)

	for range 100 {
		d := b.Next()
		if d < 900*time.Millisecond || d > 1100*time.Millisecond {
			t.Fatalf("jittered delay %v outside ±10%% of 1s", d)
		}
	}
}

func TestBackoff_DeterministicJitter(t *testing.T) {
	cfg := DefaultBackoffConfig()
	b1 := NewBackoff(42, cfg)
	b2 := NewBackoff(42, cfg)

	for i := range 5 {
		if d1, d2 := b1.Next(), b2.Next(); d1 != d2 {
			t.Errorf("attempt %d: %v != %v with the same seed", i, d1, d2)
		}
	}
}

func TestBackoff_ZeroInitial(t *testing.T) {
	b := NewBackoff(0, BackoffConfig{Max: time.Second, Multiplier: 2, JitterPct: 0.5})
	if got := b.Next(); got != 0 {
		t.Errorf("Next() = %v, want 0", got)
	}
}

func TestBackoff_VeryLargeAttempts(t *testing.T) {
	b := NewBackoff(0, BackoffConfig{Initial: time.Millisecond, Max: 5 * time.Second, Multiplier: 10})
	for range 1000 {
		b.Next()
	}
	if got := b.Calculate(); got != 5*time.Second {
		t.Errorf("Calculate() = %v, want capped 5s", got)
	}
}

// =============================================================================
// Table-Driven Tests: ShouldReset
// =============================================================================

func TestShouldReset(t *testing.T) {
	tests := []struct {
		name   string
		uptime time.Duration
		reason player.ExitReason
		want   bool
	}{
		{"quick_error", time.Second, player.ExitError, false},
		{"long_error", BackoffResetThreshold, player.ExitError, true},
		{"quick_eos", time.Second, player.ExitEndOfStream, true},
		{"terminated", 0, player.ExitTerminated, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldReset(tt.uptime, tt.reason); got != tt.want {
				t.Errorf("ShouldReset(%v, %s) = %v, want %v", tt.uptime, tt.reason, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Tests: State
// =============================================================================

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateCreated:  "created",
		StateStarting: "starting",
		StateRunning:  "running",
		StateBackoff:  "backoff",
		StateStopped:  "stopped",
		State(99):     "unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("State(%d).String() = %s, want %s", int(s), s.String(), want)
		}
	}
	if !StateBackoff.IsActive() || StateStopped.IsActive() {
		t.Error("IsActive mismatch")
	}
	if !StateStopped.IsTerminal() || StateRunning.IsTerminal() {
		t.Error("IsTerminal mismatch")
	}
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkBackoff_Next(b *testing.B) {
	backoff := NewBackoff(12345, DefaultBackoffConfig())
	for b.Loop() {
		backoff.Next()
		if backoff.Attempts() > 10 {
			backoff.Reset()
		}
	}
}
