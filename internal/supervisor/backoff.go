package supervisor

import (
	"math"
	"math/rand"
	"time"

	"github.com/randomizedcoder/go-chain-player/internal/player"
)

// BackoffConfig holds the configuration for exponential backoff.
type BackoffConfig struct {
	Initial    time.Duration // Initial backoff delay (default: 250ms)
	Max        time.Duration // Maximum backoff delay (default: 5s)
	Multiplier float64       // Multiplier for each attempt (default: 1.7)
	JitterPct  float64       // Jitter as a percentage of delay (default: 0.2 = ±10%)
}

// DefaultBackoffConfig returns sensible defaults for backoff.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    250 * time.Millisecond,
		Max:        5 * time.Second,
		Multiplier: 1.7,
		JitterPct:  0.2,
	}
}

// Backoff calculates exponential backoff delays with jitter.
type Backoff struct {
	config   BackoffConfig
	attempts int
	rng      *rand.Rand
}

// NewBackoff creates a Backoff whose jitter sequence is fixed by seed.
func NewBackoff(seed int64, cfg BackoffConfig) *Backoff {
	return &Backoff{
		config: cfg,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Next returns the next backoff delay and increments the attempt counter.
func (b *Backoff) Next() time.Duration {
	delay := b.Calculate()
	b.attempts++
	return delay
}

// Calculate returns the current backoff delay without incrementing attempts.
func (b *Backoff) Calculate() time.Duration {
	// initial * multiplier^attempts, capped
	delay := float64(b.config.Initial) * math.Pow(b.config.Multiplier, float64(b.attempts))
	delay = min(delay, float64(b.config.Max))

	// ±(JitterPct/2) of the delay
	if b.config.JitterPct > 0 {
		jitterRange := delay * b.config.JitterPct
		delay += jitterRange*b.rng.Float64() - jitterRange/2
	}

	return time.Duration(max(delay, 0))
}

// Reset resets the attempt counter to zero.
func (b *Backoff) Reset() {
	b.attempts = 0
}

// Attempts returns the current attempt count.
func (b *Backoff) Attempts() int {
	return b.attempts
}

// BackoffResetThreshold is the minimum uptime before backoff is reset.
// A session that played this long is considered healthy and its failure
// starts the backoff sequence over.
const BackoffResetThreshold = 30 * time.Second

// ShouldReset determines if backoff should be reset based on how long the
// session played and why it ended.
func ShouldReset(uptime time.Duration, reason player.ExitReason) bool {
	if uptime >= BackoffResetThreshold {
		return true
	}
	return reason != player.ExitError
}
