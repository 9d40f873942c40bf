// Package timeseries computes rolling rates over a cumulative counter,
// such as frames rendered or bytes read by the engine.
//
// The tracker is fed absolute totals (engine stats are cumulative) and keeps
// a ring of periodic samples from which per-window rates are derived.
package timeseries

import (
	"sync"
	"time"
)

const (
	// ringBufferSize is the number of samples to retain (1 minute at 1 sample/sec)
	ringBufferSize = 60

	window1s  = 1 * time.Second
	window10s = 10 * time.Second
	window60s = 60 * time.Second
)

// Clock interface for testing with deterministic time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type sample struct {
	timestamp time.Time
	total     int64
}

// RateTracker derives per-second rates from a growing total.
//
// Usage:
//
//	frames := NewRateTracker()
//	// ... every second
//	frames.Observe(engine.Stats().FramesRendered)
//	fps := frames.Rates().Avg1s
type RateTracker struct {
	mu       sync.RWMutex
	samples  []sample
	writeIdx int // next write position once the ring is full
	last     int64

	startTime time.Time
	clock     Clock
}

// Rates contains computed rolling rates at a point in time.
type Rates struct {
	// Total is the last observed cumulative value
	Total int64

	// Rolling averages (units per second)
	Avg1s  float64
	Avg10s float64
	Avg60s float64

	// AvgOverall is the average since tracking started
	AvgOverall float64
}

// NewRateTracker creates a tracker with the real clock.
func NewRateTracker() *RateTracker {
	return NewRateTrackerWithClock(realClock{})
}

// NewRateTrackerWithClock creates a tracker with a custom clock for testing.
func NewRateTrackerWithClock(clock Clock) *RateTracker {
	now := clock.Now()
	t := &RateTracker{
		samples:   make([]sample, 0, ringBufferSize),
		startTime: now,
		clock:     clock,
	}
	t.samples = append(t.samples, sample{timestamp: now})
	return t
}

// Observe records the current cumulative total. A total lower than the
// previous one means the source restarted counting; the tracker resets.
func (t *RateTracker) Observe(total int64) {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if total < t.last {
		t.resetLocked(now)
		t.samples[0].total = total
		t.last = total
		return
	}
	t.last = total

	s := sample{timestamp: now, total: total}
	if len(t.samples) < ringBufferSize {
		t.samples = append(t.samples, s)
		return
	}
	t.samples[t.writeIdx] = s
	t.writeIdx = (t.writeIdx + 1) % ringBufferSize
}

// Rates computes the current rolling rates.
func (t *RateTracker) Rates() Rates {
	now := t.clock.Now()

	t.mu.RLock()
	defer t.mu.RUnlock()

	r := Rates{Total: t.last}
	if elapsed := now.Sub(t.startTime).Seconds(); elapsed > 0 {
		r.AvgOverall = float64(t.last) / elapsed
	}
	r.Avg1s = t.avgOverWindow(now, window1s)
	r.Avg10s = t.avgOverWindow(now, window10s)
	r.Avg60s = t.avgOverWindow(now, window60s)
	return r
}

// avgOverWindow returns the rate between the sample nearest to (but not
// after) now-window and the latest total. Must be called with mu held.
func (t *RateTracker) avgOverWindow(now time.Time, window time.Duration) float64 {
	target := now.Add(-window)

	var best *sample
	for i := range t.samples {
		s := &t.samples[i]
		if s.timestamp.After(target) {
			continue
		}
		if best == nil || s.timestamp.After(best.timestamp) {
			best = s
		}
	}
	if best == nil {
		best = t.oldestSample()
	}

	elapsed := now.Sub(best.timestamp).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(t.last-best.total) / elapsed
}

// oldestSample returns the oldest sample in the ring. Must be called with
// mu held.
func (t *RateTracker) oldestSample() *sample {
	if len(t.samples) < ringBufferSize {
		return &t.samples[0]
	}
	return &t.samples[t.writeIdx]
}

func (t *RateTracker) resetLocked(now time.Time) {
	t.samples = append(t.samples[:0], sample{timestamp: now})
	t.writeIdx = 0
	t.last = 0
	t.startTime = now
}

// Reset clears all data and restarts tracking.
func (t *RateTracker) Reset() {
	now := t.clock.Now()
	t.mu.Lock()
	t.resetLocked(now)
	t.mu.Unlock()
}

// SampleCount returns the number of samples in the ring buffer.
func (t *RateTracker) SampleCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.samples)
}
