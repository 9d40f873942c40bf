// Package stats tracks playback timing and formats the exit summary.
package stats

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"
)

// digestCompression keeps roughly 100 centroids (~10KB) per digest.
const digestCompression = 100

// Digest is a concurrency-safe streaming latency distribution.
type Digest struct {
	mu    sync.Mutex
	td    *tdigest.TDigest
	count int64
	max   time.Duration
}

// NewDigest returns an empty digest.
func NewDigest() *Digest {
	return &Digest{td: tdigest.NewWithCompression(digestCompression)}
}

// Add records one observation. Negative durations are ignored.
func (d *Digest) Add(v time.Duration) {
	if v < 0 {
		return
	}
	d.mu.Lock()
	d.td.Add(float64(v.Nanoseconds()), 1)
	d.count++
	d.max = max(d.max, v)
	d.mu.Unlock()
}

// Quantile returns the estimated q-quantile (0..1), or 0 with no data.
func (d *Digest) Quantile(q float64) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.count == 0 {
		return 0
	}
	return time.Duration(d.td.Quantile(q))
}

// Count returns how many observations were added.
func (d *Digest) Count() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// Max returns the largest observation.
func (d *Digest) Max() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.max
}

// Percentiles is a p50/p95/p99 snapshot of a digest.
type Percentiles struct {
	Count int64
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
	Max   time.Duration
}

// Snapshot returns the digest's current percentiles.
func (d *Digest) Snapshot() Percentiles {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.count == 0 {
		return Percentiles{}
	}
	return Percentiles{
		Count: d.count,
		P50:   time.Duration(d.td.Quantile(0.50)),
		P95:   time.Duration(d.td.Quantile(0.95)),
		P99:   time.Duration(d.td.Quantile(0.99)),
		Max:   d.max,
	}
}

// Playback collects timing distributions for one player run. Its methods
// match the session callbacks so it can be plugged in directly.
type Playback struct {
	Wake   *Digest // time spent handling one worker wake-up
	Switch *Digest // time taken by a source switch
}

// NewPlayback returns empty playback digests.
func NewPlayback() *Playback {
	return &Playback{Wake: NewDigest(), Switch: NewDigest()}
}

// ObserveWake records one worker wake-up.
func (p *Playback) ObserveWake(latency time.Duration) {
	p.Wake.Add(latency)
}

// ObserveSwitch records one source switch. Failed switches are not
// included in the distribution.
func (p *Playback) ObserveSwitch(d time.Duration, err error) {
	if err != nil {
		return
	}
	p.Switch.Add(d)
}
