// Package metrics provides Prometheus metrics for chain-player.
//
// Every Collector owns its metric set, so several players (or tests) can
// register into separate registries without sharing values.
package metrics

import (
	"maps"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chain_player"

// States lists the session states exported on the state gauge.
var States = []string{"idle", "running", "reconfiguring", "draining", "terminated"}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version  string
	Strategy string
	Layer    int
}

// EngineStatsUpdate is a cumulative snapshot of engine counters. It mirrors
// soft.Stats to keep this package free of engine imports.
type EngineStatsUpdate struct {
	BytesRead      int64
	FramesDecoded  int64
	FramesRendered int64
	FramesDropped  int64
	Resets         int64
}

// Collector manages all Prometheus metrics for one player.
type Collector struct {
	// --- Panel 1: Overview ---
	info          *prometheus.GaugeVec
	state         *prometheus.GaugeVec
	uptimeSeconds prometheus.GaugeFunc

	// --- Panel 2: Worker ---
	wakesTotal         prometheus.Counter
	wakeLatencySeconds prometheus.Histogram
	buffersPumpedTotal prometheus.Counter

	// --- Panel 3: Source switches ---
	switchesTotal       *prometheus.CounterVec
	switchSeconds       prometheus.Histogram
	eosTotal            prometheus.Counter
	playlistPosition    prometheus.Gauge
	playlistLength      prometheus.Gauge
	playlistReloadTotal prometheus.Counter

	// --- Panel 4: Errors and exits ---
	engineErrorsTotal *prometheus.CounterVec
	exitsTotal        *prometheus.CounterVec
	restartsTotal     prometheus.Counter

	// --- Panel 5: Engine ---
	bytesReadTotal      prometheus.Counter
	framesDecodedTotal  prometheus.Counter
	framesRenderedTotal prometheus.Counter
	framesDroppedTotal  prometheus.Counter
	decoderResetsTotal  prometheus.Counter

	startTime time.Time

	// Internal tracking for delta calculations and the summary
	mu           sync.Mutex
	prevEngine   EngineStatsUpdate
	wakes        int64
	pumped       int64
	switches     int64
	switchFails  int64
	eos          int64
	restarts     int64
	exitReasons  map[string]int64
	engineErrors map[string]int64
}

// NewCollector creates a collector registered with the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		startTime:    time.Now(),
		exitReasons:  make(map[string]int64),
		engineErrors: make(map[string]int64),
	}

	c.info = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "info",
		Help:      "Information about the player (value always 1)",
	}, []string{"version", "strategy"})
	c.state = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "session_state",
		Help:      "1 for the session's current state, 0 otherwise",
	}, []string{"state"})
	c.uptimeSeconds = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Seconds since the collector was created",
	}, func() float64 { return time.Since(c.startTime).Seconds() })

	c.wakesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "worker_wakes_total",
		Help:      "Worker loop wake-ups",
	})
	c.wakeLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "worker_wake_seconds",
		Help:      "Time spent handling one wake-up",
		Buckets: []float64{
			0.00001, 0.00005, 0.0001, 0.0005,
			0.001, 0.005, 0.01, 0.05,
			0.1, 0.5, 1.0,
		},
	})
	c.buffersPumpedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "buffers_pumped_total",
		Help:      "Buffers moved between the reader and the decoder by the worker",
	})

	c.switchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "source_switches_total",
		Help:      "Source switches by strategy and result",
	}, []string{"strategy", "result"})
	c.switchSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "source_switch_seconds",
		Help:      "Time taken to reconfigure the pipeline for a new source",
		Buckets: []float64{
			0.0001, 0.0005, 0.001, 0.005,
			0.01, 0.025, 0.05, 0.1,
			0.25, 0.5, 1.0,
		},
	})
	c.eosTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "eos_total",
		Help:      "End-of-stream notifications from the renderer",
	})
	c.playlistPosition = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "playlist_position",
		Help:      "Zero-based index of the item playing",
	})
	c.playlistLength = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "playlist_length",
		Help:      "Items in the active playlist",
	})
	c.playlistReloadTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "playlist_reloads_total",
		Help:      "Playlist file reloads",
	})

	c.engineErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "engine_errors_total",
		Help:      "Error events by reporting stage",
	}, []string{"stage"})
	c.exitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_exits_total",
		Help:      "Session exits by reason",
	}, []string{"reason"})
	c.restartsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_restarts_total",
		Help:      "Sessions rebuilt after an engine error",
	})

	c.bytesReadTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "engine_bytes_read_total",
		Help:      "Bytes read from sources",
	})
	c.framesDecodedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "engine_frames_decoded_total",
		Help:      "Frames produced by the decoder",
	})
	c.framesRenderedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "engine_frames_rendered_total",
		Help:      "Frames presented by the renderer",
	})
	c.framesDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "engine_frames_dropped_total",
		Help:      "Frames dropped by the scheduler",
	})
	c.decoderResetsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "engine_decoder_resets_total",
		Help:      "Decoder resets on discontinuity",
	})

	registry.MustRegister(
		// Panel 1: Overview
		c.info,
		c.state,
		c.uptimeSeconds,

		// Panel 2: Worker
		c.wakesTotal,
		c.wakeLatencySeconds,
		c.buffersPumpedTotal,

		// Panel 3: Source switches
		c.switchesTotal,
		c.switchSeconds,
		c.eosTotal,
		c.playlistPosition,
		c.playlistLength,
		c.playlistReloadTotal,

		// Panel 4: Errors and exits
		c.engineErrorsTotal,
		c.exitsTotal,
		c.restartsTotal,

		// Panel 5: Engine
		c.bytesReadTotal,
		c.framesDecodedTotal,
		c.framesRenderedTotal,
		c.framesDroppedTotal,
		c.decoderResetsTotal,
	)

	// Set initial values
	c.info.WithLabelValues(cfg.Version, cfg.Strategy).Set(1)
	c.SetState("idle")

	return c
}

// =============================================================================
// Event Recording Methods
// =============================================================================

// SetState marks state as current on the state gauge.
func (c *Collector) SetState(state string) {
	for _, s := range States {
		v := 0.0
		if s == state {
			v = 1
		}
		c.state.WithLabelValues(s).Set(v)
	}
}

// RecordWake records one worker wake-up.
func (c *Collector) RecordWake(latency time.Duration, pumped int) {
	c.wakesTotal.Inc()
	c.wakeLatencySeconds.Observe(latency.Seconds())
	c.buffersPumpedTotal.Add(float64(pumped))

	c.mu.Lock()
	c.wakes++
	c.pumped += int64(pumped)
	c.mu.Unlock()
}

// RecordSwitch records a source switch attempt.
func (c *Collector) RecordSwitch(strategy string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.switchesTotal.WithLabelValues(strategy, result).Inc()
	c.switchSeconds.Observe(d.Seconds())

	c.mu.Lock()
	c.switches++
	if err != nil {
		c.switchFails++
	}
	c.mu.Unlock()
}

// RecordEOS records an end-of-stream notification.
func (c *Collector) RecordEOS() {
	c.eosTotal.Inc()

	c.mu.Lock()
	c.eos++
	c.mu.Unlock()
}

// RecordEngineError records an error event raised by stage.
func (c *Collector) RecordEngineError(stage string) {
	c.engineErrorsTotal.WithLabelValues(stage).Inc()

	c.mu.Lock()
	c.engineErrors[stage]++
	c.mu.Unlock()
}

// RecordExit records why a session's worker stopped.
func (c *Collector) RecordExit(reason string) {
	c.exitsTotal.WithLabelValues(reason).Inc()

	c.mu.Lock()
	c.exitReasons[reason]++
	c.mu.Unlock()
}

// RecordRestart records a session rebuilt after an error exit.
func (c *Collector) RecordRestart() {
	c.restartsTotal.Inc()

	c.mu.Lock()
	c.restarts++
	c.mu.Unlock()
}

// SetPlaylist updates the playlist position gauges.
func (c *Collector) SetPlaylist(position, length int) {
	c.playlistPosition.Set(float64(position))
	c.playlistLength.Set(float64(length))
}

// PlaylistReloaded records a playlist file reload.
func (c *Collector) PlaylistReloaded() {
	c.playlistReloadTotal.Inc()
}

// RecordEngine folds a cumulative engine snapshot into the counters.
// Snapshots that go backwards (a new engine) are treated as a fresh start.
func (c *Collector) RecordEngine(s EngineStatsUpdate) {
	c.mu.Lock()
	prev := c.prevEngine
	c.prevEngine = s
	c.mu.Unlock()

	addDelta(c.bytesReadTotal, s.BytesRead, prev.BytesRead)
	addDelta(c.framesDecodedTotal, s.FramesDecoded, prev.FramesDecoded)
	addDelta(c.framesRenderedTotal, s.FramesRendered, prev.FramesRendered)
	addDelta(c.framesDroppedTotal, s.FramesDropped, prev.FramesDropped)
	addDelta(c.decoderResetsTotal, s.Resets, prev.Resets)
}

func addDelta(counter prometheus.Counter, cur, prev int64) {
	if cur < prev {
		prev = 0
	}
	if d := cur - prev; d > 0 {
		counter.Add(float64(d))
	}
}

// =============================================================================
// Summary Generation
// =============================================================================

// Summary holds the data for generating an exit summary.
type Summary struct {
	Duration       time.Duration
	Wakes          int64
	BuffersPumped  int64
	Switches       int64
	SwitchFailures int64
	EOS            int64
	Restarts       int64
	ExitReasons    map[string]int64
	EngineErrors   map[string]int64
	Engine         EngineStatsUpdate
}

// GenerateSummary creates a summary of the run.
func (c *Collector) GenerateSummary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	return &Summary{
		Duration:       time.Since(c.startTime),
		Wakes:          c.wakes,
		BuffersPumped:  c.pumped,
		Switches:       c.switches,
		SwitchFailures: c.switchFails,
		EOS:            c.eos,
		Restarts:       c.restarts,
		ExitReasons:    maps.Clone(c.exitReasons),
		EngineErrors:   maps.Clone(c.engineErrors),
		Engine:         c.prevEngine,
	}
}
