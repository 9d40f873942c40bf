// Package orchestrator wires the player together: it runs preflight
// checks, builds the playlist and engine, serves metrics, supervises
// sessions, and prints the exit summary.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/randomizedcoder/go-chain-player/internal/config"
	"github.com/randomizedcoder/go-chain-player/internal/display"
	"github.com/randomizedcoder/go-chain-player/internal/engine"
	"github.com/randomizedcoder/go-chain-player/internal/engine/soft"
	"github.com/randomizedcoder/go-chain-player/internal/logging"
	"github.com/randomizedcoder/go-chain-player/internal/metrics"
	"github.com/randomizedcoder/go-chain-player/internal/player"
	"github.com/randomizedcoder/go-chain-player/internal/playlist"
	"github.com/randomizedcoder/go-chain-player/internal/preflight"
	"github.com/randomizedcoder/go-chain-player/internal/stats"
	"github.com/randomizedcoder/go-chain-player/internal/supervisor"
	"github.com/randomizedcoder/go-chain-player/internal/timeseries"
	"github.com/randomizedcoder/go-chain-player/internal/tui"
)

// statsInterval is how often engine counters are sampled.
const statsInterval = 500 * time.Millisecond

// shutdownTimeout bounds the metrics server shutdown.
const shutdownTimeout = 10 * time.Second

// ErrPreflight is returned when a preflight check fails.
var ErrPreflight = errors.New("preflight checks failed (use --skip-preflight to override)")

// statsEngine is an engine that reports playback counters.
type statsEngine interface {
	Stats() soft.Stats
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithFs sets the filesystem sources and playlists are read from.
func WithFs(fs afero.Fs) Option { return func(o *Orchestrator) { o.fs = fs } }

// WithOutput sets where preflight results and the exit summary go.
func WithOutput(w io.Writer) Option { return func(o *Orchestrator) { o.out = w } }

// WithEngine replaces the software engine.
func WithEngine(e engine.Engine) Option { return func(o *Orchestrator) { o.engine = e } }

// WithDisplay replaces the blank display manager.
func WithDisplay(d display.Manager) Option { return func(o *Orchestrator) { o.display = d } }

// WithEventLog feeds the dashboard's recent events.
func WithEventLog(l *logging.EventLog) Option { return func(o *Orchestrator) { o.events = l } }

// WithVersion sets the version reported in metrics.
func WithVersion(v string) Option { return func(o *Orchestrator) { o.version = v } }

// WithoutSignals stops Run from handling SIGINT and SIGTERM.
func WithoutSignals() Option { return func(o *Orchestrator) { o.noSignals = true } }

// Orchestrator coordinates all components for one player run.
type Orchestrator struct {
	config *config.Config
	logger *slog.Logger

	fs        afero.Fs
	out       io.Writer
	engine    engine.Engine
	display   display.Manager
	events    *logging.EventLog
	version   string
	noSignals bool

	registry      *prometheus.Registry
	metrics       *metrics.Collector
	metricsServer *metrics.Server
	playback      *stats.Playback
	frameRate     *timeseries.RateTracker
	readRate      *timeseries.RateTracker

	playlist   *playlist.Controller
	supervisor *supervisor.Supervisor
	strategy   player.Strategy

	// Mirrors of worker-owned state, written from session callbacks.
	state    atomic.Pointer[string]
	source   atomic.Pointer[string]
	index    atomic.Int64
	length   atomic.Int64
	played   atomic.Int64
	playing  atomic.Bool
	lastExit atomic.Pointer[string]
	lastErr  atomic.Pointer[error]

	startTime time.Time
}

// New creates a new Orchestrator with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		config:    cfg,
		logger:    logger,
		fs:        afero.NewOsFs(),
		out:       os.Stdout,
		version:   "dev",
		registry:  prometheus.NewRegistry(),
		playback:  stats.NewPlayback(),
		frameRate: timeseries.NewRateTracker(),
		readRate:  timeseries.NewRateTracker(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.display == nil {
		o.display = display.NewBlank(display.Size{}, logger)
	}
	if o.engine == nil {
		o.engine = soft.New(soft.Options{
			Fs:            o.fs,
			BufferNum:     cfg.BufferNum,
			BufferSize:    cfg.BufferSize,
			FrameSize:     cfg.FrameSize,
			FrameInterval: cfg.FrameInterval,
			Logger:        logger,
		})
	}
	o.metrics = metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Version:  o.version,
		Strategy: cfg.Strategy,
		Layer:    cfg.Layer,
	}, o.registry)
	storeString(&o.state, player.StateIdle.String())
	return o
}

// Run plays the configured sources. It blocks until playback finishes, the
// dashboard is closed, a signal arrives or ctx is cancelled. A session that
// exits with an error (after any restarts) is returned as an error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startTime = time.Now()

	if !o.config.SkipPreflight {
		result := preflight.RunAll(o.fs, preflight.Options{
			Sources:         o.config.Sources,
			PlaylistFile:    o.config.PlaylistFile,
			Layer:           o.config.Layer,
			BackgroundLayer: o.config.BackgroundLayer,
		})
		preflight.PrintResults(o.out, result)
		if !result.Passed {
			return fmt.Errorf("%w: %s", ErrPreflight, strings.Join(result.Failed(), ", "))
		}
	}

	if err := o.setup(); err != nil {
		return err
	}

	if o.config.MetricsAddr != "" {
		o.metricsServer = metrics.NewServer(o.config.MetricsAddr, o.registry, o.playing.Load, o.logger)
		if err := o.metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	// The background goes up before the renderer is built and comes down
	// after the last session is torn down.
	background, err := o.display.Acquire(o.config.BackgroundLayer)
	if err != nil {
		o.shutdownMetrics()
		return fmt.Errorf("display: %w", err)
	}

	reason, playErr := o.play(ctx)

	if err := o.display.Release(background); err != nil {
		o.logger.Warn("display_release_failed", "error", err)
	}
	o.shutdownMetrics()
	o.pollEngine()
	o.printExitSummary(reason, playErr)

	if reason == player.ExitError {
		return fmt.Errorf("playback failed: %w", playErr)
	}
	return nil
}

// setup builds the playlist and the supervisor.
func (o *Orchestrator) setup() error {
	sources := o.config.Sources
	if o.config.PlaylistFile != "" {
		var err error
		if sources, err = playlist.LoadFile(o.fs, o.config.PlaylistFile); err != nil {
			return err
		}
	}

	pl, err := playlist.New(sources, o.config.Loop, o.config.LoopAll, o.logger)
	if err != nil {
		return fmt.Errorf("playlist: %w", err)
	}
	o.playlist = pl
	storeString(&o.source, pl.Current())
	o.index.Store(int64(pl.Index()))
	o.length.Store(int64(pl.Len()))
	o.played.Store(int64(pl.Played()))
	o.metrics.SetPlaylist(pl.Index(), pl.Len())

	strategy, err := player.ParseStrategy(o.config.Strategy)
	if err != nil {
		return err
	}
	o.strategy = strategy

	o.supervisor = supervisor.New(supervisor.Config{
		Engine:   o.engine,
		Playlist: pl,
		Session: player.Options{
			Rotation: o.config.Rotation,
			Layer:    o.config.Layer,
			Strategy: strategy,
			Logger:   o.logger,
			Callbacks: player.Callbacks{
				OnStateChange: o.onStateChange,
				OnWake:        o.onWake,
				OnReconfigure: o.onReconfigure,
				OnEvent:       o.onEvent,
			},
		},
		Backoff: supervisor.NewBackoff(time.Now().UnixNano(), supervisor.BackoffConfig{
			Initial:    o.config.BackoffInitial,
			Max:        o.config.BackoffMax,
			Multiplier: o.config.BackoffMultiply,
			JitterPct:  0.2,
		}),
		Logger:      o.logger,
		MaxRestarts: o.config.RestartOnError,
		Callbacks: supervisor.Callbacks{
			OnStart:   o.onStart,
			OnExit:    o.onExit,
			OnRestart: o.onRestart,
		},
	})
	return nil
}

// play runs the supervisor alongside the dashboard, the playlist watcher,
// the stats poller and the signal handler.
func (o *Orchestrator) play(ctx context.Context) (player.ExitReason, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	var program *tea.Program
	if o.config.TUIEnabled {
		program = tea.NewProgram(tui.New(tui.Config{
			Strategy:    o.strategy.String(),
			MetricsAddr: o.metricsAddrForDisplay(),
			Layer:       o.config.Layer,
			Rotation:    o.config.Rotation,
			Source:      o,
		}), tea.WithAltScreen())
	}

	var (
		reason  player.ExitReason
		playErr error
	)
	g.Go(func() error {
		defer cancel()
		defer tui.SendQuit(program)
		reason, playErr = o.supervisor.Run(gctx)
		return nil
	})

	if program != nil {
		g.Go(func() error {
			_, err := program.Run()
			// Closing the dashboard stops playback.
			o.supervisor.Stop()
			if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("dashboard: %w", err)
			}
			return nil
		})
	}

	if o.config.WatchPlaylist {
		w := playlist.NewWatcher(o.fs, o.config.PlaylistFile, o.playlist, o.logger)
		w.OnReload = func([]string) { o.metrics.PlaylistReloaded() }
		g.Go(func() error { return w.Run(gctx) })
	}

	g.Go(func() error {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				o.pollEngine()
			}
		}
	})

	if !o.noSignals {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		defer signal.Stop(sigCh)
		g.Go(func() error {
			select {
			case sig := <-sigCh:
				o.logger.Info("received_signal", "signal", sig.String())
				o.supervisor.Stop()
			case <-gctx.Done():
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("player_component_failed", "error", err)
		if playErr == nil && reason != player.ExitError {
			return player.ExitError, err
		}
	}
	return reason, playErr
}

// pollEngine samples the engine counters into metrics and rate trackers.
func (o *Orchestrator) pollEngine() {
	se, ok := o.engine.(statsEngine)
	if !ok {
		return
	}
	st := se.Stats()
	o.metrics.RecordEngine(metrics.EngineStatsUpdate{
		BytesRead:      int64(st.BytesRead),
		FramesDecoded:  int64(st.FramesDecoded),
		FramesRendered: int64(st.FramesRendered),
		FramesDropped:  int64(st.FramesDropped),
		Resets:         int64(st.Resets),
	})
	o.frameRate.Observe(int64(st.FramesRendered))
	o.readRate.Observe(int64(st.BytesRead))
}

func (o *Orchestrator) shutdownMetrics() {
	if o.metricsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := o.metricsServer.Shutdown(ctx); err != nil {
		o.logger.Warn("metrics_server_shutdown_error", "error", err)
	}
}

func (o *Orchestrator) metricsAddrForDisplay() string {
	if o.metricsServer != nil {
		return o.metricsServer.Addr()
	}
	return o.config.MetricsAddr
}

// =============================================================================
// Callback handlers
// =============================================================================

func (o *Orchestrator) onStateChange(_, newState player.State) {
	storeString(&o.state, newState.String())
	o.metrics.SetState(newState.String())
}

func (o *Orchestrator) onWake(latency time.Duration, pumped int) {
	o.metrics.RecordWake(latency, pumped)
	o.playback.ObserveWake(latency)
}

// onReconfigure runs on the worker, which owns the playlist.
func (o *Orchestrator) onReconfigure(source string, strategy player.Strategy, d time.Duration, err error) {
	o.metrics.RecordSwitch(strategy.String(), d, err)
	o.playback.ObserveSwitch(d, err)
	if err == nil {
		storeString(&o.source, source)
	}
	o.index.Store(int64(o.playlist.Index()))
	o.length.Store(int64(o.playlist.Len()))
	o.played.Store(int64(o.playlist.Played()))
	o.metrics.SetPlaylist(o.playlist.Index(), o.playlist.Len())
}

func (o *Orchestrator) onEvent(ev engine.Event) {
	switch ev.Type {
	case engine.EventEOS:
		o.metrics.RecordEOS()
	case engine.EventError:
		o.metrics.RecordEngineError(stageLabel(ev.Source))
	}
}

func (o *Orchestrator) onStart(s *player.Session) {
	o.playing.Store(true)
	storeString(&o.source, s.Source())
	if o.config.Verbose {
		o.logger.Debug("session_playing", "session_id", s.ID(), "source", s.Source())
	}
}

func (o *Orchestrator) onExit(reason player.ExitReason, err error, uptime time.Duration) {
	o.playing.Store(false)
	o.metrics.RecordExit(reason.String())
	storeString(&o.lastExit, reason.String())
	if err != nil {
		o.lastErr.Store(&err)
	}
	o.logger.Debug("session_finished", "reason", reason.String(), "uptime", uptime.String())
}

func (o *Orchestrator) onRestart(attempt int, delay time.Duration) {
	o.metrics.RecordRestart()
	if o.config.Verbose {
		o.logger.Debug("session_restart_scheduled", "attempt", attempt, "delay", delay.String())
	}
}

// stageLabel turns a component name such as "decoder.3" into its stage.
func stageLabel(component string) string {
	stage, _, _ := strings.Cut(component, ".")
	if stage == "" {
		return "unknown"
	}
	return stage
}

func storeString(p *atomic.Pointer[string], v string) {
	p.Store(&v)
}

func loadString(p *atomic.Pointer[string]) string {
	if v := p.Load(); v != nil {
		return *v
	}
	return ""
}

// =============================================================================
// Dashboard and summary
// =============================================================================

// Snapshot implements tui.SnapshotSource.
func (o *Orchestrator) Snapshot() tui.Snapshot {
	summary := o.metrics.GenerateSummary()
	frames := o.frameRate.Rates()
	bytes := o.readRate.Rates()

	snap := tui.Snapshot{
		State:          loadString(&o.state),
		Source:         loadString(&o.source),
		ExitReason:     loadString(&o.lastExit),
		Index:          int(o.index.Load()),
		Length:         int(o.length.Load()),
		Played:         int(o.played.Load()),
		Loop:           o.config.Loop,
		Wakes:          summary.Wakes,
		Pumped:         summary.BuffersPumped,
		Switches:       summary.Switches,
		Wake:           o.playback.Wake.Snapshot(),
		Switch:         o.playback.Switch.Snapshot(),
		FramesRendered: summary.Engine.FramesRendered,
		BytesRead:      summary.Engine.BytesRead,
		FPS:            frames.Avg1s,
		ReadRate:       bytes.Avg1s,
	}
	if err := o.lastErr.Load(); err != nil {
		snap.Err = *err
	}
	if o.events != nil {
		snap.Events = o.events.Recent(8)
	}
	return snap
}

// printExitSummary prints a summary of the run.
func (o *Orchestrator) printExitSummary(reason player.ExitReason, err error) {
	summary := o.metrics.GenerateSummary()

	var warnings, errs int
	if o.events != nil {
		counts := o.events.CountByLevel()
		warnings, errs = counts[slog.LevelWarn], counts[slog.LevelError]
	}

	fmt.Fprint(o.out, stats.FormatExitSummary(stats.SummaryConfig{
		Duration:       time.Since(o.startTime),
		Source:         loadString(&o.source),
		Played:         int(o.played.Load()),
		Strategy:       o.strategy.String(),
		ExitReason:     reason.String(),
		Err:            err,
		MetricsAddr:    o.metricsAddrForDisplay(),
		LogWarnings:    warnings,
		LogErrors:      errs,
		Wakes:          summary.Wakes,
		BuffersPumped:  summary.BuffersPumped,
		Switches:       summary.Switches,
		SwitchFailures: summary.SwitchFailures,
		EOS:            summary.EOS,
		Restarts:       summary.Restarts,
		BytesRead:      summary.Engine.BytesRead,
		FramesDecoded:  summary.Engine.FramesDecoded,
		FramesRendered: summary.Engine.FramesRendered,
		FramesDropped:  summary.Engine.FramesDropped,
		DecoderResets:  summary.Engine.Resets,
		ExitReasons:    summary.ExitReasons,
		EngineErrors:   summary.EngineErrors,
		WakeLatency:    o.playback.Wake.Snapshot(),
		SwitchLatency:  o.playback.Switch.Snapshot(),
	}))
}

// Metrics returns the metrics collector for external access.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}

// Registry returns the registry the collector is registered with.
func (o *Orchestrator) Registry() *prometheus.Registry {
	return o.registry
}
