// Package player drives a pipeline from a dedicated worker goroutine.
//
// Engine callbacks never touch the pipeline: they record what happened
// (error, end of stream, format change, buffer available) and post the
// session's readiness signal. The worker wakes once per post and checks, in
// order, for a stop request, a sticky error, pending format changes and end
// of stream; otherwise it pumps the manual connections. When a stream ends the EOS callback decides what
// plays next and the worker performs the switch.
package player

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/randomizedcoder/go-chain-player/internal/engine"
	"github.com/randomizedcoder/go-chain-player/internal/pipeline"
)

// Callbacks contains optional observers. They run on the worker goroutine
// except OnEvent, which runs on the engine goroutine that raised the event.
type Callbacks struct {
	// OnStateChange is called when the worker state changes.
	OnStateChange func(oldState, newState State)

	// OnWake is called after every wake that pumped.
	OnWake func(latency time.Duration, pumped int)

	// OnReconfigure is called after every source switch attempt.
	OnReconfigure func(source string, strategy Strategy, d time.Duration, err error)

	// OnEvent is called for every engine event. It must not block.
	OnEvent func(ev engine.Event)
}

// Options configures a session.
type Options struct {
	// Rotation in degrees.
	Rotation int
	// Layer is the renderer's display layer.
	Layer    int
	Strategy Strategy
	Logger   *slog.Logger
	// ID identifies the session in logs. A random one is used when empty.
	ID        string
	Callbacks Callbacks
}

// EOSFunc is called on the worker when the current stream ends.
type EOSFunc func(s *Session) Decision

// ExitFunc is called on the worker after the exit reason is recorded.
type ExitFunc func(s *Session, reason ExitReason)

// Session plays one source at a time through a pipeline.
type Session struct {
	id     string
	eng    engine.Engine
	opts   Options
	logger *slog.Logger
	signal *Signal

	// pipeline is owned by the worker once started.
	pipeline *pipeline.Pipeline
	// failed is the error of the last failed source switch.
	failed error
	source atomic.Pointer[string]

	statusMu sync.Mutex
	status   error
	// cause is the error behind the exit reason, guarded by statusMu.
	cause error

	eos       atomic.Bool
	terminate atomic.Bool

	// A SetNewSource call made while the EOS callback runs is recorded
	// here and performed by the worker after the callback returns.
	requestMu  sync.Mutex
	accepting  bool
	requested  string
	hasRequest bool

	formatMu sync.Mutex
	formats  []engine.Format

	cbMu   sync.Mutex
	onEOS  EOSFunc
	onExit ExitFunc

	started   atomic.Bool
	destroyed atomic.Bool
	state     atomic.Int32
	reason    atomic.Int32
	done      chan struct{}

	wakes    atomic.Uint64
	pumped   atomic.Uint64
	switches atomic.Uint64
}

// New builds the pipeline for uri. On failure everything that was built is
// torn down and the *pipeline.BuildError is returned.
func New(eng engine.Engine, uri string, opts Options) (*Session, error) {
	if opts.Layer == 0 {
		opts.Layer = pipeline.DefaultLayer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	s := &Session{
		id:     opts.ID,
		eng:    eng,
		opts:   opts,
		logger: opts.Logger.With("session_id", opts.ID),
		// One pending post so the first wake primes the reader.
		signal: NewSignal(1),
		done:   make(chan struct{}),
	}

	p, err := pipeline.Build(eng, uri, s.pipelineConfig(), s.hooks())
	if err != nil {
		p.Teardown()
		return nil, err
	}
	s.pipeline = p
	s.source.Store(&uri)
	s.logger.Info("session_created", "source", uri, "strategy", opts.Strategy.String())
	return s, nil
}

func (s *Session) pipelineConfig() pipeline.Config {
	return pipeline.Config{
		Rotation: s.opts.Rotation,
		Layer:    s.opts.Layer,
		Logger:   s.logger,
	}
}

func (s *Session) hooks() pipeline.Hooks {
	return pipeline.Hooks{
		OnEvent:  s.handleEvent,
		OnBuffer: s.signal.Post,
	}
}

// handleEvent runs on engine goroutines: record and post, nothing else.
func (s *Session) handleEvent(ev engine.Event) {
	switch ev.Type {
	case engine.EventError:
		s.setStatus(&EngineError{Stage: ev.Source, Err: ev.Err})
	case engine.EventEOS:
		s.eos.Store(true)
	case engine.EventFormatChanged:
		s.formatMu.Lock()
		s.formats = append(s.formats, ev.Format)
		s.formatMu.Unlock()
	}
	if cb := s.opts.Callbacks.OnEvent; cb != nil {
		cb(ev)
	}
	s.signal.Post()
}

// setStatus records the first engine error; later ones are dropped.
func (s *Session) setStatus(err error) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if s.status == nil {
		s.status = err
	}
}

func (s *Session) pipelineStatus() error {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

// SetEOSCallback installs the end-of-stream decision function. Without one
// the session exits with ExitEndOfStream at the first end of stream.
func (s *Session) SetEOSCallback(fn EOSFunc) {
	s.cbMu.Lock()
	s.onEOS = fn
	s.cbMu.Unlock()
}

// SetExitCallback installs the function called when the worker exits.
func (s *Session) SetExitCallback(fn ExitFunc) {
	s.cbMu.Lock()
	s.onExit = fn
	s.cbMu.Unlock()
}

func (s *Session) callbacks() (EOSFunc, ExitFunc) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	return s.onEOS, s.onExit
}

// Start activates the clock and launches the worker. A session starts at
// most once.
func (s *Session) Start() error {
	if s.destroyed.Load() {
		return ErrSessionDestroyed
	}
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if s.failed != nil {
		s.started.Store(false)
		return fmt.Errorf("start: %w", s.failed)
	}
	if err := s.pipeline.SetClockActive(true); err != nil {
		s.started.Store(false)
		return fmt.Errorf("start: activate clock: %w", err)
	}
	s.setState(StateRunning)
	s.logger.Info("session_started", "source", s.Source())
	go s.run()
	return nil
}

// Stop asks the worker to exit. It does not wait; use Join.
func (s *Session) Stop() {
	s.terminate.Store(true)
	s.signal.Post()
}

// Join waits for the worker to exit. It returns at once if the session was
// never started, and may be called any number of times.
func (s *Session) Join() {
	if !s.started.Load() {
		return
	}
	<-s.done
}

func (s *Session) finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Destroy tears down the pipeline. The worker must have exited.
func (s *Session) Destroy() error {
	if s.started.Load() && !s.finished() {
		return ErrSessionRunning
	}
	if !s.destroyed.CompareAndSwap(false, true) {
		return nil
	}
	s.pipeline.Teardown()
	s.pipeline = nil
	s.logger.Debug("session_destroyed")
	return nil
}

// SetNewSource switches to uri. Before Start the switch happens at once.
// While the EOS callback runs the request is recorded and the worker
// performs it when the callback returns Handled; a Continue decision
// replaces it, so at most one switch happens per end of stream. At any
// other time the worker owns the pipeline and ErrSessionRunning is
// returned.
func (s *Session) SetNewSource(uri string) error {
	if s.destroyed.Load() {
		return ErrSessionDestroyed
	}
	if s.recordRequest(uri) {
		return nil
	}
	if s.started.Load() {
		if s.finished() {
			return ErrSessionTerminated
		}
		return ErrSessionRunning
	}
	return s.reconfigure(uri)
}

func (s *Session) recordRequest(uri string) bool {
	s.requestMu.Lock()
	defer s.requestMu.Unlock()
	if !s.accepting {
		return false
	}
	s.requested, s.hasRequest = uri, true
	return true
}

// openRequests and closeRequests bracket the EOS callback.
func (s *Session) openRequests() {
	s.requestMu.Lock()
	s.accepting, s.requested, s.hasRequest = true, "", false
	s.requestMu.Unlock()
}

func (s *Session) closeRequests() (string, bool) {
	s.requestMu.Lock()
	defer s.requestMu.Unlock()
	s.accepting = false
	uri, ok := s.requested, s.hasRequest
	s.requested, s.hasRequest = "", false
	return uri, ok
}

func (s *Session) run() {
	defer close(s.done)

	reason, cause := s.loop()

	s.setState(StateDraining)
	s.pipeline.Disable()

	s.statusMu.Lock()
	s.cause = cause
	s.statusMu.Unlock()
	s.reason.Store(int32(reason))
	if cause != nil {
		s.logger.Warn("session_exit", "reason", reason.String(), "error", cause,
			"wakes", s.wakes.Load(), "switches", s.switches.Load())
	} else {
		s.logger.Info("session_exit", "reason", reason.String(),
			"wakes", s.wakes.Load(), "switches", s.switches.Load())
	}
	s.setState(StateTerminated)

	if _, onExit := s.callbacks(); onExit != nil {
		onExit(s, reason)
	}
}

func (s *Session) loop() (ExitReason, error) {
	for {
		s.signal.Wait()
		woke := time.Now()
		s.wakes.Add(1)

		if s.terminate.Load() {
			return ExitTerminated, nil
		}
		if err := s.pipelineStatus(); err != nil {
			return ExitError, err
		}
		if err := s.applyFormatChanges(); err != nil {
			return ExitError, err
		}
		if s.eos.Load() {
			if reason, exit, err := s.endOfStream(); exit {
				return reason, err
			}
			continue
		}

		n, err := s.pipeline.Pump()
		s.pumped.Add(uint64(n))
		if err != nil {
			s.logger.Warn("connection_pump_failed", "error", err)
			return ExitError, err
		}
		if cb := s.opts.Callbacks.OnWake; cb != nil {
			cb(time.Since(woke), n)
		}
	}
}

// endOfStream asks the EOS callback what to do. exit reports whether the
// worker should stop.
func (s *Session) endOfStream() (reason ExitReason, exit bool, err error) {
	s.logger.Info("end_of_stream", "source", s.Source())
	onEOS, _ := s.callbacks()
	if onEOS == nil {
		return ExitEndOfStream, true, nil
	}

	s.openRequests()
	d := onEOS(s)
	requested, ok := s.closeRequests()

	switch d.kind {
	case decideContinue:
		if ok && requested != d.source {
			s.logger.Debug("source_request_replaced", "requested", requested, "source", d.source)
		}
		if err := s.reconfigure(d.source); err != nil {
			return ExitError, true, err
		}
		return ExitUndefined, false, nil
	case decideHandled:
		if !ok {
			s.logger.Warn("eos_unhandled", "source", s.Source())
			return ExitEndOfStream, true, nil
		}
		if err := s.reconfigure(requested); err != nil {
			return ExitError, true, err
		}
		return ExitUndefined, false, nil
	default:
		return ExitEndOfStream, true, nil
	}
}

func (s *Session) applyFormatChanges() error {
	s.formatMu.Lock()
	formats := s.formats
	s.formats = nil
	s.formatMu.Unlock()

	for _, f := range formats {
		if err := s.pipeline.ApplyFormatChange(f); err != nil {
			return fmt.Errorf("apply format %s: %w", f, err)
		}
		s.logger.Debug("format_changed", "format", f.String())
	}
	return nil
}

// reconfigure switches the pipeline to uri using the session strategy.
func (s *Session) reconfigure(uri string) error {
	if s.State() == StateRunning {
		s.setState(StateReconfiguring)
		defer s.setState(StateRunning)
	}

	strategy := FullRebuild
	if s.opts.Strategy == SeamlessSeek && s.failed == nil && uri == s.Source() {
		strategy = SeamlessSeek
	}

	start := time.Now()
	var err error
	if strategy == SeamlessSeek {
		err = s.reseek()
	} else {
		err = s.rebuild(uri)
	}
	d := time.Since(start)

	s.failed = err
	if err != nil {
		s.logger.Warn("source_change_failed", "source", uri, "strategy", strategy.String(), "error", err)
	} else {
		s.switches.Add(1)
		s.source.Store(&uri)
		s.logger.Info("source_changed", "source", uri, "strategy", strategy.String(), "duration", d)
		// The new reader needs priming.
		s.signal.Post()
	}
	if cb := s.opts.Callbacks.OnReconfigure; cb != nil {
		cb(uri, strategy, d, err)
	}
	return err
}

func (s *Session) rebuild(uri string) error {
	if s.pipeline != nil {
		if err := s.pipeline.SetClockActive(false); err != nil {
			s.logger.Debug("clock_stop_failed", "error", err)
		}
	}
	s.pipeline.Teardown()

	s.formatMu.Lock()
	s.formats = nil
	s.formatMu.Unlock()

	p, err := pipeline.Build(s.eng, uri, s.pipelineConfig(), s.hooks())
	s.pipeline = p
	if err != nil {
		return err
	}
	s.eos.Store(false)
	if err := p.SetClockActive(true); err != nil {
		return fmt.Errorf("activate clock: %w", err)
	}
	return nil
}

func (s *Session) reseek() error {
	if err := s.pipeline.SetClockActive(false); err != nil {
		s.logger.Debug("clock_stop_failed", "error", err)
	}
	if err := s.pipeline.Reseek(); err != nil {
		return err
	}
	s.eos.Store(false)
	if err := s.pipeline.SetClockActive(true); err != nil {
		return fmt.Errorf("activate clock: %w", err)
	}
	return nil
}

func (s *Session) setState(newState State) {
	old := State(s.state.Swap(int32(newState)))
	if old == newState {
		return
	}
	s.logger.Debug("session_state", "from", old.String(), "to", newState.String())
	if cb := s.opts.Callbacks.OnStateChange; cb != nil {
		cb(old, newState)
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Source returns the source currently playing.
func (s *Session) Source() string {
	if p := s.source.Load(); p != nil {
		return *p
	}
	return ""
}

// State returns the worker state.
func (s *Session) State() State { return State(s.state.Load()) }

// ExitReason returns why the worker exited, or ExitUndefined while it runs.
func (s *Session) ExitReason() ExitReason { return ExitReason(s.reason.Load()) }

// Err returns the error behind an ExitError exit. It is set before the exit
// callback runs.
func (s *Session) Err() error {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.cause
}

// Pipeline returns the current pipeline. Only the worker, or the EOS
// callback running on it, may use it while the session runs.
func (s *Session) Pipeline() *pipeline.Pipeline { return s.pipeline }

// Wakes counts worker wakes.
func (s *Session) Wakes() uint64 { return s.wakes.Load() }

// Pumped counts buffers moved across manual connections.
func (s *Session) Pumped() uint64 { return s.pumped.Load() }

// Switches counts successful source switches.
func (s *Session) Switches() uint64 { return s.switches.Load() }
