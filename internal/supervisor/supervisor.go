package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/randomizedcoder/go-chain-player/internal/engine"
	"github.com/randomizedcoder/go-chain-player/internal/player"
	"github.com/randomizedcoder/go-chain-player/internal/playlist"
)

// Callbacks contains optional callback functions for supervisor events.
type Callbacks struct {
	// OnStateChange is called when the supervisor state changes.
	OnStateChange func(oldState, newState State)

	// OnStart is called after a session starts playing.
	OnStart func(s *player.Session)

	// OnExit is called after a session exits and is destroyed.
	OnExit func(reason player.ExitReason, err error, uptime time.Duration)

	// OnRestart is called before a restart attempt.
	OnRestart func(attempt int, delay time.Duration)
}

// Config holds configuration for creating a new Supervisor.
type Config struct {
	Engine   engine.Engine
	Playlist *playlist.Controller
	// Session is the template for every session. ID is assigned per session.
	Session   player.Options
	Backoff   *Backoff
	Logger    *slog.Logger
	Callbacks Callbacks
	// MaxRestarts is how many times a session that exits with an error is
	// replaced. 0 never restarts.
	MaxRestarts int
}

// Supervisor plays a playlist through one session at a time. A session that
// ends with an error is replaced by a fresh one for the same playlist item,
// up to MaxRestarts times.
type Supervisor struct {
	eng         engine.Engine
	playlist    *playlist.Controller
	opts        player.Options
	backoff     *Backoff
	logger      *slog.Logger
	callbacks   Callbacks
	maxRestarts int

	stateMu sync.RWMutex
	state   State

	mu       sync.Mutex
	current  *player.Session
	stopped  bool
	stopCh   chan struct{}
	restarts int
}

// New creates a new Supervisor with the given configuration.
func New(cfg Config) *Supervisor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Backoff == nil {
		cfg.Backoff = NewBackoff(time.Now().UnixNano(), DefaultBackoffConfig())
	}
	cfg.Session.ID = ""
	if cfg.Session.Logger == nil {
		cfg.Session.Logger = cfg.Logger
	}
	return &Supervisor{
		eng:         cfg.Engine,
		playlist:    cfg.Playlist,
		opts:        cfg.Session,
		backoff:     cfg.Backoff,
		logger:      cfg.Logger,
		callbacks:   cfg.Callbacks,
		maxRestarts: cfg.MaxRestarts,
		state:       StateCreated,
		stopCh:      make(chan struct{}),
	}
}

// Run plays until the playlist finishes, the session fails for good, Stop is
// called or ctx is cancelled. It returns the last session's exit reason and
// error.
func (s *Supervisor) Run(ctx context.Context) (player.ExitReason, error) {
	stop := context.AfterFunc(ctx, s.Stop)
	defer stop()
	defer s.setState(StateStopped)

	s.logger.Debug("supervisor_starting", "source", s.playlist.Current())

	for {
		if s.isStopped() {
			return player.ExitTerminated, nil
		}

		reason, uptime, err := s.runOnce()
		if s.callbacks.OnExit != nil {
			s.callbacks.OnExit(reason, err, uptime)
		}

		if reason != player.ExitError || s.isStopped() {
			return reason, err
		}

		s.mu.Lock()
		restarts := s.restarts
		s.mu.Unlock()
		if restarts >= s.maxRestarts {
			if s.maxRestarts > 0 {
				s.logger.Warn("max_restarts_reached", "restarts", restarts, "max", s.maxRestarts)
			}
			return reason, err
		}

		if ShouldReset(uptime, reason) {
			s.backoff.Reset()
		}
		delay := s.backoff.Next()

		s.mu.Lock()
		s.restarts++
		restarts = s.restarts
		s.mu.Unlock()

		if s.callbacks.OnRestart != nil {
			s.callbacks.OnRestart(restarts, delay)
		}
		s.logger.Info("session_restart_scheduled",
			"attempt", restarts,
			"delay", delay.String(),
			"source", s.playlist.Current(),
			"error", err,
		)

		s.setState(StateBackoff)
		timer := time.NewTimer(delay)
		select {
		case <-s.stopCh:
			timer.Stop()
			return player.ExitTerminated, nil
		case <-timer.C:
		}
	}
}

// runOnce plays the playlist's current item with a new session until the
// session exits.
func (s *Supervisor) runOnce() (reason player.ExitReason, uptime time.Duration, err error) {
	s.setState(StateStarting)

	source := s.playlist.Current()
	sess, err := player.New(s.eng, source, s.opts)
	if err != nil {
		s.logger.Error("session_build_failed", "source", source, "error", err)
		return player.ExitError, 0, err
	}
	sess.SetEOSCallback(s.playlist.OnEOS)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		_ = sess.Destroy()
		return player.ExitTerminated, 0, nil
	}
	s.current = sess
	s.mu.Unlock()

	started := time.Now()
	if err := sess.Start(); err != nil {
		s.release(sess)
		s.logger.Error("session_start_failed", "source", source, "error", err)
		return player.ExitError, 0, err
	}
	s.setState(StateRunning)
	if s.callbacks.OnStart != nil {
		s.callbacks.OnStart(sess)
	}

	sess.Join()
	uptime = time.Since(started)
	reason, err = sess.ExitReason(), sess.Err()
	s.release(sess)

	return reason, uptime, err
}

func (s *Supervisor) release(sess *player.Session) {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	if err := sess.Destroy(); err != nil {
		s.logger.Warn("session_destroy_failed", "session_id", sess.ID(), "error", err)
	}
}

// Stop asks the running session to exit and prevents restarts. It does not
// wait; Run returns once the session has gone.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.stopCh)
	}
	cur := s.current
	s.mu.Unlock()

	if cur != nil {
		cur.Stop()
	}
}

func (s *Supervisor) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Current returns the playing session, or nil between sessions.
func (s *Supervisor) Current() *player.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Supervisor) setState(newState State) {
	s.stateMu.Lock()
	oldState := s.state
	s.state = newState
	s.stateMu.Unlock()

	if oldState != newState && s.callbacks.OnStateChange != nil {
		s.callbacks.OnStateChange(oldState, newState)
	}
}

// Restarts returns how many sessions have been replaced after an error.
func (s *Supervisor) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}
