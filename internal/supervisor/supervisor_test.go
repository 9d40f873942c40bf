package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randomizedcoder/go-chain-player/internal/engine"
	"github.com/randomizedcoder/go-chain-player/internal/engine/soft"
	"github.com/randomizedcoder/go-chain-player/internal/pipeline"
	"github.com/randomizedcoder/go-chain-player/internal/player"
	"github.com/randomizedcoder/go-chain-player/internal/playlist"
)

const waitFor = 5 * time.Second

// =============================================================================
// Test Helpers
// =============================================================================

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(t *testing.T, interval time.Duration, files map[string]int) *soft.Engine {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, size := range files {
		require.NoError(t, afero.WriteFile(fs, name, make([]byte, size), 0o644))
	}
	return soft.New(soft.Options{
		Fs:            fs,
		BufferNum:     2,
		BufferSize:    8_000,
		FrameSize:     4_000,
		FrameInterval: interval,
		Logger:        newTestLogger(),
	})
}

func newPlaylist(t *testing.T, sources ...string) *playlist.Controller {
	t.Helper()
	pl, err := playlist.New(sources, 0, false, newTestLogger())
	require.NoError(t, err)
	return pl
}

func fastBackoff() *Backoff {
	return NewBackoff(1, BackoffConfig{Initial: time.Millisecond, Max: 5 * time.Millisecond, Multiplier: 2})
}

type result struct {
	reason player.ExitReason
	err    error
}

// runAsync runs the supervisor and returns a channel with its result.
func runAsync(ctx context.Context, s *Supervisor) <-chan result {
	ch := make(chan result, 1)
	go func() {
		reason, err := s.Run(ctx)
		ch <- result{reason, err}
	}()
	return ch
}

func await(t *testing.T, ch <-chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(waitFor):
		t.Fatal("supervisor did not finish")
		return result{}
	}
}

func liveRenderer(eng *soft.Engine) *soft.Component {
	for _, c := range eng.Live() {
		if c.Kind() == engine.StageRenderer {
			return c
		}
	}
	return nil
}

// =============================================================================
// Tests: Playback
// =============================================================================

func TestSupervisor_PlaysPlaylistToEnd(t *testing.T) {
	eng := newEngine(t, 0, map[string]int{"a.h264": 20_000, "b.h264": 12_000})
	pl := newPlaylist(t, "a.h264", "b.h264")

	var starts atomic.Int32
	var states []State
	var mu sync.Mutex
	s := New(Config{
		Engine:   eng,
		Playlist: pl,
		Backoff:  fastBackoff(),
		Logger:   newTestLogger(),
		Callbacks: Callbacks{
			OnStart: func(*player.Session) { starts.Add(1) },
			OnStateChange: func(_, newState State) {
				mu.Lock()
				states = append(states, newState)
				mu.Unlock()
			},
		},
	})

	r := await(t, runAsync(context.Background(), s))
	require.NoError(t, r.err)
	assert.Equal(t, player.ExitEndOfStream, r.reason)
	assert.Equal(t, 2, pl.Played())
	assert.Equal(t, int32(1), starts.Load(), "EOS switches stay in one session")
	assert.Zero(t, s.Restarts())
	assert.Nil(t, s.Current())
	assert.Empty(t, eng.Live(), "session must be torn down")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateStarting, StateRunning, StateStopped}, states)
}

func TestSupervisor_BuildFailureNoRestart(t *testing.T) {
	eng := newEngine(t, 0, nil)
	s := New(Config{Engine: eng, Playlist: newPlaylist(t, "missing.h264"), Logger: newTestLogger()})

	r := await(t, runAsync(context.Background(), s))
	assert.Equal(t, player.ExitError, r.reason)

	var be *pipeline.BuildError
	require.ErrorAs(t, r.err, &be)
	assert.ErrorIs(t, r.err, engine.ErrSourceUnreadable)
	assert.Zero(t, s.Restarts())
	assert.Equal(t, StateStopped, s.State())
}

func TestSupervisor_RestartsUpToMax(t *testing.T) {
	eng := newEngine(t, 0, nil)

	var exits, restarts atomic.Int32
	s := New(Config{
		Engine:      eng,
		Playlist:    newPlaylist(t, "missing.h264"),
		Backoff:     fastBackoff(),
		Logger:      newTestLogger(),
		MaxRestarts: 3,
		Callbacks: Callbacks{
			OnExit:    func(player.ExitReason, error, time.Duration) { exits.Add(1) },
			OnRestart: func(int, time.Duration) { restarts.Add(1) },
		},
	})

	r := await(t, runAsync(context.Background(), s))
	assert.Equal(t, player.ExitError, r.reason)
	assert.Error(t, r.err)
	assert.Equal(t, 3, s.Restarts())
	assert.Equal(t, int32(3), restarts.Load())
	assert.Equal(t, int32(4), exits.Load())
}

func TestSupervisor_RestartAfterEngineError(t *testing.T) {
	eng := newEngine(t, 5*time.Millisecond, map[string]int{"a.h264": 80_000})

	var first atomic.Bool
	first.Store(true)
	var reasons []player.ExitReason
	var mu sync.Mutex
	s := New(Config{
		Engine:      eng,
		Playlist:    newPlaylist(t, "a.h264"),
		Backoff:     fastBackoff(),
		Logger:      newTestLogger(),
		MaxRestarts: 1,
		Callbacks: Callbacks{
			OnStart: func(*player.Session) {
				if first.CompareAndSwap(true, false) {
					liveRenderer(eng).Inject(engine.Event{Type: engine.EventError, Err: errors.New("display lost")})
				}
			},
			OnExit: func(reason player.ExitReason, _ error, _ time.Duration) {
				mu.Lock()
				reasons = append(reasons, reason)
				mu.Unlock()
			},
		},
	})

	r := await(t, runAsync(context.Background(), s))
	require.NoError(t, r.err)
	assert.Equal(t, player.ExitEndOfStream, r.reason)
	assert.Equal(t, 1, s.Restarts())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []player.ExitReason{player.ExitError, player.ExitEndOfStream}, reasons)
}

// =============================================================================
// Tests: Stop
// =============================================================================

func TestSupervisor_ContextCancelStops(t *testing.T) {
	eng := newEngine(t, 20*time.Millisecond, map[string]int{"a.h264": 4_000_000})

	started := make(chan struct{})
	s := New(Config{
		Engine:   eng,
		Playlist: newPlaylist(t, "a.h264"),
		Logger:   newTestLogger(),
		Callbacks: Callbacks{
			OnStart: func(*player.Session) { close(started) },
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	ch := runAsync(ctx, s)

	select {
	case <-started:
	case <-time.After(waitFor):
		t.Fatal("session never started")
	}
	require.NotNil(t, s.Current())
	cancel()

	r := await(t, ch)
	require.NoError(t, r.err)
	assert.Equal(t, player.ExitTerminated, r.reason)
	assert.Empty(t, eng.Live())
}

func TestSupervisor_StopDuringBackoff(t *testing.T) {
	eng := newEngine(t, 0, nil)

	inBackoff := make(chan struct{})
	var once sync.Once
	s := New(Config{
		Engine:      eng,
		Playlist:    newPlaylist(t, "missing.h264"),
		Backoff:     NewBackoff(1, BackoffConfig{Initial: time.Hour, Max: time.Hour, Multiplier: 1}),
		Logger:      newTestLogger(),
		MaxRestarts: 5,
		Callbacks: Callbacks{
			OnStateChange: func(_, newState State) {
				if newState == StateBackoff {
					once.Do(func() { close(inBackoff) })
				}
			},
		},
	})

	ch := runAsync(context.Background(), s)
	select {
	case <-inBackoff:
	case <-time.After(waitFor):
		t.Fatal("never entered backoff")
	}
	s.Stop()

	r := await(t, ch)
	assert.Equal(t, player.ExitTerminated, r.reason)
	assert.Equal(t, 1, s.Restarts())
}

func TestSupervisor_StopBeforeRun(t *testing.T) {
	eng := newEngine(t, 0, map[string]int{"a.h264": 4_000})
	s := New(Config{Engine: eng, Playlist: newPlaylist(t, "a.h264"), Logger: newTestLogger()})
	s.Stop()
	s.Stop()

	r := await(t, runAsync(context.Background(), s))
	assert.Equal(t, player.ExitTerminated, r.reason)
	assert.Zero(t, eng.Created(), "no session should be built")
}
