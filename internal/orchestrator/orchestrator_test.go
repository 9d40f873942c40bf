package orchestrator

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randomizedcoder/go-chain-player/internal/config"
	"github.com/randomizedcoder/go-chain-player/internal/display"
	"github.com/randomizedcoder/go-chain-player/internal/engine/soft"
	"github.com/randomizedcoder/go-chain-player/internal/logging"
)

const waitFor = 5 * time.Second

// =============================================================================
// Test Helpers
// =============================================================================

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(sources ...string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Sources = sources
	cfg.BufferNum = 2
	cfg.BufferSize = 8_000
	cfg.FrameSize = 4_000
	cfg.FrameInterval = 0
	return cfg
}

func memFs(t *testing.T, files map[string]int) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, size := range files {
		require.NoError(t, afero.WriteFile(fs, name, make([]byte, size), 0o644))
	}
	return fs
}

func newOrchestrator(cfg *config.Config, fs afero.Fs, out io.Writer, opts ...Option) *Orchestrator {
	opts = append([]Option{WithFs(fs), WithOutput(out), WithoutSignals(), WithVersion("test")}, opts...)
	return New(cfg, newTestLogger(), opts...)
}

// runWithTimeout runs o and fails the test if it does not return in time.
func runWithTimeout(t *testing.T, ctx context.Context, o *Orchestrator) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()
	select {
	case err := <-done:
		return err
	case <-time.After(waitFor):
		t.Fatal("orchestrator did not finish")
		return nil
	}
}

// =============================================================================
// Tests: Playback
// =============================================================================

func TestRun_PlaysPlaylist(t *testing.T) {
	fs := memFs(t, map[string]int{"/media/a.h264": 20_000, "/media/b.h264": 12_000})
	var out bytes.Buffer
	o := newOrchestrator(testConfig("/media/a.h264", "/media/b.h264"), fs, &out)

	require.NoError(t, runWithTimeout(t, context.Background(), o))

	s := o.Metrics().GenerateSummary()
	assert.Equal(t, int64(2), s.EOS)
	assert.Equal(t, int64(1), s.Switches)
	assert.Equal(t, map[string]int64{"eos": 1}, s.ExitReasons)
	assert.Equal(t, int64(32_000), s.Engine.BytesRead)
	assert.Equal(t, int64(8), s.Engine.FramesRendered)

	text := out.String()
	assert.Contains(t, text, "Preflight checks:")
	assert.Contains(t, text, "chain-player Exit Summary")
	assert.Contains(t, text, "Items Played:           2")
	assert.Contains(t, text, "Last Source:            /media/b.h264")
	assert.Contains(t, text, "Exit Reason:            eos")
	assert.NotContains(t, text, "Metrics endpoint")

	snap := o.Snapshot()
	assert.Equal(t, "terminated", snap.State)
	assert.Equal(t, 1, snap.Index)
	assert.Equal(t, 2, snap.Length)
	assert.Equal(t, 2, snap.Played)
	assert.Equal(t, "eos", snap.ExitReason)
	assert.NoError(t, snap.Err)
}

func TestRun_LoopRepeatsItem(t *testing.T) {
	fs := memFs(t, map[string]int{"/media/a.h264": 8_000})
	cfg := testConfig("/media/a.h264")
	cfg.Loop = 2
	cfg.Strategy = "seamless"
	o := newOrchestrator(cfg, fs, io.Discard)

	require.NoError(t, runWithTimeout(t, context.Background(), o))

	s := o.Metrics().GenerateSummary()
	assert.Equal(t, int64(2), s.EOS)
	assert.Equal(t, int64(1), s.Switches)
	assert.Equal(t, 2, o.Snapshot().Played)
}

func TestRun_PlaylistFile(t *testing.T) {
	fs := memFs(t, map[string]int{"/media/a.h264": 4_000, "/media/b.h264": 4_000})
	require.NoError(t, afero.WriteFile(fs, "/etc/list.txt", []byte("# two clips\n/media/a.h264\n/media/b.h264\n"), 0o644))
	cfg := testConfig()
	cfg.PlaylistFile = "/etc/list.txt"
	o := newOrchestrator(cfg, fs, io.Discard)

	require.NoError(t, runWithTimeout(t, context.Background(), o))
	assert.Equal(t, 2, o.Snapshot().Played)
}

func TestRun_CancelTerminates(t *testing.T) {
	fs := memFs(t, map[string]int{"/media/long.h264": 4_000_000})
	cfg := testConfig("/media/long.h264")
	cfg.FrameInterval = 20 * time.Millisecond
	var out bytes.Buffer
	o := newOrchestrator(cfg, fs, &out)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer cancel()
		deadline := time.Now().Add(waitFor)
		for !o.playing.Load() && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}()

	require.NoError(t, runWithTimeout(t, ctx, o))
	assert.Equal(t, map[string]int64{"terminated": 1}, o.Metrics().GenerateSummary().ExitReasons)
	assert.Contains(t, out.String(), "Exit Reason:            terminated")
}

// =============================================================================
// Tests: Failures
// =============================================================================

func TestRun_PreflightFails(t *testing.T) {
	var out bytes.Buffer
	o := newOrchestrator(testConfig("/media/missing.h264"), afero.NewMemMapFs(), &out)

	err := runWithTimeout(t, context.Background(), o)
	require.ErrorIs(t, err, ErrPreflight)
	assert.Contains(t, err.Error(), "sources")
	assert.Contains(t, out.String(), "Fix:")
	assert.NotContains(t, out.String(), "Exit Summary")
}

func TestRun_BuildFailureIsRuntimeError(t *testing.T) {
	cfg := testConfig("/media/missing.h264")
	cfg.SkipPreflight = true
	var out bytes.Buffer
	o := newOrchestrator(cfg, afero.NewMemMapFs(), &out)

	err := runWithTimeout(t, context.Background(), o)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "playback failed")
	assert.Contains(t, out.String(), "Exit Reason:            error")
	assert.Equal(t, map[string]int64{"error": 1}, o.Metrics().GenerateSummary().ExitReasons)
}

func TestRun_RestartOnError(t *testing.T) {
	cfg := testConfig("/media/missing.h264")
	cfg.SkipPreflight = true
	cfg.RestartOnError = 2
	cfg.BackoffInitial = time.Millisecond
	cfg.BackoffMax = 2 * time.Millisecond
	o := newOrchestrator(cfg, afero.NewMemMapFs(), io.Discard)

	require.Error(t, runWithTimeout(t, context.Background(), o))
	s := o.Metrics().GenerateSummary()
	assert.Equal(t, int64(2), s.Restarts)
	assert.Equal(t, map[string]int64{"error": 3}, s.ExitReasons)
}

func TestRun_BackgroundLayerBusy(t *testing.T) {
	fs := memFs(t, map[string]int{"/media/a.h264": 4_000})
	cfg := testConfig("/media/a.h264")
	blank := display.NewBlank(display.Size{Width: 1920, Height: 1080}, newTestLogger())
	_, err := blank.Acquire(cfg.BackgroundLayer)
	require.NoError(t, err)

	o := newOrchestrator(cfg, fs, io.Discard, WithDisplay(blank))
	err = runWithTimeout(t, context.Background(), o)
	require.ErrorIs(t, err, display.ErrLayerInUse)
}

func TestRun_ReleasesBackground(t *testing.T) {
	fs := memFs(t, map[string]int{"/media/a.h264": 4_000})
	blank := display.NewBlank(display.Size{}, newTestLogger())
	o := newOrchestrator(testConfig("/media/a.h264"), fs, io.Discard, WithDisplay(blank))

	require.NoError(t, runWithTimeout(t, context.Background(), o))
	assert.Empty(t, blank.Layers())
}

func TestRun_MetricsServerBadAddr(t *testing.T) {
	fs := memFs(t, map[string]int{"/media/a.h264": 4_000})
	cfg := testConfig("/media/a.h264")
	cfg.MetricsAddr = "256.0.0.1:bad"
	o := newOrchestrator(cfg, fs, io.Discard)

	err := runWithTimeout(t, context.Background(), o)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics server")
}

func TestRun_MetricsServer(t *testing.T) {
	fs := memFs(t, map[string]int{"/media/a.h264": 4_000})
	cfg := testConfig("/media/a.h264")
	cfg.MetricsAddr = "127.0.0.1:0"
	var out bytes.Buffer
	o := newOrchestrator(cfg, fs, &out)

	require.NoError(t, runWithTimeout(t, context.Background(), o))
	assert.Contains(t, out.String(), "Metrics endpoint was: http://127.0.0.1:")
}

// =============================================================================
// Tests: Snapshot
// =============================================================================

func TestSnapshot_BeforeRun(t *testing.T) {
	o := newOrchestrator(testConfig("/media/a.h264"), afero.NewMemMapFs(), io.Discard)
	snap := o.Snapshot()
	assert.Equal(t, "idle", snap.State)
	assert.Zero(t, snap.Length)
	assert.Nil(t, snap.Events)
}

func TestSnapshot_Events(t *testing.T) {
	events := logging.NewEventLog(10, slog.LevelInfo, nil)
	logger := slog.New(events)
	fs := memFs(t, map[string]int{"/media/a.h264": 4_000})

	o := New(testConfig("/media/a.h264"), logger, WithFs(fs), WithOutput(io.Discard), WithoutSignals(), WithEventLog(events))
	require.NoError(t, runWithTimeout(t, context.Background(), o))

	snap := o.Snapshot()
	require.NotEmpty(t, snap.Events)
	assert.LessOrEqual(t, len(snap.Events), 8)

	var messages []string
	for _, e := range events.Recent(logging.DefaultEventLogSize) {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "session_started")
	assert.Contains(t, messages, "session_exit")
}

func TestStageLabel(t *testing.T) {
	tests := map[string]string{
		"decoder.3":  "decoder",
		"renderer.1": "renderer",
		"reader":     "reader",
		"":           "unknown",
	}
	for in, want := range tests {
		assert.Equal(t, want, stageLabel(in), in)
	}
}

// =============================================================================
// Tests: Options
// =============================================================================

func TestNew_Defaults(t *testing.T) {
	o := New(testConfig("a"), newTestLogger())
	assert.NotNil(t, o.fs)
	assert.NotNil(t, o.display)
	_, isSoft := o.engine.(*soft.Engine)
	assert.True(t, isSoft)
	assert.Equal(t, "dev", o.version)
}

func TestNew_WithEngine(t *testing.T) {
	eng := soft.New(soft.DefaultOptions())
	o := New(testConfig("a"), newTestLogger(), WithEngine(eng))
	assert.Same(t, eng, o.engine)
}
