package playlist

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sequence calls Next n times and returns what was requested, with "STOP"
// marking the end of playback.
func sequence(c *Controller, n int) []string {
	var out []string
	for range n {
		src, ok := c.Next()
		if !ok {
			out = append(out, "STOP")
			break
		}
		out = append(out, src)
	}
	return out
}

// =============================================================================
// Next
// =============================================================================

func TestController_Next(t *testing.T) {
	tests := []struct {
		name    string
		sources []string
		repeat  int
		loopAll bool
		calls   int
		want    []string
	}{
		{
			name:    "single item no loop stops",
			sources: []string{"a"},
			calls:   3,
			want:    []string{"STOP"},
		},
		{
			name:    "advance then stop",
			sources: []string{"a", "b", "c"},
			calls:   5,
			want:    []string{"b", "c", "STOP"},
		},
		{
			name:    "repeat forever",
			sources: []string{"a", "b"},
			repeat:  RepeatForever,
			calls:   4,
			want:    []string{"a", "a", "a", "a"},
		},
		{
			name:    "repeat twice then advance",
			sources: []string{"a", "b"},
			repeat:  2,
			calls:   7,
			want:    []string{"a", "b", "b", "STOP"},
		},
		{
			name:    "repeat once plays each item once",
			sources: []string{"a", "b"},
			repeat:  1,
			calls:   3,
			want:    []string{"b", "STOP"},
		},
		{
			name:    "loop all wraps to first",
			sources: []string{"a", "b"},
			loopAll: true,
			calls:   5,
			want:    []string{"b", "a", "b", "a", "b"},
		},
		{
			name:    "loop all with repeat resets counter",
			sources: []string{"a", "b"},
			repeat:  2,
			loopAll: true,
			calls:   6,
			want:    []string{"a", "b", "b", "a", "a", "b"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.sources, tt.repeat, tt.loopAll, newTestLogger())
			require.NoError(t, err)
			assert.Equal(t, tt.sources[0], c.Current())
			assert.Equal(t, tt.want, sequence(c, tt.calls))
		})
	}
}

func TestController_RepeatCountIsExact(t *testing.T) {
	for n := 1; n <= 5; n++ {
		c, err := New([]string{"a", "b"}, n, false, newTestLogger())
		require.NoError(t, err)

		plays := 1 // the first play needs no EOS decision
		for {
			src, ok := c.Next()
			require.True(t, ok)
			if src != "a" {
				break
			}
			plays++
		}
		assert.Equal(t, n, plays, "repeat %d", n)
		assert.Equal(t, 1, c.Index())
	}
}

// Two plays of A, then B; B also plays twice before the list ends.
func TestController_RepeatTwiceThenAdvance(t *testing.T) {
	c, err := New([]string{"A", "B"}, 2, false, newTestLogger())
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, sequence(c, 2))
	assert.Equal(t, 1, c.Index())
	assert.Equal(t, []string{"B", "STOP"}, sequence(c, 5))
	assert.Equal(t, 4, c.Played())
}

func TestController_Played(t *testing.T) {
	c, err := New([]string{"a", "b"}, 3, false, newTestLogger())
	require.NoError(t, err)
	sequence(c, 10)
	assert.Equal(t, 6, c.Played())
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(nil, 0, false, nil)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = New([]string{"a"}, -2, false, nil)
	assert.Error(t, err)
}

func TestController_OnEOS(t *testing.T) {
	c, err := New([]string{"a", "b"}, 0, false, newTestLogger())
	require.NoError(t, err)

	d := c.OnEOS(nil)
	assert.False(t, d.Stops())
	assert.Equal(t, "b", d.Source())

	d = c.OnEOS(nil)
	assert.True(t, d.Stops())
}

// =============================================================================
// Replace
// =============================================================================

func TestController_ReplaceAppliesAtNextEOS(t *testing.T) {
	c, err := New([]string{"a", "b"}, RepeatForever, false, newTestLogger())
	require.NoError(t, err)

	require.NoError(t, c.Replace([]string{"x", "y"}))
	assert.Equal(t, "a", c.Current(), "nothing changes before the boundary")

	src, ok := c.Next()
	require.True(t, ok)
	assert.Equal(t, "x", src)
	assert.Equal(t, 2, c.Len())

	src, _ = c.Next()
	assert.Equal(t, "x", src, "repeat policy carries over")

	assert.ErrorIs(t, c.Replace(nil), ErrEmpty)
}

// =============================================================================
// File loading
// =============================================================================

func TestLoadFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := "# intro\n  a.h264  \n\nb.h264\n#c.h264\n"
	require.NoError(t, afero.WriteFile(fs, "list.txt", []byte(content), 0o644))

	got, err := LoadFile(fs, "list.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.h264", "b.h264"}, got)
}

func TestLoadFile_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "empty.txt", []byte("# nothing\n\n"), 0o644))

	_, err := LoadFile(fs, "missing.txt")
	assert.Error(t, err)

	_, err = LoadFile(fs, "empty.txt")
	assert.ErrorIs(t, err, ErrEmpty)
}

// =============================================================================
// Watcher
// =============================================================================

func TestWatcher_Reload(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "list.txt", []byte("n1\nn2\n"), 0o644))
	c, err := New([]string{"a"}, 0, false, newTestLogger())
	require.NoError(t, err)

	w := NewWatcher(fs, "list.txt", c, newTestLogger())
	var reloaded []string
	w.OnReload = func(s []string) { reloaded = s }
	w.Reload()

	assert.Equal(t, []string{"n1", "n2"}, reloaded)
	src, ok := c.Next()
	require.True(t, ok)
	assert.Equal(t, "n1", src)
}

func TestWatcher_ReloadKeepsListOnError(t *testing.T) {
	c, err := New([]string{"a", "b"}, 0, false, newTestLogger())
	require.NoError(t, err)

	w := NewWatcher(afero.NewMemMapFs(), "missing.txt", c, newTestLogger())
	w.Reload()

	src, _ := c.Next()
	assert.Equal(t, "b", src)
}

func TestWatcher_RunFollowsFileChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "list.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\n"), 0o644))

	c, err := New([]string{"a"}, 0, false, newTestLogger())
	require.NoError(t, err)
	w := NewWatcher(afero.NewOsFs(), path, c, newTestLogger())
	reloaded := make(chan []string, 4)
	w.OnReload = func(s []string) { reloaded <- s }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	// Keep writing until the watcher is registered and picks it up.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case got := <-reloaded:
			assert.Equal(t, []string{"x", "y"}, got)
			cancel()
			require.NoError(t, <-errc)
			return
		case <-tick.C:
			require.NoError(t, os.WriteFile(path, []byte("x\ny\n"), 0o644))
		case <-deadline:
			t.Fatal("watcher never reloaded")
		}
	}
}
