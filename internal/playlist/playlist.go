// Package playlist decides what plays after each end of stream.
package playlist

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/randomizedcoder/go-chain-player/internal/player"
)

// RepeatForever repeats the current item indefinitely.
const RepeatForever = -1

var ErrEmpty = errors.New("playlist is empty")

// Controller walks an ordered list of sources. Next is called from the EOS
// callback on the session worker; Replace may be called from any goroutine
// and takes effect at the next end of stream.
type Controller struct {
	logger *slog.Logger

	sources []string
	first   int
	index   int
	repeat  int
	// remaining plays of the current item, the one playing included.
	remaining int
	loopAll   bool
	played    int

	mu      sync.Mutex
	pending []string
}

// New returns a controller positioned on the first source. repeat is 0 for
// no repeat, RepeatForever, or the number of plays per item; 1 plays each
// item once, like 0.
func New(sources []string, repeat int, loopAll bool, logger *slog.Logger) (*Controller, error) {
	if len(sources) == 0 {
		return nil, ErrEmpty
	}
	if repeat < RepeatForever {
		return nil, fmt.Errorf("repeat %d: must be -1, 0 or positive", repeat)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		logger:    logger,
		sources:   slices.Clone(sources),
		repeat:    repeat,
		remaining: repeat,
		loopAll:   loopAll,
		played:    1,
	}, nil
}

// Current returns the source now playing.
func (c *Controller) Current() string { return c.sources[c.index] }

// Index returns the position of the current source.
func (c *Controller) Index() int { return c.index }

// Len returns the number of sources.
func (c *Controller) Len() int { return len(c.sources) }

// Played counts sources started, repeats included.
func (c *Controller) Played() int { return c.played }

// Next moves to the source that should follow an end of stream. It returns
// false when playback is over.
func (c *Controller) Next() (string, bool) {
	if c.applyPending() {
		c.played++
		return c.Current(), true
	}

	if c.repeat == RepeatForever {
		c.played++
		return c.Current(), true
	}
	if c.repeat > 0 {
		c.remaining--
	}
	if c.remaining > 0 {
		c.played++
		c.logger.Debug("playlist_repeat", "source", c.Current(), "remaining", c.remaining)
		return c.Current(), true
	}

	next := c.index + 1
	if next >= len(c.sources) {
		if !c.loopAll {
			c.logger.Debug("playlist_finished", "played", c.played)
			return "", false
		}
		next = c.first
		c.logger.Debug("playlist_wrapped")
	}
	c.index = next
	c.remaining = c.repeat
	c.played++
	return c.Current(), true
}

// OnEOS adapts Next to a session EOS callback.
func (c *Controller) OnEOS(*player.Session) player.Decision {
	src, ok := c.Next()
	if !ok {
		return player.Finish()
	}
	return player.Continue(src)
}

// Replace stages a new source list. It is applied at the next end of
// stream, which then starts the new list from its first item.
func (c *Controller) Replace(sources []string) error {
	if len(sources) == 0 {
		return ErrEmpty
	}
	c.mu.Lock()
	c.pending = slices.Clone(sources)
	c.mu.Unlock()
	return nil
}

func (c *Controller) applyPending() bool {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	if pending == nil {
		return false
	}
	c.sources = pending
	c.first = 0
	c.index = c.first
	c.remaining = c.repeat
	c.logger.Info("playlist_reloaded", "sources", len(pending))
	return true
}
