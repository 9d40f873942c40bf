// Package display manages the layers the player draws on.
//
// The player acquires a blank background layer before the renderer is built
// and releases it after the session is torn down. Layers are claimed
// exclusively: a second Acquire of the same layer fails until the first is
// released.
package display

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// DefaultBackgroundLayer sits below the renderer's layer.
const DefaultBackgroundLayer = 64

var (
	ErrLayerInUse = errors.New("display layer in use")
	ErrNotHeld    = errors.New("surface not held")
)

// Surface is a claimed display layer.
type Surface interface {
	Layer() int
}

// Manager hands out display surfaces.
type Manager interface {
	Acquire(layer int) (Surface, error)
	Release(s Surface) error
}

// Size is the screen size surfaces are created with.
type Size struct {
	Width  int
	Height int
}

// Blank is a software Manager whose surfaces are opaque black rectangles
// covering the whole screen.
type Blank struct {
	size   Size
	logger *slog.Logger

	mu     sync.Mutex
	layers map[int]*blankSurface
}

// NewBlank returns a manager for a screen of the given size.
func NewBlank(size Size, logger *slog.Logger) *Blank {
	if logger == nil {
		logger = slog.Default()
	}
	return &Blank{size: size, logger: logger, layers: make(map[int]*blankSurface)}
}

type blankSurface struct {
	layer int
	size  Size
}

func (s *blankSurface) Layer() int { return s.layer }

// Acquire claims layer.
func (b *Blank) Acquire(layer int) (Surface, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.layers[layer]; ok {
		return nil, fmt.Errorf("acquire layer %d: %w", layer, ErrLayerInUse)
	}
	s := &blankSurface{layer: layer, size: b.size}
	b.layers[layer] = s
	b.logger.Debug("display_layer_acquired", "layer", layer,
		"width", b.size.Width, "height", b.size.Height)
	return s, nil
}

// Release frees the surface's layer. Releasing twice is an error.
func (b *Blank) Release(s Surface) error {
	if s == nil {
		return ErrNotHeld
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	held, ok := b.layers[s.Layer()]
	if !ok || Surface(held) != s {
		return fmt.Errorf("release layer %d: %w", s.Layer(), ErrNotHeld)
	}
	delete(b.layers, s.Layer())
	b.logger.Debug("display_layer_released", "layer", s.Layer())
	return nil
}

// Layers returns the held layers in ascending order.
func (b *Blank) Layers() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]int, 0, len(b.layers))
	for l := range b.layers {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}
