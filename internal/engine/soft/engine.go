// Package soft is a software implementation of engine.Engine.
//
// Every component runs its own goroutine fed by a task queue. The reader
// streams a file from an afero filesystem in fixed-size chunks, the decoder
// slices the byte stream into frames of FrameSize bytes, the scheduler holds
// frames until its clock is active and optionally paces them, and the
// renderer counts frames and raises EOS when the stream ends. Frames between
// tunnelled ports never leave the engine.
package soft

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/randomizedcoder/go-chain-player/internal/engine"
)

// Options configures the engine.
type Options struct {
	// Fs is where readers open their sources.
	Fs afero.Fs
	// BufferNum and BufferSize are the reader output requirements.
	BufferNum  int
	BufferSize int
	// FrameSize is how many input bytes make one decoded frame.
	FrameSize int
	// FrameInterval paces the scheduler. Zero forwards frames immediately.
	FrameInterval time.Duration
	Logger        *slog.Logger
}

// DefaultOptions returns options reading from the OS filesystem.
func DefaultOptions() Options {
	return Options{
		Fs:         afero.NewOsFs(),
		BufferNum:  3,
		BufferSize: 64 * 1024,
		FrameSize:  16 * 1024,
	}
}

// Stats are per-component counters.
type Stats struct {
	BytesRead      uint64
	FramesDecoded  uint64
	FramesRendered uint64
	Resets         uint64
	FramesDropped  uint64
	EOSRaised      uint64
}

func (s *Stats) add(o Stats) {
	s.BytesRead += o.BytesRead
	s.FramesDecoded += o.FramesDecoded
	s.FramesRendered += o.FramesRendered
	s.Resets += o.Resets
	s.FramesDropped += o.FramesDropped
	s.EOSRaised += o.EOSRaised
}

// Engine creates software components.
type Engine struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	seq     int
	live    []*Component
	retired Stats
	created int
}

// New returns an engine. Zero option fields take their defaults.
func New(opts Options) *Engine {
	def := DefaultOptions()
	if opts.Fs == nil {
		opts.Fs = def.Fs
	}
	if opts.BufferNum <= 0 {
		opts.BufferNum = def.BufferNum
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = def.BufferSize
	}
	if opts.FrameSize <= 0 {
		opts.FrameSize = def.FrameSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{opts: opts, logger: opts.Logger}
}

// NewComponent implements engine.Engine.
func (e *Engine) NewComponent(kind engine.StageKind) (engine.Component, error) {
	switch kind {
	case engine.StageReader, engine.StageDecoder, engine.StageScheduler, engine.StageRenderer:
	default:
		return nil, fmt.Errorf("%w: %s", engine.ErrUnsupported, kind)
	}

	e.mu.Lock()
	e.seq++
	name := fmt.Sprintf("%s.%d", kind, e.seq)
	e.mu.Unlock()

	c := newComponent(e, kind, name)

	e.mu.Lock()
	e.live = append(e.live, c)
	e.created++
	e.mu.Unlock()
	return c, nil
}

// Live returns the components that have not been destroyed.
func (e *Engine) Live() []*Component {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.live)
}

// Created is the number of components ever created.
func (e *Engine) Created() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.created
}

// Stats sums the counters of every component, live or destroyed.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	total := e.retired
	live := slices.Clone(e.live)
	e.mu.Unlock()
	for _, c := range live {
		total.add(c.Stats())
	}
	return total
}

func (e *Engine) retire(c *Component) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.retired.add(c.Stats())
	e.live = slices.DeleteFunc(e.live, func(x *Component) bool { return x == c })
}

// taskQueue is an unbounded FIFO of work for one component goroutine.
type taskQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *taskQueue) push(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, fn)
	q.cond.Signal()
	return true
}

func (q *taskQueue) pop() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.tasks) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.tasks) == 0 {
		return nil, false
	}
	fn := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	return fn, true
}

func (q *taskQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.tasks = nil
	q.cond.Broadcast()
	q.mu.Unlock()
}
