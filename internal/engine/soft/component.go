package soft

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/randomizedcoder/go-chain-player/internal/engine"
)

// frame is a decoded picture travelling through a tunnel.
type frame struct {
	seq  uint64
	size int
	eos  bool
}

// Component is a software processing stage.
type Component struct {
	eng    *Engine
	kind   engine.StageKind
	name   string
	logger *slog.Logger

	tasks *taskQueue
	done  chan struct{}

	mu        sync.Mutex
	enabled   bool
	destroyed bool
	region    engine.DisplayRegion

	control              *control
	input, output, clock *port

	bytesRead      atomic.Uint64
	framesDecoded  atomic.Uint64
	framesRendered atomic.Uint64
	resets         atomic.Uint64
	framesDropped  atomic.Uint64
	eosRaised      atomic.Uint64

	reader    readerState
	decoder   decoderState
	scheduler schedulerState
}

func newComponent(e *Engine, kind engine.StageKind, name string) *Component {
	c := &Component{
		eng:    e,
		kind:   kind,
		name:   name,
		logger: e.logger.With("component", name),
		tasks:  newTaskQueue(),
		done:   make(chan struct{}),
	}
	c.control = &control{comp: c, name: name + ".control"}

	fmtOut := engine.Format{Encoding: "raw"}
	switch kind {
	case engine.StageReader:
		c.output = newPort(c, "output", dirOutput, engine.Format{Encoding: "stream"},
			engine.BufferRequirements{Num: e.opts.BufferNum, Size: e.opts.BufferSize})
	case engine.StageDecoder:
		c.input = newPort(c, "input", dirInput, engine.Format{},
			engine.BufferRequirements{Num: 1, Size: 1})
		c.output = newPort(c, "output", dirOutput, fmtOut, engine.BufferRequirements{})
	case engine.StageScheduler:
		c.input = newPort(c, "input", dirInput, engine.Format{}, engine.BufferRequirements{})
		c.output = newPort(c, "output", dirOutput, fmtOut, engine.BufferRequirements{})
		c.clock = newPort(c, "clock", dirClock, engine.Format{}, engine.BufferRequirements{})
	case engine.StageRenderer:
		c.input = newPort(c, "input", dirInput, engine.Format{}, engine.BufferRequirements{})
	}

	go c.run()
	return c
}

func (c *Component) run() {
	defer close(c.done)
	for {
		fn, ok := c.tasks.pop()
		if !ok {
			return
		}
		fn()
	}
}

func (c *Component) Name() string                   { return c.name }
func (c *Component) Kind() engine.StageKind         { return c.kind }
func (c *Component) Control() engine.ControlChannel { return c.control }

func (c *Component) Input() engine.Port  { return portOrNil(c.input) }
func (c *Component) Output() engine.Port { return portOrNil(c.output) }
func (c *Component) Clock() engine.Port  { return portOrNil(c.clock) }

func portOrNil(p *port) engine.Port {
	if p == nil {
		return nil
	}
	return p
}

// Enable starts processing. Buffers and frames that arrived while the
// component was disabled are picked up again.
func (c *Component) Enable() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return engine.ErrDestroyed
	}
	c.enabled = true
	c.mu.Unlock()
	c.tasks.push(c.resume)
	return nil
}

func (c *Component) Disable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return engine.ErrDestroyed
	}
	c.enabled = false
	return nil
}

func (c *Component) IsEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Destroy stops the component goroutine and hands back every buffer still
// held by its ports.
func (c *Component) Destroy() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	c.enabled = false
	c.mu.Unlock()

	for _, p := range []*port{c.input, c.output, c.clock} {
		if p != nil {
			p.shutdown()
		}
	}
	_ = c.control.Disable()
	c.tasks.close()
	<-c.done

	if c.kind == engine.StageReader {
		c.reader.close()
	}
	c.eng.retire(c)
	c.logger.Debug("component_destroyed")
	return nil
}

// Stats returns the component's counters.
func (c *Component) Stats() Stats {
	return Stats{
		BytesRead:      c.bytesRead.Load(),
		FramesDecoded:  c.framesDecoded.Load(),
		FramesRendered: c.framesRendered.Load(),
		Resets:         c.resets.Load(),
		FramesDropped:  c.framesDropped.Load(),
		EOSRaised:      c.eosRaised.Load(),
	}
}

// DisplayRegion returns the region last applied to a renderer.
func (c *Component) DisplayRegion() engine.DisplayRegion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.region
}

// Inject raises ev on the control channel from the component goroutine, as
// if the component had produced it.
func (c *Component) Inject(ev engine.Event) {
	if ev.Source == "" {
		ev.Source = c.name
	}
	c.tasks.push(func() { c.control.emit(ev) })
}

func (c *Component) raise(ev engine.Event) {
	ev.Source = c.name
	c.control.emit(ev)
}

// resume re-dispatches held buffers and pending frames.
func (c *Component) resume() {
	for _, p := range []*port{c.input, c.output} {
		if p == nil {
			continue
		}
		for _, b := range p.heldBuffers() {
			c.process(p, b)
		}
	}
	if c.kind == engine.StageScheduler {
		c.flushPending()
	}
}

// process handles a buffer the core sent to port p.
func (c *Component) process(p *port, b *engine.Buffer) {
	if !c.IsEnabled() {
		return
	}
	switch {
	case c.kind == engine.StageReader && p.dir == dirOutput:
		c.fill(p, b)
	case c.kind == engine.StageDecoder && p.dir == dirInput:
		c.decode(p, b)
	default:
		// Nothing else accepts buffers from the core; hand it straight back.
		p.giveBack(b)
	}
}

// onFrame handles a frame arriving through a tunnel on input port p.
func (c *Component) onFrame(p *port, f frame) {
	if !c.IsEnabled() || !p.IsEnabled() {
		c.framesDropped.Add(1)
		return
	}
	switch c.kind {
	case engine.StageScheduler:
		c.schedule(f)
	case engine.StageRenderer:
		c.render(f)
	default:
		c.framesDropped.Add(1)
	}
}

func (c *Component) setParameter(p engine.Parameter) error {
	switch v := p.(type) {
	case engine.SourceURI:
		if c.kind != engine.StageReader {
			return engine.ErrUnsupported
		}
		return c.reader.open(c.eng.opts.Fs, string(v))
	case engine.Seek:
		if c.kind != engine.StageReader {
			return engine.ErrUnsupported
		}
		if err := c.reader.seek(v.Offset); err != nil {
			return err
		}
		c.tasks.push(c.resume)
		return nil
	case engine.ClockReference:
		if c.kind != engine.StageScheduler {
			return engine.ErrUnsupported
		}
		c.scheduler.reference.Store(bool(v))
		return nil
	case engine.ClockActive:
		if c.kind != engine.StageScheduler {
			return engine.ErrUnsupported
		}
		c.scheduler.active.Store(bool(v))
		if v {
			c.tasks.push(c.flushPending)
		}
		return nil
	case engine.DisplayRegion:
		if c.kind != engine.StageRenderer {
			return engine.ErrUnsupported
		}
		c.mu.Lock()
		c.region = v
		c.mu.Unlock()
		return nil
	}
	return engine.ErrUnsupported
}

// control is the component's control channel.
type control struct {
	comp *Component
	name string

	mu      sync.Mutex
	handler engine.EventHandler
}

func (c *control) Name() string { return c.name }

func (c *control) Enable(h engine.EventHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h == nil {
		return engine.ErrInvalid
	}
	c.handler = h
	return nil
}

func (c *control) Disable() error {
	c.mu.Lock()
	c.handler = nil
	c.mu.Unlock()
	return nil
}

func (c *control) IsEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler != nil
}

func (c *control) SetParameter(p engine.Parameter) error {
	return c.comp.setParameter(p)
}

func (c *control) emit(ev engine.Event) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(ev)
	}
}
