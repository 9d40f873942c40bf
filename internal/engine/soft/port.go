package soft

import (
	"sync"

	"github.com/randomizedcoder/go-chain-player/internal/engine"
)

type portDir int

const (
	dirInput portDir = iota
	dirOutput
	dirClock
)

type port struct {
	comp *Component
	name string
	dir  portDir

	mu      sync.Mutex
	enabled bool
	handler engine.BufferHandler
	format  engine.Format
	req     engine.BufferRequirements
	// peer is the tunnel destination of an output port; src is the tunnel
	// source of an input port.
	peer *port
	src  *port
	held map[*engine.Buffer]struct{}
}

func newPort(c *Component, dir string, d portDir, f engine.Format, req engine.BufferRequirements) *port {
	return &port{
		comp:   c,
		name:   c.name + "." + dir,
		dir:    d,
		format: f,
		req:    req,
		held:   make(map[*engine.Buffer]struct{}),
	}
}

func (p *port) Name() string { return p.name }

func (p *port) Format() engine.Format {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.format
}

func (p *port) CommitFormat(f engine.Format) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enabled {
		return engine.ErrInvalid
	}
	p.format = f
	return nil
}

func (p *port) BufferRequirements() engine.BufferRequirements {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.req
}

func (p *port) SetParameter(param engine.Parameter) error {
	return p.comp.setParameter(param)
}

func (p *port) Enable(h engine.BufferHandler) error {
	p.mu.Lock()
	if p.comp.isDestroyed() {
		p.mu.Unlock()
		return engine.ErrDestroyed
	}
	if p.enabled {
		p.mu.Unlock()
		return engine.ErrInvalid
	}
	if p.peer == nil && p.dir != dirClock && h == nil {
		p.mu.Unlock()
		return engine.ErrInvalid
	}
	p.enabled = true
	p.handler = h
	peer := p.peer
	p.mu.Unlock()

	if peer != nil {
		peer.setEnabled(true)
	}
	return nil
}

func (p *port) Disable() error {
	p.mu.Lock()
	if !p.enabled {
		p.mu.Unlock()
		return engine.ErrInvalid
	}
	p.mu.Unlock()
	p.shutdown()
	return nil
}

// shutdown disables the port, its tunnel peer, and hands back every held
// buffer.
func (p *port) shutdown() {
	p.mu.Lock()
	p.enabled = false
	held := make([]*engine.Buffer, 0, len(p.held))
	for b := range p.held {
		held = append(held, b)
	}
	clear(p.held)
	h := p.handler
	p.handler = nil
	peer := p.peer
	p.mu.Unlock()

	if peer != nil {
		peer.setEnabled(false)
	}
	if h == nil {
		return
	}
	for _, b := range held {
		h(p, b)
	}
}

func (p *port) setEnabled(v bool) {
	p.mu.Lock()
	p.enabled = v
	p.mu.Unlock()
}

func (p *port) IsEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

func (p *port) Send(b *engine.Buffer) error {
	p.mu.Lock()
	switch {
	case p.comp.isDestroyed():
		p.mu.Unlock()
		return engine.ErrDestroyed
	case !p.enabled:
		p.mu.Unlock()
		return engine.ErrNotEnabled
	case p.dir == dirClock || p.peer != nil || p.src != nil:
		p.mu.Unlock()
		return engine.ErrInvalid
	}
	p.held[b] = struct{}{}
	p.mu.Unlock()

	p.comp.tasks.push(func() { p.comp.process(p, b) })
	return nil
}

func (p *port) Connect(dst engine.Port) error {
	peer, ok := dst.(*port)
	if !ok || p.dir != dirOutput || peer.dir != dirInput {
		return engine.ErrInvalid
	}
	p.mu.Lock()
	if p.peer != nil || p.enabled {
		p.mu.Unlock()
		return engine.ErrInvalid
	}
	p.peer = peer
	p.mu.Unlock()

	peer.mu.Lock()
	peer.src = p
	peer.format = p.Format()
	peer.mu.Unlock()
	return nil
}

func (p *port) Disconnect() error {
	p.mu.Lock()
	peer := p.peer
	if peer == nil {
		p.mu.Unlock()
		return engine.ErrNotConnected
	}
	p.peer = nil
	p.mu.Unlock()

	peer.mu.Lock()
	peer.src = nil
	peer.mu.Unlock()
	return nil
}

// fillHeld runs fn while b is still held by the port, so a concurrent
// Disable cannot hand b back mid-write. It reports whether fn ran.
func (p *port) fillHeld(b *engine.Buffer, fn func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.held[b]; !ok {
		return false
	}
	fn()
	return true
}

// giveBack returns b through the handler if the port still holds it.
func (p *port) giveBack(b *engine.Buffer) {
	p.mu.Lock()
	_, ok := p.held[b]
	delete(p.held, b)
	h := p.handler
	p.mu.Unlock()
	if ok && h != nil {
		h(p, b)
	}
}

func (p *port) heldBuffers() []*engine.Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*engine.Buffer, 0, len(p.held))
	for b := range p.held {
		out = append(out, b)
	}
	return out
}

// deliver pushes f through the tunnel. It reports false if the tunnel is
// missing or disabled.
func (p *port) deliver(f frame) bool {
	p.mu.Lock()
	peer, enabled := p.peer, p.enabled
	p.mu.Unlock()
	if peer == nil || !enabled {
		return false
	}
	return peer.comp.tasks.push(func() { peer.comp.onFrame(peer, f) })
}

func (c *Component) isDestroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}
