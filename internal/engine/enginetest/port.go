package enginetest

import (
	"slices"
	"sync"

	"github.com/randomizedcoder/go-chain-player/internal/engine"
)

// Port is a fake port. Buffers sent to it are held until the test hands
// them back with Produce or Consume, or until the port is disabled.
type Port struct {
	comp *Component
	name string

	mu       sync.Mutex
	enabled  bool
	handler  engine.BufferHandler
	format   engine.Format
	req      engine.BufferRequirements
	peer     *Port
	held     []*engine.Buffer
	params   []engine.Parameter
	received int
}

func (p *Port) Name() string { return p.name }

func (p *Port) Format() engine.Format {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.format
}

func (p *Port) CommitFormat(f engine.Format) error {
	if err := p.comp.eng.call("commit %s %s", p.name, f.Encoding); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enabled {
		return engine.ErrInvalid
	}
	p.format = f
	return nil
}

func (p *Port) BufferRequirements() engine.BufferRequirements {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.req
}

// SetRequirements overrides the buffer requirements.
func (p *Port) SetRequirements(r engine.BufferRequirements) {
	p.mu.Lock()
	p.req = r
	p.mu.Unlock()
}

func (p *Port) SetParameter(param engine.Parameter) error {
	if err := p.comp.eng.call("set %s %s", p.name, param.ParameterName()); err != nil {
		return err
	}
	p.mu.Lock()
	p.params = append(p.params, param)
	p.mu.Unlock()
	return nil
}

// Params returns every parameter applied, oldest first.
func (p *Port) Params() []engine.Parameter {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.params)
}

func (p *Port) Enable(h engine.BufferHandler) error {
	if err := p.comp.eng.call("enable %s", p.name); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enabled {
		return engine.ErrInvalid
	}
	p.enabled = true
	p.handler = h
	if p.peer != nil {
		p.peer.mu.Lock()
		p.peer.enabled = true
		p.peer.mu.Unlock()
	}
	return nil
}

func (p *Port) Disable() error {
	if err := p.comp.eng.call("disable %s", p.name); err != nil {
		return err
	}
	p.mu.Lock()
	if !p.enabled {
		p.mu.Unlock()
		return engine.ErrInvalid
	}
	p.enabled = false
	held := p.held
	p.held = nil
	h := p.handler
	peer := p.peer
	p.mu.Unlock()

	if peer != nil {
		peer.mu.Lock()
		peer.enabled = false
		peer.mu.Unlock()
	}
	for _, b := range held {
		if h != nil {
			h(p, b)
		}
	}
	return nil
}

func (p *Port) IsEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

func (p *Port) Send(b *engine.Buffer) error {
	if err := p.comp.eng.call("send %s", p.name); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return engine.ErrNotEnabled
	}
	p.held = append(p.held, b)
	p.received++
	return nil
}

func (p *Port) Connect(dst engine.Port) error {
	if err := p.comp.eng.call("connect %s->%s", p.name, dst.Name()); err != nil {
		return err
	}
	peer, ok := dst.(*Port)
	if !ok {
		return engine.ErrInvalid
	}
	p.mu.Lock()
	p.peer = peer
	p.mu.Unlock()
	return nil
}

func (p *Port) Disconnect() error {
	if err := p.comp.eng.call("disconnect %s", p.name); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.peer == nil {
		return engine.ErrNotConnected
	}
	p.peer = nil
	return nil
}

// Peer returns the tunnel destination, or nil.
func (p *Port) Peer() *Port {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peer
}

// Held returns the buffers currently held by the port.
func (p *Port) Held() []*engine.Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.held)
}

// Received counts every buffer accepted by Send.
func (p *Port) Received() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.received
}

// Produce fills the oldest held buffer with payload and flags and hands it
// back through the handler, as an output port does. It returns the buffer,
// or nil if nothing was held.
func (p *Port) Produce(payload []byte, flags engine.BufferFlags) *engine.Buffer {
	b, h := p.pop()
	if b == nil {
		return nil
	}
	b.Length = copy(b.Data, payload)
	b.Flags = flags
	if h != nil {
		h(p, b)
	}
	return b
}

// Consume hands the oldest held buffer back through the handler, as an
// input port does once it has used the payload.
func (p *Port) Consume() *engine.Buffer {
	b, h := p.pop()
	if b == nil {
		return nil
	}
	if h != nil {
		h(p, b)
	}
	return b
}

func (p *Port) pop() (*engine.Buffer, engine.BufferHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.held) == 0 {
		return nil, nil
	}
	b := p.held[0]
	p.held = p.held[1:]
	return b, p.handler
}
