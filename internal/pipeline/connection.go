package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/randomizedcoder/go-chain-player/internal/engine"
)

// Mode selects how a connection moves buffers.
type Mode int

const (
	// ModeManual: buffers come from a pool owned by the connection and are
	// pumped between the ports by the worker.
	ModeManual Mode = iota
	// ModeTunnelled: the engine moves buffers between the ports itself.
	ModeTunnelled
)

func (m Mode) String() string {
	if m == ModeTunnelled {
		return "tunnelled"
	}
	return "manual"
}

// Connection links an output port to an input port.
//
// For a manual connection, engine goroutines only ever touch the delivered
// queue and the pool; Pump and every lifecycle method run on the owner's
// goroutine.
type Connection struct {
	name   string
	out    engine.Port
	in     engine.Port
	mode   Mode
	logger *slog.Logger

	pool   *engine.Pool
	queue  engine.Queue
	notify func()

	enabled   atomic.Bool
	destroyed bool
	tagNext   bool

	recycled  atomic.Uint64
	forwarded atomic.Uint64
}

// NewConnection creates a connection. A manual connection commits the
// producer's format on the consumer port and allocates a pool sized for
// both ends; notify is called whenever a buffer becomes available to pump.
// A tunnelled connection asks the engine to connect the ports.
func NewConnection(name string, out, in engine.Port, mode Mode, notify func(), logger *slog.Logger) (*Connection, error) {
	if out == nil || in == nil {
		return nil, fmt.Errorf("connection %s: %w: missing port", name, engine.ErrInvalid)
	}
	if notify == nil {
		notify = func() {}
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connection{
		name:   name,
		out:    out,
		in:     in,
		mode:   mode,
		notify: notify,
		logger: logger,
	}

	if mode == ModeTunnelled {
		if err := out.Connect(in); err != nil {
			return nil, fmt.Errorf("connection %s: connect: %w", name, err)
		}
		return c, nil
	}

	if err := in.CommitFormat(out.Format()); err != nil {
		return nil, fmt.Errorf("connection %s: commit format: %w", name, err)
	}
	outReq, inReq := out.BufferRequirements(), in.BufferRequirements()
	num := max(outReq.Num, inReq.Num, 1)
	size := max(outReq.Size, inReq.Size, 1)
	c.pool = engine.NewPool(num, size)
	c.pool.SetReleaseHandler(notify)
	return c, nil
}

// Name returns the connection name.
func (c *Connection) Name() string { return c.name }

// Mode returns the connection mode.
func (c *Connection) Mode() Mode { return c.mode }

// IsEnabled reports whether the connection is enabled.
func (c *Connection) IsEnabled() bool { return c.enabled.Load() }

// Pool returns the buffer pool of a manual connection, or nil.
func (c *Connection) Pool() *engine.Pool { return c.pool }

// Queued is the number of filled buffers waiting to be forwarded.
func (c *Connection) Queued() int { return c.queue.Len() }

// Recycled counts buffers sent back to the producer.
func (c *Connection) Recycled() uint64 { return c.recycled.Load() }

// Forwarded counts buffers sent on to the consumer.
func (c *Connection) Forwarded() uint64 { return c.forwarded.Load() }

// Enable starts the connection. Enabling an enabled connection is a no-op.
func (c *Connection) Enable() error {
	if c.destroyed {
		return fmt.Errorf("connection %s: %w", c.name, engine.ErrDestroyed)
	}
	if c.enabled.Load() {
		return nil
	}
	if c.mode == ModeTunnelled {
		if err := c.out.Enable(nil); err != nil {
			return fmt.Errorf("connection %s: enable tunnel: %w", c.name, err)
		}
		c.enabled.Store(true)
		return nil
	}

	// Set before the ports start so the first filled buffer is queued.
	c.enabled.Store(true)
	if err := c.in.Enable(c.onConsumed); err != nil {
		c.enabled.Store(false)
		return fmt.Errorf("connection %s: enable input: %w", c.name, err)
	}
	if err := c.out.Enable(c.onFilled); err != nil {
		c.enabled.Store(false)
		_ = c.in.Disable()
		return fmt.Errorf("connection %s: enable output: %w", c.name, err)
	}
	return nil
}

// Disable stops the connection and returns every queued buffer to the
// pool. Disabling a disabled connection is a no-op.
func (c *Connection) Disable() error {
	if !c.enabled.Swap(false) {
		return nil
	}
	if c.mode == ModeTunnelled {
		if err := c.out.Disable(); err != nil {
			return fmt.Errorf("connection %s: disable tunnel: %w", c.name, err)
		}
		return nil
	}

	// Both ports hand their buffers back through the handlers, which
	// release them now that the connection is disabled.
	errOut := c.out.Disable()
	errIn := c.in.Disable()
	for b := c.queue.Get(); b != nil; b = c.queue.Get() {
		c.release(b)
	}
	if err := errors.Join(errOut, errIn); err != nil {
		return fmt.Errorf("connection %s: disable: %w", c.name, err)
	}
	return nil
}

// Destroy disables the connection and frees its resources. Destroying a
// destroyed connection is a no-op.
func (c *Connection) Destroy() error {
	if c.destroyed {
		return nil
	}
	err := c.Disable()
	if c.mode == ModeTunnelled {
		if derr := c.out.Disconnect(); derr != nil && !errors.Is(derr, engine.ErrNotConnected) {
			err = errors.Join(err, fmt.Errorf("connection %s: disconnect: %w", c.name, derr))
		}
	} else {
		c.pool.Close()
	}
	c.destroyed = true
	return err
}

// MarkDiscontinuity tags the next forwarded buffer with
// Discontinuity|Config. Only the first buffer after the call is tagged.
func (c *Connection) MarkDiscontinuity() {
	c.tagNext = true
}

// DiscontinuityPending reports whether the next forwarded buffer will be
// tagged.
func (c *Connection) DiscontinuityPending() bool {
	return c.tagNext
}

// Pump moves buffers across a manual connection: free pool buffers go to
// the producer, then filled buffers go to the consumer. Tunnelled and
// disabled connections are skipped.
func (c *Connection) Pump() (int, error) {
	if c.mode == ModeTunnelled || !c.enabled.Load() {
		return 0, nil
	}

	moved := 0
	// Bounded by the arena size so a producer that hands buffers straight
	// back cannot keep the loop spinning.
	for range c.pool.Size() {
		b := c.pool.Get()
		if b == nil {
			break
		}
		if err := b.Transfer(engine.BufferFree, engine.BufferAtProducer); err != nil {
			return moved, fmt.Errorf("connection %s: %w", c.name, err)
		}
		if err := c.out.Send(b); err != nil {
			c.release(b)
			return moved, fmt.Errorf("connection %s: send to %s: %w", c.name, c.out.Name(), err)
		}
		c.recycled.Add(1)
		moved++
	}

	for range c.pool.Size() {
		b := c.queue.Get()
		if b == nil {
			break
		}
		if c.tagNext {
			b.Flags |= engine.FlagDiscontinuity | engine.FlagConfig
			c.tagNext = false
		}
		if err := b.Transfer(engine.BufferQueued, engine.BufferAtConsumer); err != nil {
			return moved, fmt.Errorf("connection %s: %w", c.name, err)
		}
		if err := c.in.Send(b); err != nil {
			c.release(b)
			return moved, fmt.Errorf("connection %s: send to %s: %w", c.name, c.in.Name(), err)
		}
		c.forwarded.Add(1)
		moved++
	}
	return moved, nil
}

// FormatChanged applies a producer format change. A manual connection
// whose consumer format differs is disabled, recommitted and re-enabled;
// a tunnelled connection renegotiates inside the engine.
func (c *Connection) FormatChanged(f engine.Format) error {
	if c.mode == ModeTunnelled || c.destroyed {
		return nil
	}
	if c.in.Format() == f {
		return nil
	}
	wasEnabled := c.enabled.Load()
	if err := c.Disable(); err != nil {
		return err
	}
	if err := c.in.CommitFormat(f); err != nil {
		return fmt.Errorf("connection %s: commit format: %w", c.name, err)
	}
	c.logger.Debug("connection_format_committed", "connection", c.name, "format", f.String())
	if wasEnabled {
		return c.Enable()
	}
	return nil
}

func (c *Connection) onFilled(_ engine.Port, b *engine.Buffer) {
	if !c.enabled.Load() {
		c.release(b)
		return
	}
	if err := b.Transfer(engine.BufferAtProducer, engine.BufferQueued); err != nil {
		c.logger.Warn("connection_buffer_rejected", "connection", c.name, "error", err)
		c.release(b)
		return
	}
	c.queue.Put(b)
	c.notify()
}

func (c *Connection) onConsumed(_ engine.Port, b *engine.Buffer) {
	c.release(b)
}

func (c *Connection) release(b *engine.Buffer) {
	if err := b.Release(); err != nil {
		c.logger.Warn("connection_release_failed", "connection", c.name, "error", err)
	}
}
