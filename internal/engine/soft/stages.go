package soft

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"github.com/randomizedcoder/go-chain-player/internal/engine"
)

// =============================================================================
// Reader
// =============================================================================

type readerState struct {
	mu   sync.Mutex
	uri  string
	file afero.File
	// done is set once the EOS buffer has gone out; further buffers are
	// held until a seek or teardown.
	done bool
}

func (r *readerState) open(fs afero.Fs, uri string) error {
	info, err := fs.Stat(uri)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", engine.ErrSourceUnreadable, uri, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s: is a directory", engine.ErrSourceUnreadable, uri)
	}
	f, err := fs.Open(uri)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", engine.ErrSourceUnreadable, uri, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		_ = r.file.Close()
	}
	r.uri, r.file, r.done = uri, f, false
	return nil
}

// seek rewinds to the start. Offsets are not honoured; seeking is best
// effort.
func (r *readerState) seek(time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return fmt.Errorf("seek: %w: no source", engine.ErrInvalid)
	}
	if _, err := r.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek %s: %w", r.uri, err)
	}
	r.done = false
	return nil
}

func (r *readerState) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
	}
}

// fill reads the next chunk into b. The final buffer of a stream is empty
// and flagged EOS.
func (c *Component) fill(p *port, b *engine.Buffer) {
	r := &c.reader
	var readErr error
	ready := false

	p.fillHeld(b, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.file == nil || r.done {
			return
		}
		n, err := io.ReadFull(r.file, b.Data)
		switch {
		case n > 0:
			b.Length = n
			c.bytesRead.Add(uint64(n))
			ready = true
		case errors.Is(err, io.EOF):
			b.Length = 0
			b.Flags |= engine.FlagEOS
			r.done = true
			ready = true
		}
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			readErr = fmt.Errorf("read %s: %w", r.uri, err)
			r.done = true
		}
	})

	if readErr != nil {
		c.raise(engine.Event{Type: engine.EventError, Err: readErr})
	}
	if ready {
		p.giveBack(b)
	}
}

// =============================================================================
// Decoder
// =============================================================================

type decoderState struct {
	carry int
	seq   uint64
}

func (c *Component) decode(p *port, b *engine.Buffer) {
	d := &c.decoder
	size := c.eng.opts.FrameSize
	var frames []frame

	p.fillHeld(b, func() {
		if b.Flags.Has(engine.FlagDiscontinuity) || b.Flags.Has(engine.FlagConfig) {
			c.resets.Add(1)
			d.carry = 0
		}
		d.carry += b.Length
		for d.carry >= size {
			d.carry -= size
			d.seq++
			frames = append(frames, frame{seq: d.seq, size: size})
		}
		if b.Flags.Has(engine.FlagEOS) {
			if d.carry > 0 {
				d.seq++
				frames = append(frames, frame{seq: d.seq, size: d.carry})
				d.carry = 0
			}
			frames = append(frames, frame{eos: true})
		}
	})
	p.giveBack(b)

	for _, f := range frames {
		if !f.eos {
			c.framesDecoded.Add(1)
		}
		if !c.output.deliver(f) {
			c.framesDropped.Add(1)
		}
	}
}

// =============================================================================
// Scheduler
// =============================================================================

type schedulerState struct {
	reference atomic.Bool
	active    atomic.Bool
	pending   []frame
}

func (c *Component) schedule(f frame) {
	s := &c.scheduler
	if !s.active.Load() || len(s.pending) > 0 {
		s.pending = append(s.pending, f)
		if !s.active.Load() {
			return
		}
		c.flushPending()
		return
	}
	c.forward(f)
}

func (c *Component) flushPending() {
	s := &c.scheduler
	for len(s.pending) > 0 && s.active.Load() && c.IsEnabled() {
		f := s.pending[0]
		s.pending = s.pending[1:]
		c.forward(f)
	}
}

func (c *Component) forward(f frame) {
	if d := c.eng.opts.FrameInterval; d > 0 && !f.eos {
		time.Sleep(d)
	}
	if !c.output.deliver(f) {
		c.framesDropped.Add(1)
	}
}

// =============================================================================
// Renderer
// =============================================================================

func (c *Component) render(f frame) {
	if f.eos {
		c.eosRaised.Add(1)
		c.raise(engine.Event{Type: engine.EventEOS})
		return
	}
	c.framesRendered.Add(1)
}
