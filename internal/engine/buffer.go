package engine

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// BufferFlags annotate a buffer's payload.
type BufferFlags uint32

const (
	FlagEOS BufferFlags = 1 << iota
	FlagDiscontinuity
	FlagConfig
)

// Has reports whether every bit of x is set.
func (f BufferFlags) Has(x BufferFlags) bool {
	return f&x == x
}

func (f BufferFlags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	if f.Has(FlagEOS) {
		parts = append(parts, "eos")
	}
	if f.Has(FlagDiscontinuity) {
		parts = append(parts, "discontinuity")
	}
	if f.Has(FlagConfig) {
		parts = append(parts, "config")
	}
	return strings.Join(parts, "|")
}

// BufferState records who holds a buffer.
type BufferState int32

const (
	// BufferFree: on the pool free queue, or just taken from it.
	BufferFree BufferState = iota
	// BufferAtProducer: sent to an output port to be filled.
	BufferAtProducer
	// BufferQueued: filled and waiting on a connection queue.
	BufferQueued
	// BufferAtConsumer: sent to an input port to be consumed.
	BufferAtConsumer
)

func (s BufferState) String() string {
	switch s {
	case BufferFree:
		return "free"
	case BufferAtProducer:
		return "at_producer"
	case BufferQueued:
		return "queued"
	case BufferAtConsumer:
		return "at_consumer"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Buffer is a slot in a Pool. It is never shared: the state tag names its
// single holder and every hand-off is a compare-and-swap on that tag.
type Buffer struct {
	Data   []byte
	Length int
	Flags  BufferFlags
	PTS    time.Duration

	pool  *Pool
	index int
	state atomic.Int32
}

// Payload returns the filled part of Data.
func (b *Buffer) Payload() []byte {
	return b.Data[:b.Length]
}

// Index is the buffer's slot number in its pool.
func (b *Buffer) Index() int { return b.index }

// Pool returns the owning pool.
func (b *Buffer) Pool() *Pool { return b.pool }

// State returns the current holder.
func (b *Buffer) State() BufferState {
	return BufferState(b.state.Load())
}

// Transfer moves the buffer from one holder to the next. It fails with
// ErrBufferOwnership if the buffer is not in state from.
func (b *Buffer) Transfer(from, to BufferState) error {
	if !b.state.CompareAndSwap(int32(from), int32(to)) {
		return fmt.Errorf("%w: buffer %d is %s, want %s",
			ErrBufferOwnership, b.index, b.State(), from)
	}
	return nil
}

// Release returns the buffer to its pool's free queue. Whoever currently
// holds the buffer may release it; releasing a free buffer is an error.
func (b *Buffer) Release() error {
	if b.pool == nil {
		return fmt.Errorf("%w: buffer has no pool", ErrBufferOwnership)
	}
	return b.pool.put(b)
}

// Queue is a FIFO of buffers safe for concurrent use.
type Queue struct {
	mu    sync.Mutex
	items []*Buffer
}

// Put appends b.
func (q *Queue) Put(b *Buffer) {
	q.mu.Lock()
	q.items = append(q.items, b)
	q.mu.Unlock()
}

// Get removes and returns the oldest buffer, or nil when empty.
func (q *Queue) Get() *Buffer {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	b := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return b
}

// Len returns the number of queued buffers.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pool is a fixed arena of buffers with a free queue.
type Pool struct {
	buffers []*Buffer
	free    Queue

	mu        sync.Mutex
	onRelease func()
	closed    bool
}

// NewPool allocates num buffers of size bytes each, all free.
func NewPool(num, size int) *Pool {
	p := &Pool{buffers: make([]*Buffer, num)}
	for i := range p.buffers {
		b := &Buffer{Data: make([]byte, size), pool: p, index: i}
		p.buffers[i] = b
		p.free.Put(b)
	}
	return p
}

// SetReleaseHandler installs fn, called after every buffer returns to the
// free queue. fn runs on the releasing goroutine.
func (p *Pool) SetReleaseHandler(fn func()) {
	p.mu.Lock()
	p.onRelease = fn
	p.mu.Unlock()
}

// Get takes a free buffer, or returns nil if none is free. The buffer
// stays tagged BufferFree until the caller transfers it.
func (p *Pool) Get() *Buffer {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil
	}
	return p.free.Get()
}

// Size is the number of buffers in the arena.
func (p *Pool) Size() int { return len(p.buffers) }

// Free is the number of buffers on the free queue.
func (p *Pool) Free() int { return p.free.Len() }

// Buffers exposes every slot, for inspection.
func (p *Pool) Buffers() []*Buffer { return p.buffers }

// Close stops the pool handing out buffers and detaches the release
// handler. Buffers released afterwards are still accepted.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.onRelease = nil
	p.mu.Unlock()
}

func (p *Pool) put(b *Buffer) error {
	prev := BufferState(b.state.Swap(int32(BufferFree)))
	if prev == BufferFree {
		return fmt.Errorf("%w: buffer %d released twice", ErrBufferOwnership, b.index)
	}
	b.Length = 0
	b.Flags = 0
	b.PTS = 0
	p.free.Put(b)

	p.mu.Lock()
	fn := p.onRelease
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}
