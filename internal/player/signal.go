package player

import "sync"

// Signal is a counting semaphore: every Post releases exactly one Wait, and
// posts made while nobody waits are kept.
type Signal struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count int
}

// NewSignal returns a signal holding initial pending posts.
func NewSignal(initial int) *Signal {
	s := &Signal{count: initial}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Post adds one pending post. It never blocks.
func (s *Signal) Post() {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	s.cond.Signal()
}

// Wait blocks until a post is pending and consumes it.
func (s *Signal) Wait() {
	s.mu.Lock()
	for s.count == 0 {
		s.cond.Wait()
	}
	s.count--
	s.mu.Unlock()
}

// Pending returns the number of unconsumed posts.
func (s *Signal) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
