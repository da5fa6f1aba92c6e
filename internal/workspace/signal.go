package workspace

import (
	"sync"
	"sync/atomic"
)

// Signal carries the relative path of the most recently changed file to the
// workspace's preview server. It holds at most one pending path: a Notify
// that finds an unread path replaces it.
type Signal struct {
	ch   chan string
	mu   sync.Mutex // serializes producers so the drain-and-send is atomic
	sent atomic.Uint64
}

// NewSignal creates a signal with no pending path.
func NewSignal() *Signal {
	return &Signal{ch: make(chan string, 1)}
}

// Notify records path as the latest change. It never blocks.
func (s *Signal) Notify(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.ch:
	default:
	}
	s.ch <- path
	s.sent.Add(1)
}

// C returns the channel the consumer receives paths from.
func (s *Signal) C() <-chan string {
	return s.ch
}

// Pending reports whether a path is waiting to be received.
func (s *Signal) Pending() bool {
	return len(s.ch) > 0
}

// Sent returns the number of Notify calls so far, coalesced or not.
func (s *Signal) Sent() uint64 {
	return s.sent.Load()
}
