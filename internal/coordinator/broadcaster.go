package coordinator

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dreamware/liveserver/internal/cluster"
)

// DefaultHistory is the per-subscriber buffer size.
const DefaultHistory = 10

// Subscription is one independent receiver of change events. Its buffer holds
// at most the broadcaster's history size; when it is full the oldest event is
// dropped, so a slow reader sees a gap, never a stalled publisher.
type Subscription struct {
	ID      string
	events  chan cluster.ChangeEvent
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

// C returns the channel events are delivered on. It is never closed; select
// on Done as well to notice Close.
func (s *Subscription) C() <-chan cluster.ChangeEvent { return s.events }

// Done is closed once the subscription is closed.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close detaches the subscription. The broadcaster forgets it the next time
// it tries to deliver to it. Close is idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() { close(s.done) })
}

// Dropped returns how many events were discarded because the buffer was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

func (s *Subscription) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// deliver enqueues ev, evicting the oldest buffered events until it fits.
// Only the broadcaster calls deliver, under its lock, so the reader is the
// only other party touching the channel and the loop terminates.
func (s *Subscription) deliver(ev cluster.ChangeEvent) {
	for {
		select {
		case s.events <- ev:
			return
		default:
		}
		select {
		case <-s.events:
			s.dropped.Add(1)
		default:
		}
	}
}

// Broadcaster fans change events out to any number of subscriptions. Its
// subscriber list has its own lock so that publishing never waits on the
// registry.
type Broadcaster struct {
	subs    map[string]*Subscription
	history int
	mu      sync.Mutex
}

// NewBroadcaster creates a broadcaster whose subscriptions buffer history
// events each.
func NewBroadcaster(history int) *Broadcaster {
	if history <= 0 {
		history = DefaultHistory
	}
	return &Broadcaster{
		subs:    make(map[string]*Subscription),
		history: history,
	}
}

// Subscribe creates a new subscription that receives every event published
// from now on.
func (b *Broadcaster) Subscribe() *Subscription {
	s := &Subscription{
		ID:     uuid.NewString(),
		events: make(chan cluster.ChangeEvent, b.history),
		done:   make(chan struct{}),
	}
	b.mu.Lock()
	b.subs[s.ID] = s
	b.mu.Unlock()
	return s
}

// Publish delivers ev to every live subscription and returns the number of
// subscriptions it reached. It never blocks on a reader.
func (b *Broadcaster) Publish(ev cluster.ChangeEvent) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for id, s := range b.subs {
		if s.closed() {
			delete(b.subs, id)
			continue
		}
		s.deliver(ev)
		n++
	}
	return n
}

// Len returns the number of subscriptions not yet cleaned up, including
// closed ones that have not been written to since.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
