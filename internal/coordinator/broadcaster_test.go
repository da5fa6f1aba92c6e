package coordinator

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/liveserver/internal/cluster"
)

func event(i int) cluster.ChangeEvent {
	return cluster.ChangeEvent{Added: true, Name: fmt.Sprintf("n%d", i), URL: fmt.Sprintf("http://127.0.0.1:%d/", 4000+i)}
}

func drain(s *Subscription) []cluster.ChangeEvent {
	var out []cluster.ChangeEvent
	for {
		select {
		case ev := <-s.C():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestBroadcasterFanOut(t *testing.T) {
	b := NewBroadcaster(DefaultHistory)
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	assert.NotEqual(t, s1.ID, s2.ID)

	assert.Equal(t, 2, b.Publish(event(1)))

	assert.Equal(t, []cluster.ChangeEvent{event(1)}, drain(s1))
	assert.Equal(t, []cluster.ChangeEvent{event(1)}, drain(s2))
}

func TestBroadcasterLateSubscriberMissesEarlierEvents(t *testing.T) {
	b := NewBroadcaster(DefaultHistory)
	b.Publish(event(1))
	s := b.Subscribe()
	b.Publish(event(2))

	assert.Equal(t, []cluster.ChangeEvent{event(2)}, drain(s))
}

// TestBroadcasterSlowSubscriber verifies that a subscriber that never reads
// does not stall Publish and keeps only the most recent window.
func TestBroadcasterSlowSubscriber(t *testing.T) {
	b := NewBroadcaster(DefaultHistory)
	s := b.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			b.Publish(event(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	got := drain(s)
	require.Len(t, got, DefaultHistory)
	for i, ev := range got {
		assert.Equal(t, event(10000-DefaultHistory+i), ev)
	}
	assert.Equal(t, uint64(10000-DefaultHistory), s.Dropped())
}

func TestBroadcasterLazilyForgetsClosedSubscribers(t *testing.T) {
	b := NewBroadcaster(DefaultHistory)
	s := b.Subscribe()
	keep := b.Subscribe()

	s.Close()
	s.Close()
	assert.Equal(t, 2, b.Len(), "closed subscriber is only dropped on the next publish")

	assert.Equal(t, 1, b.Publish(event(1)))
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, []cluster.ChangeEvent{event(1)}, drain(keep))

	select {
	case <-s.Done():
	default:
		t.Fatal("Done must be closed after Close")
	}
}

func TestBroadcasterConcurrentPublishAndRead(t *testing.T) {
	b := NewBroadcaster(DefaultHistory)
	s := b.Subscribe()
	defer s.Close()

	var received int
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			select {
			case <-s.C():
				received++
			case <-s.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				b.Publish(event(p*1000 + i))
			}
		}(p)
	}
	wg.Wait()
	s.Close()
	<-readerDone

	assert.Equal(t, uint64(2000), uint64(received)+s.Dropped()+uint64(len(s.C())))
}
