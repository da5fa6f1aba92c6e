package workspace

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignalCoalesces(t *testing.T) {
	s := NewSignal()
	assert.False(t, s.Pending())

	s.Notify("a.txt")
	s.Notify("b.txt")
	s.Notify("c.txt")

	assert.True(t, s.Pending())
	assert.Equal(t, "c.txt", <-s.C())
	assert.False(t, s.Pending())
	assert.Equal(t, uint64(3), s.Sent())
}

func TestSignalNeverBlocks(t *testing.T) {
	s := NewSignal()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Notify("x")
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(100), s.Sent())
	assert.Len(t, s.C(), 1)
}
