package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_StartsAtZero(t *testing.T) {
	assert.Equal(t, int64(0), NewClock().Current())
	assert.Equal(t, int64(42), NewClockAt(42).Current())
}

func TestClock_Next_Incrementing(t *testing.T) {
	c := NewClock()

	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}

func TestClock_AdvanceTo(t *testing.T) {
	c := NewClockAt(10)

	c.advanceTo(5)
	assert.Equal(t, int64(10), c.Current(), "advanceTo never moves backwards")

	c.advanceTo(20)
	assert.Equal(t, int64(21), c.Next())
}

func TestClock_ThreadSafe(t *testing.T) {
	c := NewClock()
	const goroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	versions := make(chan int64, goroutines*callsPerGoroutine)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				versions <- c.Next()
			}
		}()
	}

	wg.Wait()
	close(versions)

	seen := make(map[int64]bool)
	for v := range versions {
		assert.False(t, seen[v], "version %d generated twice", v)
		seen[v] = true
	}
	assert.Len(t, seen, goroutines*callsPerGoroutine)
}
