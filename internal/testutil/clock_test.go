package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicClock_StartsAtOrigin(t *testing.T) {
	clock := NewDeterministicClock()
	assert.Equal(t, DefaultStart, clock.Current())
	assert.Equal(t, DefaultStart, clock.Next())
}

func TestDeterministicClock_NextStepsEvenly(t *testing.T) {
	clock := NewDeterministicClockAt(DefaultStart, time.Minute)

	first := clock.Next()
	second := clock.Next()
	third := clock.Next()

	assert.Equal(t, time.Minute, second.Sub(first))
	assert.Equal(t, time.Minute, third.Sub(second))
	assert.Equal(t, clock.At(3), clock.Current())
}

func TestDeterministicClock_Reset(t *testing.T) {
	clock := NewDeterministicClock()

	clock.Next()
	clock.Next()
	require.Equal(t, clock.At(2), clock.Current())

	clock.Reset()
	assert.Equal(t, DefaultStart, clock.Next())
}

func TestDeterministicClock_ConcurrentNextUnique(t *testing.T) {
	clock := NewDeterministicClock()

	const n = 100
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[time.Time]bool, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ts := clock.Next()
			mu.Lock()
			seen[ts] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
	assert.Equal(t, clock.At(n), clock.Current())
}
