package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var start = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func TestStepClock_Steps(t *testing.T) {
	clock := NewStepClock(start, time.Second)

	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start.Add(time.Second), clock.Now())
	assert.Equal(t, start.Add(2*time.Second), clock.Now())
}

func TestStepClock_Reset(t *testing.T) {
	clock := NewStepClock(start, time.Minute)
	clock.Now()
	clock.Now()

	clock.Reset()

	assert.Equal(t, start, clock.Now())
}

func TestStepClock_ConcurrentCallersGetDistinctTimes(t *testing.T) {
	clock := NewStepClock(start, time.Millisecond)

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[time.Time]bool{}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ts := clock.Now()
			mu.Lock()
			seen[ts] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 50)
}
