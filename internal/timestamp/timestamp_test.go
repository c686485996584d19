package timestamp

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_Monotonic(t *testing.T) {
	g := NewGenerator()

	prev := g.Next()
	for i := 0; i < 10000; i++ {
		next := g.Next()
		require.Greater(t, next, prev)
		prev = next
	}
}

func TestGenerator_FrozenClockUsesSequence(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	g := NewGeneratorWithClock(func() time.Time { return fixed })

	a := g.Next()
	b := g.Next()

	assert.Equal(t, fixed.UnixMilli(), a.UnixMilli())
	assert.Equal(t, fixed.UnixMilli(), b.UnixMilli())
	assert.Equal(t, 0, a.Seq())
	assert.Equal(t, 1, b.Seq())
}

func TestGenerator_ClockGoingBackwards(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	g := NewGeneratorWithClock(func() time.Time { return now })

	first := g.Next()
	now = now.Add(-time.Second)
	second := g.Next()

	assert.Greater(t, second, first)
}

func TestGenerator_Observe(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	g := NewGeneratorWithClock(func() time.Time { return now })

	issuedElsewhere := UniqueFromTime(now.Add(time.Hour)) + 5
	g.Observe(issuedElsewhere)
	assert.Equal(t, issuedElsewhere+1, g.Next())

	g.Observe(UniqueFromTime(now))
	assert.Equal(t, issuedElsewhere+2, g.Next())
}

func TestGenerator_ConcurrentUnique(t *testing.T) {
	g := NewGenerator()

	var mu sync.Mutex
	seen := make(map[UniqueTime]bool)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				v := g.Next()
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 8000)
}

func TestUnixTime_RoundTrip(t *testing.T) {
	ts := time.Date(2023, 6, 15, 8, 30, 0, 250_000_000, time.UTC)
	assert.True(t, FromTime(ts).Time().Equal(ts))
}
