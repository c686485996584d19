// Package timestamp holds the two time representations stored in the index:
// plain millisecond timestamps and unique, totally ordered "tick" timestamps.
package timestamp

import (
	"sync"
	"time"
)

const seqBits = 16

// UnixTime is a point in time in milliseconds since the Unix epoch.
type UnixTime int64

// FromTime converts t to millisecond precision.
func FromTime(t time.Time) UnixTime {
	return UnixTime(t.UnixMilli())
}

// Now returns the current time in milliseconds.
func Now() UnixTime {
	return FromTime(time.Now())
}

func (u UnixTime) Time() time.Time {
	return time.UnixMilli(int64(u)).UTC()
}

// UniqueTime is a millisecond timestamp shifted left by 16 bits with a
// per-millisecond sequence in the low bits. Values handed out by one
// Generator never repeat and never decrease.
type UniqueTime int64

// UniqueFromTime returns the smallest UniqueTime within the millisecond of t.
func UniqueFromTime(t time.Time) UniqueTime {
	return UniqueTime(t.UnixMilli() << seqBits)
}

func (u UniqueTime) UnixMilli() int64 {
	return int64(u) >> seqBits
}

func (u UniqueTime) Time() time.Time {
	return time.UnixMilli(u.UnixMilli()).UTC()
}

// Seq returns the sequence number within the millisecond.
func (u UniqueTime) Seq() int {
	return int(int64(u) & (1<<seqBits - 1))
}

func (u UniqueTime) Ptr() *UniqueTime {
	return &u
}

// Generator hands out UniqueTime values. It is safe for concurrent use.
type Generator struct {
	mu   sync.Mutex
	last UniqueTime
	now  func() time.Time
}

func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// NewGeneratorWithClock is used by tests to freeze or script the clock.
func NewGeneratorWithClock(now func() time.Time) *Generator {
	return &Generator{now: now}
}

// Next returns a value strictly greater than any previously returned one.
// If the clock stands still or moves backwards, the sequence is advanced
// instead, spilling into the next millisecond when it runs out.
func (g *Generator) Next() UniqueTime {
	g.mu.Lock()
	defer g.mu.Unlock()

	next := UniqueFromTime(g.now())
	if next <= g.last {
		next = g.last + 1
	}
	g.last = next
	return next
}

// Observe raises the generator past u, so later values are greater than a
// tick issued elsewhere (a previous process or another writer).
func (g *Generator) Observe(u UniqueTime) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if u > g.last {
		g.last = u
	}
}
