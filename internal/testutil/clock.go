package testutil

import (
	"fmt"
	"sync"
	"time"
)

// RunTime is the instant FixedClock reports.
var RunTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// StubClock is a twcc.Clock that only moves when told to.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

// FixedClock returns a StubClock stopped at RunTime.
func FixedClock() *StubClock {
	return &StubClock{now: RunTime}
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d, e.g. between two runs.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// StubIDGenerator hands out UUID-shaped ids whose first group counts up
// from 00000001, so snapshot names derived from them sort predictably.
type StubIDGenerator struct {
	mu sync.Mutex
	n  uint32
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%08x-0000-4000-8000-000000000000", g.n)
}
